// Package events publishes domain events on a best-effort, fire-and-forget
// basis. Two interchangeable transports exist: a Redis Streams publisher for
// shared delivery across instances and an in-process publisher for local-only
// delivery. The transport is selected once at construction time.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a single published domain event.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher delivers events to interested consumers. Publish failures must
// never affect the correctness of the primary operation.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]interface{}) error
	Close() error
}

// -- Redis Streams transport --

// RedisPublisher appends events to a Redis stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL, stream string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisPublisher{client: client, stream: stream}, nil
}

// Publish XADDs the event as a JSON document plus a type field for consumers
// that filter without unmarshalling.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	evt := Event{
		ID:         uuid.New(),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      eventType,
			"data":      string(data),
			"timestamp": evt.OccurredAt.Unix(),
		},
	}).Err()
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error { return p.client.Close() }

// -- In-process transport --

// Handler consumes one delivered event.
type Handler func(Event)

// LocalPublisher delivers events synchronously to in-process subscribers.
type LocalPublisher struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// NewLocalPublisher creates an empty in-process publisher.
func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{subs: make(map[string][]Handler)}
}

// Subscribe registers a handler for eventType. "*" receives every event.
func (p *LocalPublisher) Subscribe(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[eventType] = append(p.subs[eventType], h)
}

// Publish delivers the event to matching subscribers.
func (p *LocalPublisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	evt := Event{
		ID:         uuid.New(),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	p.mu.RLock()
	handlers := append([]Handler{}, p.subs[eventType]...)
	handlers = append(handlers, p.subs["*"]...)
	p.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
	return nil
}

// Close implements Publisher.
func (p *LocalPublisher) Close() error { return nil }

// NewPublisher selects the transport: Redis when a URL is configured and
// reachable, otherwise local-only delivery. The fallback is logged once here
// rather than branched on throughout the services.
func NewPublisher(ctx context.Context, redisURL, stream string, logger zerolog.Logger) Publisher {
	if redisURL == "" {
		logger.Info().Msg("event publisher: no redis url, using local delivery")
		return NewLocalPublisher()
	}
	p, err := NewRedisPublisher(ctx, redisURL, stream)
	if err != nil {
		logger.Warn().Err(err).Msg("event publisher: redis unreachable, falling back to local delivery")
		return NewLocalPublisher()
	}
	logger.Info().Str("stream", stream).Msg("event publisher: using redis streams")
	return p
}

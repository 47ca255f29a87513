package analytics

import (
	"math"
	"sort"
	"time"
)

// Trend directions and significance labels.
const (
	DirectionImproving = "improving"
	DirectionDeclining = "declining"
	DirectionStable    = "stable"

	SignificanceSignificant    = "significant"
	SignificanceNotSignificant = "not_significant"
	SignificanceInsufficient   = "insufficient_data"
)

// epsilon guards the direction classification against floating-point noise.
const epsilon = 0.01

// significanceThreshold: |correlation| above this counts as a real trend.
const significanceThreshold = 0.5

// Point is one (index, value) observation in a period-grouped series.
type Point struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// TrendResult describes the fitted trend of one metric series.
type TrendResult struct {
	Metric       string  `json:"metric"`
	Slope        float64 `json:"slope"`
	Correlation  float64 `json:"correlation"`
	Significance string  `json:"significance"`
	Direction    string  `json:"direction"`
	Confidence   string  `json:"confidence"`
	SampleSize   int     `json:"sample_size"`
}

// AnalyzeTrend fits an ordinary least-squares line through the series and
// classifies its direction and significance. Fewer than two points yield a
// stable, insufficient-data result rather than an error. The series is taken
// in the order given; the caller owns the temporal ordering.
func AnalyzeTrend(metric string, series []Point) TrendResult {
	res := TrendResult{
		Metric:       metric,
		Direction:    DirectionStable,
		Significance: SignificanceInsufficient,
		Confidence:   "low",
		SampleSize:   len(series),
	}
	if len(series) < 2 {
		return res
	}

	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for _, p := range series {
		x, y := float64(p.Index), p.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	denomX := n*sumXX - sumX*sumX
	if denomX != 0 {
		res.Slope = (n*sumXY - sumX*sumY) / denomX
	}

	denomY := n*sumYY - sumY*sumY
	if denomX > 0 && denomY > 0 {
		res.Correlation = (n*sumXY - sumX*sumY) / math.Sqrt(denomX*denomY)
	}

	if math.Abs(res.Correlation) > significanceThreshold {
		res.Significance = SignificanceSignificant
	} else {
		res.Significance = SignificanceNotSignificant
	}

	switch {
	case res.Slope > epsilon:
		res.Direction = DirectionImproving
	case res.Slope < -epsilon:
		res.Direction = DirectionDeclining
	}

	abs := math.Abs(res.Correlation)
	switch {
	case abs > 0.7:
		res.Confidence = "high"
	case abs > 0.4:
		res.Confidence = "medium"
	}
	return res
}

// Periods supported by GroupByPeriod.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// TimedPoint is a raw timestamped observation before grouping.
type TimedPoint struct {
	At    time.Time
	Value float64
}

// GroupByPeriod buckets observations by calendar period, averages each
// bucket and returns points indexed by bucket order (gaps keep their
// distance: an empty week still advances the index).
func GroupByPeriod(points []TimedPoint, period string) []Point {
	if len(points) == 0 {
		return nil
	}

	buckets := make(map[int][]float64)
	base := bucketIndex(points[0].At, period)
	minIdx, maxIdx := 0, 0
	for _, p := range points {
		idx := bucketIndex(p.At, period) - base
		buckets[idx] = append(buckets[idx], p.Value)
		if idx < minIdx {
			minIdx = idx
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	idxs := make([]int, 0, len(buckets))
	for idx := range buckets {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	out := make([]Point, 0, len(idxs))
	for _, idx := range idxs {
		vals := buckets[idx]
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		out = append(out, Point{Index: idx - minIdx, Value: sum / float64(len(vals))})
	}
	return out
}

// bucketIndex maps a timestamp onto a monotonically increasing period
// ordinal. Weeks are ISO weeks anchored on Monday; months count from year
// zero.
func bucketIndex(t time.Time, period string) int {
	t = t.UTC()
	switch period {
	case PeriodWeek:
		// Days since epoch, shifted so Monday starts the week.
		days := int(t.Unix() / 86400)
		return (days + 3) / 7
	case PeriodMonth:
		return t.Year()*12 + int(t.Month()) - 1
	default:
		return int(t.Unix() / 86400)
	}
}

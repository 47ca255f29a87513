package progress

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/platform/httpx"
	"github.com/riskcore/riskcore/internal/platform/middleware"
	"github.com/riskcore/riskcore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/progress-records", h.Create)
	api.GET("/progress-records/:id", h.Get)
	api.GET("/progress-records/:id/history", h.History)
	api.POST("/progress-records/:id/archive", h.Archive)
	api.DELETE("/progress-records/:id", h.Archive)
	api.POST("/progress-records/:id/goals", h.AddGoal)
	api.PUT("/progress-records/:id/goals/:goalId/progress", h.UpdateGoalProgress)
	api.POST("/progress-records/:id/goals/:goalId/reset", h.ResetGoal)
	api.POST("/progress-records/:id/interventions", h.RecordIntervention)
	api.POST("/progress-records/:id/interventions/:ivId/evaluate", h.EvaluateIntervention)

	api.GET("/patients/:id/progress-records", h.ListByPatient)
	api.GET("/patients/:id/progress-overview", h.Overview)
}

func actorID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Request().Header.Get(middleware.ActorHeader))
	return id, err == nil
}

func pathID(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	return id, err == nil
}

func (h *Handler) Create(c echo.Context) error {
	var rec Record
	if err := c.Bind(&rec); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	if actor, ok := actorID(c); ok {
		rec.AuthorID = actor
	}
	if err := h.svc.CreateRecord(c.Request().Context(), &rec); err != nil {
		return httpx.Error(c, err)
	}
	return httpx.Created(c, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, rec)
}

func (h *Handler) AddGoal(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	var in struct {
		Goal    Goal `json:"goal"`
		Version int  `json:"version"`
	}
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	rec, err := h.svc.AddGoal(c.Request().Context(), id, in.Goal, in.Version, actor)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, rec)
}

func (h *Handler) UpdateGoalProgress(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	goalID, ok := pathID(c, "goalId")
	if !ok {
		return httpx.BadRequest(c, "invalid goal id")
	}
	var in struct {
		CurrentValue float64 `json:"current_value"`
		Version      int     `json:"version"`
	}
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	rec, err := h.svc.UpdateGoalProgress(c.Request().Context(), id, goalID, in.CurrentValue, in.Version, actor)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, rec)
}

func (h *Handler) ResetGoal(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	goalID, ok := pathID(c, "goalId")
	if !ok {
		return httpx.BadRequest(c, "invalid goal id")
	}
	var in struct {
		Version int `json:"version"`
	}
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	rec, err := h.svc.ResetGoal(c.Request().Context(), id, goalID, in.Version, actor)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, rec)
}

func (h *Handler) RecordIntervention(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	var in struct {
		Intervention Intervention `json:"intervention"`
		Version      int          `json:"version"`
	}
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	rec, err := h.svc.RecordIntervention(c.Request().Context(), id, in.Intervention, in.Version, actor)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, rec)
}

func (h *Handler) EvaluateIntervention(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	ivID, ok := pathID(c, "ivId")
	if !ok {
		return httpx.BadRequest(c, "invalid intervention id")
	}
	var in struct {
		Version int `json:"version"`
	}
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	iv, err := h.svc.EvaluateIntervention(c.Request().Context(), id, ivID, in.Version, actor)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, iv)
}

func (h *Handler) Archive(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	actor, aok := actorID(c)
	if !aok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	if err := h.svc.Archive(c.Request().Context(), id, actor); err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, map[string]string{"status": StatusArchived})
}

func (h *Handler) History(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(200, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(200, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Overview(c echo.Context) error {
	pid, ok := pathID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid patient id")
	}
	ov, err := h.svc.Overview(c.Request().Context(), pid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, ov)
}

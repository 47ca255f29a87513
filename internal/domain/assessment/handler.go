package assessment

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
	api.POST("/assessments", h.Create)
	api.GET("/assessments", h.Search)
	api.GET("/assessments/:id", h.Get)
	api.PUT("/assessments/:id", h.Update)
	api.POST("/assessments/:id/archive", h.Archive)
	api.DELETE("/assessments/:id", h.Archive)
	api.GET("/assessments/:id/history", h.History)
	api.GET("/assessment-tools", h.Tools)

	api.GET("/patients/:id/assessments", h.ListByPatient)
	api.GET("/patients/:id/assessment-stats", h.Stats)
	api.GET("/patients/:id/risk-summary", h.RiskSummary)
	api.GET("/patients/:id/insights", h.Insights)
	api.GET("/patients/:id/score-history", h.ScoreHistory)
}

func actorID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Request().Header.Get(middleware.ActorHeader))
	return id, err == nil
}

func (h *Handler) Create(c echo.Context) error {
	var a Assessment
	if err := c.Bind(&a); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	if actor, ok := actorID(c); ok {
		a.AuthorID = actor
	}
	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return httpx.Error(c, err)
	}
	return httpx.Created(c, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	if actor, ok := actorID(c); ok {
		in.ActorID = actor
	}
	a, err := h.svc.Update(c.Request().Context(), id, &in)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, a)
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	actor, ok := actorID(c)
	if !ok {
		return httpx.BadRequest(c, "missing or invalid actor header")
	}
	if err := h.svc.Archive(c.Request().Context(), id, actor); err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, map[string]string{"status": StatusArchived})
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"patient", "tool", "status", "risk-level"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(200, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(200, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.JSON(200, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	stats, err := h.svc.Stats(c.Request().Context(), pid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, stats)
}

func (h *Handler) RiskSummary(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	summary, err := h.svc.RiskSummary(c.Request().Context(), pid)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, summary)
}

func (h *Handler) Insights(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	out, err := h.svc.Insights(c.Request().Context(), pid)
	if err != nil {
		return httpx.Error(c, err)
	}
	if out == nil {
		return httpx.OK(c, map[string]interface{}{"available": false})
	}
	return httpx.OK(c, out)
}

func (h *Handler) ScoreHistory(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	tool := ToolType(c.QueryParam("tool"))
	points, err := h.svc.ScoreHistory(c.Request().Context(), pid, tool)
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, points)
}

func (h *Handler) Tools(c echo.Context) error {
	return httpx.OK(c, h.svc.ValidTools())
}

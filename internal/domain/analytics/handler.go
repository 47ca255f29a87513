package analytics

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/domain/assessment"
	"github.com/riskcore/riskcore/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/score-trend", h.ScoreTrend)
	api.GET("/progress-records/:id/trend", h.ProgressTrend)
	api.GET("/progress-records/:id/goals/:goalId/prediction", h.PredictGoal)
}

func (h *Handler) ScoreTrend(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid patient id")
	}
	tool := assessment.ToolType(c.QueryParam("tool"))
	res, err := h.svc.ScoreTrend(c.Request().Context(), pid, tool, c.QueryParam("period"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, res)
}

func (h *Handler) ProgressTrend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	res, err := h.svc.ProgressTrend(c.Request().Context(), id, c.QueryParam("period"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, res)
}

func (h *Handler) PredictGoal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpx.BadRequest(c, "invalid id")
	}
	goalID, err := uuid.Parse(c.Param("goalId"))
	if err != nil {
		return httpx.BadRequest(c, "invalid goal id")
	}
	pred, err := h.svc.PredictGoal(c.Request().Context(), id, goalID, c.QueryParam("period"))
	if err != nil {
		return httpx.Error(c, err)
	}
	return httpx.OK(c, pred)
}

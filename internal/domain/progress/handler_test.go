package progress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/platform/middleware"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService(newMockRepo())), echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","goals":[{"description":"walk daily","target_value":100}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.ActorHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data Record `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data.Goals) != 1 || resp.Data.Goals[0].Status != GoalActive {
		t.Errorf("goals = %+v", resp.Data.Goals)
	}
}

func TestHandler_Create_InvalidGoal(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","goals":[{"description":"","target_value":100}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.ActorHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_UpdateGoalProgress(t *testing.T) {
	h, e := newTestHandler()
	actor := uuid.New()
	seeded := seedRecord(t, h.svc)

	body := `{"current_value":60,"version":1}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.ActorHeader, actor.String())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "goalId")
	c.SetParamValues(seeded.ID.String(), seeded.Goals[0].ID.String())
	if err := h.UpdateGoalProgress(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data Record `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.Goals[0].Progress != 60 {
		t.Errorf("progress = %v, want 60", resp.Data.Goals[0].Progress)
	}
}

func TestHandler_UpdateGoalProgress_MissingActor(t *testing.T) {
	h, e := newTestHandler()
	seeded := seedRecord(t, h.svc)

	body := `{"current_value":60,"version":1}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "goalId")
	c.SetParamValues(seeded.ID.String(), seeded.Goals[0].ID.String())
	if err := h.UpdateGoalProgress(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Overview(t *testing.T) {
	h, e := newTestHandler()
	seeded := seedRecord(t, h.svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(seeded.PatientID.String())
	if err := h.Overview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data Overview `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.Records != 1 || resp.Data.Goals != 1 {
		t.Errorf("overview = %+v", resp.Data)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)
	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}
	expected := []string{
		"POST:/api/v1/progress-records",
		"GET:/api/v1/progress-records/:id",
		"PUT:/api/v1/progress-records/:id/goals/:goalId/progress",
		"POST:/api/v1/progress-records/:id/interventions",
		"GET:/api/v1/patients/:id/progress-overview",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}

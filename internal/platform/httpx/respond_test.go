package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

func record(t *testing.T, fn func(c echo.Context) error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := fn(c); err != nil {
		t.Fatalf("respond error = %v", err)
	}
	return rec
}

func TestOKEnvelope(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return OK(c, map[string]string{"k": "v"})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.Data["k"] != "v" {
		t.Errorf("body = %+v", body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperr.NewValidation("tool", "enum", "bad tool"), http.StatusBadRequest, apperr.CodeValidation},
		{&apperr.RateLimitError{RetryAfterSeconds: 7}, http.StatusTooManyRequests, apperr.CodeRateLimit},
		{&apperr.ServiceUnavailableError{Dependency: "database", Reason: "circuit open"}, http.StatusServiceUnavailable, apperr.CodeServiceUnavailable},
		{&apperr.ConflictError{Resource: "assessment", ExpectedVersion: 1, ActualVersion: 2}, http.StatusConflict, apperr.CodeVersionConflict},
		{&apperr.NotFoundError{Resource: "assessment", ID: "x"}, http.StatusNotFound, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		rec := record(t, func(c echo.Context) error {
			return Error(c, tt.err)
		})
		if rec.Code != tt.wantStatus {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.wantStatus)
		}
		var body struct {
			Success bool      `json:"success"`
			Error   ErrorBody `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Success {
			t.Errorf("%v: success = true", tt.err)
		}
		if body.Error.Code != tt.wantCode {
			t.Errorf("%v: code = %q, want %q", tt.err, body.Error.Code, tt.wantCode)
		}
	}
}

func TestErrorValidationField(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Error(c, apperr.NewValidation("gait", "enum", "value 7 not allowed"))
	})
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Field != "gait" {
		t.Errorf("field = %q, want gait", body.Error.Field)
	}
}

func TestErrorRateLimitHeader(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Error(c, &apperr.RateLimitError{RetryAfterSeconds: 12})
	})
	if got := rec.Header().Get("Retry-After"); got != "12" {
		t.Errorf("Retry-After = %q, want 12", got)
	}
	var body struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.RetryAfter != 12 {
		t.Errorf("retry_after = %d, want 12", body.Error.RetryAfter)
	}
}

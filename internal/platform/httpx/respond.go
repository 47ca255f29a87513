package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Severity   string `json:"severity"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type dataEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, dataEnvelope{Success: true, Data: data})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, dataEnvelope{Success: true, Data: data})
}

// Error maps a domain error onto the HTTP status and envelope for its code.
// Rate-limited responses also carry a Retry-After header.
func Error(c echo.Context, err error) error {
	code := apperr.Code(err)
	body := ErrorBody{
		Code:     code,
		Message:  err.Error(),
		Severity: string(apperr.SeverityFor(code)),
	}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	var rle *apperr.RateLimitError
	if errors.As(err, &rle) {
		body.RetryAfter = rle.RetryAfterSeconds
		c.Response().Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
	}

	return c.JSON(statusFor(code), errorEnvelope{Error: body})
}

// BadRequest reports a malformed request that never reached the service.
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorEnvelope{
		Error: ErrorBody{
			Code:     apperr.CodeValidation,
			Message:  message,
			Severity: string(apperr.SeverityFor(apperr.CodeValidation)),
		},
	})
}

func statusFor(code string) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeRateLimit:
		return http.StatusTooManyRequests
	case apperr.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.CodeVersionConflict:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

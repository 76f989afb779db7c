package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ve := domain.NewValidationError("UserService.Register", "email", "Email is required")

	req := httptest.NewRequest("POST", "/register", nil)
	rec := httptest.NewRecorder()
	ValidationErrorResponse(rec, req, logger, ve)

	body := rec.Body.String()
	if strings.Contains(body, "UserService") {
		t.Errorf("response exposes internal operation name: %s", body)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	var got JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if got.Error.Code != domain.EINVALID {
		t.Errorf("expected code %q, got %q", domain.EINVALID, got.Error.Code)
	}
	if got.Error.Fields["email"] != "Email is required" {
		t.Errorf("expected field error for email, got %v", got.Error.Fields)
	}
}

func TestErrorResponse_WrappedValidationError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ve := domain.NewValidationError("handler.analyze", "file", "Chart image is required")
	err := errors.Join(errors.New("upload"), ve)

	req := httptest.NewRequest("POST", "/analyze-image", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, err)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for wrapped validation error, got %d", rec.Code)
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	err := domain.Internal(errors.New("pq: connection refused to 10.0.0.5"), "ledger.get", "Failed to load entitlement")

	req := httptest.NewRequest("GET", "/me", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, err)

	body := rec.Body.String()
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(body, "10.0.0.5") || strings.Contains(body, "pq:") {
		t.Errorf("response exposes underlying error: %s", body)
	}
	if strings.Contains(body, "ledger.get") {
		t.Errorf("response exposes operation name: %s", body)
	}
}

func TestErrorResponse_PlainErrorIsInternal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("response exposes raw error: %s", rec.Body.String())
	}
}

// =============================================================================
// Status Mapping
// =============================================================================

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.EQUOTA, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.ENOTIMPL, http.StatusNotImplemented},
		{domain.EANALYSIS, http.StatusBadGateway},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestErrorResponse_QuotaExceeded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	req := httptest.NewRequest("POST", "/analyze-image", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, domain.LimitReached("gate.try_consume", 3, 3))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	var got JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if got.Error.Code != domain.EQUOTA {
		t.Errorf("expected code %q, got %q", domain.EQUOTA, got.Error.Code)
	}
	if got.Error.Message == "" {
		t.Error("expected a message explaining the limit")
	}
}

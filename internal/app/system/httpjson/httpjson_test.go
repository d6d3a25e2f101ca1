package httpjson_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"github.com/dalemusser/gather/internal/app/system/httpjson"
	"go.uber.org/zap"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	return body.Error
}

func TestFromError_Conflict(t *testing.T) {
	rec := httptest.NewRecorder()
	httpjson.FromError(rec, zap.NewNop(), "submit", apperr.Conflict("You have already responded to this question"), "Server error")

	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := decodeError(t, rec); got != "You have already responded to this question" {
		t.Errorf("error: got %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}

func TestFromError_InternalUsesFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	httpjson.FromError(rec, zap.NewNop(), "submit", errors.New("socket closed"), "Server error submitting response")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d", rec.Code)
	}
	if got := decodeError(t, rec); got != "Server error submitting response" {
		t.Errorf("error: got %q", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader("{not json"))
	var dst map[string]any
	err := httpjson.Decode(req, &dst)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andino-labs/andino/internal/platform/middleware"
)

func runRequestID(t *testing.T, inbound string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/companies", nil)
	if inbound != "" {
		req.Header.Set("X-Request-ID", inbound)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequestID_MintsUUID(t *testing.T) {
	rec, seen := runRequestID(t, "")

	header := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, header)
	assert.Equal(t, header, seen, "context and response header must carry the same ID")

	_, err := uuid.Parse(header)
	assert.NoError(t, err, "generated IDs are UUIDs")
}

func TestRequestID_PropagatesInboundID(t *testing.T) {
	rec, seen := runRequestID(t, "gateway-7f3a")

	assert.Equal(t, "gateway-7f3a", seen)
	assert.Equal(t, "gateway-7f3a", rec.Header().Get("X-Request-ID"))
}

func TestRequestID_EmptyContextIsEmptyString(t *testing.T) {
	assert.Equal(t, "", middleware.GetRequestID(t.Context()))
}

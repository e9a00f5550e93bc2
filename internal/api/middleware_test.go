package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panicking(v any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(v)
	})
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantLog string
	}{
		{name: "error", value: errors.New("ledger row unreadable"), wantLog: "ledger row unreadable"},
		{name: "string", value: "nil footprint", wantLog: "nil footprint"},
		{name: "other", value: 42, wantLog: "error=42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			handler := Recovery(slog.New(slog.NewTextHandler(&logBuf, nil)))(panicking(tt.value))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products", nil))

			require.Equal(t, http.StatusInternalServerError, w.Code)
			var resp STACError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, ErrCodeServerError, resp.Code)

			assert.Contains(t, logBuf.String(), "panic recovered")
			assert.Contains(t, logBuf.String(), tt.wantLog)
			assert.Contains(t, logBuf.String(), "path=/products")
		})
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	handler := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRecovery_EchoesRequestID(t *testing.T) {
	handler := middleware.RequestID(Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(panicking("boom")))

	req := httptest.NewRequest(http.MethodGet, "/collections/field_a/items", nil)
	req.Header.Set("X-Request-Id", "parcel-req-7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var resp STACError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "parcel-req-7", resp.RequestID)
}

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name   string
		set    string
		expect string
	}{
		{name: "default", expect: "application/json"},
		{name: "handler override", set: "application/geo+json", expect: "application/geo+json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.set != "" {
					w.Header().Set("Content-Type", tt.set)
				}
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products", nil))
			assert.Equal(t, tt.expect, w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_ContentTypes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		target string
		want   string
	}{
		{target: "/collections", want: "application/json"},
		{target: "/products", want: "application/geo+json"},
		{target: "/files/field_a/NDVI/05-01-2023_ndvi.tiff", want: "image/tiff; application=geotiff"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(t, router, tt.target)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Content-Type"))
		})
	}
}

func TestRequestLogger_Fields(t *testing.T) {
	var logBuf bytes.Buffer
	router := newLoggedTestRouter(t, slog.New(slog.NewTextHandler(&logBuf, nil)))

	req := httptest.NewRequest(http.MethodGet, "/products?limit=1", nil)
	req.Header.Set("User-Agent", "parcel-monitor/1.0")
	router.ServeHTTP(httptest.NewRecorder(), req)

	for _, field := range []string{
		"http request",
		"level=INFO",
		"method=GET",
		"path=/products",
		`query="limit=1"`,
		"status=200",
		"duration=",
		"request_id=",
		"user_agent=parcel-monitor/1.0",
	} {
		assert.Contains(t, logBuf.String(), field)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{name: "catalogue", path: "/collections/missing", status: http.StatusNotFound, want: "level=INFO"},
		{name: "server error", path: "/products", status: http.StatusInternalServerError, want: "level=ERROR"},
		{name: "file download", path: "/files/field_a/TCI/05-01-2023_tci.tiff", status: http.StatusOK, want: "level=DEBUG"},
		{name: "failed file download", path: "/files/field_a/TCI/broken.tiff", status: http.StatusBadGateway, want: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Contains(t, logBuf.String(), tt.want)
		})
	}
}

func TestRequestLogger_FilesHiddenAtInfo(t *testing.T) {
	var logBuf bytes.Buffer
	router := newLoggedTestRouter(t, slog.New(slog.NewTextHandler(&logBuf, nil)))

	w := get(t, router, "/files/field_a/NDVI/05-01-2023_ndvi.tiff")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, logBuf.String(), "http request")
}

func TestRequestIDResponse(t *testing.T) {
	handler := middleware.RequestID(RequestIDResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/collections", nil))
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("forwarded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/collections", nil)
		req.Header.Set("X-Request-Id", "upstream-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
	})
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestReadOnly(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/products", http.StatusOK},
		{http.MethodHead, "/files/field_a/NDVI/05-01-2023_ndvi.tiff", http.StatusOK},
		{http.MethodPost, "/products", http.StatusMethodNotAllowed},
		{http.MethodPut, "/files/field_a/NDVI/05-01-2023_ndvi.tiff", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/collections/field_a", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, strings.NewReader("")))
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusMethodNotAllowed {
				assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Allow"))
			}
		})
	}
}

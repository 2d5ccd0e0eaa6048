package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyoungcy/twapbot/mocks"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(okHandler)

	testCases := []struct {
		name   string
		path   string
		header map[string]string
		code   int
	}{
		{"missing token", "/api/orders", nil, http.StatusUnauthorized},
		{"wrong token", "/api/orders", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key header", "/api/orders", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "/api/orders", map[string]string{"Authorization": "bearer secret"}, http.StatusOK},
		{"bearer wins", "/api/orders", map[string]string{"Authorization": "Bearer bad", "X-API-Key": "secret"}, http.StatusUnauthorized},
		{"public path", "/api/health", nil, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.code, serve(h, req).Code)
		})
	}

	open := Auth("")(okHandler)
	require.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/api/orders", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://APP.example")
	rec := serve(h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://APP.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockRateLimiter(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(limiter, 2, 1500*time.Millisecond, logger)(okHandler)

	gomock.InOrder(
		limiter.EXPECT().Allow(gomock.Any(), "ratelimit:api:10.0.0.1", 2, 1500*time.Millisecond).Return(true, nil),
		limiter.EXPECT().Allow(gomock.Any(), "ratelimit:api:10.0.0.1", 2, 1500*time.Millisecond).Return(false, nil),
		limiter.EXPECT().Allow(gomock.Any(), gomock.Any(), 2, gomock.Any()).Return(false, errors.New("redis down")),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1")
	require.Equal(t, http.StatusOK, serve(h, req).Code)

	rec := serve(h, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, serve(h, req).Code, "limiter outage lets traffic through")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	require.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", clientIP(req))
}

func TestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/orders?limit=5", nil))
	line := buf.String()
	require.True(t, strings.Contains(line, "level=WARN"), line)
	require.Contains(t, line, "status=502")
	require.Contains(t, line, "bytes=8")
	require.Contains(t, line, "query=\"limit=5\"")
}

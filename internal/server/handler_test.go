package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/gin-gonic/gin"

	"github.com/twpayne/go-hgt"
	"github.com/twpayne/go-hgt/internal/config"
)

const testSamples = 3

// testTile returns a tile whose sample at row, col is 10*(row*testSamples+col).
func testTile() []byte {
	data := make([]byte, 2*testSamples*testSamples)
	for i := 0; i < testSamples*testSamples; i++ {
		binary.BigEndian.PutUint16(data[2*i:], uint16(10*i))
	}
	return data
}

func newTestRouter(t *testing.T, modify func(*config.ServerConfig)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fsys := fstest.MapFS{
		"N00E012.hgt": &fstest.MapFile{
			Data:    testTile(),
			ModTime: time.Unix(1700000000, 0),
		},
		"N00E013.hgt": &fstest.MapFile{
			Data:    []byte("truncated"),
			ModTime: time.Unix(1700000000, 0),
		},
	}
	tileSet, err := hgt.NewSRTM(fsys, hgt.WithSamples(testSamples))
	assert.NoError(t, err)
	cache, err := hgt.NewLRUCache(16)
	assert.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := hgt.NewElevationService(tileSet, hgt.WithCache(cache), hgt.WithLogger(logger))

	cfg := config.ServerConfig{
		DefaultMethod: "cubic",
		VizEnabled:    true,
	}
	if modify != nil {
		modify(&cfg)
	}
	router, err := SetupRouter(service, cfg, logger)
	assert.NoError(t, err)
	return router
}

func serve(router http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestGetElevation(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/v1/elevation/json?lat=0.5&lon=12.5&interpolation=none", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"elevation": 40.0,
		"location":  map[string]any{"lat": 0.5, "lon": 12.5},
	}, decodeJSON(t, w))

	// No tile covers this location.
	w = serve(router, http.MethodGet, "/v1/elevation/json?lat=10.5&lon=10.5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	elevation, ok := decodeJSON(t, w)["elevation"].(float64)
	assert.True(t, ok)
	assert.Equal(t, float64(hgt.NoData), elevation)
}

func TestGetElevation_Errors(t *testing.T) {
	router := newTestRouter(t, nil)
	for _, tc := range []struct {
		name           string
		target         string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "missing_lat",
			target:         "/v1/elevation/json?lon=12.5",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "lat parameter is required",
		},
		{
			name:           "invalid_lon",
			target:         "/v1/elevation/json?lat=0.5&lon=east",
			expectedStatus: http.StatusBadRequest,
			expectedError:  `invalid lon: "east"`,
		},
		{
			name:           "out_of_range",
			target:         "/v1/elevation/json?lat=91&lon=12.5",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "lat must be between -90 and 90, lon must be between -180 and 180",
		},
		{
			name:           "invalid_interpolation",
			target:         "/v1/elevation/json?lat=0.5&lon=12.5&interpolation=spline",
			expectedStatus: http.StatusBadRequest,
			expectedError:  `interpolation must be one of ["none", "nearest", "linear", "cubic"], got "spline"`,
		},
		{
			name:           "corrupt_tile",
			target:         "/v1/elevation/json?lat=0.5&lon=13.5",
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal error",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(router, http.MethodGet, tc.target, "")
			assert.Equal(t, tc.expectedStatus, w.Code)
			assert.Equal(t, map[string]any{"error": tc.expectedError}, decodeJSON(t, w))
		})
	}
}

func TestPostElevations(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodPost, "/v1/elevation/json", `{"locations":[[12.5,0.5],[10.5,10.5]],"interpolation":"none"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"results": []any{
			map[string]any{
				"elevation": 40.0,
				"location":  map[string]any{"lat": 0.5, "lon": 12.5},
			},
			map[string]any{
				"elevation": float64(hgt.NoData),
				"location":  map[string]any{"lat": 10.5, "lon": 10.5},
			},
		},
	}, decodeJSON(t, w))
}

func TestPostElevations_Errors(t *testing.T) {
	router := newTestRouter(t, nil)

	var sb strings.Builder
	sb.WriteString(`{"locations":[`)
	for i := 0; i < hgt.MaxBatchLocations+1; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("[12.5,0.5]")
	}
	sb.WriteString(`]}`)

	for _, tc := range []struct {
		name          string
		body          string
		expectedError string
	}{
		{
			name:          "too_many",
			body:          sb.String(),
			expectedError: "max 100 locations allowed per request",
		},
		{
			name:          "bad_pair",
			body:          `{"locations":[[12.5,0.5],[12.5]]}`,
			expectedError: "every location array must contain exactly 2 values",
		},
		{
			name:          "out_of_range",
			body:          `{"locations":[[0.5,120]]}`,
			expectedError: "lat must be between -90 and 90",
		},
		{
			name:          "invalid_interpolation",
			body:          `{"locations":[[12.5,0.5]],"interpolation":"spline"}`,
			expectedError: "interpolation must be one of",
		},
		{
			name:          "missing_locations",
			body:          `{"interpolation":"linear"}`,
			expectedError: "invalid request body",
		},
		{
			name:          "malformed",
			body:          `{"locations":`,
			expectedError: "invalid request body",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/v1/elevation/json", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			actual, ok := decodeJSON(t, w)["error"].(string)
			assert.True(t, ok)
			assert.Contains(t, actual, tc.expectedError)
		})
	}
}

func TestGetViz(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/v1/elevation/viz?lat=0.5&lon=12.5&colormap=viridis", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = serve(router, http.MethodGet, "/v1/elevation/viz?lat=0.5&lon=12.5&colormap=hot", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodGet, "/v1/elevation/viz?lat=10.5&lon=10.5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{"error": "no tile covers N10E010"}, decodeJSON(t, w))
}

func TestGetViz_Disabled(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.ServerConfig) {
		cfg.VizEnabled = false
	})
	w := serve(router, http.MethodGet, "/v1/elevation/viz?lat=0.5&lon=12.5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.ServerConfig) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 2
	})
	target := "/v1/elevation/json?lat=0.5&lon=12.5"
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, target, "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, target, "").Code)
	w := serve(router, http.MethodGet, target, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, map[string]any{"error": "rate limit exceeded"}, decodeJSON(t, w))

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "198.51.100.7:4321"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health and metrics are not rate limited.
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
}

func TestRateLimit_IgnoresUntrustedForwardedFor(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.ServerConfig) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
	})
	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/elevation/json?lat=0.5&lon=12.5", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimit_TrustedProxy(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.ServerConfig) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/elevation/json?lat=0.5&lon=12.5", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	status, ok := decodeJSON(t, w)["status"].(string)
	assert.True(t, ok)
	assert.Equal(t, "ok", status)

	serve(router, http.MethodGet, "/v1/elevation/json?lat=0.5&lon=12.5", "")
	w = serve(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hgt_query_cache_misses_total")
}

func TestCORS(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.ServerConfig) {
		cfg.CORSAllowedOrigins = []string{"https://app.example.org"}
	})
	// httptest requests are for host example.com, so these origins are
	// cross-origin.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.org")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetupRouter_InvalidConfig(t *testing.T) {
	_, err := SetupRouter(nil, config.ServerConfig{DefaultMethod: "spline"}, slog.Default())
	assert.Error(t, err)

	_, err = SetupRouter(nil, config.ServerConfig{DefaultMethod: "cubic", TrustedProxies: []string{"proxy.local"}}, slog.Default())
	assert.Error(t, err)
}

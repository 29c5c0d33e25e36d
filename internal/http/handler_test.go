package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/resampler/internal/adapter/store/areas"
	"go.ngs.io/resampler/internal/observability"
	"go.ngs.io/resampler/internal/usecase"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := areas.NewRegistry([]areas.Definition{{
		ID:          "ll",
		Description: "three by two degrees",
		Projection:  "+proj=longlat +datum=WGS84 +no_defs",
		Width:       3,
		Height:      2,
		Extent:      []float64{0, 0, 3, 2},
	}})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg, nil)
	uc := usecase.NewResampleUseCase(usecase.Loaders{}, registry, usecase.Options{Metrics: metrics})
	t.Cleanup(uc.Close)
	return SetupRouter(uc, RouterConfig{Gatherer: reg})
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const resampleBody = `{
  "source": {"lons": [0.5, 1.5, 2.5, 0.5, 1.5, 2.5], "lats": [1.5, 1.5, 1.5, 0.5, 0.5, 0.5], "shape": [2, 3]},
  "target": {"area_id": "ll"},
  "data": {"values": [1, 2, 3, null, 5, 6], "shape": [2, 3], "dims": ["y", "x"]},
  "radius_of_influence": 5000
}`

func TestResample(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/resample", resampleBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Shape  []int      `json:"shape"`
		Dims   []string   `json:"dims"`
		DType  string     `json:"dtype"`
		Values []*float64 `json:"values"`
		Meta   struct {
			RadiusM  float64 `json:"radius_m"`
			CacheHit bool    `json:"cache_hit"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int{2, 3}, resp.Shape)
	assert.Equal(t, []string{"y", "x"}, resp.Dims)
	assert.Equal(t, "float64", resp.DType)
	require.Len(t, resp.Values, 6)
	assert.Nil(t, resp.Values[3])
	require.NotNil(t, resp.Values[5])
	assert.Equal(t, 6.0, *resp.Values[5])
	assert.Equal(t, 5000.0, resp.Meta.RadiusM)
	assert.False(t, resp.Meta.CacheHit)

	w = do(t, router, http.MethodPost, "/v1/resample", resampleBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
}

func TestResample_Errors(t *testing.T) {
	router := newTestRouter(t)
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"malformed", `{"source":`, http.StatusBadRequest, "invalid request body"},
		{"missing data", `{"source":{"lons":[0],"lats":[0]},"target":{"area_id":"ll"}}`, http.StatusBadRequest, "values or dataset"},
		{"unknown area", `{"source":{"lons":[0],"lats":[0]},"target":{"area_id":"moon"},"data":{"values":[1],"shape":[1]}}`, http.StatusNotFound, "moon"},
		{"shape mismatch", `{"source":{"lons":[0,1],"lats":[0,0]},"target":{"area_id":"ll"},"data":{"values":[1,2,3],"shape":[3]}}`, http.StatusBadRequest, "'data' shape [3]"},
		{"no loader", `{"source":{"dataset":{"file":"swath.nc"}},"target":{"area_id":"ll"},"data":{"dataset":{"variable":"sst"}}}`, http.StatusBadRequest, "no loader"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/resample", tt.body)
			assert.Equal(t, tt.code, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestListAreas(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/v1/areas", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Areas []areas.Definition `json:"areas"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "ll", body.Areas[0].ID)
	assert.Equal(t, "three by two degrees", body.Areas[0].Description)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	_ = do(t, router, http.MethodPost, "/v1/resample", resampleBody)
	w = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `nnresample_requests_total{outcome="ok"} 1`)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uc := usecase.NewResampleUseCase(usecase.Loaders{}, nil, usecase.Options{})
	t.Cleanup(uc.Close)
	router := SetupRouter(uc, RouterConfig{
		AllowedOrigins: []string{"https://maps.example"},
		Gatherer:       prometheus.NewRegistry(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", &bytes.Buffer{})
	req.Header.Set("Origin", "https://maps.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://maps.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, router, http.MethodGet, "/v1/areas", "")
	assert.Contains(t, w.Body.String(), `"count":0`)
}

package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	u "ogimage/internal/utils"
)

type stubShooter struct{ png []byte }

func (s stubShooter) Screenshot(ctx context.Context, html string) ([]byte, error) {
	return s.png, nil
}

func minimalConfig(t *testing.T) u.Config {
	t.Helper()
	cfg := u.DefaultConfig()
	cfg.Template.Path = filepath.Join(t.TempDir(), "og.html")
	require.NoError(t, os.WriteFile(cfg.Template.Path, []byte("<h1>(TITLE_TEXT)</h1>"), 0o644))
	cfg.Chrome.TimeoutSecs = 1
	return cfg
}

func TestSetupApp_RoutesAndJSON404(t *testing.T) {
	app, err := SetupApp(Deps{Config: minimalConfig(t), Shooter: stubShooter{png: []byte("\x89PNG")}})
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/og?title=Hello&date=2021-01-01", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, u.CachePolicies[u.CachePolicyRevalidateDaily], resp.Header.Get("Cache-Control"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api?date=2021-01-01", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"Title is required."}`, string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/chrome/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"Not Found"}`, string(body))
}

func TestSetupApp_ConfiguredCachePolicies(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Endpoints.Index = u.CachePolicyImmutable
	cfg.Endpoints.PathOG = u.CachePolicyNoCache
	app, err := SetupApp(Deps{Config: cfg, Shooter: stubShooter{png: []byte("png")}})
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api?title=a&date=2021-01-01", nil))
	require.NoError(t, err)
	assert.Equal(t, u.CachePolicies[u.CachePolicyImmutable], resp.Header.Get("Cache-Control"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/a/2021-01-01/og.png", nil))
	require.NoError(t, err)
	assert.Equal(t, u.CachePolicies[u.CachePolicyNoCache], resp.Header.Get("Cache-Control"))
}

func TestSetupApp_MetricsEndpoint(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()
	app, err := SetupApp(Deps{Config: cfg, Shooter: stubShooter{png: []byte("png")}, Registry: reg})
	require.NoError(t, err)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/og?title=a&date=2021-01-01", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), `og_image_renders_total{outcome="rendered"} 1`), string(body))
	assert.Contains(t, string(body), "http_requests_total")

	_, err = SetupApp(Deps{Config: cfg, Shooter: stubShooter{}, Registry: reg})
	assert.Error(t, err, "registering twice on one registry must fail")
}

func TestSetupApp_MetricsSurviveUnknownPaths(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Metrics.Enabled = true
	app, err := SetupApp(Deps{Config: cfg, Shooter: stubShooter{png: []byte("png")}, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	for _, p := range []string{"/nope-one", "/nope-two"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, p, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="unmatched",status="404"} 2`)
	assert.NotContains(t, string(body), "nope")
}

func TestSetupApp_BadTimeZone(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Template.TimeZone = "Mars/Olympus"
	_, err := SetupApp(Deps{Config: cfg, Shooter: stubShooter{}})
	assert.Error(t, err)
}

func TestSetupApp_MonitorRoute(t *testing.T) {
	app, err := SetupApp(Deps{Config: minimalConfig(t), Shooter: stubShooter{}})
	require.NoError(t, err)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/monitor", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

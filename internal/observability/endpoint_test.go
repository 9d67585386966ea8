package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulsebridge/internal/conf"
)

func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.HostAPI)
		})
	}
	wg.Wait()
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.HostAPI.RecordUnderflow()
	m.HostAPI.SetDevices("output", 2)

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "pulsebridge_underflows_total 1")
	assert.Contains(t, body, `pulsebridge_devices{direction="output"} 2`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewEndpointRequiresMetricsEnabled(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.Settings{}, m)
	require.Error(t, err)

	e, err := NewEndpoint(&conf.Settings{Metrics: conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}}, m)
	require.NoError(t, err)
	assert.Same(t, m, e.GetMetrics())
	assert.Nil(t, e.Addr())
}

func TestEndpointServesAndShutsDown(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint(&conf.Settings{Metrics: conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}}, m)
	require.NoError(t, err)

	var wg sync.WaitGroup
	quit := make(chan struct{})
	require.NoError(t, e.Start(&wg, quit))

	resp, err := http.Get("http://" + e.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pulsebridge_active_streams")

	close(quit)
	wg.Wait()

	_, err = http.Get("http://" + e.Addr().String() + "/metrics")
	assert.Error(t, err, "server is shut down")
}

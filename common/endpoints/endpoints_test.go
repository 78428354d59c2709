package endpoints_test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitter/equalizer/common/endpoints"
	"github.com/twitter/equalizer/common/stats"
)

type health bool

func (h *health) Healthy() bool { return bool(*h) }

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	healthy := health(false)
	s := endpoints.NewTwitterServer("localhost:0", stats.NilStatsReceiver(), &healthy)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, _ := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	healthy = true
	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestMetrics(t *testing.T) {
	stat, _ := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry, 0)
	stat.Counter(stats.FrameStartCounter).Inc(2)
	s := endpoints.NewTwitterServer("localhost:0", stat, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/admin/metrics.json")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, stats.FrameStartCounter)

	code, _ = get(t, srv.URL+"/")
	assert.Equal(t, http.StatusNotImplemented, code)
	code, _ = get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMakeStatsReceiver(t *testing.T) {
	stat := endpoints.MakeStatsReceiver("equalizer", 0)
	stat.Counter(stats.FrameStartCounter).Inc(1)
	s := endpoints.NewTwitterServer("localhost:0", stat, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, body := get(t, srv.URL+"/admin/metrics.json?pretty=true")
	assert.Contains(t, body, `"equalizer/`+stats.FrameStartCounter+`": 1`)
}

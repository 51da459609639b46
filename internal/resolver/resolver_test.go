package resolver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shapes-debugger/internal/metrics"
	"shapes-debugger/internal/model"
)

var prod = model.Candidate{Label: model.LabelProd, URL: "https://prod.example/x"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProbe reports open for the listed host:port pairs and records calls.
type fakeProbe struct {
	mu    sync.Mutex
	open  map[string]bool
	calls []string
}

func (f *fakeProbe) probe(_ context.Context, host string, port int, _ time.Duration) bool {
	key := net.JoinHostPort(host, strconv.Itoa(port))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.open[key]
}

func TestResolve_FirstReachableByPriority(t *testing.T) {
	fp := &fakeProbe{open: map[string]bool{
		"localhost:9100": true,
		"localhost:8080": true,
	}}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

	up := r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDebug, URL: "http://localhost:9100"},
		{Label: model.LabelDev, URL: "http://localhost:8080/v1"},
	}, prod)

	assert.Equal(t, model.LabelDebug, up.Candidate.Label)
	assert.Equal(t, "http://localhost:9100", up.URL.String())
	assert.False(t, up.Fallback)
	require.Len(t, up.Results, 2)
	assert.True(t, up.Results[0].Reachable)
	assert.True(t, up.Results[1].Reachable)
}

func TestResolve_SkipsUnreachable(t *testing.T) {
	fp := &fakeProbe{open: map[string]bool{"localhost:8080": true}}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

	up := r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDebug, URL: "http://localhost:9100"},
		{Label: model.LabelDev, URL: "http://localhost:8080/v1"},
	}, prod)

	assert.Equal(t, model.LabelDev, up.Candidate.Label)
	assert.Equal(t, "http://localhost:8080/v1", up.Candidate.URL)
	assert.False(t, up.Fallback)
}

func TestResolve_FallbackWhenNoneReachable(t *testing.T) {
	fp := &fakeProbe{}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

	up := r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDev, URL: "http://localhost:8080/x"},
	}, prod)

	assert.Equal(t, prod, up.Candidate)
	assert.Equal(t, "https://prod.example/x", up.URL.String())
	assert.True(t, up.Fallback)
	require.Len(t, up.Results, 1)
	assert.False(t, up.Results[0].Reachable)
}

func TestResolve_NoCandidates(t *testing.T) {
	fp := &fakeProbe{}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

	up := r.Resolve(context.Background(), nil, prod)

	assert.Equal(t, prod, up.Candidate)
	assert.True(t, up.Fallback)
	assert.Empty(t, fp.calls, "production is never probed")
}

func TestResolve_DefaultPorts(t *testing.T) {
	fp := &fakeProbe{}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

	r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDebug, URL: "https://debug.local/v1"},
		{Label: model.LabelDev, URL: "http://dev.local/v1"},
	}, prod)

	assert.ElementsMatch(t, []string{"debug.local:443", "dev.local:80"}, fp.calls)
}

func TestResolve_MalformedCandidateFallsBack(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unparseable", "http://[::1"},
		{"no host", "/just/a/path"},
		{"bad port", "http://localhost:99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Even a reachable higher-priority candidate does not override
			// the production fallback for malformed configuration.
			fp := &fakeProbe{open: map[string]bool{"localhost:9100": true}}
			r := New(fp.probe, 50*time.Millisecond, discardLogger(), nil)

			up := r.Resolve(context.Background(), []model.Candidate{
				{Label: model.LabelDebug, URL: "http://localhost:9100"},
				{Label: model.LabelDev, URL: tt.url},
			}, prod)

			assert.Equal(t, prod.URL, up.Candidate.URL)
			assert.True(t, up.Fallback)
			require.NotEmpty(t, up.Results)
			assert.NotEmpty(t, up.Results[len(up.Results)-1].Err)
		})
	}
}

func TestResolve_RealProbeClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	r := New(nil, 200*time.Millisecond, discardLogger(), nil)
	up := r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDev, URL: "http://127.0.0.1:" + strconv.Itoa(port) + "/x"},
	}, prod)

	assert.Equal(t, "https://prod.example/x", up.Candidate.URL)
	assert.True(t, up.Fallback)
}

func TestResolve_RealProbeOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	devURL := "http://127.0.0.1:" + strconv.Itoa(port) + "/v1"
	r := New(nil, time.Second, discardLogger(), nil)
	up := r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDev, URL: devURL},
	}, prod)

	assert.Equal(t, devURL, up.Candidate.URL)
	assert.False(t, up.Fallback)
}

func TestResolve_RecordsProbeMetrics(t *testing.T) {
	m := metrics.New()
	fp := &fakeProbe{open: map[string]bool{"localhost:8080": true}}
	r := New(fp.probe, 50*time.Millisecond, discardLogger(), m)

	r.Resolve(context.Background(), []model.Candidate{
		{Label: model.LabelDebug, URL: "http://localhost:9100"},
		{Label: model.LabelDev, URL: "http://localhost:8080"},
	}, prod)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "shapes_debugger_probe_results_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			got[labels["label"]+"/"+labels["reachable"]] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"debug/false": 1, "dev/true": 1}, got)
}

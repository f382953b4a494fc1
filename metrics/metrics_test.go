package metrics_test

import (
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/touchbridge/touchbridge/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsAreRegisteredAndServed(t *testing.T) {
	// Touch every metric so it shows up under /metrics even though none of
	// them have been observed by real traffic yet.
	metrics.FramesTotal.WithLabelValues("rx").Add(0)
	metrics.FIFOOverflowTotal.Add(0)
	metrics.DiscoveryDurationHistogram.WithLabelValues("stage1").Observe(0)
	metrics.DaemonClients.Set(0)
	metrics.ClientErrorsTotal.WithLabelValues("timeout").Add(0)

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("Could not GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Could not read metrics: %v", err)
	}

	for _, want := range []string{
		"touchbridge_frames_total",
		"touchbridge_fifo_overflow_total",
		"touchbridge_discovery_duration_seconds",
		"touchbridge_daemon_clients",
		"touchbridge_client_errors_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in /metrics output", want)
		}
	}
}

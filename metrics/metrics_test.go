package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nosmog/rohc/metrics"
)

func gather(t *testing.T) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Could not gather metrics: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestMetricsRegistered(t *testing.T) {
	// Touch the vectors so they gather with at least one child.
	metrics.PacketCount.WithLabelValues("IR").Inc()
	metrics.ErrorCount.WithLabelValues("parse").Inc()
	metrics.HeaderBytesHistogram.Observe(4)
	metrics.SavedBytesHistogram.Observe(36)
	metrics.ForcedIRCount.Inc()
	metrics.DroppedOptionCount.Inc()

	families := gather(t)
	for _, name := range []string{
		"rohc_packet_total",
		"rohc_header_bytes_histogram",
		"rohc_saved_bytes_histogram",
		"rohc_forced_ir_total",
		"rohc_dropped_option_total",
		"rohc_error_total",
	} {
		if families[name] == nil {
			t.Errorf("metric %s is not registered", name)
		}
	}
}

func TestPacketCountLabels(t *testing.T) {
	metrics.PacketCount.WithLabelValues("seq_2").Add(3)
	f := gather(t)["rohc_packet_total"]
	if f == nil {
		t.Fatal("rohc_packet_total missing")
	}
	found := false
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "format" && l.GetValue() == "seq_2" {
				found = true
				if m.GetCounter().GetValue() < 3 {
					t.Error("seq_2 counter should be at least 3")
				}
			}
		}
	}
	if !found {
		t.Error("seq_2 label not found")
	}
}

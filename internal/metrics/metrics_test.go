package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersWithoutPanicking(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)

	m.HTTPActiveRequests.Inc()
	m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/router/agent-1", "200").Inc()
	m.RouterCallsTotal.WithLabelValues("agent-1", "paid").Inc()
	m.CrossChainPaymentsTotal.WithLabelValues("complete").Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Fatal("expected at least one metric family after recording values")
	}
}

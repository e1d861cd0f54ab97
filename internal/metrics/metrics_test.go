package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/f-sync/followtrack/internal/metrics"
)

func TestCollectorExposesInstruments(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	collector.RecordImport("created")
	collector.RecordImport("created")
	collector.RecordImport("unchanged")
	collector.RecordRestore(metrics.ResultFailure)
	collector.RecordPersistWarning()
	collector.SetHistorySize(4)

	expected := `
# HELP followtrack_history_snapshots Snapshots currently held in history
# TYPE followtrack_history_snapshots gauge
followtrack_history_snapshots 4
# HELP followtrack_imports_total Snapshot imports by outcome
# TYPE followtrack_imports_total counter
followtrack_imports_total{outcome="created"} 2
followtrack_imports_total{outcome="unchanged"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "followtrack_history_snapshots", "followtrack_imports_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	count, err := testutil.GatherAndCount(registry, "followtrack_restores_total")
	if err != nil || count != 1 {
		t.Fatalf("expected one restore series, got %d (%v)", count, err)
	}
}

func TestCollectorWithoutRegistry(t *testing.T) {
	collector := metrics.NewCollector(nil)
	collector.RecordImport("created")
	collector.SetHistorySize(1)

	if families, err := prometheus.DefaultGatherer.Gather(); err == nil {
		for _, family := range families {
			if strings.HasPrefix(family.GetName(), "followtrack_") {
				t.Fatalf("instrument %s leaked into the default registry", family.GetName())
			}
		}
	}
}

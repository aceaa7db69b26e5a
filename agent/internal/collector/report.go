package collector

import (
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/insightsagent/insights-agent/agent/internal/rules"
)

// MetricsFile is the name of the run report inside the run directory.
const MetricsFile = "metrics.prom"

// Report metric names.
const (
	metricFiles        = "insights_collection_files"
	metricCommands     = "insights_collection_commands"
	metricRemovalRules = "insights_collection_removal_entries"
	metricRulesInfo    = "insights_collection_rules_info"
)

// writeReport renders the run summary in the Prometheus text format so it can
// be picked up by a node_exporter textfile collector.
func writeReport(w io.Writer, res *Result, p rules.Payload, removals rules.RemovalRules) error {
	version, _ := p.Version()
	families := []*dto.MetricFamily{
		gaugeFamily(metricFiles, "Files named by the collection rules, by outcome.", "state", map[string]float64{
			"collected": float64(res.Collected),
			"missing":   float64(res.Missing),
			"removed":   float64(res.RemovedFiles),
			"rejected":  float64(res.Rejected),
		}),
		gaugeFamily(metricCommands, "Command specs in the collection rules, by outcome.", "state", map[string]float64{
			"removed": float64(res.RemovedCommands),
			"skipped": float64(res.SkippedCommands),
		}),
		gaugeFamily(metricRemovalRules, "Removal entries applied to the run, by kind.", "kind", map[string]float64{
			"files":    float64(len(removals.Files)),
			"commands": float64(len(removals.Commands)),
			"patterns": float64(len(removals.Patterns)),
			"keywords": float64(len(removals.Keywords)),
		}),
		gaugeFamily(metricRulesInfo, "Version of the collection rules used for the run.", "version", map[string]float64{
			version: 1,
		}),
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// gaugeFamily builds one gauge family with a single label, sorted by label value.
func gaugeFamily(name, help, label string, values map[string]float64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{Name: ptr(label), Value: ptr(k)}},
			Gauge: &dto.Gauge{Value: ptr(values[k])},
		})
	}
	return mf
}

func ptr[T any](v T) *T { return &v }

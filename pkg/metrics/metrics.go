// Package metrics provides the Prometheus registry reference for the plagcheck
// client and a small reader for its counters.
// All metrics are defined in their respective packages (cache, client)
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Prefix is shared by every metric the client registers.
const Prefix = "plagcheck_"

// Registry is the default Prometheus registry used by the plagcheck client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Sample is one counter value with its labels rendered as name{k="v",...}.
type Sample struct {
	Name  string
	Value float64
}

// Counters gathers every plagcheck_* counter from g, sorted by name.
// Histograms and gauges are skipped.
func Counters(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var samples []Sample
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), Prefix) || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			samples = append(samples, Sample{
				Name:  mf.GetName() + renderLabels(m.GetLabel()),
				Value: m.GetCounter().GetValue(),
			})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

func renderLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - plagcheck_cache_hits_total{layer} (Counter): Cache hits by store layer (memory, redis)
//   - plagcheck_cache_misses_total (Counter): Lookups with no stored entry
//   - plagcheck_cache_expired_total (Counter): Lookups that found an entry past its TTL
//   - plagcheck_cache_invalidations_total{reason} (Counter): Entries removed by clear or write
//   - plagcheck_cache_errors_total{operation} (Counter): Store operation errors
//
// Request Metrics (pkg/client):
//   - plagcheck_requests_total{method, status} (Counter): Backend requests by method and HTTP status
//   - plagcheck_request_duration_seconds{method} (Histogram): Request duration by method
//   - plagcheck_errors_total{class} (Counter): Errors by class (client, server, network, timeout, canceled)
//   - plagcheck_coalesced_requests_total (Counter): GETs served by a shared in-flight fetch
//
// Retry Metrics (pkg/client):
//   - plagcheck_retries_total{error_class} (Counter): Retry attempts by error class
//   - plagcheck_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - plagcheck_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(plagcheck_cache_hits_total[5m])) /
//   (sum(rate(plagcheck_cache_hits_total[5m])) + sum(rate(plagcheck_cache_misses_total[5m])))
//
//   # Coalescing Ratio
//   rate(plagcheck_coalesced_requests_total[5m]) / rate(plagcheck_requests_total{method="GET"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(plagcheck_request_duration_seconds_bucket[5m]))

package telemetry

import (
	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"
)

var (
	MetricRecordsDecoded     = []string{"reviewsync", "records", "decoded", "count"}
	MetricRecordsFailed      = []string{"reviewsync", "records", "failed", "count"}
	MetricUpdatesApplied     = []string{"reviewsync", "updates", "applied", "count"}
	MetricUpdatesDropped     = []string{"reviewsync", "updates", "dropped", "count"}
	MetricFragmentsRendered  = []string{"reviewsync", "fragments", "rendered", "count"}
	MetricFragmentsSkipped   = []string{"reviewsync", "fragments", "skipped", "count"}
	MetricFragmentFetches    = []string{"reviewsync", "fragments", "fetch", "count"}
	MetricFragmentFetchError = []string{"reviewsync", "fragments", "fetch", "error", "count"}
	MetricPolls              = []string{"reviewsync", "poll", "count"}
	MetricPollErrors         = []string{"reviewsync", "poll", "error", "count"}
	MetricPayloadBytes       = []string{"reviewsync", "payload", "bytes"}
	MetricPushSubscribers    = []string{"reviewsync", "push", "subscribers"}
)

type Label string

var (
	LabelReason  Label = "reason"
	LabelSource  Label = "source"
	LabelKind    Label = "kind"
	LabelQueue   Label = "queue"
	LabelRequest Label = "review_request"
)

// M builds a metrics label.
func (l Label) M(val string) metrics.Label {
	return metrics.Label{Name: string(l), Value: val}
}

// L builds a zap field with the same key.
func (l Label) L(val string) zap.Field {
	return zap.String(string(l), val)
}

// Incr increments a counter with the given labels.
func Incr(key []string, labels ...metrics.Label) {
	metrics.IncrCounterWithLabels(key, 1, labels)
}

// Sample records an observation such as a payload size.
func Sample(key []string, val float32, labels ...metrics.Label) {
	metrics.AddSampleWithLabels(key, val, labels)
}

// Gauge sets a gauge value.
func Gauge(key []string, val float32, labels ...metrics.Label) {
	metrics.SetGaugeWithLabels(key, val, labels)
}

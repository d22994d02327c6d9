package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/paysync/paysync/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type CounterOpt struct {
	PkgName     string
	MetricName  string
	Description string
	Tags        map[string]any
}

type HistogramOpt struct {
	PkgName     string
	MetricName  string
	Description string
	Tags        map[string]any
	Unit        string
	Boundaries  []float64
}

var (
	// in milliseconds
	DefaultBoundaries = []float64{5, 10, 25, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000}

	instruments sync.Map
)

// RecordCounterMetric increments the named counter on the global meter.
func RecordCounterMetric(ctx context.Context, incr int64, opts CounterOpt) {
	name := fmt.Sprintf("%s_%s", prefix, opts.MetricName)
	key := "counter:" + opts.PkgName + ":" + name

	var c metric.Int64Counter
	if v, ok := instruments.Load(key); ok {
		c = v.(metric.Int64Counter)
	} else {
		created, err := otel.Meter(opts.PkgName).Int64Counter(name, metric.WithDescription(opts.Description))
		if err != nil {
			logger.StdlibLogger(ctx).Error("error creating counter", "metric", name, "error", err)
			return
		}
		v, _ := instruments.LoadOrStore(key, created)
		c = v.(metric.Int64Counter)
	}

	c.Add(ctx, incr, metric.WithAttributes(parseTags(opts.Tags)...))
}

// RecordIntHistogramMetric records value on the named histogram.
func RecordIntHistogramMetric(ctx context.Context, value int64, opts HistogramOpt) {
	name := fmt.Sprintf("%s_%s", prefix, opts.MetricName)
	key := "histogram:" + opts.PkgName + ":" + name

	var h metric.Int64Histogram
	if v, ok := instruments.Load(key); ok {
		h = v.(metric.Int64Histogram)
	} else {
		bounds := opts.Boundaries
		if bounds == nil {
			bounds = DefaultBoundaries
		}
		created, err := otel.Meter(opts.PkgName).Int64Histogram(
			name,
			metric.WithDescription(opts.Description),
			metric.WithUnit(opts.Unit),
			metric.WithExplicitBucketBoundaries(bounds...),
		)
		if err != nil {
			logger.StdlibLogger(ctx).Error("error creating histogram", "metric", name, "error", err)
			return
		}
		v, _ := instruments.LoadOrStore(key, created)
		h = v.(metric.Int64Histogram)
	}

	h.Record(ctx, value, metric.WithAttributes(parseTags(opts.Tags)...))
}

func parseTags(tags map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(k, val.String()))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

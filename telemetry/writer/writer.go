// Package writer defines the persisted-telemetry contracts referenced in
// spec.md §6: a SpanWriter/MetricsWriter pair through which a durable
// backend batches and stores spans and metric points, independent of the
// in-process Tracer/Metrics interfaces in package telemetry (those decide
// *what* gets recorded; these decide *where it lands*). Tap batches whatever
// is passed to EmitSpan/EmitMetric into those writers; no other package in
// this module calls EmitSpan or EmitMetric. Reference implementations live
// in subpackages, e.g. telemetry/writer/mongowriter.
package writer

import (
	"context"
	"time"
)

// MetricKind distinguishes the two metric shapes spec.md §6 names.
type MetricKind string

const (
	MetricKindCounter   MetricKind = "counter"
	MetricKindHistogram MetricKind = "histogram"
)

// SpanRecord is the persisted shape of one closed span: the fields table
// from spec.md §4.7, flattened for storage.
type SpanRecord struct {
	TraceID     string
	SpanID      string
	ParentID    string
	Name        string
	StartedAt   time.Time
	EndedAt     time.Time
	Request     string
	Output      string
	Error       string
	Usage       map[string]any
	RawUsage    map[string]any
	TTFT        time.Duration
	Cost        float64
	Tags        map[string]string
	RetriesLeft int

	ProjectID             string
	ThreadID              string
	RunID                 string
	MessageID             string
	CredentialsIdentifier string
	RouterName            string
	User                  string
	Cache                 string
}

// MetricPoint is the persisted shape of one metric sample, matching
// spec.md §6's `{name, kind, value, timestamp_us, attributes, ...}`.
type MetricPoint struct {
	Name        string
	Kind        MetricKind
	Value       float64
	TimestampUs int64
	Attributes  map[string]string

	ProjectID string
	ThreadID  string
	RunID     string
	TraceID   string
	SpanID    string
}

// SpanWriter persists a batch of closed spans. Implementations should be
// safe to call concurrently and should not block the caller on slow storage
// for longer than they can help — the gateway's span tap is a bounded,
// drop-on-overflow channel (spec.md §5) precisely so a stalled writer can't
// back up request handling.
type SpanWriter interface {
	WriteSpans(ctx context.Context, batch []SpanRecord) error
}

// MetricsWriter persists a batch of metric points.
type MetricsWriter interface {
	WriteMetrics(ctx context.Context, points []MetricPoint) error
}

// Tap fans out closed spans/metric points to a writer pair over a bounded,
// drop-on-overflow channel, so a slow or unavailable writer never applies
// backpressure to the request path it is observing — the same
// "bounded channel, drop-on-overflow for non-user events" rule spec.md §5
// states for the telemetry tap generally.
type Tap struct {
	spans   chan SpanRecord
	metrics chan MetricPoint

	spanWriter    SpanWriter
	metricsWriter MetricsWriter

	flushEvery time.Duration
	batchSize  int

	stop chan struct{}
	done chan struct{}
}

// NewTap starts a background goroutine that batches incoming spans/metrics
// and flushes them to the writers every flushEvery, or sooner once batchSize
// items have accumulated. Call Close to flush and stop.
func NewTap(spanWriter SpanWriter, metricsWriter MetricsWriter, capacity, batchSize int, flushEvery time.Duration) *Tap {
	if capacity <= 0 {
		capacity = 256
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	t := &Tap{
		spans:         make(chan SpanRecord, capacity),
		metrics:       make(chan MetricPoint, capacity),
		spanWriter:    spanWriter,
		metricsWriter: metricsWriter,
		flushEvery:    flushEvery,
		batchSize:     batchSize,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go t.loop()
	return t
}

// EmitSpan enqueues a span for the writer, dropping it silently if the tap's
// buffer is full rather than blocking the caller.
func (t *Tap) EmitSpan(s SpanRecord) {
	select {
	case t.spans <- s:
	default:
	}
}

// EmitMetric enqueues a metric point, dropping it silently if full.
func (t *Tap) EmitMetric(m MetricPoint) {
	select {
	case t.metrics <- m:
	default:
	}
}

// Close stops the background goroutine after a final flush.
func (t *Tap) Close() {
	close(t.stop)
	<-t.done
}

func (t *Tap) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.flushEvery)
	defer ticker.Stop()

	var spanBatch []SpanRecord
	var metricBatch []MetricPoint

	flush := func() {
		if len(spanBatch) > 0 && t.spanWriter != nil {
			_ = t.spanWriter.WriteSpans(context.Background(), spanBatch)
			spanBatch = spanBatch[:0]
		}
		if len(metricBatch) > 0 && t.metricsWriter != nil {
			_ = t.metricsWriter.WriteMetrics(context.Background(), metricBatch)
			metricBatch = metricBatch[:0]
		}
	}

	for {
		select {
		case <-t.stop:
			drain := true
			for drain {
				select {
				case s := <-t.spans:
					spanBatch = append(spanBatch, s)
				case m := <-t.metrics:
					metricBatch = append(metricBatch, m)
				default:
					drain = false
				}
			}
			flush()
			return
		case <-ticker.C:
			flush()
		case s := <-t.spans:
			spanBatch = append(spanBatch, s)
			if len(spanBatch) >= t.batchSize {
				flush()
			}
		case m := <-t.metrics:
			metricBatch = append(metricBatch, m)
			if len(metricBatch) >= t.batchSize {
				flush()
			}
		}
	}
}

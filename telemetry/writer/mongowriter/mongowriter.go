// Package mongowriter is a reference SpanWriter/MetricsWriter backend for
// package writer, persisting spans and metric points to MongoDB. It follows
// the "collection-per-concern, thin Store wrapping a *mongo.Collection"
// shape of registry/store/mongo/mongo.go and runlog/mongo/clients/mongo,
// generalized from toolset/run-event documents to span and metrics-point
// documents.
package mongowriter

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vllora/gateway/telemetry/writer"
)

const (
	defaultSpansCollection   = "telemetry_spans"
	defaultMetricsCollection = "telemetry_metrics"
	defaultTimeout           = 5 * time.Second
)

// Options configures a Writer.
type Options struct {
	Client             *mongo.Client
	Database           string
	SpansCollection    string
	MetricsCollection  string
	Timeout            time.Duration
}

// Writer implements writer.SpanWriter and writer.MetricsWriter on top of a
// connected *mongo.Client.
type Writer struct {
	spans   *mongo.Collection
	metrics *mongo.Collection
	timeout time.Duration
}

var (
	_ writer.SpanWriter    = (*Writer)(nil)
	_ writer.MetricsWriter = (*Writer)(nil)
)

// New returns a Writer backed by the provided MongoDB client. It ensures the
// indexes queries will need (spans by run_id and started_at, metric points
// by name and timestamp_us) exist before returning.
func New(ctx context.Context, opts Options) (*Writer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mongowriter: client is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("mongowriter: database name is required")
	}
	spansColl := opts.SpansCollection
	if spansColl == "" {
		spansColl = defaultSpansCollection
	}
	metricsColl := opts.MetricsCollection
	if metricsColl == "" {
		metricsColl = defaultMetricsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db := opts.Client.Database(opts.Database)
	w := &Writer{
		spans:   db.Collection(spansColl),
		metrics: db.Collection(metricsColl),
		timeout: timeout,
	}
	if err := w.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.spans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "started_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongowriter: create span index: %w", err)
	}
	if _, err := w.metrics.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}, {Key: "timestamp_us", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongowriter: create metrics index: %w", err)
	}
	return nil
}

// spanDocument is the persisted shape of writer.SpanRecord.
type spanDocument struct {
	TraceID     string            `bson:"trace_id"`
	SpanID      string            `bson:"span_id"`
	ParentID    string            `bson:"parent_id,omitempty"`
	Name        string            `bson:"name"`
	StartedAt   time.Time         `bson:"started_at"`
	EndedAt     time.Time         `bson:"ended_at"`
	Request     string            `bson:"request,omitempty"`
	Output      string            `bson:"output,omitempty"`
	Error       string            `bson:"error,omitempty"`
	Usage       map[string]any    `bson:"usage,omitempty"`
	RawUsage    map[string]any    `bson:"raw_usage,omitempty"`
	TTFTMicros  int64             `bson:"ttft_us,omitempty"`
	Cost        float64           `bson:"cost,omitempty"`
	Tags        map[string]string `bson:"tags,omitempty"`
	RetriesLeft int               `bson:"retries_left,omitempty"`

	ProjectID             string `bson:"project_id,omitempty"`
	ThreadID              string `bson:"thread_id,omitempty"`
	RunID                 string `bson:"run_id,omitempty"`
	MessageID             string `bson:"message_id,omitempty"`
	CredentialsIdentifier string `bson:"credentials_identifier,omitempty"`
	RouterName            string `bson:"router_name,omitempty"`
	User                  string `bson:"user,omitempty"`
	Cache                 string `bson:"cache,omitempty"`
}

// metricDocument is the persisted shape of writer.MetricPoint.
type metricDocument struct {
	Name        string            `bson:"name"`
	Kind        string            `bson:"kind"`
	Value       float64           `bson:"value"`
	TimestampUs int64             `bson:"timestamp_us"`
	Attributes  map[string]string `bson:"attributes,omitempty"`

	ProjectID string `bson:"project_id,omitempty"`
	ThreadID  string `bson:"thread_id,omitempty"`
	RunID     string `bson:"run_id,omitempty"`
	TraceID   string `bson:"trace_id,omitempty"`
	SpanID    string `bson:"span_id,omitempty"`
}

// WriteSpans persists a batch of closed spans with a single InsertMany call.
func (w *Writer) WriteSpans(ctx context.Context, batch []writer.SpanRecord) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	docs := make([]any, len(batch))
	for i, s := range batch {
		docs[i] = spanDocument{
			TraceID:               s.TraceID,
			SpanID:                s.SpanID,
			ParentID:              s.ParentID,
			Name:                  s.Name,
			StartedAt:             s.StartedAt,
			EndedAt:               s.EndedAt,
			Request:               s.Request,
			Output:                s.Output,
			Error:                 s.Error,
			Usage:                 s.Usage,
			RawUsage:              s.RawUsage,
			TTFTMicros:            s.TTFT.Microseconds(),
			Cost:                  s.Cost,
			Tags:                  s.Tags,
			RetriesLeft:           s.RetriesLeft,
			ProjectID:             s.ProjectID,
			ThreadID:              s.ThreadID,
			RunID:                 s.RunID,
			MessageID:             s.MessageID,
			CredentialsIdentifier: s.CredentialsIdentifier,
			RouterName:            s.RouterName,
			User:                  s.User,
			Cache:                 s.Cache,
		}
	}
	if _, err := w.spans.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongowriter: insert spans: %w", err)
	}
	return nil
}

// WriteMetrics persists a batch of metric points with a single InsertMany
// call.
func (w *Writer) WriteMetrics(ctx context.Context, points []writer.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	docs := make([]any, len(points))
	for i, p := range points {
		docs[i] = metricDocument{
			Name:        p.Name,
			Kind:        string(p.Kind),
			Value:       p.Value,
			TimestampUs: p.TimestampUs,
			Attributes:  p.Attributes,
			ProjectID:   p.ProjectID,
			ThreadID:    p.ThreadID,
			RunID:       p.RunID,
			TraceID:     p.TraceID,
			SpanID:      p.SpanID,
		}
	}
	if _, err := w.metrics.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongowriter: insert metrics: %w", err)
	}
	return nil
}

// Connect is a convenience wrapper around mongo.Connect for callers that
// don't already hold a *mongo.Client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongowriter: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongowriter: ping: %w", err)
	}
	return client, nil
}

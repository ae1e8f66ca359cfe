package mongowriter

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vllora/gateway/telemetry/writer"
)

var (
	testClient      *mongo.Client
	skipIntegration bool
)

// TestMain mirrors registry/health_tracker_integration_test.go's
// container-once-for-all-tests shape, generalized from a Redis container to
// a mongo:7 one.
func TestMain(m *testing.M) {
	ctx := context.Background()

	code := func() int {
		container, err := mongodb.Run(ctx, "mongo:7")
		if err != nil {
			fmt.Printf("Docker not available, integration tests will be skipped: %v\n", err)
			skipIntegration = true
			return m.Run()
		}
		defer func() { _ = container.Terminate(ctx) }()

		uri, err := container.ConnectionString(ctx)
		if err != nil {
			fmt.Printf("failed to get connection string: %v\n", err)
			skipIntegration = true
			return m.Run()
		}

		client, err := Connect(ctx, uri)
		if err != nil {
			fmt.Printf("failed to connect: %v\n", err)
			skipIntegration = true
			return m.Run()
		}
		testClient = client
		defer func() { _ = client.Disconnect(context.Background()) }()

		return m.Run()
	}()

	os.Exit(code)
}

func requireMongo(t *testing.T) *mongo.Client {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	return testClient
}

func TestWriter_WriteSpansAndMetrics(t *testing.T) {
	client := requireMongo(t)
	ctx := context.Background()

	w, err := New(ctx, Options{Client: client, Database: fmt.Sprintf("gateway_test_%d", time.Now().UnixNano())})
	require.NoError(t, err)

	err = w.WriteSpans(ctx, []writer.SpanRecord{
		{
			TraceID:   "trace-1",
			SpanID:    "span-1",
			Name:      "model_call",
			StartedAt: time.Now().Add(-time.Second),
			EndedAt:   time.Now(),
			RunID:     "run-1",
			Cost:      0.002,
			TTFT:      120 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	err = w.WriteMetrics(ctx, []writer.MetricPoint{
		{Name: "requests_total", Kind: writer.MetricKindCounter, Value: 1, RunID: "run-1"},
	})
	require.NoError(t, err)

	count, err := w.spans.CountDocuments(ctx, map[string]any{"run_id": "run-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestWriter_WriteSpansEmptyBatchIsNoop(t *testing.T) {
	client := requireMongo(t)
	ctx := context.Background()

	w, err := New(ctx, Options{Client: client, Database: fmt.Sprintf("gateway_test_%d", time.Now().UnixNano())})
	require.NoError(t, err)

	require.NoError(t, w.WriteSpans(ctx, nil))
	require.NoError(t, w.WriteMetrics(ctx, nil))
}

package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSpanWriter struct {
	mu     sync.Mutex
	writes [][]SpanRecord
}

func (w *fakeSpanWriter) WriteSpans(_ context.Context, batch []SpanRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := append([]SpanRecord(nil), batch...)
	w.writes = append(w.writes, cp)
	return nil
}

func (w *fakeSpanWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.writes {
		n += len(b)
	}
	return n
}

type fakeMetricsWriter struct {
	mu     sync.Mutex
	writes [][]MetricPoint
}

func (w *fakeMetricsWriter) WriteMetrics(_ context.Context, points []MetricPoint) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, append([]MetricPoint(nil), points...))
	return nil
}

func TestTap_FlushesOnBatchSize(t *testing.T) {
	sw := &fakeSpanWriter{}
	tap := NewTap(sw, nil, 256, 3, time.Hour)
	defer tap.Close()

	for i := 0; i < 3; i++ {
		tap.EmitSpan(SpanRecord{Name: "model_call"})
	}

	require.Eventually(t, func() bool { return sw.total() == 3 }, time.Second, time.Millisecond)
}

func TestTap_FlushesOnTicker(t *testing.T) {
	sw := &fakeSpanWriter{}
	tap := NewTap(sw, nil, 256, 1000, 10*time.Millisecond)
	defer tap.Close()

	tap.EmitSpan(SpanRecord{Name: "api_invoke"})

	require.Eventually(t, func() bool { return sw.total() == 1 }, time.Second, time.Millisecond)
}

func TestTap_CloseFlushesRemainder(t *testing.T) {
	sw := &fakeSpanWriter{}
	mw := &fakeMetricsWriter{}
	tap := NewTap(sw, mw, 256, 1000, time.Hour)

	tap.EmitSpan(SpanRecord{Name: "run"})
	tap.EmitMetric(MetricPoint{Name: "requests_total", Kind: MetricKindCounter, Value: 1})
	tap.Close()

	require.Equal(t, 1, sw.total())
	require.Len(t, mw.writes, 1)
}

func TestTap_DropsOnOverflowWithoutBlocking(t *testing.T) {
	sw := &fakeSpanWriter{}
	tap := NewTap(sw, nil, 2, 1000, time.Hour)
	defer tap.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tap.EmitSpan(SpanRecord{Name: "model_call"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EmitSpan blocked on a full tap instead of dropping")
	}
}

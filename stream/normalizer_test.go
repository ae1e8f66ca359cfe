package stream

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

// fakeStreamer replays a fixed sequence of chunks, then returns endErr
// (io.EOF by default) once the sequence is exhausted.
type fakeStreamer struct {
	chunks   []types.Chunk
	i        int
	endErr   error
	closed   bool
	closeErr error
}

func (f *fakeStreamer) Recv() (types.Chunk, error) {
	if f.i >= len(f.chunks) {
		if f.endErr != nil {
			return types.Chunk{}, f.endErr
		}
		return types.Chunk{}, io.EOF
	}
	c := f.chunks[f.i]
	f.i++
	return c, nil
}

func (f *fakeStreamer) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeStreamer) Metadata() map[string]any { return map[string]any{"fake": true} }

func TestNormalizer_PassesThroughChunksAndRecordsStats(t *testing.T) {
	fake := &fakeStreamer{chunks: []types.Chunk{
		{Type: types.ChunkDelta, Delta: "hel"},
		{Type: types.ChunkDelta, Delta: "lo"},
		{Type: types.ChunkUsageFinal, Usage: types.UsageRecord{OutputTokens: 5}},
		{Type: types.ChunkFinishReason, FinishReason: types.FinishStop},
	}}
	n := New(fake, nil)

	var got []types.Chunk
	for {
		c, err := n.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, c)
	}
	require.Len(t, got, 4)
	require.Equal(t, types.FinishStop, got[3].FinishReason)

	stats := n.Stats()
	require.Equal(t, 5, stats.TextLength)
	require.Equal(t, 5, stats.Usage.OutputTokens)
	require.Greater(t, stats.TTFT, time.Duration(0))
}

func TestNormalizer_SynthesizesTerminalChunkWhenUpstreamEndsWithoutOne(t *testing.T) {
	fake := &fakeStreamer{chunks: []types.Chunk{
		{Type: types.ChunkDelta, Delta: "partial"},
	}}
	n := New(fake, nil)

	_, err := n.Recv()
	require.NoError(t, err)

	terminal, err := n.Recv()
	require.NoError(t, err)
	require.Equal(t, types.ChunkError, terminal.Type)
	require.Error(t, terminal.Err)

	_, err = n.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestNormalizer_TranslatesUpstreamTransportErrorIntoTerminalChunk(t *testing.T) {
	fake := &fakeStreamer{endErr: errors.New("connection reset")}
	n := New(fake, nil)

	terminal, err := n.Recv()
	require.NoError(t, err)
	require.Equal(t, types.ChunkError, terminal.Type)
	require.EqualError(t, terminal.Err, "connection reset")

	_, err = n.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestNormalizer_TapReceivesEveryChunkWithoutBlockingRecv(t *testing.T) {
	fake := &fakeStreamer{chunks: []types.Chunk{
		{Type: types.ChunkDelta, Delta: "a"},
		{Type: types.ChunkFinishReason, FinishReason: types.FinishStop},
	}}
	n := New(fake, nil, WithTapBuffer(8))

	for {
		_, err := n.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	var tapped []types.Chunk
	for ev := range drainTap(n) {
		tapped = append(tapped, ev.Chunk)
	}
	require.Len(t, tapped, 2)
}

func TestNormalizer_TapDropsOnOverflowWithoutBlocking(t *testing.T) {
	chunks := make([]types.Chunk, 0, 10)
	for i := 0; i < 9; i++ {
		chunks = append(chunks, types.Chunk{Type: types.ChunkDelta, Delta: "x"})
	}
	chunks = append(chunks, types.Chunk{Type: types.ChunkFinishReason, FinishReason: types.FinishStop})
	fake := &fakeStreamer{chunks: chunks}
	n := New(fake, nil, WithTapBuffer(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, err := n.Recv()
			if err == io.EOF {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv loop blocked on a full, undrained tap")
	}
}

func TestNormalizer_CloseCancelsUpstreamContextAndClosesUpstream(t *testing.T) {
	fake := &fakeStreamer{}
	canceled := false
	n := New(fake, func() { canceled = true })

	err := n.Close()
	require.NoError(t, err)
	require.True(t, canceled)
	require.True(t, fake.closed)

	_, ok := <-n.Tap()
	require.False(t, ok, "tap channel should be closed")
}

func TestNormalizer_CloseBoundsAnUncooperativeUpstream(t *testing.T) {
	fake := &blockingCloseStreamer{release: make(chan struct{})}
	defer close(fake.release)

	n := New(fake, nil, WithCloseBudget(20*time.Millisecond))
	err := n.Close()
	require.Error(t, err)
}

type blockingCloseStreamer struct {
	release chan struct{}
}

func (b *blockingCloseStreamer) Recv() (types.Chunk, error) { return types.Chunk{}, io.EOF }
func (b *blockingCloseStreamer) Close() error               { <-b.release; return nil }
func (b *blockingCloseStreamer) Metadata() map[string]any    { return nil }

func drainTap(n *Normalizer) <-chan TelemetryEvent {
	out := make(chan TelemetryEvent, 16)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-n.Tap():
				if !ok {
					return
				}
				out <- ev
			case <-time.After(100 * time.Millisecond):
				return
			}
		}
	}()
	return out
}

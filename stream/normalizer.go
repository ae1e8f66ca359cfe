// Package stream wraps a provider.Adapter's raw types.ChunkStreamer with the
// cross-provider bookkeeping every caller needs regardless of upstream:
// time-to-first-token, running text length, tool-call-delta accumulation,
// and a best-effort fan-out of every chunk to an internal telemetry tap that
// never blocks the caller's own Recv loop (a full tap drops the chunk).
//
// The tap's bounded-buffer, drop-on-overflow send is the same shape as the
// teacher's runtime/mcp.Broadcaster (runtime/mcp/broadcast.go): a
// non-blocking select/default send against a per-subscriber buffered
// channel, generalized here from N subscribers to the one fixed telemetry
// sink this package owns.
package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vllora/gateway/types"
)

const (
	defaultTapBuffer   = 64
	defaultCloseBudget = 5 * time.Second
)

// TelemetryEvent is one chunk as observed by the tap, timestamped relative
// to stream start so a telemetry consumer can reconstruct inter-chunk
// timing without access to the Normalizer itself.
type TelemetryEvent struct {
	Chunk   types.Chunk
	Elapsed time.Duration
}

// Stats summarizes a stream once its terminal chunk has been observed.
// TokensPerSecond is computed against the terminal chunk's arrival time, not
// wall-clock "now", so it stays stable after the stream ends.
type Stats struct {
	TTFT            time.Duration
	TextLength      int
	TokensPerSecond float64
	Usage           types.UsageRecord
}

// Option configures a Normalizer at construction time.
type Option func(*Normalizer)

// WithTapBuffer sets the telemetry tap's channel capacity. The default is
// defaultTapBuffer.
func WithTapBuffer(n int) Option {
	return func(norm *Normalizer) {
		if n > 0 {
			norm.tap = make(chan TelemetryEvent, n)
		}
	}
}

// WithCloseBudget bounds how long Close waits for the upstream stream to
// finish closing before giving up and returning an error. The upstream's own
// cancellation (via the context.CancelFunc passed to New) has already been
// triggered by the time this budget starts, so this only bounds how long a
// slow/uncooperative upstream can hold the caller of Close.
func WithCloseBudget(d time.Duration) Option {
	return func(norm *Normalizer) {
		if d > 0 {
			norm.closeBudget = d
		}
	}
}

// Normalizer implements types.ChunkStreamer over an upstream
// types.ChunkStreamer, adding TTFT/TPS bookkeeping, tool-call-delta
// accumulation, and a telemetry fan-out. Safe for Recv to be called from one
// goroutine (per types.ChunkStreamer's contract) while Tap is drained from
// another.
type Normalizer struct {
	upstream types.ChunkStreamer
	cancel   context.CancelFunc

	tap         chan TelemetryEvent
	closeBudget time.Duration
	closeOnce   sync.Once

	start time.Time

	mu           sync.Mutex
	ttftSet      bool
	ttft         time.Duration
	textLen      int
	usage        types.UsageRecord
	accum        *accumulator
	sawTerminal  bool
	terminalSent bool
	end          time.Time
}

// New wraps upstream. cancel, if non-nil, is invoked on Close before the
// upstream is closed — it should cancel the context.Context the adapter used
// to establish upstream, so a slow provider connection is torn down
// regardless of whether upstream.Close itself respects cancellation.
func New(upstream types.ChunkStreamer, cancel context.CancelFunc, opts ...Option) *Normalizer {
	n := &Normalizer{
		upstream:    upstream,
		cancel:      cancel,
		tap:         make(chan TelemetryEvent, defaultTapBuffer),
		closeBudget: defaultCloseBudget,
		start:       time.Now(),
		accum:       newAccumulator(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tap returns the telemetry fan-out channel. It is closed when Close is
// called. A slow or absent tap reader never blocks Recv: overflow chunks are
// dropped, never queued against the caller.
func (n *Normalizer) Tap() <-chan TelemetryEvent {
	return n.tap
}

// Recv pulls the next chunk from upstream, folds it into the running
// TTFT/length/usage/tool-call bookkeeping, fans it out to the telemetry tap,
// and returns it to the caller. It guarantees exactly one terminal chunk
// (ChunkFinishReason or ChunkError) per stream: if upstream ends (io.EOF)
// without ever emitting one, Recv synthesizes a ChunkError so downstream
// consumers never have to special-case a silently truncated stream; if
// upstream's Recv itself errors, that error is translated into the terminal
// ChunkError chunk rather than propagated as a Go error. Once a terminal
// chunk has been delivered, every subsequent call returns io.EOF, matching
// the convention the provider adapters already use.
func (n *Normalizer) Recv() (types.Chunk, error) {
	n.mu.Lock()
	if n.terminalSent {
		n.mu.Unlock()
		return types.Chunk{}, io.EOF
	}
	n.mu.Unlock()

	chunk, err := n.upstream.Recv()
	if err != nil {
		if err == io.EOF {
			return n.finish(n.missingTerminal()), nil
		}
		return n.finish(types.Chunk{Type: types.ChunkError, Err: err}), nil
	}

	n.process(chunk)
	if chunk.Type == types.ChunkFinishReason || chunk.Type == types.ChunkError {
		return n.finish(chunk), nil
	}

	n.emit(chunk)
	return chunk, nil
}

// finish records chunk as the stream's terminal event (if one hasn't
// already been recorded by a racing call — Recv is documented
// single-goroutine, but the guard is cheap) and fans it out.
func (n *Normalizer) finish(chunk types.Chunk) types.Chunk {
	n.mu.Lock()
	if n.terminalSent {
		n.mu.Unlock()
		return chunk
	}
	n.terminalSent = true
	n.sawTerminal = true
	n.end = time.Now()
	n.mu.Unlock()
	n.emit(chunk)
	return chunk
}

// missingTerminal synthesizes the ChunkError invariant 3 requires when an
// upstream stream ends without ever producing its own terminal chunk.
func (n *Normalizer) missingTerminal() types.Chunk {
	return types.Chunk{
		Type: types.ChunkError,
		Err:  fmt.Errorf("stream: upstream closed without a terminal chunk"),
	}
}

// process folds a non-terminal chunk into the running stats without
// recording it as terminal.
func (n *Normalizer) process(chunk types.Chunk) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch chunk.Type {
	case types.ChunkDelta:
		n.recordTTFTLocked()
		n.textLen += len(chunk.Delta)
	case types.ChunkToolCallDelta:
		n.recordTTFTLocked()
		n.accum.add(chunk.ToolCall.CallID, chunk.ToolCall.Name, chunk.ToolCall.ArgsDelta)
	case types.ChunkUsageFinal:
		n.usage = n.usage.Add(chunk.Usage)
	}
}

func (n *Normalizer) recordTTFTLocked() {
	if !n.ttftSet {
		n.ttft = time.Since(n.start)
		n.ttftSet = true
	}
}

// emit fans chunk out to the telemetry tap without ever blocking the caller:
// a full tap buffer drops the event rather than applying back-pressure.
func (n *Normalizer) emit(chunk types.Chunk) {
	select {
	case n.tap <- TelemetryEvent{Chunk: chunk, Elapsed: time.Since(n.start)}:
	default:
	}
}

// ToolCallArgs returns the arguments accumulated so far for callID and
// whether they currently form a balanced-brace-complete JSON object. Per
// spec §4.1, completeness is only guaranteed once the stream's terminal
// chunk has been observed; callers racing ahead of that may see false here
// even for a call that will complete a moment later.
func (n *Normalizer) ToolCallArgs(callID string) (args string, complete bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accum.args(callID), n.accum.complete(callID)
}

// Stats returns the stream's bookkeeping. TokensPerSecond is meaningless
// (zero) until the terminal chunk has been observed, since it is computed
// against that chunk's arrival time rather than wall-clock now.
func (n *Normalizer) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	var tps float64
	if n.sawTerminal && !n.end.IsZero() {
		if elapsed := n.end.Sub(n.start).Seconds(); elapsed > 0 {
			tps = float64(n.usage.OutputTokens) / elapsed
		}
	}
	return Stats{
		TTFT:            n.ttft,
		TextLength:      n.textLen,
		TokensPerSecond: tps,
		Usage:           n.usage,
	}
}

// Close cancels the upstream context (if one was supplied to New) and waits
// up to closeBudget for the upstream stream to finish closing, bounding how
// long a downstream consumer's cancellation can be held up by an
// uncooperative provider connection (spec §4.2 responsibility 4). The tap
// channel is closed exactly once, after the upstream close attempt
// completes or times out.
func (n *Normalizer) Close() error {
	var err error
	n.closeOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		done := make(chan error, 1)
		go func() { done <- n.upstream.Close() }()
		select {
		case err = <-done:
		case <-time.After(n.closeBudget):
			err = fmt.Errorf("stream: upstream close did not complete within %s", n.closeBudget)
		}
		close(n.tap)
	})
	return err
}

// Metadata delegates to the upstream stream's provider-specific diagnostics.
func (n *Normalizer) Metadata() map[string]any {
	return n.upstream.Metadata()
}

package openai

import (
	"context"
	"io"
	"sync"

	oai "github.com/openai/openai-go"

	"github.com/vllora/gateway/types"
)

// streamer adapts an oai.ChatCompletionStream to types.ChunkStreamer,
// tracking each tool call's id and name by the index the SDK delivers its
// fragments under and emitting one ToolCallDelta chunk per argument fragment.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *oai.ChatCompletionStream

	chunks chan types.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu sync.RWMutex
	usage  *types.UsageRecord
}

func newStreamer(ctx context.Context, stream *oai.ChatCompletionStream) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan types.Chunk, 32)}
	go s.run()
	return s
}

func (s *streamer) Recv() (types.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return types.Chunk{}, err
		}
		return types.Chunk{}, io.EOF
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return types.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return s.stream.Close()
}

func (s *streamer) Metadata() map[string]any {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	if s.usage == nil {
		return nil
	}
	return map[string]any{"usage": *s.usage}
}

type toolCallAccum struct {
	id   string
	name string
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer s.stream.Close()

	accum := make(map[int64]*toolCallAccum)

	for s.stream.Next() {
		current := s.stream.Current()
		if len(current.Choices) == 0 {
			if current.Usage.TotalTokens > 0 {
				s.emitUsage(int(current.Usage.PromptTokens), int(current.Usage.CompletionTokens))
			}
			continue
		}
		choice := current.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !s.emit(types.Chunk{Type: types.ChunkDelta, Delta: delta.Content}) {
				return
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			tb, ok := accum[idx]
			if !ok {
				tb = &toolCallAccum{}
				accum[idx] = tb
			}
			if tc.ID != "" {
				tb.id = tc.ID
			}
			if tc.Function.Name != "" {
				tb.name = tc.Function.Name
			}
			if !s.emit(types.Chunk{
				Type:     types.ChunkToolCallDelta,
				ToolCall: types.ToolCallDelta{CallID: tb.id, Name: tb.name, ArgsDelta: tc.Function.Arguments},
			}) {
				return
			}
		}

		if choice.FinishReason != "" {
			if !s.emit(types.Chunk{Type: types.ChunkFinishReason, FinishReason: translateFinishReason(string(choice.FinishReason))}) {
				return
			}
		}
	}

	if err := s.stream.Err(); err != nil {
		s.setErr(translateError(err))
	}
}

func (s *streamer) emit(c types.Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return false
	}
}

func (s *streamer) emitUsage(promptTokens, completionTokens int) {
	rec := types.UsageRecord{InputTokens: promptTokens, OutputTokens: completionTokens}
	s.metaMu.Lock()
	s.usage = &rec
	s.metaMu.Unlock()
	s.emit(types.Chunk{Type: types.ChunkUsageFinal, Usage: rec})
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

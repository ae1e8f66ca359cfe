package anthropic

import (
	"context"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/vllora/gateway/types"
)

// streamer adapts an Anthropic Messages SSE stream to types.ChunkStreamer.
// It runs the SSE pump on its own goroutine and forwards normalized Chunks
// over a buffered channel, so a slow consumer cannot block the SDK's own
// internal read loop (mirrors the teacher's anthropicStreamer).
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	raw    *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan types.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu   sync.RWMutex
	metadata map[string]any
}

func newStreamer(ctx context.Context, raw *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, raw: raw, chunks: make(chan types.Chunk, 32)}
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
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

func (s *streamer) Metadata() map[string]any {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.raw != nil {
			_ = s.raw.Close()
		}
	}()

	proc := &chunkProcessor{toolBlocks: make(map[int]*toolBuffer)}
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.raw.Next() {
			s.setErr(s.raw.Err())
			return
		}
		for _, c := range proc.handle(s.raw.Current()) {
			if c.Type == types.ChunkUsageFinal {
				s.recordUsage(c.Usage)
			}
			select {
			case s.chunks <- c:
			case <-s.ctx.Done():
				s.setErr(s.ctx.Err())
				return
			}
		}
	}
}

func (s *streamer) recordUsage(u types.UsageRecord) {
	s.metaMu.Lock()
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata["usage"] = u
	s.metaMu.Unlock()
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

// chunkProcessor converts Anthropic SSE events into canonical Chunks. One
// event expands into zero or one chunk; handle returns a slice so an event
// that yields nothing needs no sentinel Chunk.
type chunkProcessor struct {
	toolBlocks map[int]*toolBuffer
	stopReason string
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) joined() string {
	if len(tb.fragments) == 0 {
		return "{}"
	}
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return "{}"
	}
	return joined
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) []types.Chunk {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int]*toolBuffer)
		p.stopReason = ""
		return nil
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			p.toolBlocks[idx] = &toolBuffer{id: tu.ID, name: tu.Name}
		}
		return nil
	case sdk.ContentBlockDeltaEvent:
		return p.handleDelta(int(ev.Index), ev.Delta.AsAny())
	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		tb, ok := p.toolBlocks[idx]
		if !ok {
			return nil
		}
		delete(p.toolBlocks, idx)
		if len(tb.fragments) > 0 {
			// Every fragment was already emitted as its own ToolCallDelta.
			return nil
		}
		return []types.Chunk{{
			Type: types.ChunkToolCallDelta,
			ToolCall: types.ToolCallDelta{
				CallID:    tb.id,
				Name:      tb.name,
				ArgsDelta: tb.joined(),
			},
		}}
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		return []types.Chunk{{
			Type: types.ChunkUsageFinal,
			Usage: types.UsageRecord{
				InputTokens:       int(ev.Usage.InputTokens),
				OutputTokens:      int(ev.Usage.OutputTokens),
				CachedInputTokens: int(ev.Usage.CacheReadInputTokens),
				CachedWriteTokens: int(ev.Usage.CacheCreationInputTokens),
			},
		}}
	case sdk.MessageStopEvent:
		return []types.Chunk{{Type: types.ChunkFinishReason, FinishReason: translateStopReason(p.stopReason)}}
	default:
		return nil
	}
}

func (p *chunkProcessor) handleDelta(idx int, delta any) []types.Chunk {
	switch d := delta.(type) {
	case sdk.TextDelta:
		if d.Text == "" {
			return nil
		}
		return []types.Chunk{{Type: types.ChunkDelta, Delta: d.Text}}
	case sdk.InputJSONDelta:
		if d.PartialJSON == "" {
			return nil
		}
		tb, ok := p.toolBlocks[idx]
		if !ok {
			return nil
		}
		tb.fragments = append(tb.fragments, d.PartialJSON)
		return []types.Chunk{{
			Type: types.ChunkToolCallDelta,
			ToolCall: types.ToolCallDelta{
				CallID:    tb.id,
				Name:      tb.name,
				ArgsDelta: d.PartialJSON,
			},
		}}
	case sdk.ThinkingDelta:
		if d.Thinking == "" {
			return nil
		}
		return []types.Chunk{{Type: types.ChunkReasoning, Reasoning: d.Thinking}}
	default:
		return nil
	}
}

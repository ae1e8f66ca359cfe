package bedrock

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/vllora/gateway/types"
)

// streamer adapts a Bedrock ConverseStream event channel to types.ChunkStreamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	chunks chan types.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu   sync.RWMutex
	metadata map[string]any
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, sanToCanon map[string]string) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan types.Chunk, 32)}
	go s.run(sanToCanon)
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
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *streamer) run(sanToCanon map[string]string) {
	defer close(s.chunks)
	defer func() {
		if err := s.stream.Close(); err != nil {
			s.setErr(err)
		}
	}()

	proc := &chunkProcessor{toolBlocks: make(map[int]*toolBuffer), sanToCanon: sanToCanon}
	events := s.stream.Events()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case event, ok := <-events:
			if !ok {
				s.setErr(s.stream.Err())
				return
			}
			chunks, err := proc.handle(event)
			if err != nil {
				s.setErr(err)
				return
			}
			for _, c := range chunks {
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

// chunkProcessor converts Bedrock ConverseStream events into canonical Chunks.
type chunkProcessor struct {
	toolBlocks map[int]*toolBuffer
	sanToCanon map[string]string
	stopReason string
}

func (p *chunkProcessor) handle(event any) ([]types.Chunk, error) {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberMessageStart:
		p.toolBlocks = make(map[int]*toolBuffer)
		return nil, nil
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := int(ev.Value.ContentBlockIndex)
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			tb := &toolBuffer{}
			if start.Value.ToolUseId != nil {
				tb.id = *start.Value.ToolUseId
			}
			raw := ""
			if start.Value.Name != nil {
				raw = *start.Value.Name
			}
			if canonical, ok := p.sanToCanon[raw]; ok {
				tb.name = canonical
			} else {
				tb.name = raw
			}
			p.toolBlocks[idx] = tb
		}
		return nil, nil
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return nil, nil
			}
			return []types.Chunk{{Type: types.ChunkDelta, Delta: delta.Value}}, nil
		case *brtypes.ContentBlockDeltaMemberToolUse:
			tb, ok := p.toolBlocks[idx]
			if !ok || delta.Value.Input == nil {
				return nil, nil
			}
			fragment := *delta.Value.Input
			tb.fragments = append(tb.fragments, fragment)
			return []types.Chunk{{
				Type: types.ChunkToolCallDelta,
				ToolCall: types.ToolCallDelta{CallID: tb.id, Name: tb.name, ArgsDelta: fragment},
			}}, nil
		}
		return nil, nil
	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := int(ev.Value.ContentBlockIndex)
		tb, ok := p.toolBlocks[idx]
		if !ok {
			return nil, nil
		}
		delete(p.toolBlocks, idx)
		if len(tb.fragments) > 0 {
			// Every fragment was already emitted as its own ToolCallDelta.
			return nil, nil
		}
		return []types.Chunk{{
			Type:     types.ChunkToolCallDelta,
			ToolCall: types.ToolCallDelta{CallID: tb.id, Name: tb.name, ArgsDelta: tb.joined()},
		}}, nil
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		p.stopReason = string(ev.Value.StopReason)
		return []types.Chunk{{Type: types.ChunkFinishReason, FinishReason: translateStopReason(p.stopReason)}}, nil
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return nil, nil
		}
		u := ev.Value.Usage
		return []types.Chunk{{
			Type: types.ChunkUsageFinal,
			Usage: types.UsageRecord{
				InputTokens:  int(ptrValue(u.InputTokens)),
				OutputTokens: int(ptrValue(u.OutputTokens)),
			},
		}}, nil
	default:
		return nil, nil
	}
}

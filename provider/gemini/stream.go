package gemini

import (
	"encoding/json"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/vllora/gateway/types"
)

// iteratorSource is the pull-based stream genai.GenerateContentStream
// returns. Unlike the SSE/event-stream SDKs backing the other adapters,
// genai delivers responses synchronously on Next(), so the streamer needs no
// background goroutine — Recv just buffers whatever one Next() call yields.
type iteratorSource interface {
	Next() (*genai.GenerateContentResponse, error)
}

type streamer struct {
	iter iteratorSource

	pending []types.Chunk
	done    bool
	err     error
}

func newStreamer(iter iteratorSource) *streamer {
	return &streamer{iter: iter}
}

func (s *streamer) Recv() (types.Chunk, error) {
	for {
		if len(s.pending) > 0 {
			c := s.pending[0]
			s.pending = s.pending[1:]
			return c, nil
		}
		if s.done {
			if s.err != nil {
				return types.Chunk{}, s.err
			}
			return types.Chunk{}, io.EOF
		}
		s.advance()
	}
}

func (s *streamer) advance() {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		s.done = true
		return
	}
	if err != nil {
		s.done = true
		s.err = translateError(err)
		return
	}
	s.pending = append(s.pending, chunksFromResponse(resp)...)
}

func (s *streamer) Close() error { return nil }

func (s *streamer) Metadata() map[string]any { return nil }

func chunksFromResponse(resp *genai.GenerateContentResponse) []types.Chunk {
	var out []types.Chunk
	if len(resp.Candidates) == 0 {
		return out
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if string(p) != "" {
					out = append(out, types.Chunk{Type: types.ChunkDelta, Delta: string(p)})
				}
			case genai.FunctionCall:
				input, _ := json.Marshal(p.Args)
				out = append(out, types.Chunk{
					Type:     types.ChunkToolCallDelta,
					ToolCall: types.ToolCallDelta{Name: p.Name, ArgsDelta: string(input)},
				})
			}
		}
	}
	if candidate.FinishReason != genai.FinishReasonUnspecified {
		out = append(out, types.Chunk{Type: types.ChunkFinishReason, FinishReason: translateFinishReason(candidate.FinishReason)})
	}
	if resp.UsageMetadata != nil {
		out = append(out, types.Chunk{
			Type: types.ChunkUsageFinal,
			Usage: types.UsageRecord{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				Provider:     types.ProviderGemini,
			},
		})
	}
	return out
}

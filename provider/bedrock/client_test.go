package bedrock

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func TestSanitizeToolName_ReplacesDisallowedRunes(t *testing.T) {
	require.Equal(t, "search_web", sanitizeToolName("search.web"))
	require.Equal(t, "a_b_c", sanitizeToolName("a b/c"))
}

func TestSanitizeToolName_TruncatesOverlongNamesWithStableSuffix(t *testing.T) {
	name := strings.Repeat("x", 100)
	got := sanitizeToolName(name)

	require.LessOrEqual(t, len(got), 64)
	require.Equal(t, got, sanitizeToolName(name), "sanitization must be deterministic")
}

func TestTranslateStopReason(t *testing.T) {
	require.Equal(t, "stop", string(translateStopReason(string(brtypes.StopReasonEndTurn))))
	require.Equal(t, "length", string(translateStopReason(string(brtypes.StopReasonMaxTokens))))
	require.Equal(t, "tool_calls", string(translateStopReason(string(brtypes.StopReasonToolUse))))
}

package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

func TestConvertSchema_BuildsNestedObjectTree(t *testing.T) {
	raw := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string", "description": "city name"},
			"days": map[string]any{"type": "integer"},
		},
		"required": []any{"city"},
	}

	schema, err := convertSchema(raw)
	require.NoError(t, err)
	require.Equal(t, genai.TypeObject, schema.Type)
	require.Equal(t, genai.TypeString, schema.Properties["city"].Type)
	require.Equal(t, "city name", schema.Properties["city"].Description)
	require.Equal(t, genai.TypeInteger, schema.Properties["days"].Type)
	require.Equal(t, []string{"city"}, schema.Required)
}

func TestConvertSchema_RejectsMalformedJSONSchema(t *testing.T) {
	raw := map[string]any{
		"type":       "object",
		"properties": "not-an-object",
	}

	_, err := convertSchema(raw)
	require.Error(t, err)
}

func TestConvertSchema_NilSchemaDefaultsToObject(t *testing.T) {
	schema, err := convertSchema(nil)
	require.NoError(t, err)
	require.Equal(t, genai.TypeObject, schema.Type)
}

func TestConvertToolChoice_ModeTool_RequiresName(t *testing.T) {
	_, err := convertToolChoice(types.ToolChoice{Mode: types.ToolChoiceModeTool})
	require.Error(t, err)
	var badReq *types.BadRequest
	require.ErrorAs(t, err, &badReq)
}

func TestConvertToolChoice_ModeAny(t *testing.T) {
	tc, err := convertToolChoice(types.ToolChoice{Mode: types.ToolChoiceModeAny})
	require.NoError(t, err)
	require.Equal(t, genai.FunctionCallingAny, tc.FunctionCallingConfig.Mode)
}

func TestTranslateFinishReason(t *testing.T) {
	require.Equal(t, types.FinishStop, translateFinishReason(genai.FinishReasonStop))
	require.Equal(t, types.FinishLength, translateFinishReason(genai.FinishReasonMaxTokens))
	require.Equal(t, types.FinishContentFilter, translateFinishReason(genai.FinishReasonSafety))
}

func TestConvertContents_SkipsSystemMessages(t *testing.T) {
	parts := convertContents([]types.Message{
		{Role: types.RoleSystem, Parts: []types.Part{types.TextPart{Text: "be nice"}}},
		{Role: types.RoleUser, Parts: []types.Part{types.TextPart{Text: "hello"}}},
	})
	require.Len(t, parts, 1)
	text, ok := parts[0].(genai.Text)
	require.True(t, ok)
	require.Equal(t, "hello", string(text))
}

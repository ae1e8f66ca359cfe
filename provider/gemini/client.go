// Package gemini adapts the Google Generative Language API (Gemini) to
// provider.Adapter using github.com/google/generative-ai-go/genai. The same
// client configuration also backs provider/vertexai, which points the
// underlying genai.Client at a Vertex AI endpoint instead of the public
// Generative Language API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"google.golang.org/api/option"

	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

// Client captures the subset of *genai.Client the adapter needs, so tests can
// substitute a fake without a live API key.
type Client interface {
	GenerativeModel(name string) *genai.GenerativeModel
}

// Adapter implements provider.Adapter on top of the Gemini GenerateContent
// API. Role mapping, temperature clamping, and the parts-not-messages
// request shape are Gemini-specific and handled entirely in this package.
type Adapter struct {
	client Client
}

// New wraps an already-constructed genai client.
func New(client Client) *Adapter {
	return &Adapter{client: client}
}

// NewFromCredentials builds an Adapter talking to the public Generative
// Language API using an API key credential.
func NewFromCredentials(ctx context.Context, creds types.Credentials) (*Adapter, error) {
	if creds.APIKey == "" {
		return nil, &types.CredentialsMissing{Provider: types.ProviderGemini}
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(creds.APIKey))
	if err != nil {
		return nil, &types.Internal{Err: fmt.Errorf("gemini: client init: %w", err)}
	}
	return New(client), nil
}

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{Streaming: true, Tools: true, Vision: true, JSONMode: true}
}

func (a *Adapter) Complete(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (*types.UnifiedResponse, error) {
	if req.Model == "" {
		return nil, &types.BadRequest{Reason: "gemini: model identifier is required"}
	}
	model := a.client.GenerativeModel(req.Model)
	if err := configureModel(model, req); err != nil {
		return nil, err
	}

	resp, err := model.GenerateContent(ctx, convertContents(req.Messages)...)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp, req.Model)
}

func (a *Adapter) Stream(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (types.ChunkStreamer, error) {
	if req.Model == "" {
		return nil, &types.BadRequest{Reason: "gemini: model identifier is required"}
	}
	model := a.client.GenerativeModel(req.Model)
	if err := configureModel(model, req); err != nil {
		return nil, err
	}
	iter := model.GenerateContentStream(ctx, convertContents(req.Messages)...)
	return newStreamer(iter), nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	return provider.ClassifyError(0, "", err)
}

func configureModel(model *genai.GenerativeModel, req *types.UnifiedRequest) error {
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Text())}}
			break
		}
	}

	if req.Params.Temperature > 0 {
		temp := req.Params.Temperature
		if temp > 1.0 {
			temp = 1.0
		}
		model.SetTemperature(temp)
	}
	if req.Params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Params.MaxTokens))
	}
	if req.Params.TopP > 0 {
		model.SetTopP(req.Params.TopP)
	}
	if len(req.Params.StopSequences) > 0 {
		model.StopSequences = req.Params.StopSequences
	}
	if req.Params.ResponseFormat == types.ResponseFormatJSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return err
		}
		model.Tools = tools
	}
	if req.ToolChoice != nil {
		tc, err := convertToolChoice(*req.ToolChoice)
		if err != nil {
			return err
		}
		model.ToolConfig = tc
	}
	return nil
}

// convertContents flattens the text, images, tool calls and tool results of
// every non-system message into one list of parts; the role of each message
// is not carried over. System messages are pulled out separately into
// SystemInstruction.
func convertContents(messages []types.Message) []genai.Part {
	var parts []genai.Part
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleUser, types.RoleAssistant:
			if text := m.Text(); text != "" {
				parts = append(parts, genai.Text(text))
			}
			for _, img := range imageParts(m) {
				parts = append(parts, img)
			}
			for _, tu := range m.ToolUses() {
				var args map[string]any
				_ = json.Unmarshal(tu.Input, &args)
				parts = append(parts, genai.FunctionCall{Name: string(tu.Name), Args: args})
			}
		case types.RoleTool:
			parts = append(parts, genai.FunctionResponse{Name: toolName(m), Response: toolResponse(m)})
		}
	}
	return parts
}

func imageParts(m types.Message) []genai.Blob {
	var out []genai.Blob
	for _, p := range m.Parts {
		if ip, ok := p.(types.ImagePart); ok && len(ip.Bytes) > 0 {
			out = append(out, genai.Blob{MIMEType: "image/" + string(ip.Format), Data: ip.Bytes})
		}
	}
	return out
}

func toolName(m types.Message) string {
	for _, p := range m.Parts {
		if tr, ok := p.(types.ToolResultPart); ok {
			return tr.ToolCallID
		}
	}
	return m.ToolCallID
}

func toolResponse(m types.Message) map[string]any {
	for _, p := range m.Parts {
		if tr, ok := p.(types.ToolResultPart); ok {
			if m, ok := tr.Content.(map[string]any); ok {
				return m
			}
			return map[string]any{"result": tr.Content}
		}
	}
	return nil
}

func convertTools(tools []types.ToolDefinition) ([]*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema, err := convertSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("gemini: tool %q schema: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// convertSchema translates a JSON-Schema-shaped map (the canonical
// ToolDefinition.InputSchema representation) into a genai.Schema tree. Gemini
// only accepts a subset of JSON Schema (no "$ref", no tuple-typed "items",
// etc.), so the source document is validated as well-formed JSON Schema
// first to fail fast on malformed tool definitions before attempting the
// lossy subset conversion.
func convertSchema(raw any) (*genai.Schema, error) {
	m, err := asMap(raw)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &genai.Schema{Type: genai.TypeObject}, nil
	}
	if err := validateJSONSchema(m); err != nil {
		return nil, fmt.Errorf("not a valid JSON Schema document: %w", err)
	}
	return schemaFromMap(m), nil
}

// validateJSONSchema confirms raw compiles as a JSON Schema document,
// independent of whether Gemini's OpenAPI-subset can represent every
// keyword in it.
func validateJSONSchema(doc map[string]any) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool-schema.json", doc); err != nil {
		return err
	}
	_, err := c.Compile("tool-schema.json")
	return err
}

func asMap(raw any) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func schemaFromMap(m map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: jsonTypeToGenai(m["type"])}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, def := range props {
			if defMap, ok := def.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(defMap)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	return schema
}

func jsonTypeToGenai(t any) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeObject
	}
}

func convertToolChoice(choice types.ToolChoice) (*genai.ToolConfig, error) {
	switch choice.Mode {
	case "", types.ToolChoiceModeAuto:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto}}, nil
	case types.ToolChoiceModeNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingNone}}, nil
	case types.ToolChoiceModeAny:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAny}}, nil
	case types.ToolChoiceModeTool:
		if choice.Name == "" {
			return nil, &types.BadRequest{Reason: "gemini: tool choice mode tool requires a name"}
		}
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{choice.Name},
		}}, nil
	default:
		return nil, fmt.Errorf("gemini: unsupported tool choice mode %q", choice.Mode)
	}
}

func translateResponse(resp *genai.GenerateContentResponse, model string) (*types.UnifiedResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}
	candidate := resp.Candidates[0]
	out := types.Message{Role: types.RoleAssistant}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				out.Parts = append(out.Parts, types.TextPart{Text: string(p)})
			case genai.FunctionCall:
				input, _ := json.Marshal(p.Args)
				out.Parts = append(out.Parts, types.ToolUsePart{Name: types.ToolIdent(p.Name), Input: input})
			}
		}
	}

	var usage types.UsageRecord
	if resp.UsageMetadata != nil {
		usage = types.UsageRecord{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			Model:        model,
			Provider:     types.ProviderGemini,
		}
	}

	return &types.UnifiedResponse{
		Messages:     []types.Message{out},
		Model:        model,
		Usage:        usage,
		FinishReason: translateFinishReason(candidate.FinishReason),
	}, nil
}

func translateFinishReason(r genai.FinishReason) types.FinishReason {
	switch r {
	case genai.FinishReasonStop:
		return types.FinishStop
	case genai.FinishReasonMaxTokens:
		return types.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

// Package bedrock adapts the AWS Bedrock Converse API to provider.Adapter
// using github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/vllora/gateway/provider"
	"github.com/vllora/gateway/types"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter needs, so
// tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Adapter implements provider.Adapter on top of Bedrock Converse.
type Adapter struct {
	runtime RuntimeClient
}

// New wraps an already-constructed Bedrock runtime client.
func New(runtime RuntimeClient) *Adapter {
	return &Adapter{runtime: runtime}
}

// NewFromCredentials builds an Adapter by assuming AWS credentials from
// gateway-resolved static keys, a bearer token, or (when AWS is the zero
// value) the default AWS config provider chain.
func NewFromCredentials(ctx context.Context, creds types.Credentials) (*Adapter, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if creds.AWS.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(creds.AWS.Region))
	}
	switch creds.Kind {
	case types.CredentialsKindAWSStatic:
		optFns = append(optFns, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AWS.AccessKeyID, creds.AWS.SecretAccessKey, creds.AWS.SessionToken,
		)))
	case types.CredentialsKindAWSAPIKey:
		if creds.AWS.BearerToken == "" {
			return nil, &types.CredentialsMissing{Provider: types.Bedrock}
		}
	case types.CredentialsKindNone, "":
		// fall through to default provider chain
	default:
		return nil, &types.CredentialsMissing{Provider: types.Bedrock}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	var clientOpts []func(*bedrockruntime.Options)
	if creds.AWS.BearerToken != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.AddHeaderValue("Authorization", "Bearer "+creds.AWS.BearerToken))
		})
	}
	client := bedrockruntime.NewFromConfig(cfg, clientOpts...)
	return New(client), nil
}

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{Streaming: true, Tools: true, Vision: true, JSONMode: false}
}

func (a *Adapter) Complete(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (*types.UnifiedResponse, error) {
	parts, err := prepareRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := a.runtime.Converse(ctx, buildConverseInput(parts, req))
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(out, parts.sanToCanon)
}

func (a *Adapter) Stream(ctx context.Context, req *types.UnifiedRequest, _ types.Credentials) (types.ChunkStreamer, error) {
	parts, err := prepareRequest(req)
	if err != nil {
		return nil, err
	}
	out, err := a.runtime.ConverseStream(ctx, buildConverseStreamInput(parts, req))
	if err != nil {
		return nil, translateError(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(ctx, stream, parts.sanToCanon), nil
}

func translateError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return provider.ClassifyError(429, apiErr.ErrorMessage(), err)
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return provider.ClassifyError(respErr.HTTPStatusCode(), "", err)
	}
	return provider.ClassifyError(0, "", err)
}

type requestParts struct {
	modelID    string
	messages   []brtypes.Message
	system     []brtypes.SystemContentBlock
	toolConfig *brtypes.ToolConfiguration
	canonToSan map[string]string
	sanToCanon map[string]string
}

func prepareRequest(req *types.UnifiedRequest) (*requestParts, error) {
	if req.Model == "" {
		return nil, &types.BadRequest{Reason: "bedrock: model identifier is required"}
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, err
	}
	messages, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		modelID:    req.Model,
		messages:   messages,
		system:     system,
		toolConfig: toolConfig,
		canonToSan: canonToSan,
		sanToCanon: sanToCanon,
	}, nil
}

func buildConverseInput(p *requestParts, req *types.UnifiedRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{ModelId: aws.String(p.modelID), Messages: p.messages}
	if len(p.system) > 0 {
		input.System = p.system
	}
	if p.toolConfig != nil {
		input.ToolConfig = p.toolConfig
	}
	if cfg := inferenceConfig(req.Params); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func buildConverseStreamInput(p *requestParts, req *types.UnifiedRequest) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{ModelId: aws.String(p.modelID), Messages: p.messages}
	if len(p.system) > 0 {
		input.System = p.system
	}
	if p.toolConfig != nil {
		input.ToolConfig = p.toolConfig
	}
	if cfg := inferenceConfig(req.Params); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input
}

func inferenceConfig(p types.GenerationParams) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if p.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(p.MaxTokens))
	}
	if p.Temperature > 0 {
		cfg.Temperature = aws.Float32(p.Temperature)
	}
	if len(p.StopSequences) > 0 {
		cfg.StopSequences = p.StopSequences
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil && len(cfg.StopSequences) == 0 {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []types.Message, canonToSan map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			}
			continue
		}
		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case types.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case types.ToolUsePart:
				tb := brtypes.ToolUseBlock{Input: toDocument(v.Input)}
				if sanitized, ok := canonToSan[string(v.Name)]; ok {
					tb.Name = aws.String(sanitized)
				} else {
					tb.Name = aws.String(sanitizeToolName(string(v.Name)))
				}
				if v.ID != "" {
					tb.ToolUseId = aws.String(providerSafeID(v.ID))
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case types.ToolResultPart:
				tr := brtypes.ToolResultBlock{ToolUseId: aws.String(providerSafeID(v.ToolCallID))}
				if s, ok := v.Content.(string); ok {
					tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: s}}
				} else {
					tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: toDocument(v.Content)}}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleAssistant
		if m.Role == types.RoleUser || m.Role == types.RoleTool {
			role = brtypes.ConversationRoleUser
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, &types.BadRequest{Reason: "bedrock: at least one user/assistant message is required"}
	}
	return conversation, system, nil
}

func encodeTools(defs []types.ToolDefinition, choice *types.ToolChoice) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		canonToSan[def.Name] = sanitized
		sanToCanon[sanitized] = def.Name
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
		}})
	}
	if len(toolList) == 0 {
		return nil, canonToSan, sanToCanon, nil
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	if choice != nil {
		switch choice.Mode {
		case "", types.ToolChoiceModeAuto:
		case types.ToolChoiceModeAny:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
		case types.ToolChoiceModeTool:
			if choice.Name == "" {
				return nil, nil, nil, &types.BadRequest{Reason: "bedrock: tool choice mode tool requires a name"}
			}
			cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(canonToSan[choice.Name])}}
		}
	}
	return cfg, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a canonical tool name to Bedrock's [a-zA-Z0-9_-]+,
// <=64-char constraint, falling back to a truncated name plus a stable hash
// suffix to preserve uniqueness when truncation would otherwise collide.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		case r == '.':
			out = append(out, '_')
		default:
			out = append(out, '_')
		}
	}
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:8]
	prefixLen := maxLen - 9
	return sanitized[:prefixLen] + "_" + suffix
}

func providerSafeID(id string) string {
	if id == "" || len(id) > 64 {
		return sanitizeToolName(id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return sanitizeToolName(id)
		}
	}
	return id
}

func toDocument(schema any) document.Interface {
	if schema == nil {
		v := map[string]any{"type": "object"}
		return document.NewLazyDocument(&v)
	}
	switch v := schema.(type) {
	case json.RawMessage:
		var decoded any
		if len(v) == 0 {
			decoded = map[string]any{"type": "object"}
		} else if err := json.Unmarshal(v, &decoded); err != nil {
			decoded = map[string]any{"type": "object"}
		}
		return document.NewLazyDocument(&decoded)
	case []byte:
		return toDocument(json.RawMessage(v))
	default:
		return document.NewLazyDocument(&v)
	}
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func translateResponse(out *bedrockruntime.ConverseOutput, sanToCanon map[string]string) (*types.UnifiedResponse, error) {
	if out == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	msg := types.Message{Role: types.RoleAssistant}
	if m, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range m.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value != "" {
					msg.Parts = append(msg.Parts, types.TextPart{Text: v.Value})
				}
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					if canonical, ok := sanToCanon[*v.Value.Name]; ok {
						name = canonical
					} else {
						name = *v.Value.Name
					}
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				msg.Parts = append(msg.Parts, types.ToolUsePart{ID: id, Name: types.ToolIdent(name), Input: decodeDocument(v.Value.Input)})
			}
		}
	}
	resp := &types.UnifiedResponse{Messages: []types.Message{msg}, FinishReason: translateStopReason(string(out.StopReason))}
	if usage := out.Usage; usage != nil {
		resp.Usage = types.UsageRecord{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			Provider:     types.Bedrock,
		}
	}
	return resp, nil
}

func translateStopReason(r string) types.FinishReason {
	switch brtypes.StopReason(r) {
	case brtypes.StopReasonEndTurn, brtypes.StopReasonStopSequence:
		return types.FinishStop
	case brtypes.StopReasonMaxTokens:
		return types.FinishLength
	case brtypes.StopReasonToolUse:
		return types.FinishToolCalls
	case brtypes.StopReasonContentFiltered:
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}

// Package types defines the provider-agnostic request/response/streaming data
// model shared by the router, the interceptor chain, and every provider
// adapter. Messages are modeled as typed parts (text, image, tool call/result)
// rather than flattened strings so adapters can translate structure instead of
// re-parsing it.
package types

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	// RoleSystem is the role for system/developer instructions.
	RoleSystem ConversationRole = "system"

	// RoleUser is the role for end-user input.
	RoleUser ConversationRole = "user"

	// RoleAssistant is the role for model-generated content.
	RoleAssistant ConversationRole = "assistant"

	// RoleTool is the role for tool-result content sent back to the model.
	RoleTool ConversationRole = "tool"
)

type (
	// Part is a marker interface implemented by every message content block.
	// Concrete implementations capture plain text, image bytes, tool-use
	// declarations, and tool results in a strongly typed form so provider
	// adapters can translate structure instead of re-parsing flattened text.
	Part interface {
		isPart()
	}

	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ImageFormat identifies the on-wire encoding of an ImagePart.
	ImageFormat string

	// ImagePart carries image content attached to a message, either as raw
	// bytes or as a provider-fetchable URL. Exactly one of Bytes or URL should
	// be set. No adapter returns UnsupportedCapability for an image form it
	// cannot accept.
	ImagePart struct {
		Format ImageFormat
		Bytes  []byte
		URL    string
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	// Provider adapters emit this when translating a provider's native
	// tool-use block back into the canonical transcript; the Router/Executor
	// never constructs it directly.
	ToolUsePart struct {
		// ID is the provider-issued identifier for this call, correlated by a
		// later ToolResultPart.ToolCallID.
		ID string

		// Name is the tool identifier as requested by the model.
		Name ToolIdent

		// Input is the canonical JSON arguments supplied by the model.
		Input []byte
	}

	// ToolResultPart carries the result of a prior tool call, attached to a
	// tool-role Message so the model can read it on the next turn.
	ToolResultPart struct {
		// ToolCallID correlates this result to the ToolUsePart.ID that
		// requested it. UnifiedRequest validation rejects any ToolResultPart
		// whose ToolCallID does not match a prior assistant ToolUsePart.
		ToolCallID string

		// Content is the result payload, typically a JSON-compatible value or
		// plain string.
		Content any

		// IsError reports whether Content represents a tool-side error.
		IsError bool
	}

	// Message is a single chat message: a role plus ordered content parts.
	Message struct {
		Role ConversationRole
		Parts []Part

		// ToolCallID is set on tool-role messages and must reference a
		// ToolUsePart.ID emitted by a prior assistant message (invariant,
		// spec §3).
		ToolCallID string
	}

	// ToolDefinition describes a tool exposed to the model: its name,
	// description, and JSON Schema input shape.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolChoiceMode controls how the model is permitted to use tools.
	ToolChoiceMode string

	// ToolChoice optionally constrains tool-use behavior for a request.
	ToolChoice struct {
		Mode ToolChoiceMode
		// Name identifies the tool to force when Mode is ToolChoiceModeTool.
		Name string
	}
)

const (
	// ImageFormatPNG identifies a PNG-encoded image.
	ImageFormatPNG ImageFormat = "png"
	// ImageFormatJPEG identifies a JPEG-encoded image.
	ImageFormatJPEG ImageFormat = "jpeg"
	// ImageFormatGIF identifies a GIF-encoded image.
	ImageFormatGIF ImageFormat = "gif"
	// ImageFormatWEBP identifies a WebP-encoded image.
	ImageFormatWEBP ImageFormat = "webp"
)

const (
	// ToolChoiceModeAuto lets the provider decide whether to call tools.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	// ToolChoiceModeNone disables tool use for the request.
	ToolChoiceModeNone ToolChoiceMode = "none"
	// ToolChoiceModeAny forces at least one tool call.
	ToolChoiceModeAny ToolChoiceMode = "any"
	// ToolChoiceModeTool forces the specific tool named in ToolChoice.Name.
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

func (TextPart) isPart()       {}
func (ImagePart) isPart()      {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Text concatenates the TextPart content of a message, ignoring any other
// part kinds. Useful for adapters and middleware that only need a flattened
// view (token estimation, logging summaries).
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolUses returns every ToolUsePart carried by the message, in order.
func (m Message) ToolUses() []ToolUsePart {
	var out []ToolUsePart
	for _, p := range m.Parts {
		if tp, ok := p.(ToolUsePart); ok {
			out = append(out, tp)
		}
	}
	return out
}

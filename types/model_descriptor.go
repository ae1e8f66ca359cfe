package types

// ProviderKind identifies the upstream protocol family a ModelDescriptor
// resolves to.
type ProviderKind string

const (
	ProviderOpenAICompatible ProviderKind = "openai_compatible"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderBedrock          ProviderKind = "bedrock"
	ProviderGemini           ProviderKind = "gemini"
	ProviderVertexAI         ProviderKind = "vertexai"
	// ProviderProxy is parameterized by name; Descriptor.ProxyName holds it.
	ProviderProxy ProviderKind = "proxy"
)

// Capabilities advertises what a resolved model supports. The Router/Executor
// does not consult these before DISPATCH, and it does not return
// UnsupportedCapability for a request the model cannot serve.
type Capabilities struct {
	Streaming bool
	Tools     bool
	Vision    bool
	JSONMode  bool
}

// ModelDescriptor is the resolved, immutable target of a request. It is
// produced once by resolving UnifiedRequest.Model against the (out-of-scope)
// model catalog and never mutated for the lifetime of the attempt.
type ModelDescriptor struct {
	Provider ProviderKind

	// ProxyName identifies the target when Provider is ProviderProxy.
	ProxyName string

	// UpstreamModel is the provider-native model identifier (e.g.
	// "gpt-4o-mini", "claude-sonnet-4-5", "anthropic.claude-3-sonnet").
	UpstreamModel string

	// Endpoint overrides the provider's default base URL when non-empty
	// (custom OpenAI-compatible deployments, self-hosted proxies).
	Endpoint string

	Price        ModelPrice
	Capabilities Capabilities
}

// ModelPrice is implemented by cost.Completion, cost.Embedding, and
// cost.ImageGeneration. It is declared here (rather than imported from
// package cost) to avoid a cost->types->cost import cycle; package cost
// provides the concrete types and the Calculate function that operates on
// them.
type ModelPrice interface {
	isModelPrice()
}

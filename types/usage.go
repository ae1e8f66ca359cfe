package types

// UsageRecord captures per-completion counters. It is immutable once
// emitted: the Stream Normalizer and non-streaming adapters construct exactly
// one UsageRecord per successful call and hand it to the Cost/Limit Engine.
type UsageRecord struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	CachedWriteTokens int
	ImageCount        int

	Model             string
	Provider          ProviderKind
	CredentialsIdent  CredentialsIdent
}

// Add returns the element-wise sum of two usage records, keeping the
// metadata (Model/Provider/CredentialsIdent) of the receiver. Used by the
// Stream Normalizer to fold the usage of each ChunkUsageFinal chunk into the
// running total its Stats reports.
func (u UsageRecord) Add(o UsageRecord) UsageRecord {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CachedInputTokens += o.CachedInputTokens
	u.CachedWriteTokens += o.CachedWriteTokens
	u.ImageCount += o.ImageCount
	return u
}

// Package cost implements the Cost/Limit Engine: pure cost calculation from a
// usage record and a price table, plus Day/Month/Total ceiling enforcement
// with add-then-check semantics (spec §4.5).
package cost

import "github.com/vllora/gateway/types"

type (
	// Completion prices a chat/completion call. All prices are USD per
	// single token.
	Completion struct {
		PerInputToken       float64
		PerCachedInputToken float64
		PerCachedWriteToken float64
		PerOutputToken      float64
	}

	// Embedding prices an embedding call. PerInputToken is USD per token.
	Embedding struct {
		PerInputToken float64
	}

	// ImageGeneration prices an image-generation call either as a flat rate
	// per image or via a (size, quality) lookup table. When Table is
	// non-empty it takes precedence over FlatRate for any (size, quality)
	// pair present in it.
	ImageGeneration struct {
		FlatRate float64
		Table    map[ImageSizeQuality]float64
	}

	// ImageSizeQuality keys the ImageGeneration.Table.
	ImageSizeQuality struct {
		Size    types.ImageSize
		Quality types.ImageQuality
	}
)

func (Completion) isModelPrice()      {}
func (Embedding) isModelPrice()       {}
func (ImageGeneration) isModelPrice() {}

// Calculate computes the USD cost of a usage record against a price table. It
// is a pure function of (usage, price) — no I/O, no shared state — which is
// exactly what lets it be covered by a property test for invariant
// "cost calculation is a pure function" (spec §8).
func Calculate(usage types.UsageRecord, price types.ModelPrice) float64 {
	switch p := price.(type) {
	case Completion:
		return float64(usage.InputTokens)*p.PerInputToken +
			float64(usage.CachedInputTokens)*p.PerCachedInputToken +
			float64(usage.CachedWriteTokens)*p.PerCachedWriteToken +
			float64(usage.OutputTokens)*p.PerOutputToken
	case Embedding:
		return float64(usage.InputTokens) * p.PerInputToken
	case ImageGeneration:
		return calculateImageCost(usage, p)
	default:
		return 0
	}
}

func calculateImageCost(usage types.UsageRecord, p ImageGeneration) float64 {
	// The price table is keyed by (size, quality), neither of which survives
	// into UsageRecord today; callers that need table-based pricing look up
	// the per-image rate themselves via PriceForSizeQuality and pass it as a
	// flat ImageGeneration{FlatRate: ...} before calling Calculate. This keeps
	// Calculate a pure function of its two arguments.
	return float64(usage.ImageCount) * p.FlatRate
}

// PriceForSizeQuality resolves the per-image rate for a (size, quality) pair,
// falling back to FlatRate when the table has no entry.
func (p ImageGeneration) PriceForSizeQuality(size types.ImageSize, quality types.ImageQuality) float64 {
	if p.Table != nil {
		if rate, ok := p.Table[ImageSizeQuality{Size: size, Quality: quality}]; ok {
			return rate
		}
	}
	return p.FlatRate
}

package cost

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/vllora/gateway/types"
)

func TestCalculate_Completion(t *testing.T) {
	usage := types.UsageRecord{InputTokens: 1000, OutputTokens: 500, CachedInputTokens: 200}
	price := Completion{PerInputToken: 0.000003, PerCachedInputToken: 0.0000015, PerOutputToken: 0.000015}

	got := Calculate(usage, price)

	require.InDelta(t, 1000*0.000003+200*0.0000015+500*0.000015, got, 1e-12)
}

func TestCalculate_ImageGeneration_TablePrecedence(t *testing.T) {
	const (
		size1024   types.ImageSize    = "1024x1024"
		size512    types.ImageSize    = "512x512"
		qualityHD  types.ImageQuality = "hd"
		qualityStd types.ImageQuality = "standard"
	)
	price := ImageGeneration{
		FlatRate: 0.04,
		Table:    map[ImageSizeQuality]float64{{Size: size1024, Quality: qualityHD}: 0.08},
	}

	require.Equal(t, 0.08, price.PriceForSizeQuality(size1024, qualityHD))
	require.Equal(t, 0.04, price.PriceForSizeQuality(size512, qualityStd))
}

// TestCalculate_IsPureProperty verifies Calculate is a pure function of its
// two arguments: calling it twice with equal inputs always yields an equal
// result, and it never depends on call order or shared state (spec §8,
// "Cost calculation is a pure function").
func TestCalculate_IsPureProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Calculate(usage, price) is deterministic and side-effect free", prop.ForAll(
		func(input, cached, output int, perInput, perCached, perOutput float64) bool {
			usage := types.UsageRecord{
				InputTokens:       abs(input),
				OutputTokens:      abs(output),
				CachedInputTokens: abs(cached),
			}
			price := Completion{PerInputToken: perInput, PerCachedInputToken: perCached, PerOutputToken: perOutput}

			a := Calculate(usage, price)
			b := Calculate(usage, price)
			return a == b
		},
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package engine

import (
	"math"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/trust"
)

// decayUnit is the time over which a field loses one full decay-rate step,
// roughly thirty days.
const decayUnit = 2_592_000_000 * time.Millisecond

// Normalize maps a raw field value into [0,1] according to its spec.
// Numeric fields are linearly rescaled over [MinValue, MaxValue]; boolean
// fields threshold at 0.5. Categorical, time-series, and compound fields
// pass through unchanged: their normalization is an open extension point,
// and silently mis-normalizing them would be worse than passing them on.
func Normalize(raw float64, spec trust.FieldSpec) float64 {
	switch spec.FieldType {
	case trust.FieldNumeric:
		span := spec.MaxValue - spec.MinValue
		if span <= 0 {
			return trust.Clamp01(raw)
		}
		return trust.Clamp01((raw - spec.MinValue) / span)
	case trust.FieldBoolean:
		if raw > 0.5 {
			return 1.0
		}
		return 0.0
	default:
		return raw
	}
}

// ApplyDecay attenuates a normalized value by the field's decay rate and the
// time elapsed since the value was recorded: v * (1-rate)^(elapsed/30d).
// Fields without a decay rate pass through unchanged.
func ApplyDecay(v float64, spec trust.FieldSpec, elapsed time.Duration) float64 {
	if spec.DecayRate <= 0 || elapsed <= 0 {
		return v
	}
	periods := float64(elapsed) / float64(decayUnit)
	return v * math.Pow(1-spec.DecayRate, periods)
}

package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCoreMetrics(t *testing.T) {
	m := DefaultCoreMetrics("zpc1qnewcomer")

	assert.Equal(t, "zpc1qnewcomer", m.Address)
	assert.Equal(t, 0, m.KYCLevel)
	assert.Equal(t, int64(0), m.SecondsOnNetwork)
	assert.False(t, m.LastUpdated.IsZero())

	// All nine behavioural rates start neutral, so the base score is 0.5
	// with no bonuses on top.
	assert.InDelta(t, 0.5, m.CoreScore, 1e-9)
	assert.Equal(t, m.Score(), m.CoreScore)
}

func TestCoreMetricsScore(t *testing.T) {
	perfect := CoreMetrics{
		TxSuccessRate:           1,
		ValidatorUptime:         1,
		NetworkParticipation:    1,
		StakeConsistency:        1,
		DelegationQuality:       1,
		FraudPrevention:         1,
		SecurityCompliance:      1,
		GovernanceParticipation: 1,
		CommunityVoting:         1,
	}
	assert.InDelta(t, 1.0, perfect.Score(), 1e-9)

	// Bonuses push past the base but the total is capped at 1.
	perfect.KYCLevel = MaxKYCLevel
	perfect.SecondsOnNetwork = SecondsPerYear
	perfect.EnvironmentalScore = 1
	assert.Equal(t, 1.0, perfect.Score())

	weights := WeightTxSuccess + WeightValidatorUptime + WeightNetworkParticipation +
		WeightStakeConsistency + WeightDelegationQuality + WeightFraudPrevention +
		WeightSecurityCompliance + WeightGovernanceParticipation + WeightCommunityVoting
	require.InDelta(t, 1.0, weights, 1e-9, "core weights must sum to 1")
}

func TestCoreMetricsScore_Bonuses(t *testing.T) {
	var m CoreMetrics

	// Tenure bonus grows linearly and saturates at the cap.
	m.SecondsOnNetwork = SecondsPerYear / 2
	assert.InDelta(t, 0.05, m.Score(), 1e-9)
	m.SecondsOnNetwork = SecondsPerYear * 10
	assert.InDelta(t, TimeBonusCap, m.Score(), 1e-9)

	m.SecondsOnNetwork = 0
	m.EnvironmentalScore = 1
	assert.InDelta(t, EnvironmentalBonus, m.Score(), 1e-9)

	m.EnvironmentalScore = 0
	m.KYCLevel = 3
	assert.InDelta(t, 3.0/MaxKYCLevel*KYCBonusCap, m.Score(), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.3))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.42, Clamp01(0.42))
}

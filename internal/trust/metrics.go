// Package trust defines the domain model for the trust engine: core
// per-address metrics, application-defined custom fields, composite scores,
// and trust delegations.
package trust

import (
	"math"
	"time"
)

// Weights for the core trust score. The weighted base sums to 1.0; the time,
// environmental, and KYC bonuses are additive on top and the total is capped
// at 1.0.
const (
	WeightTxSuccess               = 0.15
	WeightValidatorUptime         = 0.15
	WeightNetworkParticipation    = 0.12
	WeightStakeConsistency        = 0.10
	WeightDelegationQuality       = 0.08
	WeightFraudPrevention         = 0.15
	WeightSecurityCompliance      = 0.10
	WeightGovernanceParticipation = 0.08
	WeightCommunityVoting         = 0.07

	// TimeBonusCap bounds the additive tenure bonus.
	TimeBonusCap         = 0.10
	SecondsPerYear       = 31_536_000
	EnvironmentalBonus   = 0.05
	KYCBonusCap          = 0.10
	MaxKYCLevel          = 5
)

// CoreMetrics holds the canonical platform-wide reputation inputs for one
// address. CoreScore is always derived from the other fields via Score();
// it is never independently mutable truth.
type CoreMetrics struct {
	Address                 string    `json:"address"`
	TxSuccessRate           float64   `json:"tx_success_rate"`
	ValidatorUptime         float64   `json:"validator_uptime"`
	NetworkParticipation    float64   `json:"network_participation"`
	StakeConsistency        float64   `json:"stake_consistency"`
	DelegationQuality       float64   `json:"delegation_quality"`
	FraudPrevention         float64   `json:"fraud_prevention"`
	SecurityCompliance      float64   `json:"security_compliance"`
	GovernanceParticipation float64   `json:"governance_participation"`
	CommunityVoting         float64   `json:"community_voting"`
	KYCLevel                int       `json:"kyc_level"`
	SecondsOnNetwork        int64     `json:"seconds_on_network"`
	EnvironmentalScore      float64   `json:"environmental_score"`
	CoreScore               float64   `json:"core_score"`
	LastUpdated             time.Time `json:"last_updated"`
}

// DefaultCoreMetrics returns the metrics assigned to an address the first
// time it is seen: neutral 0.5 behavioural rates, no KYC, no history.
func DefaultCoreMetrics(address string) CoreMetrics {
	m := CoreMetrics{
		Address:                 address,
		TxSuccessRate:           0.5,
		ValidatorUptime:         0.5,
		NetworkParticipation:    0.5,
		StakeConsistency:        0.5,
		DelegationQuality:       0.5,
		FraudPrevention:         0.5,
		SecurityCompliance:      0.5,
		GovernanceParticipation: 0.5,
		CommunityVoting:         0.5,
		KYCLevel:                0,
		SecondsOnNetwork:        0,
		EnvironmentalScore:      0,
		LastUpdated:             time.Now().UTC(),
	}
	m.CoreScore = m.Score()
	return m
}

// Score derives the core trust score from the sub-metrics. The result is
// always within [0,1].
func (m CoreMetrics) Score() float64 {
	base := WeightTxSuccess*m.TxSuccessRate +
		WeightValidatorUptime*m.ValidatorUptime +
		WeightNetworkParticipation*m.NetworkParticipation +
		WeightStakeConsistency*m.StakeConsistency +
		WeightDelegationQuality*m.DelegationQuality +
		WeightFraudPrevention*m.FraudPrevention +
		WeightSecurityCompliance*m.SecurityCompliance +
		WeightGovernanceParticipation*m.GovernanceParticipation +
		WeightCommunityVoting*m.CommunityVoting

	timeBonus := math.Min(float64(m.SecondsOnNetwork)/SecondsPerYear, TimeBonusCap)
	envBonus := m.EnvironmentalScore * EnvironmentalBonus
	kycBonus := float64(m.KYCLevel) / MaxKYCLevel * KYCBonusCap

	return Clamp01(base + timeBonus + envBonus + kycBonus)
}

// Clamp01 bounds v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

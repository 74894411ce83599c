// Package engine implements the trust scoring pipeline: the core metrics
// calculator, the custom metrics registry, the per-field resolver, the
// normalizer, and the score aggregator.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/metrics"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// coreTTL bounds how long core metrics are served from cache.
const coreTTL = 300 * time.Second

// CoreService loads, derives, and mutates the canonical per-address metrics.
type CoreService struct {
	store  storage.CoreMetricsStore
	loader *cache.Loader
	log    *logger.Logger
	ttl    time.Duration
}

// NewCore constructs the core metrics calculator.
func NewCore(store storage.CoreMetricsStore, loader *cache.Loader, log *logger.Logger) *CoreService {
	if log == nil {
		log = logger.NewDefault("trust-core")
	}
	return &CoreService{
		store:  store,
		loader: loader,
		ttl:    coreTTL,
		log:    log,
	}
}

func coreKey(address string) string { return "core:" + address }

// Metrics returns the core metrics for an address, creating documented
// defaults on first access. The derived score is recomputed on every load so
// it can never drift from its inputs. A store failure is returned to the
// caller: the core score gates financial decisions and must not silently
// default.
func (s *CoreService) Metrics(ctx context.Context, address string) (trust.CoreMetrics, error) {
	computed := false
	data, err := s.loader.GetOrCompute(ctx, coreKey(address), s.ttl, func(ctx context.Context) ([]byte, error) {
		computed = true
		m, err := s.load(ctx, address)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	})
	metrics.ObserveCacheLookup("core", !computed)
	if err != nil {
		return trust.CoreMetrics{}, err
	}

	var m trust.CoreMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt cache entry falls back to a direct load.
		s.log.WithError(err).WithField("address", address).Warn("corrupt core metrics cache entry")
		s.loader.Invalidate(ctx, coreKey(address))
		return s.load(ctx, address)
	}
	return m, nil
}

// Score returns just the derived core trust score for an address.
func (s *CoreService) Score(ctx context.Context, address string) (float64, error) {
	m, err := s.Metrics(ctx, address)
	if err != nil {
		return 0, err
	}
	return m.CoreScore, nil
}

func (s *CoreService) load(ctx context.Context, address string) (trust.CoreMetrics, error) {
	m, err := s.store.GetCoreMetrics(ctx, address)
	switch {
	case err == nil:
	case errors.Is(err, trust.ErrNotFound):
		m = trust.DefaultCoreMetrics(address)
		if m, err = s.store.UpsertCoreMetrics(ctx, m); err != nil {
			return trust.CoreMetrics{}, fmt.Errorf("create default core metrics: %w (%v)", trust.ErrStoreUnavailable, err)
		}
		s.log.WithField("address", address).Info("core metrics created with defaults")
	default:
		return trust.CoreMetrics{}, fmt.Errorf("load core metrics: %w (%v)", trust.ErrStoreUnavailable, err)
	}

	m.CoreScore = m.Score()
	return m, nil
}

// MetricsPatch holds explicit mutations to core sub-metrics. Nil fields are
// left unchanged.
type MetricsPatch struct {
	TxSuccessRate           *float64 `json:"tx_success_rate,omitempty"`
	ValidatorUptime         *float64 `json:"validator_uptime,omitempty"`
	NetworkParticipation    *float64 `json:"network_participation,omitempty"`
	StakeConsistency        *float64 `json:"stake_consistency,omitempty"`
	DelegationQuality       *float64 `json:"delegation_quality,omitempty"`
	FraudPrevention         *float64 `json:"fraud_prevention,omitempty"`
	SecurityCompliance      *float64 `json:"security_compliance,omitempty"`
	GovernanceParticipation *float64 `json:"governance_participation,omitempty"`
	CommunityVoting         *float64 `json:"community_voting,omitempty"`
	KYCLevel                *int     `json:"kyc_level,omitempty"`
	SecondsOnNetwork        *int64   `json:"seconds_on_network,omitempty"`
	EnvironmentalScore      *float64 `json:"environmental_score,omitempty"`
}

// UpdateMetrics applies a patch, recomputes the derived score, persists, and
// invalidates only this address's cache entry.
func (s *CoreService) UpdateMetrics(ctx context.Context, address string, patch MetricsPatch) (trust.CoreMetrics, error) {
	m, err := s.Metrics(ctx, address)
	if err != nil {
		return trust.CoreMetrics{}, err
	}

	if err := applyPatch(&m, patch); err != nil {
		return trust.CoreMetrics{}, err
	}
	m.CoreScore = m.Score()

	m, err = s.store.UpsertCoreMetrics(ctx, m)
	if err != nil {
		return trust.CoreMetrics{}, fmt.Errorf("persist core metrics: %w (%v)", trust.ErrStoreUnavailable, err)
	}

	s.loader.Invalidate(ctx, coreKey(address))
	s.log.WithField("address", address).
		WithField("core_score", m.CoreScore).
		Info("core metrics updated")
	return m, nil
}

func applyPatch(m *trust.CoreMetrics, patch MetricsPatch) error {
	set := func(dst *float64, src *float64, name string) error {
		if src == nil {
			return nil
		}
		if *src < 0 || *src > 1 {
			return &trust.ValidationError{Field: name, Reason: "must be in [0,1]"}
		}
		*dst = *src
		return nil
	}

	for _, f := range []struct {
		dst  *float64
		src  *float64
		name string
	}{
		{&m.TxSuccessRate, patch.TxSuccessRate, "tx_success_rate"},
		{&m.ValidatorUptime, patch.ValidatorUptime, "validator_uptime"},
		{&m.NetworkParticipation, patch.NetworkParticipation, "network_participation"},
		{&m.StakeConsistency, patch.StakeConsistency, "stake_consistency"},
		{&m.DelegationQuality, patch.DelegationQuality, "delegation_quality"},
		{&m.FraudPrevention, patch.FraudPrevention, "fraud_prevention"},
		{&m.SecurityCompliance, patch.SecurityCompliance, "security_compliance"},
		{&m.GovernanceParticipation, patch.GovernanceParticipation, "governance_participation"},
		{&m.CommunityVoting, patch.CommunityVoting, "community_voting"},
		{&m.EnvironmentalScore, patch.EnvironmentalScore, "environmental_score"},
	} {
		if err := set(f.dst, f.src, f.name); err != nil {
			return err
		}
	}

	if patch.KYCLevel != nil {
		if *patch.KYCLevel < 0 || *patch.KYCLevel > trust.MaxKYCLevel {
			return &trust.ValidationError{Field: "kyc_level", Reason: "must be between 0 and 5"}
		}
		m.KYCLevel = *patch.KYCLevel
	}
	if patch.SecondsOnNetwork != nil {
		if *patch.SecondsOnNetwork < 0 {
			return &trust.ValidationError{Field: "seconds_on_network", Reason: "must be non-negative"}
		}
		m.SecondsOnNetwork = *patch.SecondsOnNetwork
	}
	return nil
}

// Package ledger manages externally-visible base trust scores on the 0-100
// scale used by wallet and governance callers. Scores are stored on the
// engine's canonical [0,1] scale; conversion happens only at this boundary.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// FreshnessWindow bounds how old the latest environmental submission may be
// for a score update to be accepted.
const FreshnessWindow = 5 * time.Minute

// FromPercent converts a 0-100 boundary score to the canonical [0,1] scale.
func FromPercent(v float64) float64 {
	return v / 100
}

// ToPercent converts a canonical [0,1] score to the 0-100 boundary scale.
func ToPercent(v float64) float64 {
	return v * 100
}

// Service owns base-score initialization and updates, gated by the
// environmental-data freshness policy.
type Service struct {
	store storage.LedgerStore
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates a ledger service over the given store.
func NewService(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trust-ledger")
	}
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Initialize records the first base score for an address on the 0-100 scale.
// It is idempotent: if the address already has a base score, the stored score
// is returned unchanged.
func (s *Service) Initialize(ctx context.Context, address string, score float64) (float64, error) {
	if err := validatePercent(score); err != nil {
		return 0, err
	}
	if address == "" {
		return 0, &trust.ValidationError{Field: "address", Reason: "required"}
	}

	if existing, err := s.store.GetBaseScore(ctx, address); err == nil {
		return ToPercent(existing), nil
	}

	if err := s.store.SetBaseScore(ctx, address, FromPercent(score), s.now().UTC()); err != nil {
		return 0, fmt.Errorf("initialize base score: %w", err)
	}

	s.log.WithField("address", address).
		WithField("score", score).
		Info("base score initialized")
	return score, nil
}

// Score returns the address's base score on the 0-100 scale.
func (s *Service) Score(ctx context.Context, address string) (float64, error) {
	score, err := s.store.GetBaseScore(ctx, address)
	if err != nil {
		return 0, err
	}
	return ToPercent(score), nil
}

// SubmitEnvironmentalData records a renewable-energy attestation for an
// address, opening the freshness window for subsequent score updates.
func (s *Service) SubmitEnvironmentalData(ctx context.Context, address string, renewableRatio float64) error {
	if address == "" {
		return &trust.ValidationError{Field: "address", Reason: "required"}
	}
	if renewableRatio < 0 || renewableRatio > 1 {
		return &trust.ValidationError{Field: "renewable_ratio", Reason: "must be in [0,1]"}
	}

	sub := trust.EnvironmentalSubmission{
		Address:        address,
		RenewableRatio: renewableRatio,
		SubmittedAt:    s.now().UTC(),
	}
	if err := s.store.RecordEnvironmentalSubmission(ctx, sub); err != nil {
		return fmt.Errorf("record environmental submission: %w", err)
	}

	s.log.WithField("address", address).
		WithField("renewable_ratio", renewableRatio).
		Info("environmental data submitted")
	return nil
}

// UpdateScore sets a new base score on the 0-100 scale. The update is only
// accepted while the address's latest environmental submission is within
// FreshnessWindow; a missing or stale submission is a policy violation and
// leaves the stored score untouched.
func (s *Service) UpdateScore(ctx context.Context, address string, score float64) error {
	if err := validatePercent(score); err != nil {
		return err
	}

	sub, err := s.store.LatestEnvironmentalSubmission(ctx, address)
	if err != nil {
		return &trust.PolicyError{
			Code:   trust.PolicyStaleEnvironment,
			Reason: "no environmental data on record",
		}
	}
	if age := s.now().Sub(sub.SubmittedAt); age > FreshnessWindow {
		return &trust.PolicyError{
			Code:   trust.PolicyStaleEnvironment,
			Reason: fmt.Sprintf("environmental data too old: submitted %s ago", age.Truncate(time.Second)),
		}
	}

	if err := s.store.SetBaseScore(ctx, address, FromPercent(score), s.now().UTC()); err != nil {
		return fmt.Errorf("update base score: %w", err)
	}

	s.log.WithField("address", address).
		WithField("score", score).
		Info("base score updated")
	return nil
}

func validatePercent(v float64) error {
	if v < 0 || v > 100 {
		return &trust.ValidationError{Field: "score", Reason: "must be in [0,100]"}
	}
	return nil
}

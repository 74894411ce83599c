// Package delegation manages the trust delegation graph: directed, weighted
// edges between addresses with policy checks on creation and weighted
// propagation into an effective trust score.
package delegation

import (
	"context"
	"errors"
	"fmt"

	"github.com/zippycoin-network/trust_engine/internal/ledger"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// WeightFactor scales each incoming delegation's contribution to the
// delegate's effective trust.
const WeightFactor = 0.1

// DefaultMinDelegatorScore is the 0-100 scale threshold a delegator must meet
// to create new delegations.
const DefaultMinDelegatorScore = 80.0

// ScoreSource provides the 0-100 scale base score used for the delegator
// threshold check and for effective-trust propagation.
type ScoreSource interface {
	Score(ctx context.Context, address string) (float64, error)
}

// Service validates and stores delegation edges and computes effective trust.
type Service struct {
	store  storage.DelegationStore
	scores ScoreSource
	log    *logger.Logger

	// MinDelegatorScore is on the 0-100 boundary scale.
	MinDelegatorScore float64
}

// NewService creates a delegation service. scores is typically the ledger
// service.
func NewService(store storage.DelegationStore, scores ScoreSource, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trust-delegation")
	}
	return &Service{
		store:             store,
		scores:            scores,
		log:               log,
		MinDelegatorScore: DefaultMinDelegatorScore,
	}
}

// Delegate creates an active edge from delegator to delegate. It rejects
// self-delegation, delegators below MinDelegatorScore, and edges that would
// close a direct cycle. Longer cycles (A→B→C→A) are not detected; propagation
// depth is bounded by MaxDepth instead.
func (s *Service) Delegate(ctx context.Context, delegator, delegate string, amount float64) (trust.Delegation, error) {
	if delegator == "" || delegate == "" {
		return trust.Delegation{}, &trust.ValidationError{Field: "address", Reason: "delegator and delegate are required"}
	}
	if amount <= 0 || amount > 1 {
		return trust.Delegation{}, &trust.ValidationError{Field: "amount", Reason: "must be in (0,1]"}
	}
	if delegator == delegate {
		return trust.Delegation{}, &trust.PolicyError{
			Code:   trust.PolicySelfDelegation,
			Reason: "an address cannot delegate trust to itself",
		}
	}

	score, err := s.scores.Score(ctx, delegator)
	if err != nil {
		if errors.Is(err, trust.ErrNotFound) {
			score = 0
		} else {
			return trust.Delegation{}, fmt.Errorf("delegator score: %w", err)
		}
	}
	if score < s.MinDelegatorScore {
		return trust.Delegation{}, &trust.PolicyError{
			Code:   trust.PolicyLowTrust,
			Reason: fmt.Sprintf("delegator score %.1f is below the minimum %.1f", score, s.MinDelegatorScore),
		}
	}

	reverse, err := s.store.ListActiveDelegationsFrom(ctx, delegate)
	if err != nil {
		return trust.Delegation{}, fmt.Errorf("cycle check: %w", err)
	}
	for _, d := range reverse {
		if d.Delegate == delegator {
			return trust.Delegation{}, &trust.PolicyError{
				Code:   trust.PolicyDirectCycle,
				Reason: fmt.Sprintf("%s already delegates to %s", delegate, delegator),
			}
		}
	}

	stored, err := s.store.CreateDelegation(ctx, trust.Delegation{
		Delegator: delegator,
		Delegate:  delegate,
		Amount:    amount,
		MaxDepth:  trust.DefaultMaxDepth,
		Active:    true,
	})
	if err != nil {
		return trust.Delegation{}, fmt.Errorf("create delegation: %w", err)
	}

	s.log.WithField("delegator", delegator).
		WithField("delegate", delegate).
		WithField("amount", amount).
		Info("delegation created")
	return stored, nil
}

// Remove deactivates a delegation by id. A missing or already-inactive edge
// reports ErrNotFound. Downstream scores are not touched; they recompute on
// the next query.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.DeactivateDelegation(ctx, id); err != nil {
		return err
	}
	s.log.WithField("delegation_id", id).Info("delegation removed")
	return nil
}

// ListByAddress returns every edge where address is the delegator or the
// delegate, including inactive ones.
func (s *Service) ListByAddress(ctx context.Context, address string) ([]trust.Delegation, error) {
	return s.store.ListDelegationsByAddress(ctx, address)
}

// EffectiveTrust returns the address's base score plus the weighted
// contribution of every active delegation into it, on the canonical [0,1]
// scale. Each incoming edge adds delegatorScore · amount · WeightFactor.
// Delegators with no score contribute nothing.
func (s *Service) EffectiveTrust(ctx context.Context, address string) (float64, error) {
	base, err := s.scores.Score(ctx, address)
	if err != nil {
		if !errors.Is(err, trust.ErrNotFound) {
			return 0, fmt.Errorf("base score: %w", err)
		}
		base = 0
	}
	total := ledger.FromPercent(base)

	incoming, err := s.store.ListActiveDelegationsTo(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("incoming delegations: %w", err)
	}
	for _, d := range incoming {
		delegatorScore, err := s.scores.Score(ctx, d.Delegator)
		if err != nil {
			continue
		}
		total += ledger.FromPercent(delegatorScore) * d.Amount * WeightFactor
	}
	return trust.Clamp01(total), nil
}

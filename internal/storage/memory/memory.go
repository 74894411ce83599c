// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
)

// Store keeps every record in process memory behind one RWMutex.
type Store struct {
	mu            sync.RWMutex
	coreMetrics   map[string]trust.CoreMetrics
	configs       map[string]trust.MetricsConfig
	fieldValues   map[string]trust.FieldValue
	composites    map[string]trust.CompositeScore
	delegations   map[string]trust.Delegation
	baseScores    map[string]float64
	envSubmission map[string]trust.EnvironmentalSubmission
}

var _ storage.CoreMetricsStore = (*Store)(nil)
var _ storage.ConfigStore = (*Store)(nil)
var _ storage.FieldValueStore = (*Store)(nil)
var _ storage.CompositeStore = (*Store)(nil)
var _ storage.DelegationStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		coreMetrics:   make(map[string]trust.CoreMetrics),
		configs:       make(map[string]trust.MetricsConfig),
		fieldValues:   make(map[string]trust.FieldValue),
		composites:    make(map[string]trust.CompositeScore),
		delegations:   make(map[string]trust.Delegation),
		baseScores:    make(map[string]float64),
		envSubmission: make(map[string]trust.EnvironmentalSubmission),
	}
}

func fieldKey(address, appID, fieldName string) string {
	return address + "|" + appID + "|" + fieldName
}

func compositeKey(address, appID string) string {
	return address + "|" + appID
}

// --- CoreMetricsStore ---------------------------------------------------------

func (s *Store) GetCoreMetrics(_ context.Context, address string) (trust.CoreMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.coreMetrics[address]
	if !ok {
		return trust.CoreMetrics{}, fmt.Errorf("core metrics for %s: %w", address, trust.ErrNotFound)
	}
	return m, nil
}

func (s *Store) UpsertCoreMetrics(_ context.Context, m trust.CoreMetrics) (trust.CoreMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.LastUpdated = time.Now().UTC()
	s.coreMetrics[m.Address] = m
	return m, nil
}

// --- ConfigStore --------------------------------------------------------------

func (s *Store) UpsertConfig(_ context.Context, cfg trust.MetricsConfig) (trust.MetricsConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.configs[cfg.AppID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	cfg.Fields = cloneFields(cfg.Fields)

	s.configs[cfg.AppID] = cfg
	return cfg, nil
}

func (s *Store) GetConfig(_ context.Context, appID string) (trust.MetricsConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[appID]
	if !ok {
		return trust.MetricsConfig{}, fmt.Errorf("config for app %s: %w", appID, trust.ErrNotFound)
	}
	cfg.Fields = cloneFields(cfg.Fields)
	return cfg, nil
}

func (s *Store) ListConfigs(_ context.Context) ([]trust.MetricsConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]trust.MetricsConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		cfg.Fields = cloneFields(cfg.Fields)
		result = append(result, cfg)
	}
	return result, nil
}

// --- FieldValueStore ----------------------------------------------------------

func (s *Store) UpsertFieldValue(_ context.Context, v trust.FieldValue) (trust.FieldValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	s.fieldValues[fieldKey(v.Address, v.AppID, v.FieldName)] = v
	return v, nil
}

func (s *Store) GetFieldValue(_ context.Context, address, appID, fieldName string) (trust.FieldValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.fieldValues[fieldKey(address, appID, fieldName)]
	if !ok {
		return trust.FieldValue{}, fmt.Errorf("field %s for %s/%s: %w", fieldName, address, appID, trust.ErrNotFound)
	}
	return v, nil
}

// --- CompositeStore -----------------------------------------------------------

func (s *Store) UpsertCompositeScore(_ context.Context, score trust.CompositeScore) (trust.CompositeScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := compositeKey(score.Address, score.AppID)
	if existing, ok := s.composites[key]; ok {
		score.ID = existing.ID
	} else if score.ID == "" {
		score.ID = uuid.NewString()
	}
	score.Components = cloneComponents(score.Components)

	s.composites[key] = score
	return score, nil
}

func (s *Store) GetCompositeScore(_ context.Context, address, appID string) (trust.CompositeScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.composites[compositeKey(address, appID)]
	if !ok {
		return trust.CompositeScore{}, fmt.Errorf("composite score for %s/%s: %w", address, appID, trust.ErrNotFound)
	}
	score.Components = cloneComponents(score.Components)
	return score, nil
}

// --- DelegationStore ----------------------------------------------------------

func (s *Store) CreateDelegation(_ context.Context, d trust.Delegation) (trust.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.delegations[d.ID] = d
	return d, nil
}

func (s *Store) GetDelegation(_ context.Context, id string) (trust.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.delegations[id]
	if !ok {
		return trust.Delegation{}, fmt.Errorf("delegation %s: %w", id, trust.ErrNotFound)
	}
	return d, nil
}

func (s *Store) DeactivateDelegation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.delegations[id]
	if !ok || !d.Active {
		return fmt.Errorf("delegation %s: %w", id, trust.ErrNotFound)
	}
	d.Active = false
	s.delegations[id] = d
	return nil
}

func (s *Store) ListDelegationsByAddress(_ context.Context, address string) ([]trust.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trust.Delegation
	for _, d := range s.delegations {
		if d.Delegator == address || d.Delegate == address {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) ListActiveDelegationsTo(_ context.Context, delegate string) ([]trust.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trust.Delegation
	for _, d := range s.delegations {
		if d.Active && d.Delegate == delegate {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) ListActiveDelegationsFrom(_ context.Context, delegator string) ([]trust.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []trust.Delegation
	for _, d := range s.delegations {
		if d.Active && d.Delegator == delegator {
			result = append(result, d)
		}
	}
	return result, nil
}

// --- LedgerStore --------------------------------------------------------------

func (s *Store) GetBaseScore(_ context.Context, address string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.baseScores[address]
	if !ok {
		return 0, fmt.Errorf("base score for %s: %w", address, trust.ErrNotFound)
	}
	return score, nil
}

func (s *Store) SetBaseScore(_ context.Context, address string, score float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseScores[address] = score
	return nil
}

func (s *Store) RecordEnvironmentalSubmission(_ context.Context, sub trust.EnvironmentalSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envSubmission[sub.Address] = sub
	return nil
}

func (s *Store) LatestEnvironmentalSubmission(_ context.Context, address string) (trust.EnvironmentalSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.envSubmission[address]
	if !ok {
		return trust.EnvironmentalSubmission{}, fmt.Errorf("environmental data for %s: %w", address, trust.ErrNotFound)
	}
	return sub, nil
}

func cloneFields(in map[string]trust.FieldSpec) map[string]trust.FieldSpec {
	if in == nil {
		return nil
	}
	out := make(map[string]trust.FieldSpec, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneComponents(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

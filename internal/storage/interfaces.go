// Package storage defines the persistence interfaces consumed by the trust
// engine. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/trust"
)

// CoreMetricsStore persists canonical per-address metrics.
type CoreMetricsStore interface {
	GetCoreMetrics(ctx context.Context, address string) (trust.CoreMetrics, error)
	UpsertCoreMetrics(ctx context.Context, m trust.CoreMetrics) (trust.CoreMetrics, error)
}

// ConfigStore persists custom-metrics configurations, one per app. It is the
// source of truth behind the registry's in-memory index.
type ConfigStore interface {
	UpsertConfig(ctx context.Context, cfg trust.MetricsConfig) (trust.MetricsConfig, error)
	GetConfig(ctx context.Context, appID string) (trust.MetricsConfig, error)
	ListConfigs(ctx context.Context) ([]trust.MetricsConfig, error)
}

// FieldValueStore persists user-supplied field values. UpsertFieldValue must
// be atomic per (address, app, field) key so concurrent writers cannot lose
// updates.
type FieldValueStore interface {
	UpsertFieldValue(ctx context.Context, v trust.FieldValue) (trust.FieldValue, error)
	GetFieldValue(ctx context.Context, address, appID, fieldName string) (trust.FieldValue, error)
}

// CompositeStore persists composite score audit rows, insert-or-update on
// (address, app).
type CompositeStore interface {
	UpsertCompositeScore(ctx context.Context, s trust.CompositeScore) (trust.CompositeScore, error)
	GetCompositeScore(ctx context.Context, address, appID string) (trust.CompositeScore, error)
}

// DelegationStore persists trust delegation edges.
type DelegationStore interface {
	CreateDelegation(ctx context.Context, d trust.Delegation) (trust.Delegation, error)
	GetDelegation(ctx context.Context, id string) (trust.Delegation, error)
	DeactivateDelegation(ctx context.Context, id string) error
	ListDelegationsByAddress(ctx context.Context, address string) ([]trust.Delegation, error)
	ListActiveDelegationsTo(ctx context.Context, delegate string) ([]trust.Delegation, error)
	ListActiveDelegationsFrom(ctx context.Context, delegator string) ([]trust.Delegation, error)
}

// LedgerStore persists base scores (canonical [0,1]) and environmental
// submissions for the score ledger.
type LedgerStore interface {
	GetBaseScore(ctx context.Context, address string) (float64, error)
	SetBaseScore(ctx context.Context, address string, score float64, updatedAt time.Time) error
	RecordEnvironmentalSubmission(ctx context.Context, s trust.EnvironmentalSubmission) error
	LatestEnvironmentalSubmission(ctx context.Context, address string) (trust.EnvironmentalSubmission, error)
}

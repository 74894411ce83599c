package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/storage/memory"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

func quietLogger() *logger.Logger {
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)
	return log
}

func newCore(t *testing.T) (*CoreService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewCore(store, cache.NewLoader(cache.NewMemory()), quietLogger()), store
}

func TestCoreScore_Bounds(t *testing.T) {
	cases := []trust.CoreMetrics{
		{}, // all zero
		{
			TxSuccessRate: 1, ValidatorUptime: 1, NetworkParticipation: 1,
			StakeConsistency: 1, DelegationQuality: 1, FraudPrevention: 1,
			SecurityCompliance: 1, GovernanceParticipation: 1, CommunityVoting: 1,
			KYCLevel: 5, SecondsOnNetwork: 10 * trust.SecondsPerYear, EnvironmentalScore: 1,
		},
		trust.DefaultCoreMetrics("zpc1abc"),
		{TxSuccessRate: 0.9, FraudPrevention: 0.2, KYCLevel: 3, SecondsOnNetwork: 100_000},
	}
	for i, m := range cases {
		score := m.Score()
		if score < 0 || score > 1 {
			t.Fatalf("case %d: score %v out of [0,1]", i, score)
		}
	}

	// Maximal inputs hit the cap exactly.
	if got := cases[1].Score(); got != 1.0 {
		t.Fatalf("expected maximal metrics to score 1.0, got %v", got)
	}
}

func TestCoreScore_Monotonic(t *testing.T) {
	base := trust.CoreMetrics{
		TxSuccessRate: 0.4, ValidatorUptime: 0.4, NetworkParticipation: 0.4,
		StakeConsistency: 0.4, DelegationQuality: 0.4, FraudPrevention: 0.4,
		SecurityCompliance: 0.4, GovernanceParticipation: 0.4, CommunityVoting: 0.4,
		KYCLevel: 2, SecondsOnNetwork: 1_000_000, EnvironmentalScore: 0.4,
	}
	before := base.Score()

	bumps := []func(m *trust.CoreMetrics){
		func(m *trust.CoreMetrics) { m.TxSuccessRate += 0.2 },
		func(m *trust.CoreMetrics) { m.ValidatorUptime += 0.2 },
		func(m *trust.CoreMetrics) { m.NetworkParticipation += 0.2 },
		func(m *trust.CoreMetrics) { m.StakeConsistency += 0.2 },
		func(m *trust.CoreMetrics) { m.DelegationQuality += 0.2 },
		func(m *trust.CoreMetrics) { m.FraudPrevention += 0.2 },
		func(m *trust.CoreMetrics) { m.SecurityCompliance += 0.2 },
		func(m *trust.CoreMetrics) { m.GovernanceParticipation += 0.2 },
		func(m *trust.CoreMetrics) { m.CommunityVoting += 0.2 },
		func(m *trust.CoreMetrics) { m.KYCLevel++ },
		func(m *trust.CoreMetrics) { m.SecondsOnNetwork += 5_000_000 },
		func(m *trust.CoreMetrics) { m.EnvironmentalScore += 0.2 },
	}
	for i, bump := range bumps {
		m := base
		bump(&m)
		if after := m.Score(); after < before {
			t.Fatalf("bump %d decreased score: %v -> %v", i, before, after)
		}
	}
}

func TestCoreService_LazyDefaults(t *testing.T) {
	svc, store := newCore(t)
	ctx := context.Background()

	m, err := svc.Metrics(ctx, "zpc1new")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.TxSuccessRate != 0.5 || m.KYCLevel != 0 {
		t.Fatalf("unexpected defaults: %#v", m)
	}
	if m.CoreScore < 0 || m.CoreScore > 1 {
		t.Fatalf("core score out of range: %v", m.CoreScore)
	}

	// Defaults were persisted, not just served.
	if _, err := store.GetCoreMetrics(ctx, "zpc1new"); err != nil {
		t.Fatalf("defaults not persisted: %v", err)
	}
}

func TestCoreService_UpdateMetrics(t *testing.T) {
	svc, _ := newCore(t)
	ctx := context.Background()

	v := 0.9
	m, err := svc.UpdateMetrics(ctx, "zpc1addr", MetricsPatch{TxSuccessRate: &v, FraudPrevention: &v})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.TxSuccessRate != 0.9 || m.FraudPrevention != 0.9 {
		t.Fatalf("patch not applied: %#v", m)
	}
	if m.CoreScore != m.Score() {
		t.Fatalf("derived score stale: %v vs %v", m.CoreScore, m.Score())
	}

	// The cache entry was invalidated, so the next read reflects the update.
	got, err := svc.Metrics(ctx, "zpc1addr")
	if err != nil {
		t.Fatalf("metrics after update: %v", err)
	}
	if got.TxSuccessRate != 0.9 {
		t.Fatalf("stale read after update: %#v", got)
	}

	bad := 1.5
	if _, err := svc.UpdateMetrics(ctx, "zpc1addr", MetricsPatch{CommunityVoting: &bad}); !trust.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type failingCoreStore struct{}

func (failingCoreStore) GetCoreMetrics(context.Context, string) (trust.CoreMetrics, error) {
	return trust.CoreMetrics{}, errors.New("connection refused")
}

func (failingCoreStore) UpsertCoreMetrics(context.Context, trust.CoreMetrics) (trust.CoreMetrics, error) {
	return trust.CoreMetrics{}, errors.New("connection refused")
}

func TestCoreService_StoreUnavailableIsFatal(t *testing.T) {
	svc := NewCore(failingCoreStore{}, cache.NewLoader(cache.NewMemory()), quietLogger())

	_, err := svc.Metrics(context.Background(), "zpc1addr")
	if !errors.Is(err, trust.ErrStoreUnavailable) {
		t.Fatalf("expected store-unavailable error, got %v", err)
	}
}

func TestCoreService_CacheServesSecondRead(t *testing.T) {
	store := memory.New()
	c := cache.NewMemory()
	svc := NewCore(store, cache.NewLoader(c), quietLogger())
	ctx := context.Background()

	if _, err := svc.Metrics(ctx, "zpc1addr"); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// Mutate the store behind the cache's back; a cached read must not see it.
	m, _ := store.GetCoreMetrics(ctx, "zpc1addr")
	m.TxSuccessRate = 0.99
	if _, err := store.UpsertCoreMetrics(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := svc.Metrics(ctx, "zpc1addr")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if got.TxSuccessRate != 0.5 {
		t.Fatalf("expected cached value 0.5, got %v", got.TxSuccessRate)
	}
}

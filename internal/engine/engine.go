package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Stores groups the persistence dependencies the engine needs.
type Stores struct {
	CoreMetrics storage.CoreMetricsStore
	Configs     storage.ConfigStore
	FieldValues storage.FieldValueStore
	Composites  storage.CompositeStore
}

// Engine is the scoring facade: core metrics, custom field registration,
// field updates, and composite score computation behind one type.
type Engine struct {
	Core       *CoreService
	Registry   *Registry
	Resolver   *Resolver
	Aggregator *Aggregator

	values storage.FieldValueStore
	loader *cache.Loader
	log    *logger.Logger
}

// New wires the scoring pipeline around one cache and one set of stores.
func New(stores Stores, c cache.Cache, client *http.Client, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("trust-engine")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	loader := cache.NewLoader(c)

	core := NewCore(stores.CoreMetrics, loader, log)
	registry := NewRegistry(stores.Configs, log)
	resolver := NewResolver(core, stores.FieldValues, loader, client, log)
	aggregator := NewAggregator(core, registry, resolver, stores.Composites, log)

	return &Engine{
		Core:       core,
		Registry:   registry,
		Resolver:   resolver,
		Aggregator: aggregator,
		values:     stores.FieldValues,
		loader:     loader,
		log:        log,
	}
}

// Start hydrates the registry index from the durable store.
func (e *Engine) Start(ctx context.Context) error {
	return e.Registry.LoadAll(ctx)
}

// CoreScore returns the core-only trust score for an address.
func (e *Engine) CoreScore(ctx context.Context, address string) (float64, error) {
	return e.Core.Score(ctx, address)
}

// CompositeScore computes the full composite score for (address, app).
func (e *Engine) CompositeScore(ctx context.Context, address, appID string) (trust.CompositeScore, error) {
	return e.Aggregator.Composite(ctx, address, appID)
}

// UpdateField upserts a user-supplied field value and invalidates exactly
// that field's cache entry, nothing else.
func (e *Engine) UpdateField(ctx context.Context, address, appID, fieldName string, value float64) (trust.FieldValue, error) {
	cfg, err := e.Registry.Get(ctx, appID)
	if err != nil {
		return trust.FieldValue{}, err
	}
	spec, ok := cfg.Fields[fieldName]
	if !ok {
		return trust.FieldValue{}, fmt.Errorf("field %s for app %s: %w", fieldName, appID, trust.ErrNotFound)
	}
	if spec.DataSource.Type != trust.SourceUserInput {
		return trust.FieldValue{}, &trust.ValidationError{
			Field:  fieldName,
			Reason: "only userinput-sourced fields accept direct updates",
		}
	}
	if (spec.MinValue != 0 || spec.MaxValue != 0) && (value < spec.MinValue || value > spec.MaxValue) {
		return trust.FieldValue{}, &trust.ValidationError{
			Field:  fieldName,
			Reason: fmt.Sprintf("value must be within [%g, %g]", spec.MinValue, spec.MaxValue),
		}
	}

	stored, err := e.values.UpsertFieldValue(ctx, trust.FieldValue{
		Address:   address,
		AppID:     appID,
		FieldName: fieldName,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return trust.FieldValue{}, err
	}

	e.loader.Invalidate(ctx, FieldCacheKey(appID, address, fieldName))
	return stored, nil
}

// Requirements are the thresholds checked by Verify.
type Requirements struct {
	MinCoreScore   float64 `json:"min_core_score"`
	MinCustomScore float64 `json:"min_custom_score"`
	MinFinalScore  float64 `json:"min_final_score"`
}

// VerifyResult reports whether an address satisfies an app's trust
// requirements, along with the three component scores.
type VerifyResult struct {
	Verified    bool    `json:"verified"`
	CoreScore   float64 `json:"core_score"`
	CustomScore float64 `json:"custom_score"`
	FinalScore  float64 `json:"final_score"`
}

// Verify evaluates an address against the caller's thresholds and the app
// config's own MinCoreScore, whichever is stricter.
func (e *Engine) Verify(ctx context.Context, address, appID string, req Requirements) (VerifyResult, error) {
	score, err := e.CompositeScore(ctx, address, appID)
	if err != nil {
		return VerifyResult{}, err
	}

	minCore := req.MinCoreScore
	if cfg, err := e.Registry.Get(ctx, appID); err == nil && cfg.ValidationRules.MinCoreScore > minCore {
		minCore = cfg.ValidationRules.MinCoreScore
	}

	return VerifyResult{
		Verified: score.CoreScore >= minCore &&
			score.CustomScore >= req.MinCustomScore &&
			score.FinalScore >= req.MinFinalScore,
		CoreScore:   score.CoreScore,
		CustomScore: score.CustomScore,
		FinalScore:  score.FinalScore,
	}, nil
}

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/metrics"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// CustomStrategy combines core and custom scores for the "custom"
// aggregation method. Applications inject their own; the default is the
// arithmetic mean.
type CustomStrategy func(core, custom float64) float64

func defaultCustomStrategy(core, custom float64) float64 {
	return (core + custom) / 2
}

// Aggregator combines the core score and the app's custom fields into a
// composite score, persisting each result as an audit row.
type Aggregator struct {
	core     *CoreService
	registry *Registry
	resolver *Resolver
	audits   storage.CompositeStore
	custom   CustomStrategy
	log      *logger.Logger
	now      func() time.Time
}

// NewAggregator constructs an aggregator with the default custom strategy.
func NewAggregator(core *CoreService, registry *Registry, resolver *Resolver, audits storage.CompositeStore, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("trust-aggregator")
	}
	return &Aggregator{
		core:     core,
		registry: registry,
		resolver: resolver,
		audits:   audits,
		custom:   defaultCustomStrategy,
		log:      log,
		now:      time.Now,
	}
}

// WithCustomStrategy replaces the strategy used by the "custom" aggregation
// method.
func (a *Aggregator) WithCustomStrategy(s CustomStrategy) {
	if s != nil {
		a.custom = s
	}
}

// CustomScore computes the weight-normalized average over every configured
// field, along with the per-field normalized (and decayed) components.
// Independent fields resolve concurrently; results join before aggregation.
// An app with no fields or zero total weight scores 0.
func (a *Aggregator) CustomScore(ctx context.Context, address, appID string) (float64, map[string]float64, error) {
	cfg, err := a.registry.Get(ctx, appID)
	if err != nil {
		return 0, nil, err
	}
	if len(cfg.Fields) == 0 {
		return 0, map[string]float64{}, nil
	}

	type fieldResult struct {
		name  string
		value float64
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]fieldResult, 0, len(cfg.Fields))
	)
	for name, spec := range cfg.Fields {
		wg.Add(1)
		go func(name string, spec trust.FieldSpec) {
			defer wg.Done()

			raw, recordedAt := a.resolver.Resolve(ctx, address, appID, name, spec)
			v := Normalize(raw, spec)
			if elapsed := a.now().Sub(recordedAt); elapsed > 0 {
				v = ApplyDecay(v, spec, elapsed)
			}

			mu.Lock()
			results = append(results, fieldResult{name: name, value: v})
			mu.Unlock()
		}(name, spec)
	}
	wg.Wait()

	components := make(map[string]float64, len(results))
	var weightedSum, weightTotal float64
	for _, res := range results {
		components[res.name] = res.value
		w := cfg.Fields[res.name].Weight
		weightedSum += res.value * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0, components, nil
	}
	return weightedSum / weightTotal, components, nil
}

// Composite computes the full composite score for (address, app): core score,
// custom score, and their combination under the app's aggregation rules,
// clamped into [0,1] with per-field components attached for explainability.
// The result is persisted as an audit record; a persistence failure is logged
// but does not fail the read, since the audit trail is not the authority.
func (a *Aggregator) Composite(ctx context.Context, address, appID string) (trust.CompositeScore, error) {
	coreScore, err := a.core.Score(ctx, address)
	if err != nil {
		metrics.ObserveScoreComputation("error")
		return trust.CompositeScore{}, err
	}

	customScore, components, err := a.CustomScore(ctx, address, appID)
	if err != nil {
		metrics.ObserveScoreComputation("error")
		return trust.CompositeScore{}, err
	}

	cfg, err := a.registry.Get(ctx, appID)
	if err != nil {
		metrics.ObserveScoreComputation("error")
		return trust.CompositeScore{}, err
	}

	final := a.combine(cfg.AggregationRules, coreScore, customScore)

	score := trust.CompositeScore{
		Address:     address,
		AppID:       appID,
		CoreScore:   coreScore,
		CustomScore: customScore,
		FinalScore:  trust.Clamp01(final),
		Components:  components,
		ComputedAt:  a.now().UTC(),
	}

	if stored, err := a.audits.UpsertCompositeScore(ctx, score); err != nil {
		a.log.WithError(err).
			WithField("address", address).
			WithField("app_id", appID).
			Warn("composite score audit write failed")
	} else {
		score = stored
	}

	metrics.ObserveScoreComputation("ok")
	return score, nil
}

func (a *Aggregator) combine(rules trust.AggregationRules, core, custom float64) float64 {
	switch rules.Method {
	case trust.AggWeightedAverage:
		return core*rules.CoreWeight + custom*rules.CustomWeight
	case trust.AggWeightedSum:
		return core*rules.CoreWeight + custom
	case trust.AggMinimum:
		if core < custom {
			return core
		}
		return custom
	case trust.AggMaximum:
		if core > custom {
			return core
		}
		return custom
	case trust.AggCustom:
		return a.custom(core, custom)
	default:
		return a.custom(core, custom)
	}
}

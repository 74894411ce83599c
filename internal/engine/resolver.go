package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/metrics"
	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

const (
	// fieldTTL bounds how long a resolved field value is served from cache.
	fieldTTL = 60 * time.Second

	// offChainTimeout caps a single off-chain fetch so one slow data source
	// cannot stall a composite computation.
	offChainTimeout = 5 * time.Second

	// maxOffChainBody bounds how much of an off-chain response is read.
	maxOffChainBody = 1 << 20
)

// ChainReader reads a numeric value from an on-chain contract. The engine
// ships without one; callers supply an implementation when a chain client
// is available.
type ChainReader interface {
	ReadNumeric(ctx context.Context, contract, method, address string) (float64, error)
}

// resolvedValue is the cached form of one field resolution.
type resolvedValue struct {
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// sourceFunc fetches one field's raw value from its configured origin.
type sourceFunc func(ctx context.Context, address, appID, fieldName string, spec trust.FieldSpec) (resolvedValue, error)

// Resolver fetches raw custom-field values from their configured data
// sources, with a 60s per-field cache and graceful degradation: a failing
// source resolves to the field's default value, never to an error.
type Resolver struct {
	core   *CoreService
	values storage.FieldValueStore
	loader *cache.Loader
	client *http.Client
	chain  ChainReader
	log    *logger.Logger
	ttl    time.Duration

	sources map[trust.SourceType]sourceFunc
}

// NewResolver constructs a resolver without a chain client; on-chain fields
// resolve to their defaults until one is attached.
func NewResolver(core *CoreService, values storage.FieldValueStore, loader *cache.Loader, client *http.Client, log *logger.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: offChainTimeout}
	}
	if log == nil {
		log = logger.NewDefault("trust-resolver")
	}
	r := &Resolver{
		core:   core,
		values: values,
		loader: loader,
		client: client,
		log:    log,
		ttl:    fieldTTL,
	}
	r.sources = map[trust.SourceType]sourceFunc{
		trust.SourceOnChain:        r.resolveOnChain,
		trust.SourceOffChain:       r.resolveOffChain,
		trust.SourceUserInput:      r.resolveUserInput,
		trust.SourceCoreTrust:      r.resolveCoreTrust,
		trust.SourceCrossReference: r.resolveCrossReference,
	}
	return r
}

// WithChainReader attaches an on-chain client. New source kinds stay
// additive: they register a strategy rather than editing a dispatcher.
func (r *Resolver) WithChainReader(chain ChainReader) {
	r.chain = chain
}

// FieldCacheKey is the cache key holding a resolved field value.
func FieldCacheKey(appID, address, fieldName string) string {
	return fmt.Sprintf("field:%s:%s:%s", appID, address, fieldName)
}

// Resolve returns the field's current raw value and the time it was
// recorded. It never fails: any source error degrades to the field's
// default value with the current timestamp.
func (r *Resolver) Resolve(ctx context.Context, address, appID, fieldName string, spec trust.FieldSpec) (float64, time.Time) {
	key := FieldCacheKey(appID, address, fieldName)

	computed := false
	data, err := r.loader.GetOrCompute(ctx, key, r.ttl, func(ctx context.Context) ([]byte, error) {
		computed = true
		rv := r.fetch(ctx, address, appID, fieldName, spec)
		return json.Marshal(rv)
	})
	metrics.ObserveCacheLookup("field", !computed)
	if err != nil {
		// The compute path never errors; this covers cache-layer corruption.
		return spec.DefaultValue, time.Now().UTC()
	}

	var rv resolvedValue
	if err := json.Unmarshal(data, &rv); err != nil {
		r.loader.Invalidate(ctx, key)
		return spec.DefaultValue, time.Now().UTC()
	}
	return rv.Value, rv.RecordedAt
}

func (r *Resolver) fetch(ctx context.Context, address, appID, fieldName string, spec trust.FieldSpec) resolvedValue {
	fallback := resolvedValue{Value: spec.DefaultValue, RecordedAt: time.Now().UTC()}

	source, ok := r.sources[spec.DataSource.Type]
	if !ok {
		r.log.WithField("field", fieldName).
			WithField("source", string(spec.DataSource.Type)).
			Warn("unknown data source type")
		metrics.ObserveResolverFallback(string(spec.DataSource.Type))
		return fallback
	}

	rv, err := source(ctx, address, appID, fieldName, spec)
	if err != nil {
		r.log.WithError(err).
			WithField("field", fieldName).
			WithField("source", string(spec.DataSource.Type)).
			Debug("field resolution degraded to default")
		metrics.ObserveResolverFallback(string(spec.DataSource.Type))
		return fallback
	}
	if rv.RecordedAt.IsZero() {
		rv.RecordedAt = time.Now().UTC()
	}
	return rv
}

func (r *Resolver) resolveOnChain(ctx context.Context, address, _, _ string, spec trust.FieldSpec) (resolvedValue, error) {
	if r.chain == nil {
		return resolvedValue{}, errors.New("no chain client configured")
	}
	v, err := r.chain.ReadNumeric(ctx, spec.DataSource.Contract, spec.DataSource.Method, address)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("chain read: %w", err)
	}
	return resolvedValue{Value: v}, nil
}

func (r *Resolver) resolveOffChain(ctx context.Context, address, _, _ string, spec trust.FieldSpec) (resolvedValue, error) {
	ctx, cancel := context.WithTimeout(ctx, offChainTimeout)
	defer cancel()

	endpoint := strings.TrimSpace(spec.DataSource.APIEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("build off-chain request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Trust-Address", address)

	resp, err := r.client.Do(req)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("off-chain request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resolvedValue{}, fmt.Errorf("off-chain status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOffChainBody))
	if err != nil {
		return resolvedValue{}, fmt.Errorf("read off-chain response: %w", err)
	}

	v, err := parseOffChainValue(body)
	if err != nil {
		return resolvedValue{}, err
	}
	return resolvedValue{Value: v}, nil
}

// parseOffChainValue accepts the three supported response shapes: a bare
// number, {"value": n}, or {"data": {"value": n}}.
func parseOffChainValue(body []byte) (float64, error) {
	trimmed := strings.TrimSpace(string(body))
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return v, nil
	}
	for _, path := range []string{"value", "data.value"} {
		if res := gjson.GetBytes(body, path); res.Type == gjson.Number {
			return res.Float(), nil
		}
	}
	return 0, fmt.Errorf("off-chain response is not numeric")
}

func (r *Resolver) resolveUserInput(ctx context.Context, address, appID, fieldName string, _ trust.FieldSpec) (resolvedValue, error) {
	v, err := r.values.GetFieldValue(ctx, address, appID, fieldName)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("stored field value: %w", err)
	}
	return resolvedValue{Value: v.Value, RecordedAt: v.UpdatedAt}, nil
}

func (r *Resolver) resolveCoreTrust(ctx context.Context, address, _, _ string, _ trust.FieldSpec) (resolvedValue, error) {
	score, err := r.core.Score(ctx, address)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("core score: %w", err)
	}
	return resolvedValue{Value: score}, nil
}

func (r *Resolver) resolveCrossReference(ctx context.Context, address, appID, fieldName string, spec trust.FieldSpec) (resolvedValue, error) {
	ref := strings.TrimSpace(spec.DataSource.RefField)
	if ref == trust.CoreTrustRef {
		return r.resolveCoreTrust(ctx, address, appID, fieldName, spec)
	}
	v, err := r.values.GetFieldValue(ctx, address, appID, ref)
	if err != nil {
		return resolvedValue{}, fmt.Errorf("cross-referenced field %s: %w", ref, err)
	}
	return resolvedValue{Value: v.Value, RecordedAt: v.UpdatedAt}, nil
}

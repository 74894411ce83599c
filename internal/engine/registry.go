package engine

import (
	"context"
	"sync"

	"github.com/zippycoin-network/trust_engine/internal/storage"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Registry manages per-application custom metrics configurations. The durable
// store is the source of truth; an in-memory index serves the hot lookup path
// and is rebuilt from the store at startup.
type Registry struct {
	store storage.ConfigStore
	log   *logger.Logger

	mu    sync.RWMutex
	index map[string]trust.MetricsConfig
}

// NewRegistry constructs an empty registry.
func NewRegistry(store storage.ConfigStore, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("trust-registry")
	}
	return &Registry{
		store: store,
		log:   log,
		index: make(map[string]trust.MetricsConfig),
	}
}

// LoadAll hydrates the in-memory index from the durable store. Call once at
// startup.
func (r *Registry) LoadAll(ctx context.Context) error {
	configs, err := r.store.ListConfigs(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[string]trust.MetricsConfig, len(configs))
	for _, cfg := range configs {
		r.index[cfg.AppID] = cfg
	}
	r.log.WithField("configs", len(configs)).Info("custom metrics configs loaded")
	return nil
}

// Register validates and upserts a config. Validation happens before any
// write, so a malformed config leaves no partial state. Re-registering the
// same (app, developer) pair replaces the previous config.
func (r *Registry) Register(ctx context.Context, cfg trust.MetricsConfig) (trust.MetricsConfig, error) {
	if err := cfg.Validate(); err != nil {
		return trust.MetricsConfig{}, err
	}

	stored, err := r.store.UpsertConfig(ctx, cfg)
	if err != nil {
		return trust.MetricsConfig{}, err
	}

	r.mu.Lock()
	r.index[stored.AppID] = stored
	r.mu.Unlock()

	r.log.WithField("app_id", stored.AppID).
		WithField("developer_id", stored.DeveloperID).
		WithField("fields", len(stored.Fields)).
		Info("custom metrics config registered")
	return stored, nil
}

// Get returns the config for an app, serving from the index and falling back
// to the store (hydrating the index on a hit).
func (r *Registry) Get(ctx context.Context, appID string) (trust.MetricsConfig, error) {
	r.mu.RLock()
	cfg, ok := r.index[appID]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := r.store.GetConfig(ctx, appID)
	if err != nil {
		return trust.MetricsConfig{}, err
	}

	r.mu.Lock()
	r.index[appID] = cfg
	r.mu.Unlock()
	return cfg, nil
}

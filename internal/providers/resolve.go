// Package providers selects which configured upstream service handles a
// generation request and hosts the shared request/response helpers the image
// and video adapters build on.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

// Resolver picks one active provider configuration for a capability.
// Selection order: provider-name narrowing (when it matches anything), then
// preferred-model match, then the explicit default, then the highest-priority
// most recent config. Config lists are served from an in-process cache so a
// burst of per-shot generations does not hammer the config table.
type Resolver struct {
	repo   domain.ProviderConfigRepository
	cache  *ristretto.Cache[string, []domain.ProviderConfig]
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResolver wires a Resolver. ttl bounds how stale a cached config list may
// be; config mutation happens outside this process, so freshness is read-time
// only.
func NewResolver(repo domain.ProviderConfigRepository, ttl time.Duration, logger zerolog.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []domain.ProviderConfig]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("resolver cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, logger: logger}, nil
}

// Close releases cache resources.
func (r *Resolver) Close() {
	if r != nil && r.cache != nil {
		r.cache.Close()
	}
}

// Resolve returns the config that should serve a request of the given
// capability. storyboard_image falls back to plain image configs when none
// are dedicated. Returns domain.ErrNotConfigured when no active config
// exists; that condition is terminal and must not be queued or retried.
func (r *Resolver) Resolve(ctx context.Context, capability domain.Capability, preferredModel, preferredProvider string) (*domain.ProviderConfig, error) {
	configs, err := r.list(ctx, capability)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 && capability == domain.CapabilityStoryboardImage {
		configs, err = r.list(ctx, domain.CapabilityImage)
		if err != nil {
			return nil, err
		}
	}

	active := configs[:0:0]
	for _, cfg := range configs {
		if cfg.IsActive {
			active = append(active, cfg)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: capability %s", domain.ErrNotConfigured, capability)
	}

	if want := strings.ToLower(strings.TrimSpace(preferredProvider)); want != "" {
		narrowed := active[:0:0]
		for _, cfg := range active {
			if cfg.ProviderName() == want {
				narrowed = append(narrowed, cfg)
			}
		}
		if len(narrowed) > 0 {
			active = narrowed
		}
	}

	if preferredModel = strings.TrimSpace(preferredModel); preferredModel != "" {
		for i := range active {
			if active[i].HasModel(preferredModel) {
				return &active[i], nil
			}
		}
	}

	for i := range active {
		if active[i].IsDefault {
			return &active[i], nil
		}
	}

	// The repository already orders by priority desc then recency, so the
	// first remaining config is the fallback winner.
	return &active[0], nil
}

func (r *Resolver) list(ctx context.Context, capability domain.Capability) ([]domain.ProviderConfig, error) {
	key := string(capability)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}
	configs, err := r.repo.ListByCapability(ctx, capability)
	if err != nil {
		return nil, err
	}
	r.cache.SetWithTTL(key, configs, int64(len(configs))+1, r.ttl)
	return configs, nil
}

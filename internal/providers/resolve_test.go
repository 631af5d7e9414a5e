package providers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

type fakeConfigRepo struct {
	configs map[domain.Capability][]domain.ProviderConfig
	calls   int
}

func (f *fakeConfigRepo) ListByCapability(_ context.Context, capability domain.Capability) ([]domain.ProviderConfig, error) {
	f.calls++
	return f.configs[capability], nil
}

func newTestResolver(t *testing.T, repo *fakeConfigRepo) *Resolver {
	t.Helper()
	r, err := NewResolver(repo, time.Minute, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestResolvePrefersExplicitDefault(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{
		domain.CapabilityImage: {
			{ID: 1, Provider: "openai", Priority: 10, IsActive: true},
			{ID: 2, Provider: "dashscope", Priority: 0, IsDefault: true, IsActive: true},
		},
	}}
	r := newTestResolver(t, repo)

	cfg, err := r.Resolve(context.Background(), domain.CapabilityImage, "", "")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 2 {
		t.Fatalf("expected default config regardless of priority, got id %d", cfg.ID)
	}
}

func TestResolvePreferredModelWins(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{
		domain.CapabilityImage: {
			{ID: 1, Provider: "dashscope", Models: []string{"wan2.6-image"}, IsDefault: true, IsActive: true},
			{ID: 2, Provider: "openai", Models: []string{"doubao-seedream-4"}, IsActive: true},
		},
	}}
	r := newTestResolver(t, repo)

	cfg, err := r.Resolve(context.Background(), domain.CapabilityImage, "doubao-seedream-4", "")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 2 {
		t.Fatalf("expected model match to beat default, got id %d", cfg.ID)
	}
}

func TestResolveProviderNarrowingOnlyWhenMatched(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{
		domain.CapabilityVideo: {
			{ID: 1, Provider: "volces", IsDefault: true, IsActive: true},
			{ID: 2, Provider: "dashscope", IsActive: true},
		},
	}}
	r := newTestResolver(t, repo)

	cfg, err := r.Resolve(context.Background(), domain.CapabilityVideo, "", "dashscope")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 2 {
		t.Fatalf("expected provider narrowing, got id %d", cfg.ID)
	}

	// A provider nothing matches must not empty the candidate set.
	cfg, err = r.Resolve(context.Background(), domain.CapabilityVideo, "", "no-such-provider")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 1 {
		t.Fatalf("expected fallback to default, got id %d", cfg.ID)
	}
}

func TestResolveSkipsInactive(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{
		domain.CapabilityImage: {
			{ID: 1, Provider: "openai", IsDefault: true, IsActive: false},
			{ID: 2, Provider: "dashscope", IsActive: true},
		},
	}}
	r := newTestResolver(t, repo)

	cfg, err := r.Resolve(context.Background(), domain.CapabilityImage, "", "")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 2 {
		t.Fatalf("inactive default must be skipped, got id %d", cfg.ID)
	}
}

func TestResolveNotConfigured(t *testing.T) {
	r := newTestResolver(t, &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{}})

	_, err := r.Resolve(context.Background(), domain.CapabilityVideo, "", "")
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestResolveStoryboardFallsBackToImage(t *testing.T) {
	repo := &fakeConfigRepo{configs: map[domain.Capability][]domain.ProviderConfig{
		domain.CapabilityImage: {
			{ID: 7, Provider: "dashscope", IsDefault: true, IsActive: true},
		},
	}}
	r := newTestResolver(t, repo)

	cfg, err := r.Resolve(context.Background(), domain.CapabilityStoryboardImage, "", "")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.ID != 7 {
		t.Fatalf("expected image fallback, got id %d", cfg.ID)
	}
}

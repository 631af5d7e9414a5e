package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

// Options configures the image Adapter.
type Options struct {
	HTTPClient *http.Client
	Refs       OutboundResolver
	Logger     zerolog.Logger
	// Poll cadence for the callback-style submit/poll provider.
	PollInterval time.Duration
	PollAttempts int
}

// NewAdapter wires an Adapter with its provider strategy table.
func NewAdapter(opts Options) *Adapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	attempts := opts.PollAttempts
	if attempts <= 0 {
		attempts = 60
	}
	a := &Adapter{
		httpClient:   httpClient,
		refs:         opts.Refs,
		logger:       opts.Logger,
		pollInterval: interval,
		pollAttempts: attempts,
	}
	a.strategies = map[string]generateFunc{
		"openai":      a.generateOpenAI,
		"chatfire":    a.generateOpenAI,
		"volces":      a.generateOpenAI,
		"volcengine":  a.generateOpenAI,
		"volc":        a.generateOpenAI,
		"dashscope":   a.generateDashScope,
		"qwen_image":  a.generateDashScope,
		"nano_banana": a.generateNanoBanana,
	}
	return a
}

// Generate submits one request against the resolved config and returns the
// image location. Errors wrapping domain.ErrAuth indicate broken credentials;
// domain.ErrTimeout indicates an exhausted poll budget.
func (a *Adapter) Generate(ctx context.Context, cfg *domain.ProviderConfig, req Request) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("image: provider config is required")
	}
	model := cfg.ModelFor(req.Model)
	strategy := a.strategyFor(cfg, model)
	return strategy(ctx, cfg, model, req)
}

func (a *Adapter) strategyFor(cfg *domain.ProviderConfig, model string) generateFunc {
	name := cfg.ProviderName()
	// qwen-image models use the DashScope wire format whatever the config's
	// provider label says.
	if strings.HasPrefix(strings.ToLower(model), "qwen-image") {
		return a.generateDashScope
	}
	if fn, ok := a.strategies[name]; ok {
		return fn
	}
	// Unknown providers speak the OpenAI-compatible dialect.
	return a.generateOpenAI
}

// outboundRefs resolves and caps the reference image list. Excess entries are
// dropped silently.
func (a *Adapter) outboundRefs(refs []string) []string {
	if len(refs) > maxReferenceImages {
		refs = refs[:maxReferenceImages]
	}
	resolved := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		value := ref
		if a.refs != nil {
			value = a.refs.Outbound(ref)
		}
		if value != "" {
			resolved = append(resolved, value)
		}
	}
	return resolved
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var errEmptyImage = fmt.Errorf("no image in provider response")

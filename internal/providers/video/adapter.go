package video

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

// Options configures the video Adapter.
type Options struct {
	HTTPClient *http.Client
	Images     ImageResolver
	Logger     zerolog.Logger
	// Poll cadence for asynchronous tasks.
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
		interval = 10 * time.Second
	}
	attempts := opts.PollAttempts
	if attempts <= 0 {
		attempts = 300
	}
	a := &Adapter{
		httpClient:   httpClient,
		images:       opts.Images,
		logger:       opts.Logger,
		pollInterval: interval,
		pollAttempts: attempts,
	}
	a.strategies = map[string]submitFunc{
		"dashscope":  a.submitDashScope,
		"volces":     a.submitArk,
		"volcengine": a.submitArk,
		"volc":       a.submitArk,
		"chatfire":   a.submitArk,
		"openai":     a.submitArk,
	}
	return a
}

// Submit sends the generation request. The returned Result either carries a
// VideoURL (synchronous provider) or a TaskID for Poll.
func (a *Adapter) Submit(ctx context.Context, cfg *domain.ProviderConfig, req Request) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("video: provider config is required")
	}
	model := cfg.ModelFor(req.Model)
	strategy, ok := a.strategies[cfg.ProviderName()]
	if !ok {
		// Unknown providers speak the Ark-compatible dialect.
		strategy = a.submitArk
	}
	return strategy(ctx, cfg, model, req)
}

// Poll queries the task until it yields a video, fails upstream, or the
// attempt budget runs out. Exhaustion returns domain.ErrTimeout; an upstream
// FAILED or CANCELED state wraps domain.ErrProviderFailure so the caller can
// tell the two apart.
func (a *Adapter) Poll(ctx context.Context, cfg *domain.ProviderConfig, taskID string) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("video: provider config is required")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("video: task id is required")
	}
	isDashScope := cfg.ProviderName() == "dashscope"

	for attempt := 0; attempt < a.pollAttempts; attempt++ {
		if err := a.sleep(ctx, a.pollInterval); err != nil {
			return nil, err
		}
		var (
			res *Result
			err error
		)
		if isDashScope {
			res, err = a.pollDashScope(ctx, cfg, taskID)
		} else {
			res, err = a.pollArk(ctx, cfg, taskID)
		}
		if err != nil {
			if errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Transient poll failures are retried until the budget runs out.
			a.logger.Warn().Err(err).Str("task_id", taskID).Int("attempt", attempt).Msg("video poll failed")
			continue
		}
		if res.Done() {
			return res, nil
		}
	}
	return nil, fmt.Errorf("video task %s: %w", taskID, domain.ErrTimeout)
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

// resolveImage runs a frame or reference value through the resolver so the
// remote provider can fetch it.
func (a *Adapter) resolveImage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if a.images != nil {
		return a.images.Outbound(value)
	}
	return value
}

func (a *Adapter) resolveImages(values []string, limit int) []string {
	if len(values) > limit {
		values = values[:limit]
	}
	resolved := make([]string, 0, len(values))
	for _, v := range values {
		if r := a.resolveImage(v); r != "" {
			resolved = append(resolved, r)
		}
	}
	return resolved
}

var errEmptyVideo = fmt.Errorf("no task id or video url in provider response")

// Package image normalizes one logical image-generation request into the
// wire format of whichever provider configuration was resolved for it, and
// extracts a uniform result.
package image

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

// maxReferenceImages caps how many reference images are forwarded upstream.
// Longer lists are silently trimmed, never rejected.
const maxReferenceImages = 10

// Request is the normalized input for any image provider.
type Request struct {
	Prompt          string
	Model           string
	Size            string
	Quality         string
	NegativePrompt  string
	ReferenceImages []string
	GenerationID    int64
}

// Result is the uniform outcome: where the provider put the image. The value
// may be a URL or inline-encoded bytes (data URI / bare base64) depending on
// the provider.
type Result struct {
	ImageURL string
}

// OutboundResolver converts reference-image values into a form the remote
// provider can dereference (public URL or inline data URI).
type OutboundResolver interface {
	Outbound(value string) string
}

type generateFunc func(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error)

// Adapter dispatches a request to the branch matching the resolved config's
// provider family. Adding a provider means adding one strategy table entry.
type Adapter struct {
	httpClient   *http.Client
	refs         OutboundResolver
	logger       zerolog.Logger
	strategies   map[string]generateFunc
	pollInterval time.Duration
	pollAttempts int
}

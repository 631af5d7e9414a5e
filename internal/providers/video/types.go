// Package video normalizes one logical video-generation request into the
// wire format of the resolved provider, and exposes the submit/poll pair the
// asynchronous providers require.
package video

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

// Reference image caps differ per wan model family.
const (
	maxVaceReferences = 3
	maxR2VReferences  = 5
)

// Request is the normalized input for any video provider.
type Request struct {
	Prompt          string
	Model           string
	ImageURL        string
	FirstFrameURL   string
	LastFrameURL    string
	ReferenceImages []string
	Duration        int
	AspectRatio     string
	Resolution      string
	Seed            *int64
	CameraFixed     *bool
	Watermark       *bool
	GenerationID    int64
}

// Result is the uniform outcome of a submit or poll. Synchronous providers
// fill VideoURL directly; asynchronous ones return a TaskID to poll.
type Result struct {
	VideoURL string
	TaskID   string
	Status   string
}

// Done reports whether the result already carries a playable video.
func (r *Result) Done() bool { return r != nil && r.VideoURL != "" }

// ImageResolver converts frame and reference image values into a form the
// remote provider can dereference (public URL or inline data URI).
type ImageResolver interface {
	Outbound(value string) string
}

type submitFunc func(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error)

// Adapter dispatches a request to the branch matching the resolved config's
// provider family and polls asynchronous tasks to completion.
type Adapter struct {
	httpClient   *http.Client
	images       ImageResolver
	logger       zerolog.Logger
	strategies   map[string]submitFunc
	pollInterval time.Duration
	pollAttempts int
}

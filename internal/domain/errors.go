package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured means no active provider config exists for a
	// capability. Fatal for the request; never queued or retried.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrAuth marks provider 401/403 responses so callers can treat the
	// configuration itself as broken rather than the individual request.
	ErrAuth = errors.New("provider authentication failed")

	// ErrTimeout means a poll budget was exhausted before the provider
	// reported a terminal status. Distinct from a provider-reported failure.
	ErrTimeout = errors.New("generation timed out")

	ErrProviderFailure = errors.New("provider failure")

	// ErrNoJSON means no JSON value could be located in model output.
	ErrNoJSON = errors.New("no json value found")

	ErrNoValidSegments  = errors.New("no valid video segments")
	ErrResolutionFailed = errors.New("segment resolution failed")
)

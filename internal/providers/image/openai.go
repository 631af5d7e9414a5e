package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"shortreel/internal/domain"
	"shortreel/internal/providers"
)

var seedreamModel = regexp.MustCompile(`(?i)seedream|doubao`)

type openAIImageRequest struct {
	Model     string   `json:"model"`
	Prompt    string   `json:"prompt"`
	N         *int     `json:"n,omitempty"`
	Size      string   `json:"size,omitempty"`
	Quality   string   `json:"quality,omitempty"`
	Watermark *bool    `json:"watermark,omitempty"`
	Image     []string `json:"image,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		URL      string `json:"url"`
		ImageURL string `json:"image_url"`
		B64JSON  string `json:"b64_json"`
	} `json:"data"`
}

// generateOpenAI speaks the /images/generations dialect shared by OpenAI,
// chatfire-style proxies and Volcengine. The doubao-seedream family deviates
// slightly: no n parameter, watermark off, references in an image array.
func (a *Adapter) generateOpenAI(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error) {
	url := providers.JoinURL(cfg.BaseURL, cfg.Endpoint, "/images/generations")
	provider := cfg.ProviderName()
	isVolc := provider == "volces" || provider == "volcengine" || provider == "volc"
	isSeedream := seedreamModel.MatchString(model)

	refs := a.outboundRefs(req.ReferenceImages)

	body := openAIImageRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
	}
	if !isSeedream {
		n := 1
		body.N = &n
	}
	if isVolc || isSeedream {
		off := false
		body.Watermark = &off
	}
	if len(refs) > 0 {
		body.Image = refs
	}

	a.logger.Info().
		Str("url", url).
		Str("model", model).
		Int64("generation_id", req.GenerationID).
		Int("reference_count", len(refs)).
		Msg("image request")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError(provider, resp.StatusCode, raw)
	}

	var decoded openAIImageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, errEmptyImage
	}
	item := decoded.Data[0]
	switch {
	case item.URL != "":
		return &Result{ImageURL: item.URL}, nil
	case item.ImageURL != "":
		return &Result{ImageURL: item.ImageURL}, nil
	case item.B64JSON != "":
		return &Result{ImageURL: strings.TrimSpace(item.B64JSON)}, nil
	}
	return nil, errEmptyImage
}

package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"shortreel/internal/domain"
	"shortreel/internal/providers"
)

const (
	nanoBananaDefaultBase    = "https://api.nanobananaapi.ai"
	nanoBananaDefaultQuery   = "/api/v1/nanobanana/record-info"
	nanoBananaPlaceholderURL = "https://placeholder.no-op/callback"
)

var nanoBananaNativeEndpoints = map[string]bool{
	"/api/v1/nanobanana/generate-2":   true,
	"/api/v1/nanobanana/generate-pro": true,
	"/api/v1/nanobanana/generate":     true,
}

var ratioExpr = regexp.MustCompile(`^(\d+)[x*](\d+)$`)

var nanoBananaRatios = map[string]bool{
	"1:1": true, "16:9": true, "9:16": true, "4:3": true, "3:4": true,
	"3:2": true, "2:3": true, "5:4": true, "4:5": true, "21:9": true,
}

// nanoBananaAspectRatio maps a free-form size to the closest supported
// aspect ratio. Already-valid ratios pass through; anything unparseable
// becomes "auto".
func nanoBananaAspectRatio(size string) string {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(size)), " ", "")
	if nanoBananaRatios[s] {
		return s
	}
	m := ratioExpr.FindStringSubmatch(s)
	if m == nil {
		return "auto"
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w == 0 || h == 0 {
		return "auto"
	}
	r := float64(w) / float64(h)
	switch {
	case r > 2:
		return "21:9"
	case r >= 1.6:
		return "16:9"
	case r >= 1.2:
		return "4:3"
	case r >= 0.9:
		return "1:1"
	case r >= 0.7:
		return "3:4"
	case r >= 0.55:
		return "4:5"
	default:
		return "9:16"
	}
}

type nanoBananaSubmitResponse struct {
	Msg     string `json:"msg"`
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
	ReqID   string `json:"request_id"`
	URL     string `json:"url"`
	Data    struct {
		TaskID string `json:"taskId"`
		URL    string `json:"url"`
	} `json:"data"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
	ImageURL string `json:"image_url"`
}

func (r *nanoBananaSubmitResponse) directImageURL() string {
	switch {
	case len(r.Images) > 0 && r.Images[0].URL != "":
		return r.Images[0].URL
	case r.Image.URL != "":
		return r.Image.URL
	case r.ImageURL != "":
		return r.ImageURL
	case r.Data.URL != "":
		return r.Data.URL
	case r.URL != "":
		return r.URL
	}
	return ""
}

func (r *nanoBananaSubmitResponse) taskID() string {
	switch {
	case r.Data.TaskID != "":
		return r.Data.TaskID
	case r.ReqID != "":
		return r.ReqID
	}
	return r.TaskID
}

type nanoBananaRecordResponse struct {
	Data struct {
		SuccessFlag  *int   `json:"successFlag"`
		ErrorMessage string `json:"errorMessage"`
		Response     struct {
			ResultImageURL string `json:"resultImageUrl"`
			OriginImageURL string `json:"originImageUrl"`
		} `json:"response"`
	} `json:"data"`
}

// generateNanoBanana submits an async task and polls record-info until the
// successFlag resolves: 1 success, 2 or 3 failure, 0 still running. A config
// whose endpoint is not one of the native paths is treated as a proxy and may
// answer synchronously with a direct image URL.
func (a *Adapter) generateNanoBanana(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = nanoBananaDefaultBase
	}
	refs := a.outboundRefs(req.ReferenceImages)
	aspect := nanoBananaAspectRatio(req.Size)
	m := strings.ToLower(model)
	if m == "" {
		m = "nano-banana-2"
	}

	cfgEp := strings.TrimSpace(cfg.Endpoint)
	if cfgEp != "" && !strings.HasPrefix(cfgEp, "/") {
		cfgEp = "/" + cfgEp
	}
	proxyMode := cfgEp != "" && !nanoBananaNativeEndpoints[cfgEp]

	var submitURL string
	body := map[string]any{
		"prompt":    req.Prompt,
		"imageUrls": refs,
	}
	switch {
	case proxyMode:
		submitURL = base + cfgEp
		body["aspectRatio"] = orLandscape(aspect)
		body["resolution"] = "1K"
	case m == "nano-banana-2":
		submitURL = base + "/api/v1/nanobanana/generate-2"
		body["aspectRatio"] = aspect
		body["resolution"] = "1K"
		body["outputFormat"] = "jpg"
	case m == "nano-banana-pro":
		submitURL = base + "/api/v1/nanobanana/generate-pro"
		body["aspectRatio"] = orLandscape(aspect)
		body["resolution"] = "2K"
	default:
		// The base model requires a callback URL; a placeholder keeps the
		// flow on server-side polling.
		submitURL = base + "/api/v1/nanobanana/generate"
		kind := "TEXTTOIAMGE"
		if len(refs) > 0 {
			kind = "IMAGETOIAMGE"
		}
		body["type"] = kind
		body["image_size"] = orLandscape(aspect)
		body["numImages"] = 1
		body["callBackUrl"] = nanoBananaPlaceholderURL
	}

	a.logger.Info().
		Str("url", submitURL).
		Str("model", m).
		Int64("generation_id", req.GenerationID).
		Bool("proxy_mode", proxyMode).
		Int("reference_count", len(refs)).
		Msg("nanobanana submit")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal nanobanana request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build nanobanana request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nanobanana submit: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read nanobanana response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError("nano_banana", resp.StatusCode, raw)
	}

	var submitted nanoBananaSubmitResponse
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return nil, fmt.Errorf("decode nanobanana response: %w", err)
	}
	// Some proxies answer synchronously; no polling needed.
	if direct := submitted.directImageURL(); direct != "" {
		return &Result{ImageURL: direct}, nil
	}
	taskID := submitted.taskID()
	if taskID == "" {
		msg := submitted.Msg
		if msg == "" {
			msg = submitted.Message
		}
		if msg == "" {
			msg = "no task id in response"
		}
		return nil, fmt.Errorf("nanobanana submit rejected: %s", msg)
	}

	queryURL := a.nanoBananaQueryURL(base, cfg.QueryEndpoint, taskID)
	a.logger.Info().
		Str("task_id", taskID).
		Int64("generation_id", req.GenerationID).
		Msg("nanobanana task submitted, polling")

	for attempt := 0; attempt < a.pollAttempts; attempt++ {
		if err := a.sleep(ctx, a.pollInterval); err != nil {
			return nil, err
		}
		record, err := a.fetchNanoBananaRecord(ctx, queryURL, cfg.APIKey)
		if err != nil {
			a.logger.Warn().Err(err).Int("attempt", attempt).Msg("nanobanana poll failed")
			continue
		}
		if record.Data.SuccessFlag == nil {
			continue
		}
		switch *record.Data.SuccessFlag {
		case 1:
			if u := record.Data.Response.ResultImageURL; u != "" {
				return &Result{ImageURL: u}, nil
			}
			if u := record.Data.Response.OriginImageURL; u != "" {
				return &Result{ImageURL: u}, nil
			}
			return nil, errEmptyImage
		case 2, 3:
			msg := record.Data.ErrorMessage
			if msg == "" {
				msg = "task failed"
			}
			return nil, fmt.Errorf("nanobanana: %w: %s", domain.ErrProviderFailure, msg)
		}
	}
	return nil, fmt.Errorf("nanobanana task %s: %w", taskID, domain.ErrTimeout)
}

func (a *Adapter) nanoBananaQueryURL(base, queryEndpoint, taskID string) string {
	ep := strings.TrimSpace(queryEndpoint)
	if ep != "" && !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	if ep == "" {
		ep = nanoBananaDefaultQuery
	}
	if strings.Contains(ep, "{taskId}") {
		return base + strings.ReplaceAll(ep, "{taskId}", url.QueryEscape(taskID))
	}
	return base + ep + "?taskId=" + url.QueryEscape(taskID)
}

func (a *Adapter) fetchNanoBananaRecord(ctx context.Context, queryURL, apiKey string) (*nanoBananaRecordResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll status %d", resp.StatusCode)
	}
	var record nanoBananaRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

func orLandscape(aspect string) string {
	if aspect == "auto" {
		return "16:9"
	}
	return aspect
}

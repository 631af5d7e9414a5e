package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"shortreel/internal/domain"
	"shortreel/internal/providers"
)

// Ark (Volcengine) content generation tasks live under a fixed path; the
// configured base may carry a stale sub-path that must be stripped.
const (
	arkTasksPath   = "/contents/generations/tasks"
	arkDefaultBase = "https://ark.cn-beijing.volces.com/api/v3"
)

var arkStaleSuffix = regexp.MustCompile(`(?i)/(contents|video)/.*$`)

// arkModelAliases maps the display names configs tend to carry to the
// endpoint IDs the API actually accepts.
var arkModelAliases = map[string]string{
	"doubao-seedance-1.0-pro-fast": "doubao-seedance-1-0-pro-250528",
	"doubao-seedance-1.0-pro":      "doubao-seedance-1-0-pro-250528",
	"doubao-seedance-1-0-pro":      "doubao-seedance-1-0-pro-250528",
	"doubao-seedance-1.0-lite":     "doubao-seedance-1-0-lite-250428",
	"doubao-seedance-1-0-lite":     "doubao-seedance-1-0-lite-250428",
	"doubao-seedance-1.5-pro":      "doubao-seedance-1-5-pro-251215",
	"doubao-seedance-1-5-pro":      "doubao-seedance-1-5-pro-251215",
}

func normalizeArkModel(name string) string {
	if alias, ok := arkModelAliases[strings.ToLower(name)]; ok {
		return alias
	}
	return name
}

func arkBase(cfg *domain.ProviderConfig) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	base = arkStaleSuffix.ReplaceAllString(base, "")
	if base == "" {
		return arkDefaultBase
	}
	return base
}

func isArkProvider(name string) bool {
	return name == "volces" || name == "volcengine" || name == "volc"
}

type arkContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Role     string `json:"role,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type arkVideoRequest struct {
	Model       string           `json:"model"`
	Content     []arkContentPart `json:"content"`
	Ratio       string           `json:"ratio"`
	Duration    int              `json:"duration"`
	Watermark   bool             `json:"watermark"`
	Resolution  string           `json:"resolution,omitempty"`
	Seed        *int64           `json:"seed,omitempty"`
	CameraFixed *bool            `json:"camera_fixed,omitempty"`
	TaskType    string           `json:"task_type,omitempty"`
}

type arkVideoResponse struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Data     struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
	} `json:"data"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error json.RawMessage `json:"error"`
}

func (r *arkVideoResponse) taskID() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.TaskID != "":
		return r.TaskID
	}
	return r.Data.ID
}

func (r *arkVideoResponse) videoURL() string {
	switch {
	case r.VideoURL != "":
		return r.VideoURL
	case r.Data.VideoURL != "":
		return r.Data.VideoURL
	}
	return r.Content.VideoURL
}

func (r *arkVideoResponse) status() string {
	if r.Status != "" {
		return r.Status
	}
	return r.Data.Status
}

func (r *arkVideoResponse) errorMessage() string {
	if len(r.Error) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(r.Error, &plain); err == nil {
		return plain
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

// submitArk speaks the Volcengine Ark content-generation dialect, which the
// ChatFire-style proxies also accept. seedance-1-5-pro rejects implicit r2v,
// so the task type is always set explicitly on Ark configs: i2v with a first
// frame, t2v otherwise.
func (a *Adapter) submitArk(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error) {
	provider := cfg.ProviderName()
	isVolc := isArkProvider(provider)

	var submitURL string
	if isVolc {
		submitURL = arkBase(cfg) + arkTasksPath
	} else {
		submitURL = providers.JoinURL(cfg.BaseURL, cfg.Endpoint, "/video/generations")
	}

	finalModel := model
	if isVolc {
		finalModel = normalizeArkModel(model)
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 5
	}
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = "16:9"
	}

	imageURL := a.resolveImage(req.ImageURL)
	hasImage := imageURL != ""

	body := arkVideoRequest{
		Model:       finalModel,
		Content:     []arkContentPart{{Type: "text", Text: req.Prompt}},
		Ratio:       ratio,
		Duration:    duration,
		Resolution:  req.Resolution,
		Seed:        req.Seed,
		CameraFixed: req.CameraFixed,
	}
	if req.Watermark != nil {
		body.Watermark = *req.Watermark
	}
	if isVolc {
		if hasImage {
			body.TaskType = "i2v"
		} else {
			body.TaskType = "t2v"
		}
	}
	if hasImage {
		part := arkContentPart{Type: "image_url"}
		part.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: imageURL}
		// An i2v first frame must not be tagged as a reference image or the
		// API reclassifies the task.
		if body.TaskType != "i2v" {
			part.Role = "reference_image"
		}
		body.Content = append(body.Content, part)
	}

	a.logger.Info().
		Str("url", submitURL).
		Str("model", finalModel).
		Str("task_type", body.TaskType).
		Int64("generation_id", req.GenerationID).
		Msg("video submit")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal video request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build video request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("video submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read video response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError(provider, resp.StatusCode, raw)
	}

	var decoded arkVideoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode video response: %w", err)
	}
	if u := decoded.videoURL(); u != "" {
		return &Result{VideoURL: u}, nil
	}
	if id := decoded.taskID(); id != "" {
		status := decoded.status()
		if status == "" {
			status = "processing"
		}
		return &Result{TaskID: id, Status: status}, nil
	}
	return nil, errEmptyVideo
}

// pollArk reads the task state once from the Ark or proxy query endpoint.
func (a *Adapter) pollArk(ctx context.Context, cfg *domain.ProviderConfig, taskID string) (*Result, error) {
	provider := cfg.ProviderName()
	var queryURL string
	if isArkProvider(provider) {
		queryURL = arkBase(cfg) + arkTasksPath + "/" + url.PathEscape(taskID)
	} else {
		ep := strings.TrimSpace(cfg.QueryEndpoint)
		if ep == "" {
			ep = "/video/task/{taskId}"
		}
		ep = strings.ReplaceAll(ep, "{taskId}", taskID)
		ep = strings.ReplaceAll(ep, "{task_id}", taskID)
		if !strings.HasPrefix(ep, "/") {
			ep = "/" + ep
		}
		queryURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + ep
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll status %d", resp.StatusCode)
	}

	var decoded arkVideoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if u := decoded.videoURL(); u != "" {
		return &Result{VideoURL: u, Status: decoded.status()}, nil
	}
	status := decoded.status()
	if msg := decoded.errorMessage(); msg != "" || status == "failed" || status == "error" {
		if msg == "" {
			msg = status
		}
		return nil, fmt.Errorf("%s: %w: %s", provider, domain.ErrProviderFailure, msg)
	}
	return &Result{TaskID: taskID, Status: status}, nil
}

package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"shortreel/internal/domain"
	"shortreel/internal/providers"
)

const (
	dashScopeVideoGeneration = "/api/v1/services/aigc/video-generation/video-synthesis"
	dashScopeImage2Video     = "/api/v1/services/aigc/image2video/video-synthesis"
	dashScopeTaskQuery       = "/api/v1/tasks/{taskId}"
)

type dashScopeVideoRequest struct {
	Model      string         `json:"model"`
	Input      map[string]any `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type dashScopeVideoResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Output  struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Message    string `json:"message"`
		VideoURL   string `json:"video_url"`
		Output     struct {
			VideoURL string `json:"video_url"`
		} `json:"output"`
		Results []struct {
			VideoURL string `json:"video_url"`
			Output   struct {
				VideoURL string `json:"video_url"`
			} `json:"output"`
		} `json:"results"`
		Choices []struct {
			Message struct {
				Content []struct {
					VideoURL string `json:"video_url"`
					URL      string `json:"url"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

// videoURL digs the video location out of the response shapes the wan
// families return.
func (r *dashScopeVideoResponse) videoURL() string {
	out := &r.Output
	if out.VideoURL != "" {
		return out.VideoURL
	}
	if out.Output.VideoURL != "" {
		return out.Output.VideoURL
	}
	if len(out.Results) > 0 {
		if u := out.Results[0].VideoURL; u != "" {
			return u
		}
		if u := out.Results[0].Output.VideoURL; u != "" {
			return u
		}
	}
	for _, c := range out.Choices {
		for _, part := range c.Message.Content {
			if part.VideoURL != "" {
				return part.VideoURL
			}
			if part.URL != "" {
				return part.URL
			}
		}
	}
	return ""
}

// submitDashScope builds the model-family-specific request:
//   - wan2.2-kf2v-flash: image2video endpoint, first and last frame
//   - wan2.6-t2v: text to video
//   - wan2.6-i2v-flash: first frame to video
//   - wanx2.1-vace-plus: up to 3 reference images, function image_reference
//   - wan2.6-r2v-flash: up to 5 reference images or videos
func (a *Adapter) submitDashScope(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if model == "" {
		model = "wan2.2-kf2v-flash"
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 10
	}

	var (
		url  string
		body dashScopeVideoRequest
	)
	body.Model = model

	switch model {
	case "wan2.2-kf2v-flash":
		url = base + dashScopeImage2Video
		first := strings.TrimSpace(req.FirstFrameURL)
		if first == "" {
			first = strings.TrimSpace(req.ImageURL)
		}
		last := strings.TrimSpace(req.LastFrameURL)
		if last == "" {
			last = first
		}
		firstURL := a.resolveImage(first)
		lastURL := a.resolveImage(last)
		if firstURL == "" || lastURL == "" {
			return nil, fmt.Errorf("model %s requires first and last frame images", model)
		}
		body.Input = map[string]any{
			"prompt":          req.Prompt,
			"first_frame_url": firstURL,
			"last_frame_url":  lastURL,
		}
		body.Parameters = map[string]any{"resolution": "480P", "prompt_extend": true}
	case "wan2.6-t2v":
		url = base + dashScopeVideoGeneration
		body.Input = map[string]any{"prompt": req.Prompt}
		body.Parameters = map[string]any{
			"size":          "1280*720",
			"prompt_extend": true,
			"duration":      duration,
			"shot_type":     "multi",
		}
	case "wan2.6-i2v-flash":
		url = base + dashScopeVideoGeneration
		img := strings.TrimSpace(req.ImageURL)
		if img == "" {
			img = strings.TrimSpace(req.FirstFrameURL)
		}
		imgURL := a.resolveImage(img)
		if imgURL == "" {
			return nil, fmt.Errorf("model %s requires a first frame image", model)
		}
		body.Input = map[string]any{"prompt": req.Prompt, "img_url": imgURL}
		body.Parameters = map[string]any{
			"resolution":    "720P",
			"prompt_extend": true,
			"duration":      duration,
			"shot_type":     "multi",
		}
	case "wanx2.1-vace-plus":
		url = base + dashScopeVideoGeneration
		refs := a.resolveImages(req.ReferenceImages, maxVaceReferences)
		if len(refs) == 0 {
			return nil, fmt.Errorf("model %s requires reference images", model)
		}
		body.Input = map[string]any{
			"function":       "image_reference",
			"prompt":         req.Prompt,
			"ref_images_url": refs,
		}
		body.Parameters = map[string]any{
			"prompt_extend": true,
			"obj_or_bg":     []string{"obj", "bg"},
			"size":          "1280*720",
		}
	case "wan2.6-r2v-flash":
		url = base + dashScopeVideoGeneration
		refs := a.resolveImages(req.ReferenceImages, maxR2VReferences)
		if len(refs) == 0 {
			return nil, fmt.Errorf("model %s requires reference images or videos", model)
		}
		body.Input = map[string]any{"prompt": req.Prompt, "reference_urls": refs}
		body.Parameters = map[string]any{"prompt_extend": true}
	default:
		return nil, fmt.Errorf("unsupported dashscope video model %q", model)
	}

	a.logger.Info().
		Str("model", model).
		Int64("generation_id", req.GenerationID).
		Msg("dashscope video submit")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal dashscope video request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build dashscope video request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dashscope video submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dashscope video response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError("dashscope", resp.StatusCode, raw)
	}

	var decoded dashScopeVideoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode dashscope video response: %w", err)
	}
	if decoded.Code != "" {
		msg := decoded.Message
		if msg == "" {
			msg = decoded.Code
		}
		return nil, fmt.Errorf("dashscope: %s", msg)
	}
	if decoded.Output.TaskID != "" {
		return &Result{TaskID: decoded.Output.TaskID, Status: "PENDING"}, nil
	}
	if u := decoded.videoURL(); u != "" {
		return &Result{VideoURL: u}, nil
	}
	return nil, errEmptyVideo
}

// pollDashScope reads the task state once. A FAILED or CANCELED status is a
// terminal provider failure, not a timeout.
func (a *Adapter) pollDashScope(ctx context.Context, cfg *domain.ProviderConfig, taskID string) (*Result, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	ep := strings.TrimSpace(cfg.QueryEndpoint)
	if ep == "" {
		ep = dashScopeTaskQuery
	}
	ep = strings.ReplaceAll(ep, "{taskId}", taskID)
	ep = strings.ReplaceAll(ep, "{task_id}", taskID)
	if !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+ep, nil)
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

	var decoded dashScopeVideoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if u := decoded.videoURL(); u != "" {
		return &Result{VideoURL: u, Status: decoded.Output.TaskStatus}, nil
	}
	switch decoded.Output.TaskStatus {
	case "FAILED", "CANCELED":
		msg := decoded.Message
		if msg == "" {
			msg = decoded.Output.Message
		}
		if msg == "" {
			msg = decoded.Output.TaskStatus
		}
		return nil, fmt.Errorf("dashscope: %w: %s", domain.ErrProviderFailure, msg)
	}
	return &Result{TaskID: taskID, Status: decoded.Output.TaskStatus}, nil
}

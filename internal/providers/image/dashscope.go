package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"shortreel/internal/domain"
	"shortreel/internal/providers"
)

// DashScope multimodal generation accepts sizes whose total pixel count falls
// inside [768*768, 1280*1280]. Out-of-range sizes are rescaled proportionally
// and snapped to 16-pixel steps.
const (
	dashScopeMinPixels = 589824
	dashScopeMaxPixels = 1638400
)

var sizeExpr = regexp.MustCompile(`^(\d+)\s*\*\s*(\d+)$`)

func dashScopeSize(size string) string {
	const fallback = "1280*1280"
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(size)), "x", "*")
	m := sizeExpr.FindStringSubmatch(s)
	if m == nil {
		return fallback
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w == 0 || h == 0 {
		return fallback
	}
	pixels := w * h
	if pixels >= dashScopeMinPixels && pixels <= dashScopeMaxPixels {
		return fmt.Sprintf("%d*%d", w, h)
	}
	if pixels > dashScopeMaxPixels {
		scale := math.Sqrt(float64(dashScopeMaxPixels) / float64(pixels))
		w = snap16(float64(w)*scale, 16)
		h = snap16(float64(h)*scale, 16)
		if w*h > dashScopeMaxPixels {
			if w > 1280 {
				w = 1280
			}
			if limit := dashScopeMaxPixels / w; h > limit {
				h = limit
			}
			h = h / 16 * 16
		}
		return fmt.Sprintf("%d*%d", w, h)
	}
	scale := math.Sqrt(float64(dashScopeMinPixels) / float64(pixels))
	w = snap16(float64(w)*scale, 384)
	h = snap16(float64(h)*scale, 384)
	return fmt.Sprintf("%d*%d", w, h)
}

func snap16(v float64, min int) int {
	snapped := int(math.Round(v/16)) * 16
	if snapped < min {
		return min
	}
	return snapped
}

// qwen-image only serves a fixed menu of sizes; arbitrary input maps to the
// nearest aspect ratio.
func qwenImageSize(size string) string {
	const fallback = "1664*928"
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(size)), "x", "*")
	m := sizeExpr.FindStringSubmatch(s)
	if m == nil {
		return fallback
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w == 0 || h == 0 {
		return fallback
	}
	ratio := float64(w) / float64(h)
	switch {
	case ratio >= 1.7:
		return "1664*928"
	case ratio >= 1.2:
		return "1472*1104"
	case ratio >= 0.85:
		return "1328*1328"
	case ratio >= 0.65:
		return "1104*1472"
	default:
		return "928*1664"
	}
}

func isQwenImage(cfg *domain.ProviderConfig, model string) bool {
	return cfg.ProviderName() == "qwen_image" || strings.HasPrefix(strings.ToLower(model), "qwen-image")
}

type dashScopeContentPart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type dashScopeMessage struct {
	Role    string                 `json:"role"`
	Content []dashScopeContentPart `json:"content"`
}

type dashScopeImageRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []dashScopeMessage `json:"messages"`
	} `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

type dashScopeImageResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Output  struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Type  string `json:"type"`
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

func (r *dashScopeImageResponse) imageURL() string {
	for _, c := range r.Output.Choices {
		for _, part := range c.Message.Content {
			if part.Image != "" && (part.Type == "image" || part.Type == "") {
				return part.Image
			}
		}
	}
	return ""
}

// generateDashScope handles the Alibaba multimodal generation endpoint. Two
// dialects share it: the wan image family (reference images, streamed when
// interleave is on) and qwen-image (single text part, synchronous).
func (a *Adapter) generateDashScope(ctx context.Context, cfg *domain.ProviderConfig, model string, req Request) (*Result, error) {
	url := providers.JoinURL(cfg.BaseURL, cfg.Endpoint, "/api/v1/services/aigc/multimodal-generation/generation")
	if !strings.Contains(url, "dashscope") {
		return nil, fmt.Errorf("dashscope: base_url must point at dashscope.aliyuncs.com")
	}

	if isQwenImage(cfg, model) {
		return a.generateQwenImage(ctx, cfg, model, url, req)
	}

	refs := a.outboundRefs(req.ReferenceImages)
	content := make([]dashScopeContentPart, 0, 1+len(refs))
	content = append(content, dashScopeContentPart{Text: req.Prompt})
	for _, ref := range refs {
		content = append(content, dashScopeContentPart{Image: ref})
	}

	hasRefs := len(content) > 1
	// Interleaved output requires streaming; reference-image requests run
	// synchronously with interleave off.
	stream := !hasRefs
	body := dashScopeImageRequest{Model: model}
	body.Input.Messages = []dashScopeMessage{{Role: "user", Content: content}}
	body.Parameters = map[string]any{
		"prompt_extend":     true,
		"watermark":         false,
		"n":                 1,
		"enable_interleave": !hasRefs,
		"size":              dashScopeSize(req.Size),
		"stream":            stream,
	}

	a.logger.Info().
		Str("model", model).
		Int64("generation_id", req.GenerationID).
		Int("reference_count", len(refs)).
		Bool("stream", stream).
		Msg("dashscope image request")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal dashscope request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build dashscope request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if stream {
		httpReq.Header.Set("X-DashScope-Sse", "enable")
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dashscope request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dashscope response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError("dashscope", resp.StatusCode, raw)
	}

	if !stream {
		return parseDashScopeBody(raw)
	}
	return parseDashScopeStream(raw)
}

func (a *Adapter) generateQwenImage(ctx context.Context, cfg *domain.ProviderConfig, model, url string, req Request) (*Result, error) {
	// qwen-image takes exactly one text part of at most 800 characters and no
	// reference images.
	text := strings.TrimSpace(req.Prompt)
	if runes := []rune(text); len(runes) > 800 {
		text = string(runes[:800])
	}
	body := dashScopeImageRequest{Model: model}
	body.Input.Messages = []dashScopeMessage{{Role: "user", Content: []dashScopeContentPart{{Text: text}}}}
	body.Parameters = map[string]any{
		"prompt_extend": true,
		"watermark":     false,
		"size":          qwenImageSize(req.Size),
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		if runes := []rune(neg); len(runes) > 500 {
			neg = string(runes[:500])
		}
		body.Parameters["negative_prompt"] = neg
	}

	a.logger.Info().
		Str("model", model).
		Int64("generation_id", req.GenerationID).
		Msg("qwen-image request")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal qwen-image request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build qwen-image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen-image request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read qwen-image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.APIError("qwen_image", resp.StatusCode, raw)
	}
	return parseDashScopeBody(raw)
}

func parseDashScopeBody(raw []byte) (*Result, error) {
	var decoded dashScopeImageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode dashscope response: %w", err)
	}
	if decoded.Code != "" {
		msg := decoded.Message
		if msg == "" {
			msg = decoded.Code
		}
		return nil, fmt.Errorf("dashscope: %s", msg)
	}
	if url := decoded.imageURL(); url != "" {
		return &Result{ImageURL: url}, nil
	}
	return nil, errEmptyImage
}

// parseDashScopeStream scans a streamed body for the last image in any chunk.
// Chunks may be bare JSON lines or SSE "data: {...}" lines; non-JSON lines
// are skipped.
func parseDashScopeStream(raw []byte) (*Result, error) {
	var lastURL string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			line = strings.TrimSpace(rest)
			if line == "" || line == "[DONE]" {
				continue
			}
		}
		var chunk dashScopeImageResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Code != "" {
			msg := chunk.Message
			if msg == "" {
				msg = chunk.Code
			}
			return nil, fmt.Errorf("dashscope: %s", msg)
		}
		if url := chunk.imageURL(); url != "" {
			lastURL = url
		}
	}
	if lastURL != "" {
		return &Result{ImageURL: lastURL}, nil
	}
	return nil, errEmptyImage
}

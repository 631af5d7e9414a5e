package image

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	return NewAdapter(Options{
		Logger:       zerolog.New(io.Discard),
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	})
}

func configFor(provider, baseURL, model string) *domain.ProviderConfig {
	return &domain.ProviderConfig{
		Provider: provider,
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Models:   []string{model},
		IsActive: true,
	}
}

func TestDashScopeSize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1280*1280", "1280*1280"},
		{"1024x1024", "1024*1024"},
		{"", "1280*1280"},
		{"banana", "1280*1280"},
		{"1920*1080", "1280*960"},
		{"512*512", "768*768"},
	}
	for _, tc := range cases {
		if got := dashScopeSize(tc.in); got != tc.want {
			t.Errorf("dashScopeSize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDashScopeSizeIdempotent(t *testing.T) {
	for _, in := range []string{"1920*1080", "512*512", "4096*4096", "800*600"} {
		once := dashScopeSize(in)
		if twice := dashScopeSize(once); twice != once {
			t.Fatalf("dashScopeSize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestQwenImageSize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1920*1080", "1664*928"},
		{"1024*768", "1472*1104"},
		{"1024*1024", "1328*1328"},
		{"768*1024", "1104*1472"},
		{"1080*1920", "928*1664"},
		{"", "1664*928"},
	}
	for _, tc := range cases {
		if got := qwenImageSize(tc.in); got != tc.want {
			t.Errorf("qwenImageSize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNanoBananaAspectRatio(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"16:9", "16:9"},
		{"1920x1080", "16:9"},
		{"1080*1920", "9:16"},
		{"1024*1024", "1:1"},
		{"2560*1080", "21:9"},
		{"", "auto"},
		{"whatever", "auto"},
	}
	for _, tc := range cases {
		if got := nanoBananaAspectRatio(tc.in); got != tc.want {
			t.Errorf("nanoBananaAspectRatio(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReferenceImagesCapped(t *testing.T) {
	a := testAdapter(t)
	refs := make([]string, 14)
	for i := range refs {
		refs[i] = "https://example.com/ref" + strconv.Itoa(i) + ".png"
	}
	resolved := a.outboundRefs(refs)
	if len(resolved) != maxReferenceImages {
		t.Fatalf("expected %d refs, got %d", maxReferenceImages, len(resolved))
	}
}

func TestGenerateOpenAIStyle(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"url":"https://cdn.example.com/out.png"}]}`)
	}))
	defer srv.Close()

	a := testAdapter(t)
	res, err := a.Generate(context.Background(), configFor("openai", srv.URL, "dall-e-3"), Request{Prompt: "a cat"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.ImageURL != "https://cdn.example.com/out.png" {
		t.Fatalf("unexpected image url %q", res.ImageURL)
	}
	if _, ok := got["n"]; !ok {
		t.Fatalf("expected n in request body for non-seedream model")
	}
	if _, ok := got["watermark"]; ok {
		t.Fatalf("watermark must be absent for plain openai")
	}
}

func TestGenerateSeedreamOmitsNAndDisablesWatermark(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"data":[{"url":"https://cdn.example.com/seed.png"}]}`)
	}))
	defer srv.Close()

	a := testAdapter(t)
	_, err := a.Generate(context.Background(), configFor("chatfire", srv.URL, "doubao-seedream-4"), Request{Prompt: "a dog"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if _, ok := got["n"]; ok {
		t.Fatalf("seedream request must not carry n")
	}
	if wm, ok := got["watermark"]; !ok || wm != false {
		t.Fatalf("seedream request must carry watermark:false, got %v", got["watermark"])
	}
}

func TestGenerateAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	a := testAdapter(t)
	_, err := a.Generate(context.Background(), configFor("openai", srv.URL, "dall-e-3"), Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestParseDashScopeStreamLastImageWins(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"output":{"choices":[{"message":{"content":[{"type":"text","text":"partial"}]}}]}}`,
		`data: {"output":{"choices":[{"message":{"content":[{"type":"image","image":"https://first.png"}]}}]}}`,
		`data: {"output":{"choices":[{"message":{"content":[{"image":"https://last.png"}]}}]}}`,
		`data: [DONE]`,
	}, "\n")
	res, err := parseDashScopeStream([]byte(raw))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if res.ImageURL != "https://last.png" {
		t.Fatalf("expected last image, got %q", res.ImageURL)
	}
}

func TestParseDashScopeStreamChunkError(t *testing.T) {
	raw := `data: {"code":"InvalidParameter","message":"size out of range"}`
	_, err := parseDashScopeStream([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "size out of range") {
		t.Fatalf("expected chunk error, got %v", err)
	}
}

func TestGenerateNanoBananaPollsToSuccess(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/nanobanana/generate-2":
			io.WriteString(w, `{"data":{"taskId":"task-1"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/nanobanana/record-info":
			polls++
			if polls < 3 {
				io.WriteString(w, `{"data":{"successFlag":0}}`)
				return
			}
			io.WriteString(w, `{"data":{"successFlag":1,"response":{"resultImageUrl":"https://cdn.example.com/nb.jpg"}}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := testAdapter(t)
	res, err := a.Generate(context.Background(), configFor("nano_banana", srv.URL, "nano-banana-2"), Request{Prompt: "x", Size: "16:9"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.ImageURL != "https://cdn.example.com/nb.jpg" {
		t.Fatalf("unexpected image url %q", res.ImageURL)
	}
	if polls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
}

func TestGenerateNanoBananaFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			io.WriteString(w, `{"data":{"taskId":"task-2"}}`)
			return
		}
		io.WriteString(w, `{"data":{"successFlag":2,"errorMessage":"content rejected"}}`)
	}))
	defer srv.Close()

	a := testAdapter(t)
	_, err := a.Generate(context.Background(), configFor("nano_banana", srv.URL, "nano-banana-2"), Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
}

func TestGenerateNanoBananaPollExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			io.WriteString(w, `{"data":{"taskId":"task-3"}}`)
			return
		}
		io.WriteString(w, `{"data":{"successFlag":0}}`)
	}))
	defer srv.Close()

	a := testAdapter(t)
	_, err := a.Generate(context.Background(), configFor("nano_banana", srv.URL, "nano-banana-2"), Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout on poll exhaustion, got %v", err)
	}
}

func TestGenerateNanoBananaSynchronousProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proxy/generate" {
			t.Errorf("proxy mode must use configured endpoint, got %s", r.URL.Path)
		}
		io.WriteString(w, `{"images":[{"url":"https://proxy.example.com/sync.jpg"}]}`)
	}))
	defer srv.Close()

	cfg := configFor("nano_banana", srv.URL, "nano-banana-2")
	cfg.Endpoint = "/proxy/generate"
	a := testAdapter(t)
	res, err := a.Generate(context.Background(), cfg, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.ImageURL != "https://proxy.example.com/sync.jpg" {
		t.Fatalf("unexpected image url %q", res.ImageURL)
	}
}

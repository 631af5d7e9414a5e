// Package media moves images and clips between remote providers and the
// local storage root. Localize makes ephemeral provider outputs durable;
// Outbound converts locally-stored references into a form a remote provider
// can actually dereference.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shortreel/internal/storage"
)

var localhostPattern = regexp.MustCompile(`(?i)localhost|127\.0\.0\.1`)

// Localizer resolves media references in both directions relative to this
// service's storage root and static file base URL.
type Localizer struct {
	store        *storage.FileStore
	filesBaseURL string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewLocalizer wires a Localizer. filesBaseURL is the public base under which
// the storage root is served (e.g. http://localhost:5679/static).
func NewLocalizer(store *storage.FileStore, filesBaseURL string, httpClient *http.Client, logger zerolog.Logger) *Localizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Localizer{
		store:        store,
		filesBaseURL: strings.TrimRight(strings.TrimSpace(filesBaseURL), "/"),
		httpClient:   httpClient,
		logger:       logger,
	}
}

// Localize copies a remote URL or data URI into storage under category and
// returns the storage-relative path. Best-effort by contract: any failure
// returns ok=false, never an error, so callers must handle the miss.
func (l *Localizer) Localize(ctx context.Context, value, category, prefix string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	var data []byte
	var ext string
	if strings.HasPrefix(value, "data:") {
		var ok bool
		data, ext, ok = decodeDataURL(value)
		if !ok {
			l.logger.Warn().Str("category", category).Msg("localize: invalid data url")
			return "", false
		}
	} else if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		var err error
		data, ext, err = l.download(ctx, value)
		if err != nil {
			l.logger.Warn().Err(err).Str("category", category).Msg("localize: download failed")
			return "", false
		}
	} else {
		// Raw base64 without the data: envelope shows up from some providers'
		// b64_json fields.
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", false
		}
		data, ext = decoded, sniffExtension(decoded)
	}

	key := storage.ObjectKey(category, prefix, ext)
	written, err := l.store.Write(ctx, key, data)
	if err != nil {
		l.logger.Warn().Err(err).Str("category", category).Msg("localize: write failed")
		return "", false
	}
	l.logger.Info().Str("category", category).Str("local_path", written).Msg("media saved to local storage")
	return written, true
}

// Outbound converts value into a reference an external provider can consume.
// Public URLs pass through unchanged. References on this service's own host,
// and bare storage-relative paths, are read from disk and inlined as a data
// URI because remote providers cannot reach a localhost static server. An
// unreadable file falls back to best-effort URL reconstruction.
func (l *Localizer) Outbound(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "data:") {
		return value
	}

	rel := ""
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if !l.ownHost(value) {
			return value
		}
		rel = l.relativeFromURL(value)
		if rel == "" {
			return value
		}
	} else {
		rel = strings.TrimPrefix(value, "/")
	}

	data, err := l.store.Read(rel)
	if err != nil {
		return l.publicURL(value)
	}
	mime := mimeByExtension(path.Ext(rel))
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PublicURL maps a storage-relative path to its URL under the static base.
func (l *Localizer) PublicURL(rel string) string {
	return l.publicURL(rel)
}

// LocalPathFor maps a reference back to a storage-relative path when it lives
// under this service's own static base, or is already relative. Returns
// ok=false for foreign URLs.
func (l *Localizer) LocalPathFor(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if !l.ownHost(value) {
			return "", false
		}
		rel := l.relativeFromURL(value)
		return rel, rel != ""
	}
	return strings.TrimPrefix(value, "/"), true
}

func (l *Localizer) ownHost(u string) bool {
	if l.filesBaseURL == "" {
		return false
	}
	if strings.HasPrefix(u, l.filesBaseURL) {
		return true
	}
	return localhostPattern.MatchString(l.filesBaseURL) && localhostPattern.MatchString(u)
}

func (l *Localizer) relativeFromURL(u string) string {
	if l.filesBaseURL != "" && strings.HasPrefix(u, l.filesBaseURL) {
		return strings.TrimPrefix(strings.TrimPrefix(u, l.filesBaseURL), "/")
	}
	// Older records keep full URLs under a different port; the path segment
	// after /static/ still maps onto the storage root.
	if _, after, found := strings.Cut(u, "/static/"); found {
		return after
	}
	return ""
}

func (l *Localizer) publicURL(value string) string {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	if l.filesBaseURL == "" {
		return value
	}
	return l.filesBaseURL + "/" + strings.TrimPrefix(value, "/")
}

func (l *Localizer) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	ext := extensionByMIME(resp.Header.Get("Content-Type"))
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(strippedPath(rawURL)), ".")
	}
	if ext == "" {
		ext = sniffExtension(data)
	}
	return data, ext, nil
}

func strippedPath(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}

func decodeDataURL(value string) (data []byte, ext string, ok bool) {
	rest := strings.TrimPrefix(value, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", false
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", false
	}
	mime := strings.TrimSuffix(meta, ";base64")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	ext = extensionByMIME(mime)
	if ext == "" {
		ext = "png"
	}
	return decoded, ext, true
}

func extensionByMIME(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	}
	return ""
}

func mimeByExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "gif":
		return "image/gif"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	}
	return "image/png"
}

func sniffExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	}
	return "png"
}

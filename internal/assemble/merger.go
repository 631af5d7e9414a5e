package assemble

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"shortreel/internal/domain"
	"shortreel/internal/media"
	"shortreel/internal/storage"
)

// Output holds the outcome of one merge run.
type Output struct {
	// MergedPath is storage-relative when ffmpeg produced a new file, or the
	// first clip's original reference on the fallback path.
	MergedPath string
	// Duration is the rounded sum of the input clip durations.
	Duration int
	// Fallback is true when concatenation was skipped or failed and the first
	// clip stands in for the whole.
	Fallback bool
}

// Merger concatenates clips from mixed sources: local storage, absolute
// paths, and remote URLs downloaded to a bounded temp area.
type Merger struct {
	store      *storage.FileStore
	localizer  *media.Localizer
	httpClient *http.Client
	logger     zerolog.Logger
	ffmpegBin  string
	downloads  *semaphore.Weighted
	tempDir    string
}

// MergerOptions configures a Merger.
type MergerOptions struct {
	Store      *storage.FileStore
	Localizer  *media.Localizer
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// FFmpegPath overrides binary discovery; empty means resolve via
	// FFmpegPath().
	FFmpegPath string
	// MaxDownloads bounds concurrent clip downloads.
	MaxDownloads int
	TempDir      string
}

func NewMerger(opts MergerOptions) *Merger {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	maxDownloads := opts.MaxDownloads
	if maxDownloads <= 0 {
		maxDownloads = 4
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "shortreel-merge")
	}
	return &Merger{
		store:      opts.Store,
		localizer:  opts.Localizer,
		httpClient: httpClient,
		logger:     opts.Logger,
		ffmpegBin:  FFmpegPath(opts.FFmpegPath),
		downloads:  semaphore.NewWeighted(int64(maxDownloads)),
		tempDir:    tempDir,
	}
}

const maxConcatClips = 100

// Merge resolves every clip to a local file, concatenates them with ffmpeg,
// and returns the merged output. When no clip resolves it returns
// domain.ErrNoValidSegments. When ffmpeg is unavailable or fails, the first
// clip's reference is returned as a degraded-but-successful result with the
// summed duration.
func (m *Merger) Merge(ctx context.Context, clips []domain.MergeClip) (*Output, error) {
	if len(clips) == 0 {
		return nil, domain.ErrNoValidSegments
	}
	first := strings.TrimSpace(clips[0].VideoURL)
	if first == "" {
		return nil, fmt.Errorf("%w: first clip has no video reference", domain.ErrNoValidSegments)
	}

	var total float64
	for _, c := range clips {
		if c.Duration > 0 {
			total += c.Duration
		}
	}
	duration := int(math.Round(total))

	if err := os.MkdirAll(m.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure temp dir: %w", err)
	}

	localPaths := make([]string, 0, len(clips))
	var cleanup []string
	defer func() {
		for _, p := range cleanup {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				m.logger.Warn().Err(err).Str("path", p).Msg("merge temp cleanup failed")
			}
		}
	}()

	for i, clip := range clips {
		local, temp := m.resolveClip(ctx, clip.VideoURL, i)
		if local == "" {
			continue
		}
		localPaths = append(localPaths, local)
		if temp {
			cleanup = append(cleanup, local)
		}
	}
	if len(localPaths) == 0 {
		return nil, domain.ErrNoValidSegments
	}

	if m.ffmpegBin != "" && len(localPaths) <= maxConcatClips {
		if merged, err := m.concat(ctx, localPaths); err == nil {
			return &Output{MergedPath: merged, Duration: duration}, nil
		} else {
			m.logger.Warn().Err(err).Msg("ffmpeg concat failed, falling back to first clip")
		}
	}

	return &Output{MergedPath: first, Duration: duration, Fallback: true}, nil
}

// resolveClip maps one clip reference to a local file path. temp reports
// whether the file was downloaded and should be removed after the merge.
func (m *Merger) resolveClip(ctx context.Context, videoURL string, index int) (local string, temp bool) {
	u := strings.TrimSpace(videoURL)
	if u == "" {
		return "", false
	}

	// Own static URLs and relative paths map straight into the storage root.
	if rel, ok := m.localizer.LocalPathFor(u); ok && rel != "" {
		if m.store.Exists(rel) {
			abs, err := m.store.AbsPath(rel)
			if err == nil {
				m.logger.Info().Int("index", index).Str("path", abs).Msg("merge: using local storage file")
				return abs, false
			}
		}
	}

	if filepath.IsAbs(u) {
		if info, err := os.Stat(u); err == nil && !info.IsDir() {
			m.logger.Info().Int("index", index).Str("path", u).Msg("merge: using absolute path")
			return u, false
		}
	}

	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", false
	}

	dest, err := m.download(ctx, u, index)
	if err != nil {
		m.logger.Warn().Err(err).Int("index", index).Str("url", u).Msg("merge: clip download failed")
		return "", false
	}
	m.logger.Info().Int("index", index).Str("dest", dest).Msg("merge: clip downloaded to temp")
	return dest, true
}

func (m *Merger) download(ctx context.Context, u string, index int) (string, error) {
	if err := m.downloads.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer m.downloads.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	ext := ".mp4"
	if strings.Contains(u, ".webm") {
		ext = ".webm"
	}
	dest := filepath.Join(m.tempDir, fmt.Sprintf("dl_%d_%d%s", time.Now().UnixMilli(), index, ext))
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// concat writes the concat manifest, runs ffmpeg with stream copy, and
// returns the storage-relative path of the merged file.
func (m *Merger) concat(ctx context.Context, localPaths []string) (string, error) {
	mergedRel := fmt.Sprintf("videos/merged/merged_%d.mp4", time.Now().UnixMilli())
	outputPath, err := m.store.AbsPath(mergedRel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}

	listFile := filepath.Join(m.tempDir, fmt.Sprintf("concat_list_%d.txt", time.Now().UnixMilli()))
	var manifest strings.Builder
	for _, p := range localPaths {
		normalized := strings.ReplaceAll(p, "\\", "/")
		// Single quotes inside a quoted concat entry need the '\'' dance.
		escaped := strings.ReplaceAll(normalized, "'", `'\''`)
		fmt.Fprintf(&manifest, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listFile, []byte(manifest.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	defer os.Remove(listFile)

	cmd := exec.CommandContext(ctx, m.ffmpegBin,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-y",
		outputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return "", fmt.Errorf("ffmpeg concat: %w: %s", err, tail)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return mergedRel, nil
}

// Package assemble concatenates generated clips into one deliverable video
// with ffmpeg, falling back to the first clip when concatenation is not
// possible.
package assemble

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// FFmpegPath resolves the ffmpeg binary: an explicit path wins, then the
// FFMPEG_PATH environment variable, then a bundled copy under tools/ffmpeg,
// then the system PATH. An empty return means no usable binary was found.
func FFmpegPath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}
	if fromEnv := os.Getenv("FFMPEG_PATH"); fromEnv != "" {
		if _, err := os.Stat(fromEnv); err == nil {
			return fromEnv
		}
	}
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}
	local := filepath.Join("tools", "ffmpeg", name)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if found, err := exec.LookPath(name); err == nil {
		return found
	}
	return ""
}

package clips

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultClipSeconds is the length of the trailing window extracted when an
// event fires.
const DefaultClipSeconds = 5.0

// codecFallbacks are tried in order. Re-encoding (instead of stream copy)
// keeps the clip playable even when the cut lands between keyframes.
var codecFallbacks = []string{"libx264", "mpeg4", "libopenh264"}

// runner abstracts command execution so extraction logic is testable
// without ffmpeg on PATH.
type runner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Extractor cuts trailing clips out of source videos with ffmpeg.
type Extractor struct {
	OutputDir string
	run       runner
}

func NewExtractor(outputDir string) *Extractor {
	return &Extractor{OutputDir: outputDir, run: execRunner{}}
}

// Result describes a successfully extracted clip.
type Result struct {
	ID       uuid.UUID
	Filename string
	Path     string
	Start    float64
	Duration float64
	Codec    string
}

// ExtractTrailing cuts the last seconds of the source video into a new mp4
// under OutputDir. The clip start clamps to zero for sources shorter than
// the window.
func (e *Extractor) ExtractTrailing(ctx context.Context, sourcePath string, seconds float64) (*Result, error) {
	if seconds <= 0 {
		seconds = DefaultClipSeconds
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source video: %w", err)
	}

	duration, err := e.probeDuration(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	start := duration - seconds
	if start < 0 {
		start = 0
	}

	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("clip dir: %w", err)
	}

	id := uuid.New()
	filename := id.String() + ".mp4"
	outPath := filepath.Join(e.OutputDir, filename)

	var lastErr error
	for _, codec := range codecFallbacks {
		args := []string{
			"-y",
			"-ss", formatSeconds(start),
			"-i", sourcePath,
			"-t", formatSeconds(seconds),
			"-c:v", codec,
			"-c:a", "aac",
			"-movflags", "+faststart",
			outPath,
		}
		out, err := e.run.CombinedOutput(ctx, "ffmpeg", args...)
		if err != nil {
			lastErr = fmt.Errorf("ffmpeg (%s): %w: %s", codec, err, tail(out))
			log.Printf("[WARN] clips: codec %s failed for %s, trying next: %v", codec, sourcePath, err)
			continue
		}
		if err := verifyOutput(outPath); err != nil {
			lastErr = fmt.Errorf("ffmpeg (%s): %w", codec, err)
			log.Printf("[WARN] clips: codec %s produced unusable output for %s: %v", codec, sourcePath, err)
			continue
		}
		return &Result{
			ID:       id,
			Filename: filename,
			Path:     outPath,
			Start:    start,
			Duration: seconds,
			Codec:    codec,
		}, nil
	}

	os.Remove(outPath)
	return nil, fmt.Errorf("clip extraction failed for %s: %w", sourcePath, lastErr)
}

// probeDuration asks ffprobe for the container duration in seconds.
func (e *Extractor) probeDuration(ctx context.Context, sourcePath string) (float64, error) {
	out, err := e.run.CombinedOutput(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		sourcePath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, tail(out))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: unparseable duration %q", strings.TrimSpace(string(out)))
	}
	if duration <= 0 {
		return 0, fmt.Errorf("ffprobe: non-positive duration %g", duration)
	}
	return duration, nil
}

// verifyOutput rejects empty or missing files. ffmpeg can exit zero and
// still leave nothing useful behind when the codec is a stub build.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return fmt.Errorf("output empty")
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// tail keeps error output readable in logs.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = "..." + s[len(s)-400:]
	}
	return s
}

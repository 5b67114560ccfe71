package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"songbird/internal/core"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// ClipLength is how much audio is sent to recognition.
	ClipLength = 30 * time.Second
	// MinConversionTimeout and MaxConversionTimeout bound conversion subprocesses.
	MinConversionTimeout = 30 * time.Second
	MaxConversionTimeout = 120 * time.Second
	probeTimeout         = 15 * time.Second
	sampleRate           = "44100"
	mp3Bitrate           = "192k"
)

var (
	// ErrTimeout is returned when a tool exceeds its time budget.
	ErrTimeout = errors.New("media tool timed out")
	// ErrConversion is returned when ffmpeg cannot process the input.
	ErrConversion = errors.New("media conversion failed")
	// ErrNoDuration is returned when ffprobe reports no duration.
	ErrNoDuration = errors.New("media has no duration")
)

// Tools runs ffmpeg and ffprobe on the shared job pool.
type Tools struct {
	runner  Runner
	pool    core.JobPool
	ffmpeg  string
	ffprobe string
	logger  *zap.Logger
}

func NewTools(runner Runner, pool core.JobPool, ffmpegPath, ffprobePath string, logger *zap.Logger) *Tools {
	return &Tools{
		runner:  runner,
		pool:    pool,
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		logger:  logger,
	}
}

// ConversionTimeout scales with the media duration and is clamped to
// [MinConversionTimeout, MaxConversionTimeout]. Unknown durations get the maximum.
func ConversionTimeout(duration time.Duration) time.Duration {
	if duration <= 0 {
		return MaxConversionTimeout
	}
	return min(max(MinConversionTimeout+duration/2, MinConversionTimeout), MaxConversionTimeout)
}

// Probe returns the duration of a media file.
func (t *Tools) Probe(ctx context.Context, path string) (time.Duration, error) {
	out, err := t.run(ctx, probeTimeout, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	seconds := gjson.GetBytes(out.Stdout, "format.duration").Float()
	if seconds <= 0 {
		return 0, ErrNoDuration
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// Clip writes the first ClipLength of src to dst as mono 44.1 kHz WAV.
func (t *Tools) Clip(ctx context.Context, src, dst string) error {
	_, err := t.run(ctx, MinConversionTimeout, t.ffmpeg,
		"-y", "-v", "error",
		"-i", src,
		"-t", fmt.Sprintf("%d", int(ClipLength.Seconds())),
		"-vn", "-ac", "1", "-ar", sampleRate,
		"-f", "wav",
		dst,
	)
	if err != nil {
		return fmt.Errorf("clip %s: %w", src, err)
	}
	return requireNonEmpty(dst)
}

// Convert transcodes src to a 44.1 kHz stereo 192k MP3 at dst.
func (t *Tools) Convert(ctx context.Context, src, dst string, duration time.Duration) error {
	_, err := t.run(ctx, ConversionTimeout(duration), t.ffmpeg,
		"-y", "-v", "error",
		"-i", src,
		"-vn", "-ar", sampleRate, "-ac", "2", "-b:a", mp3Bitrate,
		dst,
	)
	if err != nil {
		return fmt.Errorf("convert %s: %w", src, err)
	}
	return requireNonEmpty(dst)
}

func (t *Tools) run(ctx context.Context, timeout time.Duration, name string, args ...string) (Output, error) {
	var out Output

	err := t.pool.Do(ctx, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var runErr error
		out, runErr = t.runner.Run(runCtx, name, args...)
		if runErr == nil {
			return nil
		}

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}

		t.logger.Debug("Media tool failed",
			zap.String("tool", name),
			zap.String("stderr", lastLine(out.Stderr)),
			zap.Error(runErr))
		return fmt.Errorf("%w: %s", ErrConversion, lastLine(out.Stderr))
	})

	return out, err
}

func requireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: missing output: %w", ErrConversion, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty output", ErrConversion)
	}
	return nil
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

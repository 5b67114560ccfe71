// Package extract downloads media and metadata from supported platforms with yt-dlp.
package extract

import (
	"context"
	"errors"
	"os"
	"time"

	"songbird/internal/audio"
	"songbird/internal/core"

	"go.uber.org/zap"
)

const (
	// MaxAttempts is the number of download attempts per extraction call.
	MaxAttempts = 3
	// DefaultDownloadTimeout bounds one downloader run.
	DefaultDownloadTimeout = 120 * time.Second
	// DefaultBackoff is multiplied by the attempt number between attempts.
	DefaultBackoff = time.Second
	// OutputName is the converted file every successful extraction produces.
	OutputName = "audio.mp3"
	sourceStem = "source"
)

var (
	// formatChain degrades the requested format on each retry.
	formatChain = []string{"bestaudio/best", "worstaudio/worst", "best"}

	// discoveryExtensions are probed in order after a download; the downloader
	// picks the container itself.
	discoveryExtensions = []string{"m4a", "webm", "mp4", "mp3", "opus", "ogg", "mkv", "wav"}
)

// Converter turns a downloaded container into the output MP3.
type Converter interface {
	Convert(ctx context.Context, src, dst string, duration time.Duration) error
}

// requestOptions carries per-platform downloader settings.
type requestOptions struct {
	UserAgent string
	Referer   string
}

// download is a successful downloader run.
type download struct {
	Path string
	Info mediaInfo
}

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	YtDlpPath string
	Timeout   time.Duration
	Backoff   time.Duration
}

// Downloader runs yt-dlp with retries, finds the produced file and converts it.
type Downloader struct {
	runner    audio.Runner
	pool      core.JobPool
	converter Converter
	ytdlp     string
	timeout   time.Duration
	backoff   time.Duration
	metrics   core.MetricsRecorder
	logger    *zap.Logger
}

func NewDownloader(
	config DownloaderConfig,
	runner audio.Runner,
	pool core.JobPool,
	converter Converter,
	metrics core.MetricsRecorder,
	logger *zap.Logger,
) *Downloader {
	d := &Downloader{
		runner:    runner,
		pool:      pool,
		converter: converter,
		ytdlp:     config.YtDlpPath,
		timeout:   config.Timeout,
		backoff:   config.Backoff,
		metrics:   metrics,
		logger:    logger,
	}
	if d.ytdlp == "" {
		d.ytdlp = "yt-dlp"
	}
	if d.timeout <= 0 {
		d.timeout = DefaultDownloadTimeout
	}
	if d.backoff <= 0 {
		d.backoff = DefaultBackoff
	}
	if d.metrics == nil {
		d.metrics = core.NopMetrics
	}
	return d
}

// Download fetches target into ws, retrying transient failures with a
// degraded format, and converts the result to OutputName.
func (d *Downloader) Download(
	ctx context.Context,
	ws core.Workspace,
	platform core.Platform,
	target string,
	opts requestOptions,
) (*download, core.ErrorKind) {
	lastKind := core.ErrorKindNetwork

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		format := formatChain[attempt-1]

		result, fail := d.attempt(ctx, ws, platform, target, format, opts)
		if result != nil {
			d.metrics.RecordExtractionAttempt(platform, "success")
			return result, core.ErrorKindNone
		}

		d.metrics.RecordExtractionAttempt(platform, string(fail.kind))
		lastKind = fail.kind

		d.logger.Warn("Download attempt failed",
			zap.String("platform", string(platform)),
			zap.Int("attempt", attempt),
			zap.String("format", format),
			zap.String("kind", string(fail.kind)),
			zap.Bool("retry", fail.retry))

		if !fail.retry || attempt == MaxAttempts {
			break
		}

		if err := sleepContext(ctx, time.Duration(attempt)*d.backoff); err != nil {
			return nil, core.ErrorKindTimeout
		}
	}

	return nil, lastKind
}

func (d *Downloader) attempt(
	ctx context.Context,
	ws core.Workspace,
	platform core.Platform,
	target, format string,
	opts requestOptions,
) (*download, failure) {
	template, err := ws.Path(sourceStem + ".%(ext)s")
	if err != nil {
		return nil, failure{kind: core.ErrorKindNotFound}
	}

	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-simulate",
		"--dump-json",
		"--format", format,
		"--output", template,
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		args = append(args, "--add-header", "Referer:"+opts.Referer)
	}
	args = append(args, "--", target)

	var out audio.Output
	var fail *failure

	poolErr := d.pool.Do(ctx, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		var runErr error
		out, runErr = d.runner.Run(runCtx, d.ytdlp, args...)
		if runErr != nil {
			f := classifyDownloadFailure(runCtx, out.Stderr)
			fail = &f
		}
		return nil
	})
	if poolErr != nil {
		return nil, failure{kind: core.ErrorKindTimeout}
	}
	if fail != nil {
		return nil, *fail
	}

	info, _ := parseInfo(out.Stdout)

	src, ok := Discover(ws, sourceStem)
	if !ok {
		return nil, failure{kind: core.ErrorKindNotFound}
	}

	dst, err := ws.Path(OutputName)
	if err != nil {
		return nil, failure{kind: core.ErrorKindUnsupportedFormat}
	}

	if err := d.converter.Convert(ctx, src, dst, info.Duration); err != nil {
		d.logger.Warn("Conversion failed", zap.String("src", src), zap.Error(err))
		if errors.Is(err, audio.ErrTimeout) {
			return nil, failure{kind: core.ErrorKindTimeout}
		}
		return nil, failure{kind: core.ErrorKindUnsupportedFormat}
	}

	return &download{Path: dst, Info: info}, failure{}
}

// Discover probes the known extensions for stem inside ws and returns the
// first existing non-empty file.
func Discover(ws core.Workspace, stem string) (string, bool) {
	for _, ext := range discoveryExtensions {
		path, err := ws.Path(stem + "." + ext)
		if err != nil {
			continue
		}

		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return path, true
		}
	}
	return "", false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

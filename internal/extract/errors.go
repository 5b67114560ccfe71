package extract

import (
	"context"
	"errors"
	"strings"

	"songbird/internal/core"
)

// ErrUnsupportedPlatform is returned by the registry for platforms without a backend.
var ErrUnsupportedPlatform = errors.New("no extraction backend for platform")

// failure is the outcome of one failed download attempt.
type failure struct {
	kind  core.ErrorKind
	retry bool // worth another attempt with the next format
}

var (
	notFoundMarkers = []string{
		"video unavailable",
		"this video has been removed",
		"this video is private",
		"private video",
		"does not exist",
		"http error 404",
		"unsupported url",
		"no video could be found",
		"has been deleted",
		"account is private",
		"content isn't available",
		"not available in your country",
	}

	rateLimitMarkers = []string{
		"http error 429",
		"too many requests",
		"rate-limit",
		"rate limit",
	}

	formatMarkers = []string{
		"requested format is not available",
		"no video formats found",
		"format not available",
	}
)

// classifyDownloadFailure maps a failed downloader run to an error kind.
// Format misses are retried with the next format in the chain; not-found and
// timeouts end the attempt loop.
func classifyDownloadFailure(ctx context.Context, stderr []byte) failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure{kind: core.ErrorKindTimeout}
	}

	text := strings.ToLower(string(stderr))

	switch {
	case containsAny(text, notFoundMarkers):
		return failure{kind: core.ErrorKindNotFound}
	case containsAny(text, rateLimitMarkers):
		return failure{kind: core.ErrorKindRateLimited, retry: true}
	case containsAny(text, formatMarkers):
		return failure{kind: core.ErrorKindUnsupportedFormat, retry: true}
	default:
		return failure{kind: core.ErrorKindNetwork, retry: true}
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

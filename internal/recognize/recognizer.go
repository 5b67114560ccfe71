package recognize

import (
	"context"
	"os"
	"time"

	"songbird/internal/core"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultCacheSize bounds the number of cached recognitions.
	DefaultCacheSize = 512
	// DefaultCacheTTL is how long a recognition stays cached.
	DefaultCacheTTL = 30 * time.Minute
	// DefaultRatePerSecond limits calls to the recognition API.
	DefaultRatePerSecond = 2.0
)

// Backend performs one recognition call.
type Backend interface {
	Recognize(ctx context.Context, clipPath string, mode core.RecognitionMode) (*core.RecognitionResult, error)
}

// Config configures a Recognizer.
type Config struct {
	RatePerSecond float64
}

// Recognizer adds caching, rate limiting and the job pool around a Backend.
// Failures are soft: every error path yields a nil result.
type Recognizer struct {
	backend Backend
	cache   Cache
	limiter *rate.Limiter
	pool    core.JobPool
	metrics core.MetricsRecorder
	logger  *zap.Logger
}

func NewRecognizer(
	config Config,
	backend Backend,
	cache Cache,
	pool core.JobPool,
	metrics core.MetricsRecorder,
	logger *zap.Logger,
) *Recognizer {
	perSecond := config.RatePerSecond
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	if metrics == nil {
		metrics = core.NopMetrics
	}

	return &Recognizer{
		backend: backend,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		pool:    pool,
		metrics: metrics,
		logger:  logger,
	}
}

// Recognize identifies the clip at clipPath. It returns nil when the clip
// cannot be read, the API fails, nothing matches or the confidence is 0.
// Only usable results are cached.
func (r *Recognizer) Recognize(ctx context.Context, clipPath string, mode core.RecognitionMode) *core.RecognitionResult {
	data, err := os.ReadFile(clipPath)
	if err != nil || len(data) == 0 {
		r.logger.Warn("Cannot read recognition clip", zap.String("path", clipPath), zap.Error(err))
		r.metrics.RecordRecognition(mode, "error")
		return nil
	}

	key := CacheKey(data, mode)
	if cached, ok := r.cache.Get(key); ok {
		r.metrics.RecordRecognitionCache(true)
		return cached
	}
	r.metrics.RecordRecognitionCache(false)

	if err := r.limiter.Wait(ctx); err != nil {
		r.metrics.RecordRecognition(mode, "error")
		return nil
	}

	var result *core.RecognitionResult
	err = r.pool.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.backend.Recognize(ctx, clipPath, mode)
		return callErr
	})

	switch {
	case err != nil:
		r.logger.Warn("Recognition failed", zap.String("mode", string(mode)), zap.Error(err))
		r.metrics.RecordRecognition(mode, "error")
		return nil
	case result == nil || result.Confidence <= 0 || result.Title == "":
		r.metrics.RecordRecognition(mode, "no_match")
		return nil
	}

	r.logger.Info("Recognized clip",
		zap.String("mode", string(mode)),
		zap.String("artist", result.Artist),
		zap.String("title", result.Title),
		zap.Float64("confidence", result.Confidence))
	r.metrics.RecordRecognition(mode, "match")

	r.cache.Add(key, result)
	return result
}

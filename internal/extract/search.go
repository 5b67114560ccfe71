package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"songbird/internal/audio"
	"songbird/internal/core"
	"songbird/pkg/metadata"
	"songbird/pkg/platform"

	"go.uber.org/zap"
)

const (
	// DefaultSearchTimeout bounds one search run.
	DefaultSearchTimeout = 30 * time.Second
	// DefaultSearchLimit is the number of candidates returned for disambiguation.
	DefaultSearchLimit = 5
)

// SearchBackend searches YouTube with yt-dlp and downloads the top hit
// through the YouTube backend.
type SearchBackend struct {
	runner  audio.Runner
	pool    core.JobPool
	youtube core.Extractor
	ytdlp   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewSearchBackend(
	ytdlpPath string,
	runner audio.Runner,
	pool core.JobPool,
	youtube core.Extractor,
	logger *zap.Logger,
) *SearchBackend {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &SearchBackend{
		runner:  runner,
		pool:    pool,
		youtube: youtube,
		ytdlp:   ytdlpPath,
		timeout: DefaultSearchTimeout,
		logger:  logger,
	}
}

// Search returns up to limit candidates in provider order. The raw query is
// tried first and the cleaned variant only fills remaining slots; candidates
// are deduplicated by video ID.
func (s *SearchBackend) Search(ctx context.Context, query string, limit int) ([]core.SearchCandidate, core.ErrorKind) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ErrorKindNotFound
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	variants := []string{query}
	if cleaned := metadata.CleanQuery(query); cleaned != "" && cleaned != query {
		variants = append(variants, cleaned)
	}

	var candidates []core.SearchCandidate
	seen := make(map[string]bool)
	lastKind := core.ErrorKindNotFound

	for _, variant := range variants {
		if len(candidates) >= limit {
			break
		}

		found, kind := s.searchOnce(ctx, variant, limit)
		if kind != core.ErrorKindNone {
			lastKind = kind
			if kind == core.ErrorKindTimeout {
				break
			}
			continue
		}

		for _, c := range found {
			if seen[c.VideoID] || len(candidates) >= limit {
				continue
			}
			seen[c.VideoID] = true
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		return nil, lastKind
	}
	return candidates, core.ErrorKindNone
}

func (s *SearchBackend) searchOnce(ctx context.Context, query string, limit int) ([]core.SearchCandidate, core.ErrorKind) {
	args := []string{
		"--dump-json",
		"--flat-playlist",
		"--skip-download",
		"--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	}

	var out audio.Output
	kind := core.ErrorKindNone

	err := s.pool.Do(ctx, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var runErr error
		out, runErr = s.runner.Run(runCtx, s.ytdlp, args...)
		if runErr != nil {
			kind = classifyDownloadFailure(runCtx, out.Stderr).kind
		}
		return nil
	})
	if err != nil {
		return nil, core.ErrorKindTimeout
	}
	if kind != core.ErrorKindNone {
		s.logger.Warn("Search failed", zap.String("query", query), zap.String("kind", string(kind)))
		return nil, kind
	}

	var candidates []core.SearchCandidate
	for _, entry := range jsonLines(out.Stdout) {
		id := entry.Get("id").String()
		if id == "" {
			continue
		}

		candidates = append(candidates, core.SearchCandidate{
			VideoID:      id,
			Title:        entry.Get("title").String(),
			Channel:      firstString(entry, "channel", "uploader"),
			Duration:     time.Duration(entry.Get("duration").Float() * float64(time.Second)),
			ThumbnailURL: firstString(entry, "thumbnail", "thumbnails.0.url"),
			URL:          platform.WatchURL(id),
		})
	}

	if len(candidates) == 0 {
		return nil, core.ErrorKindNotFound
	}
	return candidates, core.ErrorKindNone
}

// Resolve searches for query and downloads the top candidate into ws.
func (s *SearchBackend) Resolve(ctx context.Context, ws core.Workspace, query string) core.ExtractionResult {
	candidates, kind := s.Search(ctx, query, 1)
	if len(candidates) == 0 {
		return core.Failed(core.PlatformQuery, kind)
	}

	top := candidates[0]
	s.logger.Debug("Resolving search hit",
		zap.String("query", query),
		zap.String("video_id", top.VideoID),
		zap.String("title", top.Title))

	result := s.youtube.Extract(ctx, ws, top.URL)
	if result.Success && result.ThumbnailURL == "" {
		result.ThumbnailURL = top.ThumbnailURL
	}
	return result
}

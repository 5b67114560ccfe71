package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"songbird/pkg/fuzzy"
	"songbird/pkg/metadata"
)

var errSubdirEscape = errors.New("path escapes workspace subdirectory")

// secondary searches for want and downloads the chosen candidate from
// YouTube into a subdirectory of the run's workspace, so the original media
// stays intact if the download fails. With verify set, only a candidate that
// fuzzily matches want is accepted; otherwise the top hit is taken.
func (o *Orchestrator) secondary(ctx context.Context, r *run, want fuzzy.Identity, verify bool) *draft {
	query := strings.TrimSpace(strings.TrimSpace(want.Artist) + " " + strings.TrimSpace(want.Title))
	if query == "" {
		return nil
	}

	candidates, kind := o.Searcher.Search(ctx, query, o.config.Extract.SearchCandidates)
	if len(candidates) == 0 {
		o.logger.Info("Secondary search found nothing",
			zap.String("query", query),
			zap.String("error_kind", string(kind)))
		return nil
	}

	chosen, ok := pickCandidate(candidates, want, verify)
	if !ok {
		o.logger.Info("No search candidate matches the recognized song",
			zap.String("query", query),
			zap.Int("candidates", len(candidates)))
		return nil
	}

	youtube, err := o.Extractors.Get(PlatformYouTube)
	if err != nil {
		o.logger.Warn("Secondary extraction unavailable", zap.Error(err))
		return nil
	}

	ws, err := newSubdir(r.ws, secondaryWS)
	if err != nil {
		o.logger.Warn("Failed to prepare secondary workspace", zap.Error(err))
		return nil
	}

	result := youtube.Extract(ctx, ws, chosen.URL)
	if !result.Success {
		o.logger.Info("Secondary extraction failed",
			zap.String("video_id", chosen.VideoID),
			zap.String("error_kind", string(result.ErrorKind)))
		return nil
	}

	song := songFromExtraction(result)
	if song.ThumbnailURL == "" {
		song.ThumbnailURL = chosen.ThumbnailURL
	}

	return &draft{song: song, mediaPath: result.MediaPath, source: SourceSecondary}
}

func pickCandidate(candidates []SearchCandidate, want fuzzy.Identity, verify bool) (SearchCandidate, bool) {
	if !verify {
		return candidates[0], true
	}

	for _, candidate := range candidates {
		if fuzzy.Matches(candidate.Title, candidate.Channel, candidate.Duration, want) {
			return candidate, true
		}
	}
	return SearchCandidate{}, false
}

// salvage rescues a failed short-form extraction through the post caption.
func (o *Orchestrator) salvage(ctx context.Context, r *run) *draft {
	if o.Captions == nil {
		return nil
	}

	caption, err := o.Captions.Caption(ctx, r.platform, r.target)
	if err != nil {
		o.logger.Info("Caption lookup failed", zap.String("url", r.target), zap.Error(err))
		return nil
	}

	o.logger.Debug("Salvaging from caption", zap.String("caption", caption))
	return o.guessFromCaption(ctx, r, caption)
}

// guessFromCaption derives a song from a social caption and fetches it by
// search. A caption that names the song directly is verified against the
// search hits; a guess from free text takes the top hit.
func (o *Orchestrator) guessFromCaption(ctx context.Context, r *run, caption string) *draft {
	want, strong := o.captionIdentity(ctx, caption)
	if want.Title == "" {
		return nil
	}

	d := o.secondary(ctx, r, want, strong)
	if d == nil {
		return nil
	}

	d.source = SourceSalvage
	if strong {
		d.song.Title = want.Title
		d.song.Artist = want.Artist
	}
	return d
}

// captionIdentity reads an artist and title out of caption. strong is set
// when both are known.
func (o *Orchestrator) captionIdentity(ctx context.Context, caption string) (fuzzy.Identity, bool) {
	normalized := metadata.NormalizeTitle(caption)

	artist, title := metadata.SplitArtistTitle(normalized)
	if artist != metadata.UnknownArtist && metadata.IsStrong(title, artist) {
		return fuzzy.Identity{Title: title, Artist: artist}, true
	}

	if o.Guesser != nil {
		guess, err := o.Guesser.GuessSong(ctx, caption)
		switch {
		case err != nil:
			o.logger.Warn("Song guess failed", zap.Error(err))
		case guess != nil && strings.TrimSpace(guess.Title) != "":
			identity := fuzzy.Identity{Title: strings.TrimSpace(guess.Title), Artist: strings.TrimSpace(guess.Artist)}
			return identity, identity.Artist != ""
		}
	}

	query := metadata.CleanQuery(normalized)
	if query == "" || metadata.IsPlaceholder(query) {
		return fuzzy.Identity{}, false
	}
	return fuzzy.Identity{Title: query}, false
}

func identityOf(result *RecognitionResult) fuzzy.Identity {
	return fuzzy.Identity{
		Title:    result.Title,
		Artist:   result.Artist,
		Duration: result.Duration,
	}
}

// subdir is a directory inside another workspace, used so that a second
// download does not collide with the files of the first.
type subdir struct {
	dir string
}

func newSubdir(parent Workspace, name string) (*subdir, error) {
	dir, err := parent.Path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return &subdir{dir: dir}, nil
}

func (s *subdir) Dir() string {
	return s.dir
}

func (s *subdir) Path(name string) (string, error) {
	clean := filepath.Clean(name)
	if name == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errSubdirEscape, name)
	}
	return filepath.Join(s.dir, clean), nil
}

package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"songbird/pkg/metadata"
)

const (
	// MinUploadSize rejects uploads that cannot hold usable audio.
	MinUploadSize = 1024
	// MinUploadDuration rejects uploads too short to recognize.
	MinUploadDuration = 2 * time.Second

	syntheticIDPrefix = "rec_"
	syntheticIDLength = 20

	unknownTitle = "Unknown"

	clipName    = "clip.wav"
	uploadStem  = "upload"
	secondaryWS = "secondary"
)

// Components are the collaborators of an Orchestrator. Recognizer, Captions,
// Guesser and Library are optional.
type Components struct {
	Classify   func(raw string) Classification
	Extractors ExtractorRegistry
	Searcher   Searcher
	Recognizer Recognizer
	Audio      AudioTools
	Captions   CaptionLookup
	Guesser    SongGuesser
	Songs      SongRepository
	Library    Library
	Workspaces WorkspaceProvider
	Metrics    MetricsRecorder
}

// Orchestrator drives one request through classification, extraction,
// recognition, normalization and persistence. It holds no lock across calls;
// concurrent resolutions only meet in the repository.
type Orchestrator struct {
	config *Config
	Components
	logger *zap.Logger
}

func NewOrchestrator(config *Config, components Components, logger *zap.Logger) *Orchestrator {
	if components.Metrics == nil {
		components.Metrics = NopMetrics
	}

	return &Orchestrator{
		config:     config,
		Components: components,
		logger:     logger.Named("orchestrator"),
	}
}

// run is the state of one resolution.
type run struct {
	req      ResolutionRequest
	ws       Workspace
	platform Platform
	target   string
	state    State
	entered  time.Time
}

// draft is a song identity not yet persisted, with the file backing it.
type draft struct {
	song      CanonicalSong
	mediaPath string
	source    Source
}

// Resolve turns a request into a Resolution. Expected failures (dead links,
// no match) come back as a Resolution with Failure set; the error is reserved
// for repository and workspace faults. A request log entry is appended on
// every path.
func (o *Orchestrator) Resolve(ctx context.Context, req ResolutionRequest) (*Resolution, error) {
	started := time.Now()

	var (
		resolution *Resolution
		platform   = PlatformUnknown
	)

	err := o.Workspaces.With(ctx, func(ws Workspace) error {
		r := &run{req: req, ws: ws, state: StateClassifying, entered: time.Now()}
		var runErr error
		resolution, runErr = o.resolve(ctx, r)
		platform = r.platform
		return runErr
	})

	entry := RequestLogEntry{
		Requester: req.Requester,
		Query:     logQuery(req),
		ViaVoice:  req.Hint == HintVoice,
		CreatedAt: time.Now().UTC(),
	}
	if resolution != nil && resolution.Song != nil {
		id := resolution.Song.ID
		entry.SongID = &id
	}

	if logErr := o.Songs.AppendRequestLog(ctx, entry); logErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to append request log: %w", logErr))
	}

	if err != nil {
		o.Metrics.RecordResolution(platform, "error")
		o.logger.Error("Resolution failed unexpectedly",
			zap.String("requester", req.Requester),
			zap.String("input", req.RawInput),
			zap.Error(err))
		return nil, err
	}

	o.Metrics.RecordResolution(platform, outcome(resolution))
	o.logger.Info("Resolution finished",
		zap.String("requester", req.Requester),
		zap.String("platform", string(platform)),
		zap.String("outcome", outcome(resolution)),
		zap.Duration("elapsed", time.Since(started)))

	return resolution, nil
}

// Candidates lists search results for query without downloading anything.
func (o *Orchestrator) Candidates(ctx context.Context, query string, n int) ([]SearchCandidate, ErrorKind) {
	if n <= 0 {
		n = o.config.Extract.SearchCandidates
	}
	return o.Searcher.Search(ctx, query, n)
}

func (o *Orchestrator) resolve(ctx context.Context, r *run) (*Resolution, error) {
	if r.req.Kind == InputKindFile {
		r.platform = PlatformLocal
		r.target = r.req.RawInput
	} else {
		classification := o.Classify(r.req.RawInput)
		r.platform = classification.Platform
		r.target = classification.NormalizedURL

		if r.req.Kind == InputKindQuery || r.platform == PlatformQuery {
			r.platform = PlatformQuery
			r.target = strings.TrimSpace(r.req.RawInput)
		}
	}

	if r.platform == PlatformUnknown {
		return o.fail(r, ErrorKindUnsupportedFormat), nil
	}

	o.enter(r, StateExtracting)
	result, err := o.extract(ctx, r)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		o.logger.Info("Extraction failed",
			zap.String("platform", string(r.platform)),
			zap.String("error_kind", string(result.ErrorKind)))

		if r.platform.IsShortForm() {
			if d := o.salvage(ctx, r); d != nil {
				return o.persist(ctx, r, d)
			}
		}
		return o.fail(r, result.ErrorKind), nil
	}

	d, kind := o.identify(ctx, r, result)
	if d == nil {
		return o.fail(r, kind), nil
	}

	return o.persist(ctx, r, d)
}

// extract fetches media for the classified input into the workspace.
func (o *Orchestrator) extract(ctx context.Context, r *run) (ExtractionResult, error) {
	switch r.platform {
	case PlatformLocal:
		return o.prepareUpload(ctx, r)
	case PlatformQuery:
		return o.Searcher.Resolve(ctx, r.ws, r.target), nil
	}

	extractor, err := o.Extractors.Get(r.platform)
	if err != nil {
		o.logger.Warn("No extractor for platform", zap.String("platform", string(r.platform)), zap.Error(err))
		return Failed(r.platform, ErrorKindUnsupportedFormat), nil
	}
	return extractor.Extract(ctx, r.ws, r.target), nil
}

// prepareUpload copies a user upload into the workspace and validates it.
// Workspace I/O errors are returned; unusable media is a failed result.
func (o *Orchestrator) prepareUpload(ctx context.Context, r *run) (ExtractionResult, error) {
	info, err := os.Stat(r.target)
	if err != nil || !info.Mode().IsRegular() {
		return Failed(PlatformLocal, ErrorKindNotFound), nil
	}
	if info.Size() < MinUploadSize {
		return Failed(PlatformLocal, ErrorKindUnsupportedFormat), nil
	}

	dst, err := r.ws.Path(uploadStem + strings.ToLower(filepath.Ext(r.target)))
	if err != nil {
		return ExtractionResult{}, err
	}
	if err := copyFile(r.target, dst); err != nil {
		return ExtractionResult{}, err
	}

	duration, err := o.Audio.Probe(ctx, dst)
	if err != nil {
		o.logger.Info("Upload is not readable media", zap.Error(err))
		return Failed(PlatformLocal, ErrorKindUnsupportedFormat), nil
	}
	if duration < MinUploadDuration {
		return Failed(PlatformLocal, ErrorKindUnsupportedFormat), nil
	}

	return ExtractionResult{
		Success:   true,
		MediaPath: dst,
		RawTitle:  strings.TrimSuffix(filepath.Base(r.target), filepath.Ext(r.target)),
		Duration:  duration,
		Platform:  PlatformLocal,
	}, nil
}

// identify decides the song identity of a successful extraction, recognizing
// the audio when the extractor metadata is weak.
func (o *Orchestrator) identify(ctx context.Context, r *run, result ExtractionResult) (*draft, ErrorKind) {
	fromExtractor := &draft{
		song:      songFromExtraction(result),
		mediaPath: result.MediaPath,
		source:    SourceExtractor,
	}

	uploaded := r.platform == PlatformLocal
	if !uploaded && r.req.Hint != HintVoice && metadata.IsStrong(result.Track, result.Artist) {
		o.logger.Debug("Extractor metadata is strong, skipping recognition",
			zap.String("artist", result.Artist),
			zap.String("track", result.Track))
		return fromExtractor, ErrorKindNone
	}

	o.enter(r, StateRecognizing)
	recognized := o.recognize(ctx, r, result.MediaPath)

	if recognized == nil {
		if uploaded {
			return nil, ErrorKindNotFound
		}
		// keep the download; searching the caption can land on an unrelated video
		return fromExtractor, ErrorKindNone
	}

	want := identityOf(recognized)
	if secondary := o.secondary(ctx, r, want, true); secondary != nil {
		secondary.song.Title = recognized.Title
		secondary.song.Artist = recognized.Artist
		if secondary.song.Duration == 0 {
			secondary.song.Duration = recognized.Duration
		}
		return secondary, ErrorKindNone
	}

	overlay := fromExtractor
	overlay.source = SourceRecognition
	overlay.song.Title = recognized.Title
	overlay.song.Artist = recognized.Artist
	if overlay.song.Duration == 0 {
		overlay.song.Duration = recognized.Duration
	}
	return overlay, ErrorKindNone
}

// recognize clips the media and fingerprints it. Only results above the
// confidence threshold with a title and an artist are returned.
func (o *Orchestrator) recognize(ctx context.Context, r *run, mediaPath string) *RecognitionResult {
	if o.Recognizer == nil {
		return nil
	}

	clip, err := r.ws.Path(clipName)
	if err != nil {
		return nil
	}

	if err := o.Audio.Clip(ctx, mediaPath, clip); err != nil {
		o.logger.Warn("Failed to cut recognition clip", zap.Error(err))
		return nil
	}

	mode := RecognitionModeDefault
	if r.req.Hint == HintVoice {
		mode = RecognitionModeHumming
	}

	result := o.Recognizer.Recognize(ctx, clip, mode)
	if result == nil {
		return nil
	}

	if result.Confidence <= o.config.Recognition.Threshold ||
		strings.TrimSpace(result.Title) == "" || strings.TrimSpace(result.Artist) == "" {
		o.logger.Info("Recognition below threshold",
			zap.Float64("confidence", result.Confidence),
			zap.Float64("threshold", o.config.Recognition.Threshold))
		return nil
	}

	return result
}

// persist deduplicates d against the repository, promotes its media into the
// library when the stored song has no file yet, and upserts it.
func (o *Orchestrator) persist(ctx context.Context, r *run, d *draft) (*Resolution, error) {
	o.enter(r, StateNormalizing)
	song := d.song
	normalize(&song)

	o.enter(r, StatePersisting)
	if song.NativeID == "" {
		song.Platform = r.platform
		song.NativeID = SyntheticID(r.platform, r.req.Requester, r.req.MessageID)
	}

	existing, err := o.Songs.FindByNativeID(ctx, song.Platform, song.NativeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up song: %w", err)
	}

	hasFile := existing != nil && existing.FilePath != "" &&
		o.Library != nil && o.Library.Exists(ctx, existing.FilePath)

	if !hasFile && o.Library != nil && d.mediaPath != "" {
		location, err := o.Library.Store(ctx, d.mediaPath, string(song.Platform)+"/"+song.NativeID)
		if err != nil {
			return nil, fmt.Errorf("failed to store media: %w", err)
		}
		song.FilePath = location
	}

	stored, err := o.Songs.CreateOrGet(ctx, &song)
	if err != nil {
		return nil, fmt.Errorf("failed to store song: %w", err)
	}

	o.enter(r, StateDone)
	o.logger.Info("Song resolved",
		zap.Int64("id", stored.ID),
		zap.String("platform", string(stored.Platform)),
		zap.String("native_id", stored.NativeID),
		zap.String("artist", stored.Artist),
		zap.String("title", stored.Title),
		zap.String("source", string(d.source)),
		zap.Bool("reused", existing != nil))

	return &Resolution{Song: stored, Source: d.source, Reused: existing != nil}, nil
}

func (o *Orchestrator) fail(r *run, kind ErrorKind) *Resolution {
	if kind == ErrorKindNone {
		kind = ErrorKindNotFound
	}
	o.enter(r, StateFailed)
	return &Resolution{Failure: &Failure{Kind: kind, Platform: r.platform}}
}

// enter records the time spent in the current state and moves to next.
func (o *Orchestrator) enter(r *run, next State) {
	now := time.Now()
	o.Metrics.RecordStage(r.state, now.Sub(r.entered))
	r.state = next
	r.entered = now
}

// SyntheticID derives a stable native ID for songs that only exist through
// recognition, such as voice recordings.
func SyntheticID(platform Platform, requester, messageID string) string {
	sum := sha256.Sum256([]byte(string(platform) + "|" + requester + "|" + messageID))
	return syntheticIDPrefix + hex.EncodeToString(sum[:])[:syntheticIDLength]
}

func songFromExtraction(result ExtractionResult) CanonicalSong {
	title := result.Track
	if title == "" {
		title = result.RawTitle
	}

	return CanonicalSong{
		Platform:     result.Platform,
		NativeID:     result.NativeID,
		Title:        title,
		Artist:       result.Artist,
		Duration:     result.Duration,
		ThumbnailURL: result.ThumbnailURL,
	}
}

// normalize cleans title and artist in place. A missing artist is recovered
// from an "Artist - Title" title when possible.
func normalize(song *CanonicalSong) {
	title := metadata.NormalizeTitle(song.Title)
	artist := metadata.NormalizeArtist(song.Artist)

	if artist == "" || metadata.IsPlaceholder(artist) {
		if splitArtist, splitTitle := metadata.SplitArtistTitle(title); splitArtist != metadata.UnknownArtist {
			artist, title = splitArtist, splitTitle
		} else {
			artist = metadata.UnknownArtist
		}
	}

	if title == "" {
		title = unknownTitle
	}

	song.Title = title
	song.Artist = artist
}

// logQuery is what the request log keeps of the input. Uploads live in a
// workspace that is gone by the time anyone reads the log, so only the file
// name is kept.
func logQuery(req ResolutionRequest) string {
	if req.Kind == InputKindFile {
		return filepath.Base(req.RawInput)
	}
	return req.RawInput
}

func outcome(resolution *Resolution) string {
	switch {
	case resolution == nil:
		return "error"
	case resolution.Failure != nil:
		return "failed_" + string(resolution.Failure.Kind)
	case resolution.Reused:
		return "reused"
	default:
		return string(resolution.Source)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create workspace file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy upload: %w", err)
	}
	return out.Close()
}

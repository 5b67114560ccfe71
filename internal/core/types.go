package core

import (
	"context"
	"time"
)

// Platform identifies where a piece of media comes from.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformQuery     Platform = "query"
	PlatformLocal     Platform = "local"
	PlatformUnknown   Platform = "unknown"
)

// IsShortForm reports whether the platform hosts short captioned clips whose
// metadata is usually a social caption rather than a track name.
func (p Platform) IsShortForm() bool {
	return p == PlatformTikTok || p == PlatformInstagram
}

type InputKind int

const (
	// InputKindURL is a link pasted by the user
	InputKindURL InputKind = iota
	// InputKindFile is a local path to an uploaded audio or video file
	InputKindFile
	// InputKindQuery is free text to search for
	InputKindQuery
)

func (k InputKind) String() string {
	switch k {
	case InputKindURL:
		return "url"
	case InputKindFile:
		return "file"
	case InputKindQuery:
		return "query"
	default:
		return "unknown"
	}
}

type Hint int

const (
	// HintNone leaves the routing to the classifier
	HintNone Hint = iota
	// HintVoice marks a voice recording: recognition first, humming mode
	HintVoice
)

// ErrorKind is the typed failure carried by extraction results and failed resolutions.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindNetwork           ErrorKind = "network_error"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindUnsupportedFormat ErrorKind = "unsupported_format"
	ErrorKindTimeout           ErrorKind = "timeout"
)

// Transient reports whether a retry within the same backend call may succeed.
func (k ErrorKind) Transient() bool {
	return k == ErrorKindNetwork || k == ErrorKindRateLimited
}

type RecognitionMode string

const (
	RecognitionModeDefault RecognitionMode = "default"
	RecognitionModeHumming RecognitionMode = "humming"
)

type ResolutionRequest struct {
	RawInput  string
	Kind      InputKind
	Hint      Hint
	Requester string
	MessageID string
}

type Classification struct {
	Platform      Platform
	NormalizedURL string
}

type ExtractionResult struct {
	Success      bool
	MediaPath    string
	RawTitle     string
	RawUploader  string
	Artist       string
	Track        string
	Duration     time.Duration
	ThumbnailURL string
	NativeID     string
	SourceURL    string
	Platform     Platform
	ErrorKind    ErrorKind
}

// Failed builds an unsuccessful extraction result.
func Failed(platform Platform, kind ErrorKind) ExtractionResult {
	return ExtractionResult{Platform: platform, ErrorKind: kind}
}

type RecognitionResult struct {
	Title      string
	Artist     string
	Album      string
	ISRC       string
	YouTubeID  string
	Duration   time.Duration
	Confidence float64
}

type CanonicalSong struct {
	ID           int64
	Platform     Platform
	NativeID     string
	Title        string
	Artist       string
	Duration     time.Duration
	ThumbnailURL string
	FilePath     string
	PlayCount    int
	LastPlayedAt *time.Time
	CreatedAt    time.Time
}

type RequestLogEntry struct {
	Requester string
	Query     string
	ViaVoice  bool
	SongID    *int64
	CreatedAt time.Time
}

type Source string

const (
	// SourceExtractor means the extractor metadata was trusted as-is
	SourceExtractor Source = "extractor"
	// SourceRecognition means recognized metadata was overlaid on the original file
	SourceRecognition Source = "recognition"
	// SourceSecondary means a secondary search replaced the original file
	SourceSecondary Source = "secondary"
	// SourceSalvage means a failed short-form extraction was rescued from its caption
	SourceSalvage Source = "salvage"
)

type Failure struct {
	Kind     ErrorKind
	Platform Platform
}

// Resolution is the outcome of one pipeline run. Exactly one of Song and
// Failure is set.
type Resolution struct {
	Song    *CanonicalSong
	Source  Source
	Reused  bool
	Failure *Failure
}

type State int

const (
	// StateClassifying determines the platform of the input
	StateClassifying State = iota
	// StateExtracting downloads media and metadata
	StateExtracting
	// StateRecognizing fingerprints the audio when metadata is weak
	StateRecognizing
	// StateNormalizing cleans title and artist
	StateNormalizing
	// StatePersisting deduplicates and stores the song
	StatePersisting
	// StateDone is terminal success
	StateDone
	// StateFailed is terminal failure
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClassifying:
		return "classifying"
	case StateExtracting:
		return "extracting"
	case StateRecognizing:
		return "recognizing"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SearchCandidate is one ranked entry returned by the search backend.
type SearchCandidate struct {
	VideoID      string
	Title        string
	Channel      string
	Duration     time.Duration
	ThumbnailURL string
	URL          string
}

// SongGuess is a title/artist pair inferred from free text such as a caption.
type SongGuess struct {
	Title  string
	Artist string
}

type Workspace interface {
	Dir() string
	Path(name string) (string, error)
}

type WorkspaceProvider interface {
	With(ctx context.Context, fn func(Workspace) error) error
}

type Extractor interface {
	Platform() Platform
	Extract(ctx context.Context, ws Workspace, target string) ExtractionResult
}

// ExtractorRegistry selects the extraction backend for a platform.
type ExtractorRegistry interface {
	Get(platform Platform) (Extractor, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchCandidate, ErrorKind)
	Resolve(ctx context.Context, ws Workspace, query string) ExtractionResult
}

type Recognizer interface {
	Recognize(ctx context.Context, clipPath string, mode RecognitionMode) *RecognitionResult
}

// AudioTools prepares user uploads and recognition clips.
type AudioTools interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Clip(ctx context.Context, src, dst string) error
}

type CaptionLookup interface {
	Caption(ctx context.Context, platform Platform, url string) (string, error)
}

type SongGuesser interface {
	GuessSong(ctx context.Context, caption string) (*SongGuess, error)
}

type SongRepository interface {
	FindByNativeID(ctx context.Context, platform Platform, nativeID string) (*CanonicalSong, error)
	CreateOrGet(ctx context.Context, song *CanonicalSong) (*CanonicalSong, error)
	AppendRequestLog(ctx context.Context, entry RequestLogEntry) error
	MarkPlayed(ctx context.Context, songID int64) error
}

type Library interface {
	Store(ctx context.Context, srcPath, key string) (string, error)
	Exists(ctx context.Context, location string) bool
}

// JobPool runs blocking work (subprocesses, API calls) with bounded concurrency.
type JobPool interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// MetricsRecorder receives pipeline measurements.
type MetricsRecorder interface {
	RecordResolution(platform Platform, outcome string)
	RecordStage(stage State, d time.Duration)
	RecordExtractionAttempt(platform Platform, result string)
	RecordRecognition(mode RecognitionMode, result string)
	RecordRecognitionCache(hit bool)
	RecordWorkspaceSweep(removed int)
}

// NopMetrics discards all measurements.
var NopMetrics MetricsRecorder = nopMetrics{}

type nopMetrics struct{}

func (nopMetrics) RecordResolution(Platform, string)         {}
func (nopMetrics) RecordStage(State, time.Duration)          {}
func (nopMetrics) RecordExtractionAttempt(Platform, string)  {}
func (nopMetrics) RecordRecognition(RecognitionMode, string) {}
func (nopMetrics) RecordRecognitionCache(bool)               {}
func (nopMetrics) RecordWorkspaceSweep(int)                  {}

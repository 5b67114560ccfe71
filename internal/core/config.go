package core

import (
	"time"
)

const (
	DefaultServerPort              = 8080
	DefaultMaxConcurrentDownloads  = 3
	DefaultDownloadTimeoutSecs     = 120
	DefaultSearchCandidates        = 5
	DefaultWorkspaceMaxAgeMins     = 60
	DefaultRecognitionThreshold    = 0.3
	DefaultRecognitionCacheSize    = 512
	DefaultRecognitionCacheTTLMins = 30
	DefaultRecognitionRatePerSec   = 2.0
	DefaultFloodLimitPerMinute     = 6
	DefaultLanguage                = "en"
)

type Config struct {
	Telegram    TelegramConfig
	Database    DatabaseConfig
	Library     LibraryConfig
	Extract     ExtractConfig
	Recognition RecognitionConfig
	LLM         LLMConfig
	Server      ServerConfig
	Log         LogConfig
	App         AppConfig
}

type TelegramConfig struct {
	Enabled  bool
	BotToken string
	GroupID  int64 // 0 accepts messages from every chat
}

type DatabaseConfig struct {
	Driver string // sqlite3 or pgx
	DSN    string
}

type LibraryConfig struct {
	Dir         string
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
}

type ExtractConfig struct {
	YtDlpPath              string
	FFmpegPath             string
	FFprobePath            string
	MaxConcurrentDownloads int
	DownloadTimeout        time.Duration
	SearchCandidates       int
	WorkspaceRoot          string
	WorkspaceMaxAge        time.Duration
}

type RecognitionConfig struct {
	APIToken   string
	APIURL     string
	Threshold  float64
	CacheSize  int
	CacheTTL   time.Duration
	RatePerSec float64
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled: true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./data/songbird.db",
		},
		Library: LibraryConfig{
			Dir: "./data/downloads",
		},
		Extract: ExtractConfig{
			YtDlpPath:              "yt-dlp",
			FFmpegPath:             "ffmpeg",
			FFprobePath:            "ffprobe",
			MaxConcurrentDownloads: DefaultMaxConcurrentDownloads,
			DownloadTimeout:        DefaultDownloadTimeoutSecs * time.Second,
			SearchCandidates:       DefaultSearchCandidates,
			WorkspaceMaxAge:        DefaultWorkspaceMaxAgeMins * time.Minute,
		},
		Recognition: RecognitionConfig{
			APIURL:     "https://api.audd.io/",
			Threshold:  DefaultRecognitionThreshold,
			CacheSize:  DefaultRecognitionCacheSize,
			CacheTTL:   DefaultRecognitionCacheTTLMins * time.Minute,
			RatePerSec: DefaultRecognitionRatePerSec,
		},
		LLM: LLMConfig{
			Provider: "none",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            DefaultLanguage,
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}

// Package main provides the Songbird CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"songbird/internal/core"
	"songbird/internal/i18n"
	"songbird/internal/llm"
	"songbird/internal/store"
)

const (
	envPrefix         = "SONGBIRD"
	defaultServerHost = "0.0.0.0"
	noneProvider      = "none"
	logFormatConsole  = "console"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "songbird",
	Short: "Songbird - links, song names and hummed tunes → playable songs",
	Long: `Songbird is a chat bot that turns YouTube, TikTok and Instagram links, free text
and voice messages into identified, deduplicated songs stored in a local library.`,
	RunE: runSongbird,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url, query or file>",
	Short: "Resolve one input and print the stored song",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List search candidates without downloading",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var historyCmd = &cobra.Command{
	Use:   "history <requester>",
	Short: "Print the most recent requests of one user",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.Bool("telegram-enabled", true, "Enable Telegram integration")
	flags.String("telegram-bot-token", "", "Telegram bot token")
	flags.Int64("telegram-group-id", 0, "Restrict the bot to one Telegram chat (0 accepts every chat)")
	flags.String("database-driver", store.DriverSQLite, "Database driver (sqlite3, pgx)")
	flags.String("database-dsn", "./data/songbird.db", "Database DSN or SQLite file path")
	flags.String("library-dir", "./data/downloads", "Directory for stored audio files")
	flags.String("library-s3-endpoint", "", "S3 compatible endpoint; stores audio in a bucket instead of library-dir")
	flags.String("library-s3-bucket", "songbird", "S3 bucket name")
	flags.String("library-s3-access-key", "", "S3 access key")
	flags.String("library-s3-secret-key", "", "S3 secret key")
	flags.Bool("library-s3-use-ssl", true, "Use TLS for the S3 endpoint")
	flags.String("library-s3-region", "", "S3 region")
	flags.String("ytdlp-path", "yt-dlp", "Path to the yt-dlp binary")
	flags.String("ffmpeg-path", "ffmpeg", "Path to the ffmpeg binary")
	flags.String("ffprobe-path", "ffprobe", "Path to the ffprobe binary")
	flags.Int("max-concurrent-downloads", core.DefaultMaxConcurrentDownloads, "Maximum concurrent subprocesses and API calls")
	flags.Int("download-timeout-secs", core.DefaultDownloadTimeoutSecs, "Timeout of one yt-dlp invocation in seconds")
	flags.Int("search-candidates", core.DefaultSearchCandidates, "Number of search candidates to list")
	flags.String("workspace-root", "", "Directory for per-request workspaces (default is the system temp dir)")
	flags.Int("workspace-max-age-mins", core.DefaultWorkspaceMaxAgeMins, "Age after which orphaned workspaces are removed")
	flags.String("audd-api-token", "", "AudD API token")
	flags.String("audd-api-url", "https://api.audd.io/", "AudD API URL")
	flags.Float64("recognition-threshold", core.DefaultRecognitionThreshold, "Minimum recognition confidence (0-1)")
	flags.Int("recognition-cache-size", core.DefaultRecognitionCacheSize, "Number of cached recognition results")
	flags.Int("recognition-cache-ttl-mins", core.DefaultRecognitionCacheTTLMins, "Recognition cache TTL in minutes")
	flags.Float64("recognition-rate-per-sec", core.DefaultRecognitionRatePerSec, "Maximum recognition API calls per second")
	flags.String("llm-provider", noneProvider, "LLM provider for caption guessing (openai, anthropic, ollama, none)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("llm-api-key", "", "LLM API key")
	flags.String("llm-base-url", "", "LLM base URL (Ollama)")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Bot language (%s)", supportedLangs))
	flags.Int("flood-limit-per-minute", core.DefaultFloodLimitPerMinute, "Maximum requests per user per minute")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	resolveCmd.Flags().Bool("file", false, "Treat the argument as a local audio or video file")
	resolveCmd.Flags().Bool("voice", false, "Treat the file as a hummed or sung recording")
	searchCmd.Flags().Int("limit", 0, "Number of candidates (default is search-candidates)")
	historyCmd.Flags().Int("limit", 20, "Number of entries")

	rootCmd.AddCommand(resolveCmd, searchCmd, historyCmd)

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureTelegram(cfg)
	configureDatabase(cfg)
	configureLibrary(cfg)
	configureExtract(cfg)
	configureRecognition(cfg)
	configureLLM(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureTelegram(cfg *core.Config) {
	cfg.Telegram.Enabled = viper.GetBool("telegram-enabled")
	cfg.Telegram.BotToken = viper.GetString("telegram-bot-token")
	cfg.Telegram.GroupID = viper.GetInt64("telegram-group-id")
}

func configureDatabase(cfg *core.Config) {
	cfg.Database.Driver = viper.GetString("database-driver")
	cfg.Database.DSN = viper.GetString("database-dsn")
}

func configureLibrary(cfg *core.Config) {
	cfg.Library.Dir = viper.GetString("library-dir")
	cfg.Library.S3Endpoint = viper.GetString("library-s3-endpoint")
	cfg.Library.S3Bucket = viper.GetString("library-s3-bucket")
	cfg.Library.S3AccessKey = viper.GetString("library-s3-access-key")
	cfg.Library.S3SecretKey = viper.GetString("library-s3-secret-key")
	cfg.Library.S3UseSSL = viper.GetBool("library-s3-use-ssl")
	cfg.Library.S3Region = viper.GetString("library-s3-region")
}

func configureExtract(cfg *core.Config) {
	cfg.Extract.YtDlpPath = viper.GetString("ytdlp-path")
	cfg.Extract.FFmpegPath = viper.GetString("ffmpeg-path")
	cfg.Extract.FFprobePath = viper.GetString("ffprobe-path")
	cfg.Extract.WorkspaceRoot = viper.GetString("workspace-root")

	cfg.Extract.MaxConcurrentDownloads = viper.GetInt("max-concurrent-downloads")
	if cfg.Extract.MaxConcurrentDownloads <= 0 {
		cfg.Extract.MaxConcurrentDownloads = core.DefaultMaxConcurrentDownloads
	}

	cfg.Extract.DownloadTimeout = time.Duration(viper.GetInt("download-timeout-secs")) * time.Second
	if cfg.Extract.DownloadTimeout <= 0 {
		cfg.Extract.DownloadTimeout = core.DefaultDownloadTimeoutSecs * time.Second
	}

	cfg.Extract.SearchCandidates = viper.GetInt("search-candidates")
	if cfg.Extract.SearchCandidates <= 0 {
		cfg.Extract.SearchCandidates = core.DefaultSearchCandidates
	}

	cfg.Extract.WorkspaceMaxAge = time.Duration(viper.GetInt("workspace-max-age-mins")) * time.Minute
	if cfg.Extract.WorkspaceMaxAge <= 0 {
		cfg.Extract.WorkspaceMaxAge = core.DefaultWorkspaceMaxAgeMins * time.Minute
	}
}

func configureRecognition(cfg *core.Config) {
	cfg.Recognition.APIToken = viper.GetString("audd-api-token")
	cfg.Recognition.APIURL = viper.GetString("audd-api-url")
	cfg.Recognition.Threshold = viper.GetFloat64("recognition-threshold")
	cfg.Recognition.CacheSize = viper.GetInt("recognition-cache-size")
	cfg.Recognition.CacheTTL = time.Duration(viper.GetInt("recognition-cache-ttl-mins")) * time.Minute
	cfg.Recognition.RatePerSec = viper.GetFloat64("recognition-rate-per-sec")

	if cfg.Recognition.CacheSize <= 0 {
		cfg.Recognition.CacheSize = core.DefaultRecognitionCacheSize
	}
	if cfg.Recognition.CacheTTL <= 0 {
		cfg.Recognition.CacheTTL = core.DefaultRecognitionCacheTTLMins * time.Minute
	}
}

func configureLLM(cfg *core.Config) {
	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-api-key")
	cfg.LLM.BaseURL = viper.GetString("llm-base-url")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}

	supportedLanguages := i18n.GetSupportedLanguages()
	if !slices.Contains(supportedLanguages, cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(supportedLanguages, ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
	if cfg.App.FloodLimitPerMinute <= 0 {
		cfg.App.FloodLimitPerMinute = core.DefaultFloodLimitPerMinute
	}
}

func buildLogger(logConfig core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if logConfig.Format == logFormatConsole {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runSongbird(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Songbird",
		zap.String("version", "1.0.0"),
		zap.String("database_driver", config.Database.Driver),
		zap.String("llm_provider", config.LLM.Provider),
		zap.Bool("telegram_enabled", config.Telegram.Enabled),
		zap.Bool("object_library", config.Library.S3Endpoint != ""))

	if err := validateConfig(true); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(false); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	stack, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer stack.close()

	isFile, _ := cmd.Flags().GetBool("file")
	isVoice, _ := cmd.Flags().GetBool("voice")

	req := core.ResolutionRequest{
		RawInput:  strings.Join(args, " "),
		Kind:      core.InputKindURL,
		Requester: "cli",
		MessageID: fmt.Sprintf("%d", time.Now().UnixNano()),
	}
	if isFile || isVoice {
		req.Kind = core.InputKindFile
	}
	if isVoice {
		req.Hint = core.HintVoice
	}

	resolution, err := stack.orchestrator.Resolve(ctx, req)
	if err != nil {
		return err
	}

	if resolution.Failure != nil {
		return fmt.Errorf("resolution failed on %s: %s", resolution.Failure.Platform, resolution.Failure.Kind)
	}

	song := resolution.Song
	fmt.Printf("🎵 %s - %s\n", song.Artist, song.Title)
	fmt.Printf("   id:       %d\n", song.ID)
	fmt.Printf("   source:   %s (reused: %t)\n", resolution.Source, resolution.Reused)
	fmt.Printf("   platform: %s/%s\n", song.Platform, song.NativeID)
	fmt.Printf("   duration: %s\n", song.Duration)
	fmt.Printf("   file:     %s\n", song.FilePath)

	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer stack.close()

	limit, _ := cmd.Flags().GetInt("limit")
	candidates, kind := stack.orchestrator.Candidates(ctx, strings.Join(args, " "), limit)
	if len(candidates) == 0 {
		if kind == core.ErrorKindNone {
			kind = core.ErrorKindNotFound
		}
		return fmt.Errorf("search failed: %s", kind)
	}

	for i, candidate := range candidates {
		fmt.Printf("%d. %s (%s) [%s]\n   %s\n", i+1, candidate.Title, candidate.Channel, candidate.Duration, candidate.URL)
	}

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateDatabaseConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	repository, err := store.Open(ctx, config.Database.Driver, config.Database.DSN, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repository.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := repository.RecentRequests(ctx, args[0], limit)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		song := "-"
		if entry.SongID != nil {
			song = fmt.Sprintf("#%d", *entry.SongID)
		}
		voice := ""
		if entry.ViaVoice {
			voice = " 🎤"
		}
		fmt.Printf("%s  %-6s %s%s\n", entry.CreatedAt.Format(time.DateTime), song, entry.Query, voice)
	}

	return nil
}

func validateConfig(serving bool) error {
	if serving {
		if err := validateChatFrontends(); err != nil {
			return err
		}
	}
	if err := validateDatabaseConfig(); err != nil {
		return err
	}
	if err := validateRecognitionConfig(); err != nil {
		return err
	}
	return validateLLMConfig()
}

func validateChatFrontends() error {
	if !config.Telegram.Enabled {
		return errors.New("telegram must be enabled to serve chat requests")
	}
	if config.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when Telegram is enabled")
	}
	return nil
}

func validateDatabaseConfig() error {
	switch config.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	return nil
}

func validateRecognitionConfig() error {
	if config.Recognition.Threshold < 0 || config.Recognition.Threshold >= 1 {
		return fmt.Errorf("recognition threshold must be in [0, 1), got %v", config.Recognition.Threshold)
	}
	if config.Recognition.APIToken == "" {
		logger.Warn("No AudD API token configured, recognition runs on the anonymous quota")
	}
	return nil
}

func validateLLMConfig() error {
	if config.LLM.Provider != noneProvider && config.LLM.Provider != "" {
		if config.LLM.APIKey == "" && config.LLM.Provider != llm.ProviderOllama {
			return fmt.Errorf("LLM API key is required for provider: %s", config.LLM.Provider)
		}
	}
	return nil
}

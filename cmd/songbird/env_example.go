package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"songbird/internal/i18n"
)

const ruler = "# -----------------------------------------------------------------------------\n"

// envEntry documents one flag. An empty value writes the flag default and a
// commented entry is emitted with a leading "# ".
type envEntry struct {
	flag      string
	value     string
	comment   string
	commented bool
}

type envSection struct {
	title   string
	notes   []string
	entries []envEntry
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# Songbird Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: SONGBIRD_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections() {
		writeSection(&content, cmd, section)
	}

	generateQuickSetupGuide(&content)

	return content.String()
}

func envSections() []envSection {
	return []envSection{
		{
			title: "Telegram",
			notes: []string{"Create a bot with @BotFather and add it to your group"},
			entries: []envEntry{
				{flag: "telegram-enabled", comment: "Enable Telegram bot"},
				{flag: "telegram-bot-token", value: "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11", comment: "Bot token from @BotFather"},
				{flag: "telegram-group-id", comment: "Only answer in this chat, 0 answers everywhere"},
			},
		},
		{
			title: "Storage",
			notes: []string{"sqlite3 takes a file path, pgx takes a postgres:// URL"},
			entries: []envEntry{
				{flag: "database-driver", comment: "Driver: sqlite3, pgx"},
				{flag: "database-dsn", comment: "Database DSN"},
				{flag: "library-dir", comment: "Local audio library"},
			},
		},
		{
			title: "Object Storage (Optional)",
			notes: []string{"Uncomment to keep audio in an S3 compatible bucket (MinIO, R2, AWS)"},
			entries: []envEntry{
				{flag: "library-s3-endpoint", value: "localhost:9000", comment: "Endpoint without scheme", commented: true},
				{flag: "library-s3-bucket", comment: "Bucket, created when missing", commented: true},
				{flag: "library-s3-access-key", value: "minioadmin", comment: "Access key", commented: true},
				{flag: "library-s3-secret-key", value: "minioadmin", comment: "Secret key", commented: true},
				{flag: "library-s3-use-ssl", comment: "Use TLS", commented: true},
				{flag: "library-s3-region", value: "us-east-1", comment: "Region", commented: true},
			},
		},
		{
			title: "Extraction",
			notes: []string{"yt-dlp and ffmpeg must be on PATH or configured here"},
			entries: []envEntry{
				{flag: "ytdlp-path", comment: "yt-dlp binary"},
				{flag: "ffmpeg-path", comment: "ffmpeg binary"},
				{flag: "ffprobe-path", comment: "ffprobe binary"},
				{flag: "max-concurrent-downloads", comment: "Shared limit for subprocesses and API calls"},
				{flag: "download-timeout-secs", comment: "Timeout of one yt-dlp run"},
				{flag: "search-candidates", comment: "Entries listed by /search"},
				{flag: "workspace-root", comment: "Scratch directory, empty uses the system temp dir"},
				{flag: "workspace-max-age-mins", comment: "Orphaned workspaces older than this are removed"},
			},
		},
		{
			title: "Recognition",
			notes: []string{"Get a token from https://dashboard.audd.io/"},
			entries: []envEntry{
				{flag: "audd-api-token", value: "your_audd_token_here", comment: "AudD API token"},
				{flag: "audd-api-url", comment: "AudD endpoint"},
				{flag: "recognition-threshold", comment: "Results at or below this confidence are ignored"},
				{flag: "recognition-cache-size", comment: "Cached recognition results"},
				{flag: "recognition-cache-ttl-mins", comment: "Recognition cache TTL"},
				{flag: "recognition-rate-per-sec", comment: "Recognition API calls per second"},
			},
		},
		{
			title: "LLM Caption Guessing (Optional)",
			notes: []string{
				"Guesses the song from TikTok and Instagram captions when extraction fails",
				"openai: gpt-4o-mini, anthropic: claude-3-5-haiku-latest, ollama: llama3.2",
			},
			entries: []envEntry{
				{flag: "llm-provider", comment: "Provider: none, openai, anthropic, ollama"},
				{flag: "llm-api-key", value: "sk-...", comment: "API key (not needed for ollama)", commented: true},
				{flag: "llm-model", value: "gpt-4o-mini", comment: "Model name", commented: true},
				{flag: "llm-base-url", value: "http://localhost:11434", comment: "Ollama server URL", commented: true},
			},
		},
		{
			title: "Application",
			entries: []envEntry{
				{flag: "language", comment: "Bot language: " + strings.Join(i18n.GetSupportedLanguages(), ", ")},
				{flag: "flood-limit-per-minute", comment: "Max requests per user per minute"},
			},
		},
		{
			title: "HTTP Server",
			notes: []string{"Serves /healthz, /readyz and /metrics"},
			entries: []envEntry{
				{flag: "server-host", comment: "Bind address"},
				{flag: "server-port", comment: "Port"},
			},
		},
		{
			title: "Logging",
			entries: []envEntry{
				{flag: "log-level", comment: "Log level: debug, info, warn, error"},
				{flag: "log-format", comment: "Log format: json, console"},
			},
		},
	}
}

func writeSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString(ruler)
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString(ruler)
	for _, note := range section.notes {
		fmt.Fprintf(content, "# %s\n", note)
	}

	flags := make([]string, 0, len(section.entries))
	for _, entry := range section.entries {
		flags = append(flags, "--"+entry.flag)
	}
	fmt.Fprintf(content, "# CLI: %s\n", strings.Join(flags, ", "))

	for _, entry := range section.entries {
		defaultValue := getDefaultValueString(cmd, entry.flag)
		value := entry.value
		if value == "" {
			value = defaultValue
		}

		line := fmt.Sprintf("%s=%s", flagToEnvVar(entry.flag), value)
		if entry.commented {
			line = "# " + line
		}
		fmt.Fprintf(content, "%-56s # %s (default: %q)\n", line, entry.comment, defaultValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.Root().PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}

func generateQuickSetupGuide(content *strings.Builder) {
	content.WriteString("# =============================================================================\n")
	content.WriteString("# QUICK SETUP GUIDE\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# 1. Install yt-dlp and ffmpeg\n")
	content.WriteString("# 2. Create a Telegram bot with @BotFather and set SONGBIRD_TELEGRAM_BOT_TOKEN\n")
	content.WriteString("# 3. Get an AudD token and set SONGBIRD_AUDD_API_TOKEN\n")
	content.WriteString("# 4. Optional: pick an LLM provider for caption guessing\n")
	content.WriteString("#\n")
	content.WriteString("# Try it without the bot:\n")
	content.WriteString("#    go run ./cmd/songbird resolve https://youtu.be/dQw4w9WgXcQ\n")
	content.WriteString("#    go run ./cmd/songbird resolve --voice ./humming.ogg\n")
	content.WriteString("#    go run ./cmd/songbird search \"bohemian rhapsody\"\n")
	content.WriteString("#\n")
	content.WriteString("# Troubleshooting:\n")
	content.WriteString("# - TikTok rate limits show up as \"rate_limited\" failures, retry after a minute\n")
	content.WriteString("# - Run with SONGBIRD_LOG_LEVEL=debug to see every yt-dlp invocation\n")
}

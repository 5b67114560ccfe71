package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":           "Something went wrong. Please try again.",
	"error.flood":             "⏳ Slow down a little. Try again in %d seconds.",
	"error.unsupported_input": "Send me a link, a song name, or an audio or voice message.",
	"error.attachment":        "I couldn't download your file. Please send it again.",

	// Failures, by error kind; the argument is the platform name
	"failure.not_found":          "I couldn't find this song on %s.",
	"failure.network_error":      "%s is not reachable right now. Please try again later.",
	"failure.rate_limited":       "%s is rate limiting me. Please try again in a minute.",
	"failure.unsupported_format": "I can't get audio out of this %s source.",
	"failure.timeout":            "Fetching from %s took too long. Please try again.",

	// Progress
	"prompt.working":   "🔎 Looking for your song...",
	"prompt.listening": "🎧 Listening...",

	// Search
	"prompt.search_usage":   "Usage: /search <song name>",
	"prompt.search_results": "Results for \"%s\":",
	"format.candidate":      "%d. %s (%s)",
	"format.duration":       " [%s]",

	// Success messages
	"success.song":        "🎵 %s - %s",
	"success.song_reused": "🎵 %s - %s (already in the library)",
	"success.recognized":  "🎧 Recognized: %s - %s",

	// Bot messages
	"bot.help": "Send me a YouTube, TikTok or Instagram link, a song name, " +
		"or a voice message with someone humming, and I'll find the song.\n\n" +
		"/search <song name> lists matches without downloading.",

	// Platform names
	"platform.youtube":   "YouTube",
	"platform.tiktok":    "TikTok",
	"platform.instagram": "Instagram",
	"platform.query":     "YouTube search",
	"platform.local":     "your file",
	"platform.unknown":   "this site",
}

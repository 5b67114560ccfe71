package i18n

// russianMessages contains all Russian translations.
var russianMessages = map[string]string{
	// Error messages
	"error.generic":           "Что-то пошло не так. Попробуйте ещё раз.",
	"error.flood":             "⏳ Не так быстро. Попробуйте через %d сек.",
	"error.unsupported_input": "Пришлите ссылку, название песни или аудио/голосовое сообщение.",
	"error.attachment":        "Не удалось скачать ваш файл. Пришлите его ещё раз.",

	// Failures, by error kind; the argument is the platform name
	"failure.not_found":          "Не удалось найти эту песню на %s.",
	"failure.network_error":      "%s сейчас недоступен. Попробуйте позже.",
	"failure.rate_limited":       "%s ограничивает запросы. Попробуйте через минуту.",
	"failure.unsupported_format": "Не удалось извлечь звук из источника %s.",
	"failure.timeout":            "Загрузка с %s заняла слишком много времени. Попробуйте ещё раз.",

	// Progress
	"prompt.working":   "🔎 Ищу вашу песню...",
	"prompt.listening": "🎧 Слушаю...",

	// Search
	"prompt.search_usage":   "Использование: /search <название песни>",
	"prompt.search_results": "Результаты по запросу \"%s\":",
	"format.candidate":      "%d. %s (%s)",
	"format.duration":       " [%s]",

	// Success messages
	"success.song":        "🎵 %s - %s",
	"success.song_reused": "🎵 %s - %s (уже в библиотеке)",
	"success.recognized":  "🎧 Распознано: %s - %s",

	// Bot messages
	"bot.help": "Пришлите ссылку на YouTube, TikTok или Instagram, название песни " +
		"или голосовое сообщение, где кто-то напевает мелодию, и я найду песню.\n\n" +
		"/search <название> покажет совпадения без загрузки.",

	// Platform names
	"platform.youtube":   "YouTube",
	"platform.tiktok":    "TikTok",
	"platform.instagram": "Instagram",
	"platform.query":     "поиске YouTube",
	"platform.local":     "вашем файле",
	"platform.unknown":   "этом сайте",
}

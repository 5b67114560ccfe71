// Package i18n holds the user-facing messages of the bot in every supported language.
package i18n

import (
	"fmt"
	"maps"
	"slices"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	RussianLanguage = "ru"
)

var catalogs = map[string]map[string]string{
	DefaultLanguage: englishMessages,
	RussianLanguage: russianMessages,
}

// Localizer formats message keys in one language, falling back to English.
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a localizer. Unknown languages use the default catalog.
func NewLocalizer(language string) *Localizer {
	messages, ok := catalogs[language]
	if !ok {
		messages = catalogs[DefaultLanguage]
	}
	return &Localizer{language: language, messages: messages}
}

// T looks key up and formats it with args. Missing keys are returned verbatim.
func (l *Localizer) T(key string, args ...any) string {
	message, ok := l.messages[key]
	if !ok {
		message, ok = catalogs[DefaultLanguage][key]
	}
	if !ok {
		return key
	}

	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (l *Localizer) Language() string {
	return l.language
}

// GetSupportedLanguages returns the language codes with a catalog, sorted.
func GetSupportedLanguages() []string {
	return slices.Sorted(maps.Keys(catalogs))
}

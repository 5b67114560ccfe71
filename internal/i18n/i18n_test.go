package i18n

import (
	"regexp"
	"slices"
	"strings"
	"testing"
)

var verbRegex = regexp.MustCompile(`%[sdv]`)

func TestCatalogsShareKeysAndArity(t *testing.T) {
	reference := catalogs[DefaultLanguage]

	for _, lang := range GetSupportedLanguages() {
		t.Run(lang, func(t *testing.T) {
			messages := catalogs[lang]

			for key, want := range reference {
				got, ok := messages[key]
				if !ok {
					t.Errorf("missing key %q", key)
					continue
				}

				wantVerbs := verbRegex.FindAllString(want, -1)
				gotVerbs := verbRegex.FindAllString(got, -1)
				if !slices.Equal(wantVerbs, gotVerbs) {
					t.Errorf("key %q has verbs %v, want %v", key, gotVerbs, wantVerbs)
				}
			}

			for key := range messages {
				if _, ok := reference[key]; !ok {
					t.Errorf("key %q is not in the %s catalog", key, DefaultLanguage)
				}
			}
		})
	}
}

func TestEveryFailureKindAndPlatformHasMessage(t *testing.T) {
	kinds := []string{"not_found", "network_error", "rate_limited", "unsupported_format", "timeout"}
	platforms := []string{"youtube", "tiktok", "instagram", "query", "local", "unknown"}

	localizer := NewLocalizer(DefaultLanguage)

	for _, kind := range kinds {
		key := "failure." + kind
		if message := localizer.T(key, "YouTube"); message == key || !strings.Contains(message, "YouTube") {
			t.Errorf("T(%q) = %q, want a message naming the platform", key, message)
		}
	}

	for _, platform := range platforms {
		key := "platform." + platform
		if name := localizer.T(key); name == key || name == "" {
			t.Errorf("T(%q) has no display name", key)
		}
	}
}

func TestLocalizer(t *testing.T) {
	tests := []struct {
		name     string
		language string
		key      string
		args     []any
		expected string
	}{
		{"Formats arguments", DefaultLanguage, "success.song", []any{"Queen", "Bohemian Rhapsody"},
			"🎵 Queen - Bohemian Rhapsody"},
		{"Missing key returns key", DefaultLanguage, "this.key.does.not.exist", nil, "this.key.does.not.exist"},
		{"Unknown language uses English", "xx", "platform.youtube", nil, englishMessages["platform.youtube"]},
		{"Russian catalog", RussianLanguage, "error.generic", nil, russianMessages["error.generic"]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := NewLocalizer(tt.language).T(tt.key, tt.args...); result != tt.expected {
				t.Errorf("T() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestLocalizer_FallsBackPerKey(t *testing.T) {
	localizer := &Localizer{language: RussianLanguage, messages: map[string]string{}}

	if result := localizer.T("error.generic"); result != englishMessages["error.generic"] {
		t.Errorf("T() = %q, want the English message", result)
	}
}

func TestGetSupportedLanguages(t *testing.T) {
	languages := GetSupportedLanguages()

	if !slices.Equal(languages, []string{DefaultLanguage, RussianLanguage}) {
		t.Errorf("GetSupportedLanguages() = %v", languages)
	}
}

func BenchmarkLocalizerWithArgs(b *testing.B) {
	localizer := NewLocalizer(DefaultLanguage)

	for b.Loop() {
		_ = localizer.T("success.song", "Test Artist", "Test Title")
	}
}

// Package metadata cleans titles, artists and search queries that come from
// extractors, social captions and recognition results.
package metadata

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// UnknownArtist is returned by SplitArtistTitle when no separator is found.
	UnknownArtist = "Unknown"
	// captionWordLimit is the word count above which a title reads like a caption.
	captionWordLimit = 12
	// splitParts is the expected number of parts when splitting artist and title.
	splitParts = 2
)

var (
	hashtagRegex    = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionRegex    = regexp.MustCompile(`@[\p{L}\p{N}_.]+`)
	urlRegex        = regexp.MustCompile(`(?i)https?://\S+`)
	bracketRegex    = regexp.MustCompile(`[\(\[【]([^\(\)\[\]【】]*)[\)\]】]`)
	camelRegex      = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	dashRegex       = regexp.MustCompile(`[–—\-_]+`)
	queryJunkRegex  = regexp.MustCompile(`[^\p{L}\p{N}\s&'"]+`)

	qualifierRegex = regexp.MustCompile(`(?i)^\s*(?:` +
		`official(?:\s+(?:music|lyric|lyrics|visual|hd))?(?:\s+(?:video|audio|clip|visualizer|mv))?` +
		`|(?:music|lyric|lyrics)\s+video` +
		`|lyrics?|audio|video|clip|visualizer|mv|m/v` +
		`|hd|hq|4k|8k|\d{3,4}p|hd\s+(?:audio|video)|high\s+quality` +
		`|(?:19|20)\d{2}` +
		`|(?:eng|en|ru|rus|es|kr|jp|english|russian|spanish|korean|japanese)(?:\s+(?:sub|subs|subtitles|version|lyrics|ver\.?))?` +
		`|текст(?:\s+песни)?|клип|премьера(?:\s+клипа)?|официальное\s+видео` +
		`)\s*$`)

	fillerRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*on tiktok\s*$`),
		regexp.MustCompile(`(?i)\s*on instagram\s*$`),
		regexp.MustCompile(`(?i)playlist in (?:my )?profile`),
		regexp.MustCompile(`(?i)link in bio`),
		regexp.MustCompile(`(?i)плейлист в профиле`),
	}

	separatorRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\s+[-–—]\s+`),
		regexp.MustCompile(`\s*:\s*`),
		regexp.MustCompile(`\s*\|\s*`),
	}

	placeholders = map[string]bool{
		"":                  true,
		"unknown":           true,
		"unknown artist":    true,
		"unknown track":     true,
		"unknown title":     true,
		"unknown creator":   true,
		"various artists":   true,
		"untitled":          true,
		"n/a":               true,
		"na":                true,
		"none":              true,
		"null":              true,
		"video":             true,
		"audio":             true,
		"original sound":    true,
		"оригинальный звук": true,
		"неизвестен":        true,
	}
)

// NormalizeTitle strips hashtags, mentions, bracketed qualifier tags, emoji and
// social filler from raw and collapses whitespace. It is idempotent. When
// nothing meaningful survives the trimmed input is returned.
func NormalizeTitle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Every pass after the first only removes text or rewrites whitespace, so
	// the loop reaches a fixed point.
	cleaned := trimmed
	for {
		next := cleanOnce(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}

	if !hasLetterOrDigit(cleaned) {
		return trimmed
	}
	return cleaned
}

func cleanOnce(s string) string {
	s = norm.NFKC.String(s)
	s = urlRegex.ReplaceAllString(s, " ")
	s = hashtagRegex.ReplaceAllString(s, " ")
	s = mentionRegex.ReplaceAllString(s, " ")
	s = stripEmoji(s)

	s = bracketRegex.ReplaceAllStringFunc(s, func(match string) string {
		inner := bracketRegex.FindStringSubmatch(match)[1]
		if strings.TrimSpace(inner) == "" || qualifierRegex.MatchString(inner) {
			return " "
		}
		return match
	})

	for _, filler := range fillerRegexes {
		s = filler.ReplaceAllString(s, " ")
	}

	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, isEdgeJunk)
}

// isEdgeJunk covers the same whitespace as strings.TrimSpace, which RE2's \s
// does not (U+0085, U+2028 and friends).
func isEdgeJunk(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(".,!?-_|:;~", r)
}

// NormalizeArtist cleans an artist or channel name.
func NormalizeArtist(raw string) string {
	return NormalizeTitle(ArtistFromChannel(raw))
}

// SplitArtistTitle splits "Artist - Title" style strings. Separators are tried
// in order: dashes surrounded by spaces, colon, pipe.
func SplitArtistTitle(raw string) (artist, title string) {
	trimmed := strings.TrimSpace(raw)

	for _, separator := range separatorRegexes {
		parts := separator.Split(trimmed, splitParts)
		if len(parts) != splitParts {
			continue
		}

		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
		if artist != "" && title != "" {
			return artist, title
		}
	}

	return UnknownArtist, trimmed
}

// IsPlaceholder reports whether s is a generic value that says nothing about the track.
func IsPlaceholder(s string) bool {
	key := strings.ToLower(strings.TrimSpace(s))
	if placeholders[key] {
		return true
	}
	return strings.HasPrefix(key, "original sound") || strings.HasPrefix(key, "оригинальный звук")
}

// LooksLikeCaption reports whether a title reads like a social post caption
// rather than a track name.
func LooksLikeCaption(s string) bool {
	if hashtagRegex.MatchString(s) || mentionRegex.MatchString(s) || urlRegex.MatchString(s) {
		return true
	}

	if strings.ContainsAny(s, "\n\r") {
		return true
	}

	for _, filler := range fillerRegexes {
		if filler.MatchString(s) {
			return true
		}
	}

	return len(strings.Fields(s)) > captionWordLimit
}

// IsStrong reports whether extractor metadata names the track well enough to
// skip recognition.
func IsStrong(title, artist string) bool {
	if IsPlaceholder(title) || IsPlaceholder(artist) {
		return false
	}
	return !LooksLikeCaption(title)
}

// CleanQuery produces a search query variant with separators turned into
// spaces and punctuation removed.
func CleanQuery(q string) string {
	q = stripEmoji(norm.NFKC.String(q))
	q = dashRegex.ReplaceAllString(q, " ")
	q = queryJunkRegex.ReplaceAllString(q, " ")
	return strings.Join(strings.Fields(q), " ")
}

// ArtistFromChannel derives an artist from an uploader name, handling
// auto-generated "- Topic" channels and VEVO channels.
func ArtistFromChannel(uploader string) string {
	uploader = strings.TrimSpace(uploader)

	if name, ok := strings.CutSuffix(uploader, " - Topic"); ok {
		return strings.TrimSpace(name)
	}

	if name, ok := strings.CutSuffix(uploader, "VEVO"); ok && name != "" {
		return camelRegex.ReplaceAllString(strings.TrimSpace(name), "$1 $2")
	}

	return uploader
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\u200d', r == '\ufe0f', r == '\ufe0e':
			return -1
		case r >= 0x1F000 && r <= 0x1FAFF:
			return -1
		case r >= 0x2600 && r <= 0x27BF:
			return -1
		case unicode.Is(unicode.So, r):
			return -1
		}
		return r
	}, s)
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Package fuzzy scores how well a downloaded candidate matches a recognized identity.
package fuzzy

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMatchThreshold is the minimum score for a candidate to count as the same song.
	DefaultMatchThreshold = 0.55
	titleWeight           = 0.6
	artistWeight          = 0.3
	durationWeight        = 0.1
	durationTolerance     = 15 * time.Second
	maxDurationDiff       = 90 * time.Second
)

var (
	featRegex       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?\s*`)
	versionRegex    = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:remaster|remastered|deluxe|extended|radio edit|clean|explicit)[^\)\]]*[\)\]]\s*`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Identity is the title/artist pair being matched, with an optional duration.
type Identity struct {
	Title    string
	Artist   string
	Duration time.Duration
}

// Fold lowercases text, strips diacritics and punctuation, and collapses whitespace.
func Fold(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(strings.ToLower(text))
}

// FoldTitle folds a title after dropping featuring credits and edition tags.
func FoldTitle(title string) string {
	title = featRegex.ReplaceAllString(title, " ")
	title = versionRegex.ReplaceAllString(title, " ")
	return Fold(title)
}

// Similarity is the longest common subsequence ratio of two strings, by rune.
func Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	return float64(longestCommonSubsequence(a, b)) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// DurationTolerance is 1 within 15s, falling linearly to 0 at 90s apart.
// Unknown durations score 1.
func DurationTolerance(d1, d2 time.Duration) float64 {
	if d1 <= 0 || d2 <= 0 {
		return 1.0
	}

	diff := d1 - d2
	if diff < 0 {
		diff = -diff
	}

	if diff <= durationTolerance {
		return 1.0
	}
	if diff >= maxDurationDiff {
		return 0.0
	}

	return 1.0 - float64(diff-durationTolerance)/float64(maxDurationDiff-durationTolerance)
}

// Score compares a candidate video (its title and channel) against want.
// Video titles often carry the artist, so the artist is also looked for in
// the candidate title.
func Score(candidateTitle, candidateChannel string, candidateDuration time.Duration, want Identity) float64 {
	title := FoldTitle(candidateTitle)
	wantTitle := FoldTitle(want.Title)
	wantArtist := Fold(want.Artist)

	titleScore := Similarity(title, wantTitle)
	if wantTitle != "" && strings.Contains(title, wantTitle) {
		titleScore = 1.0
	}

	artistScore := Similarity(Fold(candidateChannel), wantArtist)
	if wantArtist != "" && strings.Contains(title, wantArtist) {
		artistScore = 1.0
	}

	return titleWeight*titleScore +
		artistWeight*artistScore +
		durationWeight*DurationTolerance(candidateDuration, want.Duration)
}

// Matches reports whether the candidate scores at or above DefaultMatchThreshold.
func Matches(candidateTitle, candidateChannel string, candidateDuration time.Duration, want Identity) bool {
	return Score(candidateTitle, candidateChannel, candidateDuration, want) >= DefaultMatchThreshold
}

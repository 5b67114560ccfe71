package fuzzy

import (
	"testing"
	"time"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple text", "Hello World", "hello world"},
		{"Punctuation", "Hello, World!", "hello world"},
		{"Accents", "Björk", "bjork"},
		{"Multiple spaces", "  Hello    World  ", "hello world"},
		{"Cyrillic", "Кино - Группа крови", "кино группа крови"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Fold(tt.input); result != tt.expected {
				t.Errorf("Fold() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFoldTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Featuring", "Song Title (feat. Artist)", "song title"},
		{"Remaster", "Song Title (Remastered 2009)", "song title"},
		{"Plain", "Don't Stop Me Now", "don t stop me now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FoldTitle(tt.input); result != tt.expected {
				t.Errorf("FoldTitle() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		expected float64
		delta    float64
	}{
		{"Identical strings", "hello", "hello", 1.0, 0.0},
		{"Similar strings", "hello", "hallo", 0.8, 0.01},
		{"Empty strings", "", "", 1.0, 0.0},
		{"One empty string", "hello", "", 0.0, 0.0},
		{"Multibyte runes", "группа", "группы", 0.83, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Similarity(tt.s1, tt.s2)
			if abs64(result-tt.expected) > tt.delta {
				t.Errorf("Similarity() = %f, want %f (±%f)", result, tt.expected, tt.delta)
			}
		})
	}
}

func TestDurationTolerance(t *testing.T) {
	tests := []struct {
		name     string
		d1       time.Duration
		d2       time.Duration
		expected float64
	}{
		{"Identical", 3 * time.Minute, 3 * time.Minute, 1.0},
		{"Within tolerance", 3 * time.Minute, 3*time.Minute + 10*time.Second, 1.0},
		{"Halfway", 3 * time.Minute, 3*time.Minute + 52500*time.Millisecond, 0.5},
		{"Far apart", 1 * time.Minute, 5 * time.Minute, 0.0},
		{"Unknown duration", 0, 3 * time.Minute, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DurationTolerance(tt.d1, tt.d2)
			if abs64(result-tt.expected) > 0.001 {
				t.Errorf("DurationTolerance() = %f, want %f", result, tt.expected)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	want := Identity{Title: "Bad Guy", Artist: "Billie Eilish", Duration: 194 * time.Second}

	tests := []struct {
		name     string
		title    string
		channel  string
		duration time.Duration
		expected bool
	}{
		{"Official upload", "Billie Eilish - bad guy (Official Music Video)", "BillieEilishVEVO", 205 * time.Second, true},
		{"Topic channel", "bad guy", "Billie Eilish - Topic", 194 * time.Second, true},
		{"Different song", "Never Gonna Give You Up", "Rick Astley", 213 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Matches(tt.title, tt.channel, tt.duration, want); result != tt.expected {
				t.Errorf("Matches() = %v, want %v (score %f)", result, tt.expected,
					Score(tt.title, tt.channel, tt.duration, want))
			}
		})
	}
}

func BenchmarkScore(b *testing.B) {
	want := Identity{Title: "Hey Jude", Artist: "The Beatles"}

	b.ResetTimer()
	for range b.N {
		Score("The Beatles - Hey Jude (Remastered 2009)", "The Beatles - Topic", 0, want)
	}
}

// Helper function for floating point comparison.
func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

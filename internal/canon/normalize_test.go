package canon

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Manchester City", "manchester city"},
		{"Man City", "manchester city"},
		{"Liverpool FC", "liverpool"},
		{"Liverpool", "liverpool"},
		{"FC Bayern", "bayern"},
		{"RC Hades", "hades"},
		{"K.S.K. Beveren", "beveren"},
		{"Man Utd", "manchester united"},
		{"Atl Madrid", "atletico madrid"},
		{"  Tottenham   Hotspur ", "tottenham hotspur"},
		{"Saint-Etienne", "saint etienne"},
		{"", ""},
	}

	for _, tt := range tests {
		result := Normalize(tt.input)
		if result != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "liverpool", "liverpool", 1, 1},
		{"close variants", "manchester city", "manchester city fc", 0.8, 1},
		{"unrelated", "liverpool", "real madrid", 0, 0.3},
		{"empty", "", "liverpool", 0, 0},
		{"word order", "city manchester", "manchester city", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Similarity(tt.a, tt.b)
			if score < tt.min || score > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, score, tt.min, tt.max)
			}
		})
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"manchester city", "man city fc"},
		{"bayern", "bayern munich"},
		{"a", "ab"},
	}
	for _, p := range pairs {
		if Similarity(p[0], p[1]) != Similarity(p[1], p[0]) {
			t.Errorf("Similarity(%q, %q) is not symmetric", p[0], p[1])
		}
	}
}

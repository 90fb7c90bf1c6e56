package hscode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"8471.30.00.10", "8471300010"},
		{"8471 30", "847130"},
		{"8471-30-00", "84713000"},
		{"  84.71  ", "8471"},
		{"8471", "8471"},
		{"", ""},
		{"abc", "abc"}, // passthrough, never rejects
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"84", "84"},
		{"8471", "84.71"},
		{"847130", "84.71.30"},
		{"84713000", "84.71.30.00"},
		{"8471300010", "84.71.30.00.10"},
		{"8471.30", "84.71.30"}, // already-dotted input is re-normalized
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%q)", tt.in)
	}
}

// normalize(format(normalize(x))) == normalize(x): formatting round-trips.
func TestFormatRoundTrip(t *testing.T) {
	inputs := []string{"84", "8471", "847130", "84713000", "8471300010", "8471.30.00.10"}
	for _, in := range inputs {
		assert.Equal(t, Normalize(in), Normalize(Format(Normalize(in))), "round trip %q", in)
	}
}

// Level thresholds are monotonic non-decreasing in normalized length.
func TestLevelOf(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"8", LevelChapter},
		{"84", LevelChapter},
		{"847", LevelHeading},
		{"8471", LevelHeading},
		{"84713", LevelSubheading},
		{"847130", LevelSubheading},
		{"8471300", LevelLine},
		{"84713000", LevelLine},
		{"8471300010", LevelLine},
	}
	order := map[Level]int{LevelChapter: 0, LevelHeading: 1, LevelSubheading: 2, LevelLine: 3}
	prev := -1
	for _, tt := range tests {
		got := LevelOf(tt.in)
		assert.Equal(t, tt.want, got, "LevelOf(%q)", tt.in)
		assert.GreaterOrEqual(t, order[got], prev, "level must not decrease with length")
		prev = order[got]
	}
}

func TestAncestors(t *testing.T) {
	assert.Empty(t, Ancestors("84"))
	assert.Equal(t, []string{"84"}, Ancestors("8471"))
	assert.Equal(t, []string{"84", "8471"}, Ancestors("847130"))
	assert.Equal(t, []string{"84", "8471", "847130"}, Ancestors("84713000"))
	assert.Equal(t, []string{"84", "8471", "847130", "84713000"}, Ancestors("8471300010"))
	// Separators are tolerated.
	assert.Equal(t, []string{"84", "8471"}, Ancestors("84.71.30"))
}

func TestChapter(t *testing.T) {
	assert.Equal(t, "84", Chapter("8471300010"))
	assert.Equal(t, "84", Chapter("84.71"))
	assert.Equal(t, "8", Chapter("8"))
}

func TestIsPlausible(t *testing.T) {
	assert.True(t, IsPlausible("8471"))
	assert.True(t, IsPlausible("8471300010"))
	assert.False(t, IsPlausible("84"))           // too short
	assert.False(t, IsPlausible("0000000000"))   // chapter 00 unassigned
	assert.False(t, IsPlausible("847130001012")) // too long
	assert.False(t, IsPlausible("84x7"))
}

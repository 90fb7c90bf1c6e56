// Package hscode canonicalizes harmonized-system tariff codes. Codes are
// hierarchical digit strings: chapter (2 digits), heading (4), subheading (6)
// and national line (8 or 10). All functions are pure and best-effort; they
// never reject input, since codes arrive from free text.
package hscode

import "strings"

// Level is the hierarchy depth of a code.
type Level string

const (
	LevelChapter    Level = "chapter"
	LevelHeading    Level = "heading"
	LevelSubheading Level = "subheading"
	LevelLine       Level = "line"
)

// Normalize strips the separators commonly seen in written codes
// ("8471.30.00", "8471 30", "8471-30") down to the bare digit string.
// Malformed input passes through untouched.
func Normalize(code string) string {
	replacer := strings.NewReplacer(".", "", " ", "", "-", "")
	return replacer.Replace(strings.TrimSpace(code))
}

// Format renders a normalized digit string in the dotted display form,
// with separators after positions 2, 4, 6 and 8. Two digits or fewer
// render as-is.
func Format(digits string) string {
	digits = Normalize(digits)
	if len(digits) <= 2 {
		return digits
	}

	var parts []string
	boundaries := []int{2, 4, 6, 8}
	prev := 0
	for _, b := range boundaries {
		if len(digits) <= b {
			break
		}
		parts = append(parts, digits[prev:b])
		prev = b
	}
	parts = append(parts, digits[prev:])
	return strings.Join(parts, ".")
}

// LevelOf derives the hierarchy level from the normalized length.
func LevelOf(digits string) Level {
	switch n := len(Normalize(digits)); {
	case n <= 2:
		return LevelChapter
	case n <= 4:
		return LevelHeading
	case n <= 6:
		return LevelSubheading
	default:
		return LevelLine
	}
}

// Ancestors returns the proper prefixes of a code at lengths 2, 4, 6 and 8,
// root-first, excluding the code itself. A chapter code has no ancestors.
func Ancestors(digits string) []string {
	digits = Normalize(digits)
	var out []string
	for _, n := range []int{2, 4, 6, 8} {
		if n < len(digits) {
			out = append(out, digits[:n])
		}
	}
	return out
}

// Chapter returns the 2-digit chapter prefix, or the whole input when it
// is shorter than a chapter code.
func Chapter(digits string) string {
	digits = Normalize(digits)
	if len(digits) < 2 {
		return digits
	}
	return digits[:2]
}

// IsPlausible reports whether a digit string can denote a real code:
// at least 4 normalized digits and a non-zero chapter. Chapter "00" is
// not assigned in the nomenclature.
func IsPlausible(digits string) bool {
	digits = Normalize(digits)
	if len(digits) < 4 || len(digits) > 10 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return digits[:2] != "00"
}

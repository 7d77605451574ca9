package utils

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	MaxInterests      = 10
	InterestSeparator = ", "
)

// NormalizeInterests trims, drops blanks and case-insensitive duplicates, keeps
// at most MaxInterests and joins them with InterestSeparator.
// Query-side and profile-side text go through the same function.
func NormalizeInterests(items []string) string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.Join(strings.Fields(it), " ")
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
		if len(out) == MaxInterests {
			break
		}
	}
	return strings.Join(out, InterestSeparator)
}

// SplitList splits free text on commas, semicolons and newlines.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
}

// StripCodeFences removes a surrounding ``` or ```json fence if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop language tag line
		if tag := strings.TrimSpace(s[:i]); !strings.ContainsAny(tag, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Similarity converts a cosine distance into a score in [0,1]. Non-finite input maps to 0.
func Similarity(distance float64) float64 {
	v := 1 - distance
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

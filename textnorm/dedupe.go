package textnorm

import (
	"strings"
	"unicode"
)

// NearDuplicateThreshold is the token-set Jaccard similarity above which two
// strings are treated as saying the same thing. Tunable policy, not a parser:
// 0.90 was calibrated on real lesson sheets.
const NearDuplicateThreshold = 0.90

// canonicalise lowercases, strips non-alphanumerics, and collapses
// whitespace, so comparisons ignore punctuation and casing.
func canonicalise(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NearDuplicate reports whether a and b say essentially the same thing:
// either one canonicalised form contains the other, or their token sets
// overlap with Jaccard similarity of at least NearDuplicateThreshold.
func NearDuplicate(a, b string) bool {
	ca, cb := canonicalise(a), canonicalise(b)
	if ca == "" || cb == "" {
		return false
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return true
	}
	return jaccard(ca, cb) >= NearDuplicateThreshold
}

func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// FirstSentence returns the first sentence of text, up to and including the
// terminating punctuation. Text without sentence punctuation is returned
// whole.
func FirstSentence(text string) string {
	trimmed := strings.TrimSpace(text)
	for i, r := range trimmed {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		rest := trimmed[i+1:]
		if rest == "" || rest[0] == ' ' || rest[0] == '\n' {
			return trimmed[:i+1]
		}
	}
	return trimmed
}

// CollapseExplainer removes redundancy between a lesson description and its
// project explainer. When the two are near-duplicates the explainer is cut
// down to its first sentence; if even that still duplicates the description
// (or is empty) the explainer is dropped entirely.
func CollapseExplainer(description, explainer string) string {
	if !NearDuplicate(description, explainer) {
		return explainer
	}
	first := FirstSentence(explainer)
	if first == "" || NearDuplicate(description, first) {
		return ""
	}
	return first
}

package internal

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

// FuzzyTitleThreshold is the shared 0.6 similarity cutoff from §3. Both the
// in-memory Levenshtein pass and the storage-side trigram pass use this
// constant; per DESIGN.md the two measures may disagree at the margins and
// that is accepted, not papered over.
const FuzzyTitleThreshold = 0.6

var (
	_titlePunctRE = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	_englishArticles = map[string]bool{"a": true, "an": true, "the": true}
)

// NormalizeTitle lowercases, strips punctuation, drops leading English
// articles, and collapses whitespace, as required for the fuzzy-duplicate
// predicate in §3.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = _titlePunctRE.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	out := words[:0]
	for i, w := range words {
		if i == 0 && _englishArticles[w] {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// TitleSimilarity returns the normalized-title Levenshtein similarity in
// [0,1], the in-memory half of the fuzzy-duplicate predicate.
func TitleSimilarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == nb {
		return 1
	}
	return levenshtein.Similarity(na, nb, nil)
}

// TitlesSimilar reports whether a and b clear FuzzyTitleThreshold.
func TitlesSimilar(a, b string) bool {
	return TitleSimilarity(a, b) >= FuzzyTitleThreshold
}

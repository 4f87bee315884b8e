// Package parser extracts URLs, search terms and counters from plain text.
package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	urlRe  = regexp.MustCompile(`(?i)\b(?:https?://|www\d{0,3}\.)[^\s<>"'` + "`" + `]+`)
	wordRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'_-]*`)
)

// DefaultTerms is the number of terms Terms returns when n <= 0.
const DefaultTerms = 8

// URLs returns the deduplicated URLs found in text, in order of first
// appearance. Trailing punctuation and a trailing slash are removed.
func URLs(text string) []string {
	matches := urlRe.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		u := NormalizeURL(m)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// NormalizeURL trims sentence punctuation, unbalanced closing brackets and
// one trailing slash from a matched URL.
func NormalizeURL(u string) string {
	u = strings.TrimRight(u, ".,;:!?")
	for strings.HasSuffix(u, ")") && strings.Count(u, "(") < strings.Count(u, ")") {
		u = strings.TrimSuffix(u, ")")
	}
	for strings.HasSuffix(u, "]") && strings.Count(u, "[") < strings.Count(u, "]") {
		u = strings.TrimSuffix(u, "]")
	}
	u = strings.TrimRight(u, ".,;:!?")
	return strings.TrimSuffix(u, "/")
}

// Terms returns up to n keywords ranked by frequency, ties broken by first
// appearance. Stop words, numbers, URLs and words shorter than three
// letters are skipped.
func Terms(text string, n int) []string {
	if n <= 0 {
		n = DefaultTerms
	}
	text = urlRe.ReplaceAllString(text, " ")

	type entry struct {
		word  string
		count int
		first int
	}
	byWord := make(map[string]*entry)
	var order []*entry
	for i, w := range wordRe.FindAllString(text, -1) {
		w = strings.ToLower(strings.Trim(w, "'_-"))
		if len([]rune(w)) < 3 || isNumber(w) {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		e, ok := byWord[w]
		if !ok {
			e = &entry{word: w, first: i}
			byWord[w] = e
			order = append(order, e)
		}
		e.count++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})
	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, len(order))
	for i, e := range order {
		out[i] = e.word
	}
	return out
}

// Counts returns the word and line counts shown next to the editor.
// Empty text has zero lines.
func Counts(text string) (words, lines int) {
	words = len(strings.Fields(text))
	if text == "" {
		return words, 0
	}
	return words, strings.Count(text, "\n") + 1
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
		about above after again against all also and any are because been before
		being below between both but can cannot could did does doing down during
		each few for from further had has have having her here hers herself him
		himself his how into its itself just let more most much must myself nor
		not now off once only other our ours ourselves out over own same she
		should some such than that the their theirs them themselves then there
		these they this those through too under until upon very was were what
		when where which while who whom why will with would you your yours
		yourself yourselves one two get got make made like well still even
		really thing things way www http https com org net`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

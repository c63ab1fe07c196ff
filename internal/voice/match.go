package voice

import (
	"strings"
)

// PrefixMatch is the result of comparing the leading words of an utterance
// against a target phonetic string.
type PrefixMatch struct {
	// Similarity is 1 - editDistance/len(target), so 1.0 is an exact match.
	// It can be negative for wildly different strings.
	Similarity float64

	// Matched and MatchedPhonetic are the consumed prefix words, space
	// separated. Rest and RestPhonetic are the remaining words.
	Matched         string
	MatchedPhonetic string
	Rest            string
	RestPhonetic    string
}

// MatchPrefix greedily accumulates phonetic words (concatenated without
// separators) into a candidate prefix until adding the next word would
// exceed len(target). The boundary word is included only if doing so brings
// the accumulated length closer to len(target) than excluding it, ties
// favoring inclusion. Similarity is the normalized inverse edit distance
// between the accumulated prefix and target. Comparison is case-insensitive.
//
// plainWords and phoneticWords must be word-aligned; when their lengths
// differ the extra words of the longer slice are treated as rest.
func MatchPrefix(plainWords, phoneticWords []string, target string) PrefixMatch {
	if len(target) == 0 {
		// A zero-length target would make every prefix an exact match.
		return PrefixMatch{
			Rest:         strings.Join(plainWords, " "),
			RestPhonetic: strings.Join(phoneticWords, " "),
		}
	}
	n := len(phoneticWords)
	if len(plainWords) < n {
		n = len(plainWords)
	}
	want := strings.ToLower(target)

	accumulated := ""
	taken := 0
	for taken < n {
		next := accumulated + strings.ToLower(phoneticWords[taken])
		if len(next) > len(want) {
			// Boundary word: include iff it lands at least as close to the
			// target length as stopping here.
			if len(next)-len(want) <= len(want)-len(accumulated) {
				accumulated = next
				taken++
			}
			break
		}
		accumulated = next
		taken++
	}

	distance := Levenshtein(accumulated, want)
	return PrefixMatch{
		Similarity:      1 - float64(distance)/float64(len(want)),
		Matched:         strings.Join(plainWords[:taken], " "),
		MatchedPhonetic: strings.Join(phoneticWords[:taken], " "),
		Rest:            strings.Join(plainWords[taken:], " "),
		RestPhonetic:    strings.Join(phoneticWords[taken:], " "),
	}
}

// Levenshtein computes the edit distance between two strings over runes,
// using a single-row DP.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

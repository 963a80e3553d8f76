package editor

import (
	"unicode"
	"unicode/utf8"
)

// Match is one search hit in rune offsets.
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Search finds case-insensitive, non-overlapping literal occurrences of term.
// An empty term matches nothing.
func Search(text, term string) []Match {
	if term == "" || text == "" {
		return nil
	}

	hay := []rune(text)
	needle := foldRunes(term)
	n := len(needle)

	var matches []Match
	for i := 0; i+n <= len(hay); {
		if equalFold(hay[i:i+n], needle) {
			matches = append(matches, Match{Start: i, End: i + n})
			i += n
			continue
		}
		i++
	}
	return matches
}

func foldRunes(s string) []rune {
	out := make([]rune, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func equalFold(a, folded []rune) bool {
	for i, r := range a {
		if unicode.ToLower(r) != folded[i] {
			return false
		}
	}
	return true
}

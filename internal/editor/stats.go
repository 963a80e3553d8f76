package editor

import "strings"

// Stats is what the status bar shows.
type Stats struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Chars  int `json:"chars"`
	Words  int `json:"words"`
}

// ComputeStats returns the 1-based line and column of caret (a rune
// offset, clamped to the text) and the character and word counts.
func ComputeStats(text string, caret int) Stats {
	runes := []rune(text)
	caret = clamp(caret, 0, len(runes))

	line, col := 1, 1
	for _, r := range runes[:caret] {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}

	return Stats{
		Line:   line,
		Column: col,
		Chars:  len(runes),
		Words:  len(strings.Fields(text)),
	}
}

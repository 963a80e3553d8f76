// Package editor implements the editing-surface actions of the notepad:
// typing, clipboard operations, search, status counts and display settings.
//
// Offsets are rune offsets into the document text, matching what a browser
// textarea reports for selectionStart/selectionEnd on BMP text.
package editor

import (
	"github.com/dshills/notepad/internal/history"
)

// Selection is a half-open rune range [Start, End).
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Caret returns an empty selection at offset.
func Caret(offset int) Selection {
	return Selection{Start: offset, End: offset}
}

// IsEmpty reports whether the selection covers no text.
func (s Selection) IsEmpty() bool {
	return s.Start == s.End
}

// Clamp orders the bounds and limits them to [0, n].
func (s Selection) Clamp(n int) Selection {
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	s.Start = clamp(s.Start, 0, n)
	s.End = clamp(s.End, 0, n)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Type forwards a keystroke's resulting full text to the history.
func Type(m *history.Manager, text string) {
	m.RecordDebounced(text)
}

// Paste replaces sel with clip as one undo step and returns the caret
// position after the inserted text.
func Paste(m *history.Manager, sel Selection, clip string) int {
	text := []rune(m.Value())
	sel = sel.Clamp(len(text))
	ins := []rune(clip)

	out := make([]rune, 0, len(text)-(sel.End-sel.Start)+len(ins))
	out = append(out, text[:sel.Start]...)
	out = append(out, ins...)
	out = append(out, text[sel.End:]...)

	m.CommitImmediate(string(out))
	return sel.Start + len(ins)
}

// Cut removes sel as one undo step and returns the removed text. An empty
// selection changes nothing.
func Cut(m *history.Manager, sel Selection) (string, int) {
	text := []rune(m.Value())
	sel = sel.Clamp(len(text))
	if sel.IsEmpty() {
		return "", sel.Start
	}

	removed := string(text[sel.Start:sel.End])
	out := make([]rune, 0, len(text)-(sel.End-sel.Start))
	out = append(out, text[:sel.Start]...)
	out = append(out, text[sel.End:]...)

	m.CommitImmediate(string(out))
	return removed, sel.Start
}

// Copy returns the text under sel without touching the history. An empty
// selection copies the whole document.
func Copy(m *history.Manager, sel Selection) string {
	text := []rune(m.Value())
	sel = sel.Clamp(len(text))
	if sel.IsEmpty() {
		return string(text)
	}
	return string(text[sel.Start:sel.End])
}

// DeleteAll clears the document as one undo step. It reports false when the
// document was already empty.
func DeleteAll(m *history.Manager) bool {
	if m.Value() == "" {
		return false
	}
	m.CommitImmediate("")
	return true
}

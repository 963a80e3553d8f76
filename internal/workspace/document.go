package workspace

import (
	"strings"
	"sync"

	"github.com/dshills/notepad/internal/debounce"
	"github.com/dshills/notepad/internal/history"
)

// maxTitleRunes bounds the tab title derived from a document's first line.
const maxTitleRunes = 20

// Document is one open tab.
type Document struct {
	// ID is the stable identifier used in the store and on the wire.
	ID string

	// History owns the document's text and undo checkpoints.
	History *history.Manager

	persist *debounce.Debouncer

	// mu orders saves against close so a closed document is never
	// written back after its content was deleted.
	mu     sync.Mutex
	closed bool
}

// Text returns the live value.
func (d *Document) Text() string {
	return d.History.Value()
}

// Title returns the tab label: the first line of the text, truncated, or
// "Untitled" when that line is blank.
func (d *Document) Title() string {
	return Title(d.History.Value())
}

// Title derives a tab label from text.
func Title(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "Untitled"
	}
	r := []rune(line)
	if len(r) > maxTitleRunes {
		r = r[:maxTitleRunes]
	}
	return string(r)
}

// Closed reports whether the document has been closed.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

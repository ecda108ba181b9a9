package usecase

import (
	"fmt"
	"strings"
)

const (
	historyHeader = "Previous actions history:"
	historyEmpty  = "No actions taken yet"
)

// History is the ordered log of observations fed back to the model. Values are
// immutable: Record returns a new History and leaves the receiver untouched.
type History struct {
	entries []string
	limit   int
}

// NewHistory returns an empty history. A positive limit caps how many of the
// most recent entries Render includes; numbering stays global.
func NewHistory(limit int) History {
	if limit < 0 {
		limit = 0
	}

	return History{limit: limit}
}

// Record appends observation as a single line. Driver errors often span
// several lines, so whitespace runs are collapsed to one space.
func (h History) Record(observation string) History {
	entries := make([]string, len(h.entries), len(h.entries)+1)
	copy(entries, h.entries)

	return History{
		entries: append(entries, strings.Join(strings.Fields(observation), " ")),
		limit:   h.limit,
	}
}

func (h History) Len() int {
	return len(h.entries)
}

func (h History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)

	return out
}

func (h History) Render() string {
	if len(h.entries) == 0 {
		return historyHeader + "\n" + historyEmpty
	}

	var sb strings.Builder
	sb.WriteString(historyHeader)

	first := 0
	if h.limit > 0 && len(h.entries) > h.limit {
		first = len(h.entries) - h.limit
		fmt.Fprintf(&sb, "\n(%d earlier actions omitted)", first)
	}

	for i := first; i < len(h.entries); i++ {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, h.entries[i])
	}

	return sb.String()
}

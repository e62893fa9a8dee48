package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

const barWidth = 30

// Terminal renders a Callback's updates as a single-line progress bar on a
// terminal, overwriting itself with carriage returns.
type Terminal struct {
	writer  io.Writer
	op      string
	total   int
	current atomic.Int32
	enabled atomic.Bool
}

// NewTerminal builds a Terminal writing to os.Stderr. enabled controls
// whether Callback produces any output at all.
func NewTerminal(op string, total int, enabled bool) *Terminal {
	t := &Terminal{writer: os.Stderr, op: op, total: total}
	t.enabled.Store(enabled)
	return t
}

// IsEnabled reports whether the terminal currently renders output.
func (t *Terminal) IsEnabled() bool {
	return t.enabled.Load()
}

// SetEnabled toggles whether Callback produces output.
func (t *Terminal) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Callback returns a Callback that renders a progress bar line each time
// it's invoked.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int, message string) {
		t.current.Store(int32(current))
		if !t.enabled.Load() {
			return
		}
		fmt.Fprint(t.writer, t.render(op, current, total, message))
	}
}

// Done renders a final line for the operation and moves to a new line.
func (t *Terminal) Done(message string) {
	if !t.enabled.Load() {
		return
	}
	fmt.Fprintf(t.writer, "%s: %s\n", t.op, message)
}

func (t *Terminal) render(op string, current, total int, message string) string {
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	}
	filled := barWidth * current / max(total, 1)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	return fmt.Sprintf("\r%s [%s] %d/%d %d%% %s", op, bar, current, total, pct, message)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CountingTerminal renders an incrementing item count for operations whose
// total isn't known up front (e.g. copying an unknown number of files).
type CountingTerminal struct {
	writer  io.Writer
	op      string
	count   atomic.Int32
	enabled atomic.Bool
}

// NewCountingTerminal builds a CountingTerminal writing to os.Stderr.
func NewCountingTerminal(op string, enabled bool) *CountingTerminal {
	t := &CountingTerminal{writer: os.Stderr, op: op}
	t.enabled.Store(enabled)
	return t
}

// IsEnabled reports whether the terminal currently renders output.
func (t *CountingTerminal) IsEnabled() bool {
	return t.enabled.Load()
}

// SetEnabled toggles whether Increment/Done produce output.
func (t *CountingTerminal) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Increment advances the item count and re-renders the line.
func (t *CountingTerminal) Increment() {
	n := t.count.Add(1)
	if !t.enabled.Load() {
		return
	}
	fmt.Fprintf(t.writer, "\r%s: %d items", t.op, n)
}

// Done renders a final line and moves to a new line.
func (t *CountingTerminal) Done(message string) {
	if !t.enabled.Load() {
		return
	}
	fmt.Fprintf(t.writer, "\r%s: %s\n", t.op, message)
}

// Package logger implements the task-prefixed, color-assigned logging
// contract described in spec §6: one line per status transition, streamed
// stdout/stderr prefixed by a per-task truecolor tag, and a run summary.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Status is a task's lifecycle state, as surfaced to the logger.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusCached   Status = "cached"
	StatusRestored Status = "restored"
)

// Summary is the aggregate reported once a run finishes.
type Summary struct {
	Success  int
	Failed   int
	Cached   int
	Skipped  int
	Duration string
}

// Logger is the contract the runner and scheduler depend on (spec §6).
// Console is the only shipped implementation, but tests may supply their
// own, e.g. one that just records calls.
type Logger interface {
	Task(id string, status Status, msg string)
	TaskStdout(id string, data []byte)
	TaskStderr(id string, data []byte)
	Summary(s Summary)
}

// Console is a Logger that writes prefixed, truecolor-tagged lines to an
// io.Writer (os.Stdout/os.Stderr by default), falling back to plain text
// when color is disabled.
type Console struct {
	out    io.Writer
	errOut io.Writer

	colorCache *colorCache
	colorOn    bool

	mu      sync.Mutex
	partial map[string][]byte // buffered partial lines per task+stream key
}

// NewConsole creates a Console writing to stdout/stderr, auto-detecting
// color support via isatty. Pass forceColor=true to always colorize (e.g.
// when FORCE_COLOR is set in the environment) regardless of TTY detection.
func NewConsole(forceColor bool) *Console {
	colorOn := forceColor || isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return &Console{
		out:        os.Stdout,
		errOut:     os.Stderr,
		colorCache: newColorCache(),
		colorOn:    colorOn,
		partial:    make(map[string][]byte),
	}
}

var statusGlyph = map[Status]string{
	StatusStarting: ">",
	StatusRunning:  "~",
	StatusSuccess:  "✓",
	StatusFailed:   "✗",
	StatusSkipped:  "-",
	StatusCached:   "⚡",
	StatusRestored: "↺",
}

// Task reports one lifecycle transition for a task.
func (c *Console) Task(id string, status Status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := c.prefix(id)
	line := fmt.Sprintf("%s %s %s", prefix, statusGlyph[status], status)
	if msg != "" {
		line += ": " + msg
	}
	fmt.Fprintln(c.out, line)
}

// TaskStdout streams a chunk of a task's stdout, prefixing each complete
// line with the task's color tag.
func (c *Console) TaskStdout(id string, data []byte) {
	c.writeLines(c.out, id, "stdout", data)
}

// TaskStderr streams a chunk of a task's stderr, prefixing each complete
// line with the task's color tag.
func (c *Console) TaskStderr(id string, data []byte) {
	c.writeLines(c.errOut, id, "stderr", data)
}

func (c *Console) writeLines(w io.Writer, id, stream string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id + ":" + stream
	buf := append(c.partial[key], data...)
	prefix := c.prefix(id)

	for {
		idx := strings.IndexByte(string(buf), '\n')
		if idx < 0 {
			break
		}
		fmt.Fprintf(w, "%s %s\n", prefix, string(buf[:idx]))
		buf = buf[idx+1:]
	}
	c.partial[key] = buf
}

// Summary reports the final run tally.
func (c *Console) Summary(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\nTasks: %d success, %d failed, %d cached, %d skipped (%s)\n",
		s.Success, s.Failed, s.Cached, s.Skipped, s.Duration)
}

func (c *Console) prefix(id string) string {
	if !c.colorOn {
		return id
	}
	rgb := c.colorCache.colorFor(id)
	fn := color.RGB(rgb.r, rgb.g, rgb.b).SprintFunc()
	return fn(id)
}

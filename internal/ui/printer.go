// Package ui provides terminal output for sdqctl: a line printer for
// single runs and a live dashboard for batches.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Printer writes progress and warning lines. It satisfies the executor
// and orchestrator progress sinks. On a TTY lines are styled; piped
// output stays plain so logs and CI transcripts diff cleanly.
type Printer struct {
	mu   sync.Mutex
	out  io.Writer
	errW io.Writer
	tty  bool
}

// IsTTY reports whether stdout is an interactive terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewPrinter returns a Printer bound to stdout and stderr.
func NewPrinter() *Printer {
	return &Printer{
		out:  os.Stdout,
		errW: os.Stderr,
		tty:  term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Progressf prints one progress line to stdout.
func (p *Printer) Progressf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf(format, args...)
	if p.tty {
		line = DimStyle.Render(line)
	}
	fmt.Fprintln(p.out, line)
}

// Warnf prints one warning line to stderr.
func (p *Printer) Warnf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := "warning: " + fmt.Sprintf(format, args...)
	if p.tty {
		line = WarningStyle.Render(line)
	}
	fmt.Fprintln(p.errW, line)
}

// Successf prints a closing line, green on a TTY.
func (p *Printer) Successf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf(format, args...)
	if p.tty {
		line = SuccessStyle.Render(line)
	}
	fmt.Fprintln(p.out, line)
}

// Errorf prints a failure line to stderr, red on a TTY.
func (p *Printer) Errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf(format, args...)
	if p.tty {
		line = ErrorStyle.Render(line)
	}
	fmt.Fprintln(p.errW, line)
}

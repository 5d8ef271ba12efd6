// Package logging configures zerolog for the CLI and provides the per-run
// diagnostics collector handed to pipeline components.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds a console logger writing to w. verbosity maps 0=warn, 1=info,
// 2=debug, 3+=trace.
func New(w io.Writer, verbosity int) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.WarnLevel
	switch {
	case verbosity == 1:
		level = zerolog.InfoLevel
	case verbosity == 2:
		level = zerolog.DebugLevel
	case verbosity >= 3:
		level = zerolog.TraceLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !colorable(w)}
	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// colorable reports whether w is a terminal; buffers and redirected
// streams get plain output.
func colorable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Component returns a child logger tagged with the component name.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one non-fatal finding recorded during a run.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Source   string   `json:"source"`
	File     string   `json:"file,omitempty"`
	Message  string   `json:"message"`
}

// Diagnostics is the error log of one pipeline run. Each run (or worker)
// constructs its own and passes it explicitly; there is no shared global.
type Diagnostics struct {
	mu     sync.Mutex
	logger zerolog.Logger
	items  []Diagnostic
}

func NewDiagnostics(logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

func (d *Diagnostics) Warn(source, file, msg string) {
	d.add(Diagnostic{Severity: SeverityWarning, Source: source, File: file, Message: msg})
}

func (d *Diagnostics) Error(source, file, msg string) {
	d.add(Diagnostic{Severity: SeverityError, Source: source, File: file, Message: msg})
}

func (d *Diagnostics) add(diag Diagnostic) {
	d.mu.Lock()
	d.items = append(d.items, diag)
	d.mu.Unlock()

	ev := d.logger.Warn()
	if diag.Severity == SeverityError {
		ev = d.logger.Error()
	}
	ev.Str("source", diag.Source).Str("file", diag.File).Msg(diag.Message)
}

// Items returns a copy of everything recorded so far.
func (d *Diagnostics) Items() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.items))
	copy(out, d.items)
	return out
}

// Count returns how many diagnostics of the given severity were recorded.
func (d *Diagnostics) Count(sev Severity) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, it := range d.items {
		if it.Severity == sev {
			n++
		}
	}
	return n
}

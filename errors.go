package ember

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Stage identifies which pipeline phase produced a Diagnostic.
type Stage string

const (
	StageLex      Stage = "lex"
	StageParse    Stage = "parse"
	StageSemantic Stage = "semantic"
	StageCompile  Stage = "compile"
	StageRuntime  Stage = "runtime"
)

// Diagnostic is a single recorded problem: a stage tag, a message and
// the source span it refers to.
type Diagnostic struct {
	Stage   Stage
	Message string
	Span    Span
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s @ %s: %s", d.Stage, d.Span, d.Message)
}

// DiagnosticLog accumulates diagnostics for one compilation/execution
// unit. Lex/parse/semantic/compile errors abort their stage and are
// recorded here; a runtime error is recorded by VM.Run as one entry
// whose message carries the failing instruction's line. No per-frame
// "called from here" entries are added. It is built on top of hashicorp/go-multierror
// so that the accumulated diagnostics both implement `error` and can
// be inspected as a slice.
type DiagnosticLog struct {
	errs *multierror.Error
}

// NewDiagnosticLog returns an empty log.
func NewDiagnosticLog() *DiagnosticLog {
	log := &DiagnosticLog{errs: &multierror.Error{}}
	log.errs.ErrorFormat = formatDiagnostics
	return log
}

func formatDiagnostics(errs []error) string {
	var out string
	for i, e := range errs {
		if i > 0 {
			out += "\n"
		}
		out += e.Error()
	}
	return out
}

// Add appends a diagnostic with an already-formatted message.
func (l *DiagnosticLog) Add(stage Stage, span Span, message string) {
	l.errs = multierror.Append(l.errs, Diagnostic{Stage: stage, Message: message, Span: span})
}

// Addf appends a diagnostic with a formatted message.
func (l *DiagnosticLog) Addf(stage Stage, span Span, format string, args ...any) {
	l.Add(stage, span, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any diagnostic has been recorded.
func (l *DiagnosticLog) HasErrors() bool {
	return l.errs != nil && l.errs.Len() > 0
}

// Diagnostics returns the recorded diagnostics in recording order.
func (l *DiagnosticLog) Diagnostics() []Diagnostic {
	if l.errs == nil {
		return nil
	}
	out := make([]Diagnostic, 0, l.errs.Len())
	for _, e := range l.errs.Errors {
		if d, ok := e.(Diagnostic); ok {
			out = append(out, d)
		}
	}
	return out
}

// Err returns the log as an error, or nil if it is empty.
func (l *DiagnosticLog) Err() error {
	if !l.HasErrors() {
		return nil
	}
	return l.errs
}

// Reset clears the log. The VM's lastError is only cleared this way,
// explicitly, never implicitly on a successful call.
func (l *DiagnosticLog) Reset() {
	l.errs = &multierror.Error{ErrorFormat: formatDiagnostics}
}

package ember

import "fmt"

// Location is a one-based (line, column) pair attached to every token
// and AST node.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span covers the source text between two locations; it is propagated
// into emitted instructions via a function's line table for runtime
// error reporting.
type Span struct {
	Start Location
	End   Location
}

func (s Span) String() string {
	if s.Start == s.End {
		return s.Start.String()
	}
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// Join returns the smallest span covering both s and o.
func (s Span) Join(o Span) Span {
	start, end := s.Start, s.End
	if o.Start.Line < start.Line || (o.Start.Line == start.Line && o.Start.Column < start.Column) {
		start = o.Start
	}
	if o.End.Line > end.Line || (o.End.Line == end.Line && o.End.Column > end.Column) {
		end = o.End
	}
	return Span{Start: start, End: end}
}

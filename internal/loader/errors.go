package loader

import "fmt"

// ParseError reports a malformed input record.
type ParseError struct {
	Path   string // empty when parsing from a reader
	Line   int    // 1-based, 0 when not tied to a line
	Reason string
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Reason)
	}
	return e.Reason
}

func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// withPath attaches the file path to a ParseError produced while parsing a reader.
func withPath(err error, path string) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Path = path
		return pe
	}
	return err
}

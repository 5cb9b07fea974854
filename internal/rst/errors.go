package rst

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every error returned from Parse.
var ErrMalformed = errors.New("malformed reStructuredText")

// ParseError reports input that cannot be turned into a document tree.
type ParseError struct {
	Line int // 1-based, 0 when unknown
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("rst: line %d: %s", e.Line, e.Msg)
	}
	return "rst: " + e.Msg
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

package lexer

import (
	"fmt"

	"github.com/walteh/go-elixir/pkg/token"
)

// MalformedExpressionError is an open delimiter that is never closed before
// the end of its attribute value or text run.
type MalformedExpressionError struct {
	Path   string
	Line   int
	Column int
	Value  string
}

func (e *MalformedExpressionError) Error() string {
	return fmt.Sprintf("unclosed expression delimiter at %s (line %d, column %d): %q", e.Path, e.Line, e.Column, e.Value)
}

// UnresolvedPlaceholderError is a node referring to a child or sibling that
// was not emitted before it. It means the emission order is broken.
type UnresolvedPlaceholderError struct {
	Path     string
	Line     int
	Relation string // "child" or "next-sibling"
	ID       token.ID
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("node %s (line %d) refers to %s %s which was not emitted yet", e.Path, e.Line, e.Relation, e.ID.Short())
}

// Package splitter cuts free text into expression runs: quoted literals, the
// {% and %} delimiters, and plain characters. Quoted literals are matched
// before the delimiters, so `{% '{% x %}' %}` is one expression holding a
// string literal and not two nested ones.
package splitter

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"gitlab.com/tozd/go/errors"
)

type Kind int

const (
	SingleQuoted Kind = iota + 1
	DoubleQuoted
	Open
	Close
	Chars
)

func (k Kind) String() string {
	switch k {
	case SingleQuoted:
		return "single-quoted"
	case DoubleQuoted:
		return "double-quoted"
	case Open:
		return "open"
	case Close:
		return "close"
	case Chars:
		return "chars"
	default:
		return "unknown"
	}
}

// IsQuoted reports whether k is a string literal run.
func (k Kind) IsQuoted() bool {
	return k == SingleQuoted || k == DoubleQuoted
}

const (
	OpenDelimiter  = "{%"
	CloseDelimiter = "%}"
)

var (
	// Rules are tried in order and the first match wins. A quote that is
	// never closed falls through to Chars one character at a time.
	Rules = []lexer.SimpleRule{
		{Name: "SingleQuoted", Pattern: `'(?:[^'\\]|\\['"]|\\)*'`},
		{Name: "DoubleQuoted", Pattern: `"(?:[^"\\]|\\["']|\\)*"`},
		{Name: "Open", Pattern: `\{%`},
		{Name: "Close", Pattern: `%\}`},
		{Name: "Chars", Pattern: `[^'"{%]+|[\s\S]`},
	}

	ExpressionLexer = lexer.MustSimple(Rules)

	kinds = func() map[lexer.TokenType]Kind {
		names := map[string]Kind{
			"SingleQuoted": SingleQuoted,
			"DoubleQuoted": DoubleQuoted,
			"Open":         Open,
			"Close":        Close,
			"Chars":        Chars,
		}
		out := make(map[lexer.TokenType]Kind, len(names))
		for name, tt := range ExpressionLexer.Symbols() {
			if k, ok := names[name]; ok {
				out[tt] = k
			}
		}
		return out
	}()
)

// Run is one classified piece of the input. Line is the source line the run
// starts on, Offset its byte offset inside the split text.
type Run struct {
	Kind   Kind
	Value  string
	Line   int
	Offset int
}

// Split classifies text, which starts on source line `line`. Adjacent
// character runs are merged, so the concatenation of all run values is
// always the input.
func Split(text string, line int) ([]Run, error) {
	if line < 1 {
		line = 1
	}
	if text == "" {
		return nil, nil
	}

	lex, err := ExpressionLexer.LexString("", text)
	if err != nil {
		return nil, errors.Errorf("lexing expression text: %w", err)
	}

	toks, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, errors.Errorf("lexing expression text: %w", err)
	}

	runs := make([]Run, 0, len(toks))
	for _, tok := range toks {
		if tok.EOF() {
			break
		}

		kind, ok := kinds[tok.Type]
		if !ok {
			return nil, errors.Errorf("unexpected token type %d at %s", tok.Type, tok.Pos)
		}

		if kind == Chars && len(runs) > 0 && runs[len(runs)-1].Kind == Chars {
			runs[len(runs)-1].Value += tok.Value
			continue
		}

		runs = append(runs, Run{
			Kind:   kind,
			Value:  tok.Value,
			Line:   line + tok.Pos.Line - 1,
			Offset: tok.Pos.Offset,
		})
	}

	return runs, nil
}

// ContainsDelimiter reports whether text holds an expression delimiter
// anywhere, quoted or not. It is the cheap pre-check used to find sites.
func ContainsDelimiter(text string) bool {
	return strings.Contains(text, OpenDelimiter) || strings.Contains(text, CloseDelimiter)
}

// Unclosed returns the index of the outermost open delimiter that no close
// delimiter matches, if any.
func Unclosed(runs []Run) (int, bool) {
	var stack []int
	for i, r := range runs {
		switch r.Kind {
		case Open:
			stack = append(stack, i)
		case Close:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return -1, false
	}
	return stack[0], true
}

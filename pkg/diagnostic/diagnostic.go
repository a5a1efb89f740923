package diagnostic

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/lexer"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/position"
	"github.com/walteh/go-elixir/pkg/splitter"
	"github.com/walteh/go-elixir/pkg/token"
)

// Generator is responsible for generating diagnostics for one template
type Generator interface {
	// Generate lexes src and reports what went wrong. The returned error is
	// the lexing failure itself; the diagnostics are never nil.
	Generate(ctx context.Context, name string, src []byte) (*Diagnostics, *token.Stream, error)
}

// Diagnostics represents diagnostic information that can be formatted in different ways
type Diagnostics struct {
	File     string
	Errors   []Diagnostic
	Warnings []Diagnostic
	Hints    []Diagnostic
}

func (d *Diagnostics) HasErrors() bool {
	return d != nil && len(d.Errors) > 0
}

// All returns errors, then warnings, then hints.
func (d *Diagnostics) All() []Diagnostic {
	if d == nil {
		return nil
	}
	out := make([]Diagnostic, 0, len(d.Errors)+len(d.Warnings)+len(d.Hints))
	out = append(out, d.Errors...)
	out = append(out, d.Warnings...)
	return append(out, d.Hints...)
}

// Diagnostic represents a single diagnostic message. Lines and columns are
// 1-based; columns count grapheme clusters.
type Diagnostic struct {
	Message  string
	Path     string
	Line     int
	Column   int
	EndLine  int
	EndCol   int
	Severity DiagnosticSeverity
}

// DiagnosticSeverity represents the severity level of a diagnostic
type DiagnosticSeverity string

const (
	Error   DiagnosticSeverity = "error"
	Warning DiagnosticSeverity = "warning"
	Info    DiagnosticSeverity = "info"
	Hint    DiagnosticSeverity = "hint"
)

// DefaultGenerator is the default implementation of Generator
type DefaultGenerator struct {
	lexer *lexer.Lexer
}

// NewDefaultGenerator creates a new DefaultGenerator
func NewDefaultGenerator(l *lexer.Lexer) *DefaultGenerator {
	return &DefaultGenerator{lexer: l}
}

// Generate implements Generator
func (g *DefaultGenerator) Generate(ctx context.Context, name string, src []byte) (*Diagnostics, *token.Stream, error) {
	diagnostics := &Diagnostics{
		File:     name,
		Errors:   make([]Diagnostic, 0),
		Warnings: make([]Diagnostic, 0),
	}

	if g.lexer == nil {
		return diagnostics, nil, errors.Errorf("generator has no lexer")
	}

	doc, err := document.Parse(name, src)
	if err != nil {
		diagnostics.Errors = append(diagnostics.Errors, FromError(nil, err))
		return diagnostics, nil, err
	}

	// strict policies fail the lex below, lenient ones only warn
	if ns, err := g.lexer.Policy().Classify(doc.Declarations()); err == nil {
		for _, conflict := range ns.Conflicts {
			d := FromError(doc, conflict)
			d.Severity = Warning
			diagnostics.Warnings = append(diagnostics.Warnings, d)
		}
	}

	stream, err := g.lexer.Lex(ctx, doc)
	if err != nil {
		diagnostics.Errors = append(diagnostics.Errors, FromError(doc, err))
		return diagnostics, nil, err
	}

	for _, tok := range stream.All() {
		h, ok := tok.(*token.HelperToken)
		if !ok || h.Kind() != token.KindElementHelper {
			continue
		}
		diagnostics.Hints = append(diagnostics.Hints, Diagnostic{
			Message:  fmt.Sprintf("Helper: {%s}%s", h.Namespace, h.Name),
			Path:     h.Path,
			Line:     h.SourceLine,
			Column:   1,
			EndLine:  h.SourceLine,
			EndCol:   1,
			Severity: Hint,
		})
	}

	return diagnostics, stream, nil
}

// FromError positions err in doc. doc may be nil when the document could not
// be parsed. Errors without a known position land on the first line.
func FromError(doc *document.Document, err error) Diagnostic {
	d := Diagnostic{
		Message:  err.Error(),
		Line:     1,
		Column:   1,
		EndLine:  1,
		EndCol:   1,
		Severity: Error,
	}

	var (
		malformed  *lexer.MalformedExpressionError
		unresolved *lexer.UnresolvedPlaceholderError
		ambiguous  *policy.AmbiguousHelperNamespaceError
		syntax     *xml.SyntaxError
	)

	switch {
	case errors.As(err, &malformed):
		d.Message = fmt.Sprintf("Unclosed expression: %q is never closed by %q", splitter.OpenDelimiter, splitter.CloseDelimiter)
		d.Path = malformed.Path
		d.Line, d.Column = malformed.Line, malformed.Column
		d.EndLine, d.EndCol = malformed.Line, malformed.Column+len(splitter.OpenDelimiter)
	case errors.As(err, &unresolved):
		d.Message = fmt.Sprintf("Unresolved %s placeholder %s", unresolved.Relation, unresolved.ID.Short())
		d.Path = unresolved.Path
		d.Line, d.EndLine = unresolved.Line, unresolved.Line
	case errors.As(err, &ambiguous):
		d.Message = fmt.Sprintf("Ambiguous helper namespace: %s is deny-listed", ambiguous.URI)
		d.Path = ambiguous.Path
		if ambiguous.Line > 0 {
			d.Line, d.EndLine = ambiguous.Line, ambiguous.Line
		}
		if doc == nil {
			break
		}
		if r, ok := doc.DeclarationRange(policy.Declaration{Prefix: ambiguous.Prefix, URI: ambiguous.URI}); ok {
			d.Line, d.Column = r.Start.Line, r.Start.Character
			d.EndLine, d.EndCol = r.End.Line, r.End.Character
		}
	case errors.As(err, &syntax):
		d.Message = fmt.Sprintf("Invalid XML: %s", syntax.Msg)
		d.Line, d.EndLine = syntax.Line, syntax.Line
	}

	return d
}

// Formatter formats diagnostics into different output formats
type Formatter interface {
	// Format formats diagnostics into a specific output format
	Format(diagnostics *Diagnostics) ([]byte, error)
}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string) (Formatter, error) {
	switch name {
	case "text", "":
		return NewTextFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	case "vscode":
		return NewVSCodeFormatter(), nil
	default:
		return nil, errors.Errorf("unknown diagnostic format %q", name)
	}
}

// TextFormatter writes one compiler style line per diagnostic.
type TextFormatter struct{}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format implements Formatter
func (f *TextFormatter) Format(diagnostics *Diagnostics) ([]byte, error) {
	if diagnostics == nil {
		return nil, errors.Errorf("diagnostics is nil")
	}

	var sb strings.Builder
	for _, d := range diagnostics.All() {
		fmt.Fprintf(&sb, "%s:%s: %s: %s", diagnostics.File, position.Place{Line: d.Line, Character: d.Column}, d.Severity, d.Message)
		if d.Path != "" {
			fmt.Fprintf(&sb, " (%s)", d.Path)
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// JSONFormatter writes the diagnostics as they are.
type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format implements Formatter
func (f *JSONFormatter) Format(diagnostics *Diagnostics) ([]byte, error) {
	if diagnostics == nil {
		return nil, errors.Errorf("diagnostics is nil")
	}

	type entry struct {
		Diagnostic
		File string `json:"File"`
	}

	out := make([]entry, 0)
	for _, d := range diagnostics.All() {
		out = append(out, entry{Diagnostic: d, File: diagnostics.File})
	}
	return json.Marshal(out)
}

// VSCodeFormatter formats diagnostics into VSCode-compatible format
type VSCodeFormatter struct{}

// NewVSCodeFormatter creates a new VSCodeFormatter
func NewVSCodeFormatter() *VSCodeFormatter {
	return &VSCodeFormatter{}
}

type vscodePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type vscodeRange struct {
	Start vscodePosition `json:"start"`
	End   vscodePosition `json:"end"`
}

type vscodeDiagnostic struct {
	Severity int         `json:"severity"`
	Message  string      `json:"message"`
	Source   string      `json:"source,omitempty"`
	Range    vscodeRange `json:"range"`
}

// VSCode severities: Error = 1, Warning = 2, Information = 3, Hint = 4
var vscodeSeverity = map[DiagnosticSeverity]int{
	Error:   1,
	Warning: 2,
	Info:    3,
	Hint:    4,
}

// Format implements Formatter
func (f *VSCodeFormatter) Format(diagnostics *Diagnostics) ([]byte, error) {
	if diagnostics == nil {
		return nil, errors.Errorf("diagnostics is nil")
	}

	result := make([]vscodeDiagnostic, 0)
	for _, d := range diagnostics.All() {
		result = append(result, vscodeDiagnostic{
			Severity: vscodeSeverity[d.Severity],
			Message:  d.Message,
			Source:   d.Path,
			Range: vscodeRange{
				// VSCode is 0-based
				Start: vscodePosition{Line: d.Line - 1, Character: d.Column - 1},
				End:   vscodePosition{Line: d.EndLine - 1, Character: d.EndCol - 1},
			},
		})
	}

	return json.Marshal(result)
}

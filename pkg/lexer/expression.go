package lexer

import (
	"github.com/beevik/etree"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/position"
	"github.com/walteh/go-elixir/pkg/selector"
	"github.com/walteh/go-elixir/pkg/splitter"
	"github.com/walteh/go-elixir/pkg/token"
)

// located is a splitter run together with the place its text starts at.
type located struct {
	run   splitter.Run
	start position.Place
	text  string
}

func (l located) place() position.Place {
	return position.PlaceInText(l.start, l.text[:l.run.Offset])
}

func contentKind(k splitter.Kind) token.Kind {
	switch k {
	case splitter.Open:
		return token.KindExpressionOpen
	case splitter.Close:
		return token.KindExpressionClose
	default:
		return token.KindExpressionChars
	}
}

func sitePath(doc *document.Document, site selector.Site) string {
	if site.IsAttribute() {
		return doc.AttrPath(site.Element, site.Attr)
	}
	return doc.TextPath(site.Element)
}

// expression builds the Expression token of one site together with its
// content stream.
func (p *pass) expression(site selector.Site) (*token.ExpressionToken, error) {
	path := sitePath(p.doc, site)

	tok := &token.ExpressionToken{
		ID:   token.NewID(path),
		Path: path,
	}

	var runs []located
	var content *token.Stream

	if site.IsAttribute() {
		start := p.doc.AttrPlace(site.Element, site.Attr)
		tok.SourceLine = start.Line
		tok.Attribute = site.Attr.FullKey()
		content = token.NewStream(site.Attr.Value, token.FIFO)

		r, err := p.split(site.Attr.Value, start, content)
		if err != nil {
			return nil, errors.Errorf("splitting %s: %w", path, err)
		}
		runs = r
	} else {
		tok.SourceLine = p.doc.Line(site.Element)
		content = token.NewStream(p.embedded().Children(site.Element), token.FIFO)

		r, err := p.children(site.Element, content)
		if err != nil {
			return nil, errors.Errorf("splitting %s: %w", path, err)
		}
		runs = r
	}

	if err := unclosed(path, runs); err != nil {
		return nil, err
	}

	content.Freeze()
	tok.Content = content

	return tok, nil
}

// embedded serializes markup that travels inside an expression. Markers are
// written as their node placeholder, so a node below a text site leaves
// exactly one placeholder, inside the expression that swallowed it.
func (p *pass) embedded() *document.Rewriter {
	return &document.Rewriter{
		Element: func(e *etree.Element) document.Edit {
			if p.sel.IsMarker(e) {
				return document.Edit{
					Action: document.Replace,
					Markup: document.Placeholder(p.policy.NodePlaceholder, p.ids[e].String()),
				}
			}
			return document.Edit{}
		},
	}
}

// children walks the direct children of a text site in document order.
func (p *pass) children(e *etree.Element, content *token.Stream) ([]located, error) {
	var runs []located
	for _, c := range e.Child {
		line := p.doc.Line(c)

		switch c := c.(type) {
		case *etree.CharData:
			if c.IsCData() {
				if err := content.Push(&token.ExpressionContentToken{Code: token.KindExpressionCData, Value: document.Markup(c), SourceLine: line}); err != nil {
					return nil, err
				}
				continue
			}
			r, err := p.split(c.Data, p.doc.Place(c), content)
			if err != nil {
				return nil, err
			}
			runs = append(runs, r...)
		case *etree.Element:
			if err := content.Push(&token.ExpressionContentToken{Code: token.KindExpressionElement, Value: p.embedded().String(c), SourceLine: line}); err != nil {
				return nil, err
			}
		case *etree.Comment:
			if err := content.Push(&token.ExpressionContentToken{Code: token.KindExpressionComment, Value: document.Markup(c), SourceLine: line}); err != nil {
				return nil, err
			}
		case *etree.ProcInst:
			if err := content.Push(&token.ExpressionContentToken{Code: token.KindExpressionPI, Value: document.Markup(c), SourceLine: line}); err != nil {
				return nil, err
			}
		default:
			if err := content.Push(&token.ExpressionContentToken{Code: token.KindExpressionChars, Value: document.Markup(c), SourceLine: line}); err != nil {
				return nil, err
			}
		}
	}
	return runs, nil
}

// split pushes one content token per splitter run. Quoted literals become
// separate chars tokens, they are never merged with their neighbours.
func (p *pass) split(text string, start position.Place, content *token.Stream) ([]located, error) {
	line := start.Line
	if line == 0 {
		line = 1
	}

	runs, err := splitter.Split(text, line)
	if err != nil {
		return nil, err
	}

	out := make([]located, 0, len(runs))
	for _, r := range runs {
		if err := content.Push(&token.ExpressionContentToken{Code: contentKind(r.Kind), Value: r.Value, SourceLine: r.Line}); err != nil {
			return nil, err
		}
		out = append(out, located{run: r, start: start, text: text})
	}
	return out, nil
}

func unclosed(path string, runs []located) error {
	plain := make([]splitter.Run, len(runs))
	for i, r := range runs {
		plain[i] = r.run
	}

	i, ok := splitter.Unclosed(plain)
	if !ok {
		return nil
	}

	at := runs[i].place()
	return errors.WithStack(&MalformedExpressionError{
		Path:   path,
		Line:   at.Line,
		Column: at.Character,
		Value:  runs[i].text,
	})
}

package lexer

import (
	"slices"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/selector"
	"github.com/walteh/go-elixir/pkg/token"
)

// pass is the scratch state of one Lex call. It never outlives the call.
type pass struct {
	logger *zerolog.Logger
	doc    *document.Document
	sel    *selector.Selector
	policy *policy.Policy
	stream *token.Stream

	ids     map[*etree.Element]token.ID
	emitted map[token.ID]bool
}

func (p *pass) push(t token.Token) error {
	if err := p.stream.Push(t); err != nil {
		return errors.Errorf("pushing %s token: %w", t.Kind(), err)
	}
	return nil
}

// node emits the whole group of one marker. Within the group the push order
// is: attribute helper expressions and attribute helpers, element helper
// expressions and the element helper, node expressions, and the node itself.
func (p *pass) node(n *etree.Element) error {
	if err := p.attributeHelpers(n); err != nil {
		return err
	}
	if err := p.elementHelper(n); err != nil {
		return err
	}
	if err := p.expressions(p.sel.NodeExpressions(n)); err != nil {
		return err
	}

	tok, err := p.nodeToken(n)
	if err != nil {
		return err
	}
	if err := p.push(tok); err != nil {
		return err
	}
	p.emitted[tok.ID] = true

	p.logger.Debug().
		Str("id", tok.ID.Short()).
		Str("path", tok.Path).
		Int("children", len(tok.Children)).
		Msg("emitted node")

	return nil
}

func (p *pass) attributeHelpers(n *etree.Element) error {
	helpers := p.sel.AttributeHelpers(n)
	for _, a := range slices.Backward(helpers) {
		if err := p.expressions(p.sel.AttributeHelperExpressions(n, a)); err != nil {
			return err
		}

		err := p.push(&token.HelperToken{
			Code:       token.KindAttributeHelper,
			ID:         token.NewID(p.doc.AttrPath(n, a)),
			Path:       p.doc.AttrPath(n, a),
			SourceLine: p.doc.AttrLine(n, a),
			Name:       a.Key,
			Namespace:  a.NamespaceURI(),
			Value:      a.Value,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) elementHelper(n *etree.Element) error {
	if !p.sel.IsHelperElement(n) {
		return nil
	}

	if err := p.expressions(p.sel.ElementHelperExpressions(n)); err != nil {
		return err
	}

	return p.push(&token.HelperToken{
		Code:       token.KindElementHelper,
		ID:         p.ids[n],
		Path:       p.doc.Path(n),
		SourceLine: p.doc.Line(n),
		Name:       n.Tag,
		Namespace:  n.NamespaceURI(),
		Attributes: p.sel.HelperAttributes(n),
	})
}

// expressions emits the sites in reverse, so a forward reader meets them in
// document order.
func (p *pass) expressions(sites []selector.Site) error {
	for _, site := range slices.Backward(sites) {
		tok, err := p.expression(site)
		if err != nil {
			return err
		}
		if err := p.push(tok); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) nodeToken(n *etree.Element) (*token.NodeToken, error) {
	tok := &token.NodeToken{
		Code:       token.KindElementNode,
		ID:         p.ids[n],
		Path:       p.doc.Path(n),
		SourceLine: p.doc.Line(n),
		Content:    p.content(n),
	}
	if p.doc.IsRoot(n) {
		tok.Code = token.KindRootNode
	}

	if a := p.sel.Ancestor(n); a != nil {
		tok.Ancestor = token.Ref(p.ids[a])
	}
	if prev := p.sel.PrevSibling(n); prev != nil {
		tok.PrevSibling = token.Ref(p.ids[prev])
	}
	if next := p.sel.NextSibling(n); next != nil {
		id := p.ids[next]
		if !p.emitted[id] {
			return nil, errors.WithStack(&UnresolvedPlaceholderError{Path: tok.Path, Line: tok.SourceLine, Relation: "next-sibling", ID: id})
		}
		tok.NextSibling = token.Ref(id)
	}

	for _, c := range p.sel.Children(n) {
		id := p.ids[c]
		if !p.emitted[id] {
			return nil, errors.WithStack(&UnresolvedPlaceholderError{Path: tok.Path, Line: tok.SourceLine, Relation: "child", ID: id})
		}
		tok.Children = append(tok.Children, id)
	}

	return tok, nil
}

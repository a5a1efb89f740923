package lexer

import (
	"regexp"

	"github.com/beevik/etree"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/splitter"
	"github.com/walteh/go-elixir/pkg/token"
)

// directive matches comments that only exist for the template author.
var directive = regexp.MustCompile(`(?s)^%.*%$`)

// IsDirectiveComment reports whether a comment body compiles away.
func IsDirectiveComment(body string) bool {
	return directive.MatchString(body)
}

// content serializes node n for its Node token. Marker descendants become
// node placeholders, text sites become expression placeholders, attribute
// sites get an expression reference as their value. Helper attributes,
// helper namespace declarations and directive comments are dropped. A helper
// element contributes only its children. Raw exclusion subtrees are written
// as they are.
func (p *pass) content(n *etree.Element) string {
	rw := &document.Rewriter{
		Element: func(e *etree.Element) document.Edit {
			if e != n && p.sel.IsMarker(e) {
				return document.Edit{
					Action: document.Replace,
					Markup: document.Placeholder(p.policy.NodePlaceholder, p.ids[e].String()),
				}
			}

			var edit document.Edit
			if e == n && p.sel.IsHelperElement(n) {
				edit.Action = document.Unwrap
			}
			if p.sel.IsTextSite(e) {
				ref := document.Placeholder(p.policy.ExpressionPlaceholder, token.NewID(p.doc.TextPath(e)).String())
				edit.Children = &ref
			}
			return edit
		},
		Attr: func(e *etree.Element, a *etree.Attr) (string, bool) {
			if p.verbatim(e) {
				return a.Value, true
			}
			if document.IsDeclaration(a) {
				return a.Value, !p.sel.Namespaces().IsHelper(a.Value)
			}
			if p.sel.IsHelperAttr(a) {
				return "", false
			}
			if splitter.ContainsDelimiter(a.Value) {
				return p.policy.ExpressionPlaceholder + token.NewID(p.doc.AttrPath(e, a)).String(), true
			}
			return a.Value, true
		},
		Comment: func(c *etree.Comment) bool {
			if parent := c.Parent(); parent != nil && p.verbatim(parent) {
				return true
			}
			return !IsDirectiveComment(c.Data)
		},
	}

	return rw.String(n)
}

// verbatim reports whether e is written exactly as in the source.
func (p *pass) verbatim(e *etree.Element) bool {
	return p.sel.IsRaw(e) || p.sel.InRaw(e)
}

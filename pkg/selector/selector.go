// Package selector finds the structurally significant parts of a template:
// marker nodes (the root, helper elements, elements carrying helper
// attributes) and the expression sites each of them owns. Nothing under the
// raw exclusion element is ever selected.
package selector

import (
	"fmt"

	"github.com/beevik/etree"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/splitter"
)

// Site is one expression-bearing location. Attr is nil for a text site, in
// which case Element is the element whose direct text holds the expression.
type Site struct {
	Element *etree.Element
	Attr    *etree.Attr
}

func (s Site) IsAttribute() bool { return s.Attr != nil }

// Selector answers structural queries for one document under one policy. It
// is built once per lexing pass.
type Selector struct {
	doc    *document.Document
	policy *policy.Policy
	ns     *policy.Namespaces

	raws    map[*etree.Element]bool
	inRaw   map[*etree.Element]bool
	markers map[*etree.Element]bool
	nodes   []*etree.Element
}

// New classifies the namespaces of doc and precomputes the node query.
func New(doc *document.Document, p *policy.Policy) (*Selector, error) {
	ns, err := p.Classify(doc.Declarations())
	if err != nil {
		return nil, errors.Errorf("classifying namespaces: %w", err)
	}

	s := &Selector{
		doc:     doc,
		policy:  p,
		ns:      ns,
		raws:    make(map[*etree.Element]bool),
		inRaw:   make(map[*etree.Element]bool),
		markers: make(map[*etree.Element]bool),
	}

	if err := s.findRaws(); err != nil {
		return nil, err
	}

	for _, e := range doc.Elements() {
		if p := doc.Parent(e); p != nil && (s.raws[p] || s.inRaw[p]) {
			s.inRaw[e] = true
		}
		if s.isMarker(e) {
			s.markers[e] = true
			s.nodes = append(s.nodes, e)
		}
	}

	return s, nil
}

func (s *Selector) findRaws() error {
	path, err := etree.CompilePath(fmt.Sprintf("//*[local-name()='%s'][namespace-uri()='%s']",
		s.policy.RawElement, s.policy.CoreNamespace))
	if err != nil {
		return errors.Errorf("compiling raw element path: %w", err)
	}
	for _, e := range s.doc.Tree().FindElementsPath(path) {
		s.raws[e] = true
	}
	return nil
}

// Namespaces returns the helper namespaces of the document.
func (s *Selector) Namespaces() *policy.Namespaces { return s.ns }

// IsRaw reports whether e is a raw exclusion element.
func (s *Selector) IsRaw(e *etree.Element) bool { return s.raws[e] }

// InRaw reports whether e lies below a raw exclusion element.
func (s *Selector) InRaw(e *etree.Element) bool { return s.inRaw[e] }

// IsHelperElement reports whether e itself is qualified by a helper namespace.
func (s *Selector) IsHelperElement(e *etree.Element) bool {
	return s.ns.IsHelper(e.NamespaceURI())
}

// IsHelperAttr reports whether a is qualified by a helper namespace.
// Unprefixed attributes never are.
func (s *Selector) IsHelperAttr(a *etree.Attr) bool {
	if a.Space == "" || document.IsDeclaration(a) {
		return false
	}
	return s.ns.IsHelper(a.NamespaceURI())
}

func (s *Selector) isMarker(e *etree.Element) bool {
	if s.doc.IsRoot(e) {
		return true
	}
	if s.inRaw[e] {
		return false
	}
	if s.IsHelperElement(e) {
		return true
	}
	for i := range e.Attr {
		if s.IsHelperAttr(&e.Attr[i]) {
			return true
		}
	}
	return false
}

// IsMarker reports whether e is selected by the node query.
func (s *Selector) IsMarker(e *etree.Element) bool { return s.markers[e] }

// Nodes returns the node query result in document order. The root is always
// first.
func (s *Selector) Nodes() []*etree.Element { return s.nodes }

// Ancestor returns the nearest enclosing marker of e, falling back to the
// root. The root itself has none.
func (s *Selector) Ancestor(e *etree.Element) *etree.Element {
	if s.doc.IsRoot(e) {
		return nil
	}
	for p := s.doc.Parent(e); p != nil; p = s.doc.Parent(p) {
		if s.markers[p] {
			return p
		}
	}
	return s.doc.Root()
}

// PrevSibling returns the immediately preceding sibling element of e when it
// is a marker. A plain element in between breaks the link, as it does for
// NextSibling.
func (s *Selector) PrevSibling(e *etree.Element) *etree.Element {
	if s.doc.IsRoot(e) {
		return nil
	}
	if prev := e.PrevSibling(); prev != nil && s.markers[prev] {
		return prev
	}
	return nil
}

// NextSibling returns the immediately following sibling element of e when it
// is a marker.
func (s *Selector) NextSibling(e *etree.Element) *etree.Element {
	if s.doc.IsRoot(e) {
		return nil
	}
	if next := e.NextSibling(); next != nil && s.markers[next] {
		return next
	}
	return nil
}

// AttributeHelpers returns the helper-qualified attributes of e in document
// order.
func (s *Selector) AttributeHelpers(e *etree.Element) []*etree.Attr {
	if s.inRaw[e] {
		return nil
	}
	var out []*etree.Attr
	for i := range e.Attr {
		if s.IsHelperAttr(&e.Attr[i]) {
			out = append(out, &e.Attr[i])
		}
	}
	return out
}

// AttributeHelperExpressions returns the expression site of the attribute
// helper a, if its value holds one.
func (s *Selector) AttributeHelperExpressions(e *etree.Element, a *etree.Attr) []Site {
	if !splitter.ContainsDelimiter(a.Value) {
		return nil
	}
	return []Site{{Element: e, Attr: a}}
}

// HelperAttributes returns the attributes an element helper passes on:
// everything that is neither namespace-qualified nor a namespace declaration.
func (s *Selector) HelperAttributes(e *etree.Element) map[string]string {
	out := make(map[string]string)
	for _, a := range e.Attr {
		if a.Space != "" || document.IsDeclaration(&a) {
			continue
		}
		out[a.Key] = a.Value
	}
	return out
}

// ElementHelperExpressions returns the expression sites on the attributes of
// the helper element e that are not helper attributes themselves.
func (s *Selector) ElementHelperExpressions(e *etree.Element) []Site {
	if !s.IsHelperElement(e) || s.inRaw[e] {
		return nil
	}
	return s.attrSites(e)
}

func (s *Selector) attrSites(e *etree.Element) []Site {
	var out []Site
	for i := range e.Attr {
		a := &e.Attr[i]
		if document.IsDeclaration(a) || s.IsHelperAttr(a) {
			continue
		}
		if splitter.ContainsDelimiter(a.Value) {
			out = append(out, Site{Element: e, Attr: a})
		}
	}
	return out
}

// HasTextExpression reports whether any direct character data of e holds an
// expression delimiter.
func HasTextExpression(e *etree.Element) bool {
	for _, c := range e.Child {
		if cd, ok := c.(*etree.CharData); ok && splitter.ContainsDelimiter(cd.Data) {
			return true
		}
	}
	return false
}

// NodeExpressions returns the expression sites node owns directly, in
// document order: its own text, its own attributes unless it is an element
// helper, then the sites of every descendant that is neither a marker nor
// inside a marker or a raw exclusion element. A text site precedes the
// attribute sites of the same element, and swallows everything below it: the
// children of a text site are expression content, not further sites.
func (s *Selector) NodeExpressions(node *etree.Element) []Site {
	if s.inRaw[node] || s.raws[node] {
		return nil
	}

	var out []Site
	text := HasTextExpression(node)
	if text {
		out = append(out, Site{Element: node})
	}
	if !s.IsHelperElement(node) {
		out = append(out, s.attrSites(node)...)
	}
	if text {
		return out
	}

	var visit func(e *etree.Element)
	visit = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if s.markers[c] || s.raws[c] {
				continue
			}
			if HasTextExpression(c) {
				out = append(out, Site{Element: c})
				out = append(out, s.attrSites(c)...)
				continue
			}
			out = append(out, s.attrSites(c)...)
			visit(c)
		}
	}
	visit(node)

	return out
}

// IsTextSite reports whether e is a text expression site. Elements inside a
// raw exclusion element never are.
func (s *Selector) IsTextSite(e *etree.Element) bool {
	return !s.inRaw[e] && !s.raws[e] && HasTextExpression(e)
}

// Children returns the markers whose nearest enclosing marker is node, in
// document order.
func (s *Selector) Children(node *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, m := range s.nodes {
		if m != node && s.Ancestor(m) == node {
			out = append(out, m)
		}
	}
	return out
}

// Owner returns the marker that owns e: e itself when it is a marker,
// otherwise its nearest marker ancestor.
func (s *Selector) Owner(e *etree.Element) *etree.Element {
	if s.markers[e] {
		return e
	}
	return s.Ancestor(e)
}

package document

import (
	"strings"

	"github.com/beevik/etree"
)

// WriteSettings escape only what must be escaped, so quotes inside text stay
// readable.
var WriteSettings = etree.WriteSettings{
	CanonicalText:    true,
	CanonicalAttrVal: true,
}

// Action says how a Rewriter writes one element.
type Action int

const (
	// Keep writes the element with its (filtered) attributes and children.
	Keep Action = iota
	// Replace writes Edit.Markup instead of the element.
	Replace
	// Unwrap writes only the children of the element.
	Unwrap
)

// Edit is the decision of a Rewriter for one element. Children, when set,
// replaces the markup between the start and the end tag.
type Edit struct {
	Action   Action
	Markup   string
	Children *string
}

// Rewriter serializes a subtree with per-element, per-attribute and
// per-comment edits. Leaf tokens are written by etree itself. The tree is
// never touched.
type Rewriter struct {
	Element func(e *etree.Element) Edit
	Attr    func(e *etree.Element, a *etree.Attr) (value string, keep bool)
	Comment func(c *etree.Comment) bool
}

// String serializes t.
func (r *Rewriter) String(t etree.Token) string {
	var sb strings.Builder
	r.Write(&sb, t)
	return sb.String()
}

// Children serializes the children of e, without e itself.
func (r *Rewriter) Children(e *etree.Element) string {
	var sb strings.Builder
	for _, c := range e.Child {
		r.Write(&sb, c)
	}
	return sb.String()
}

// Write serializes t to w.
func (r *Rewriter) Write(w etree.Writer, t etree.Token) {
	switch t := t.(type) {
	case *etree.Element:
		r.writeElement(w, t)
	case *etree.Comment:
		if r.Comment == nil || r.Comment(t) {
			t.WriteTo(w, &WriteSettings)
		}
	default:
		t.WriteTo(w, &WriteSettings)
	}
}

func (r *Rewriter) writeElement(w etree.Writer, e *etree.Element) {
	var edit Edit
	if r.Element != nil {
		edit = r.Element(e)
	}

	switch edit.Action {
	case Replace:
		w.WriteString(edit.Markup)
		return
	case Unwrap:
		if edit.Children != nil {
			w.WriteString(*edit.Children)
			return
		}
		for _, c := range e.Child {
			r.Write(w, c)
		}
		return
	}

	w.WriteByte('<')
	w.WriteString(e.FullTag())
	for i := range e.Attr {
		a := e.Attr[i]
		if r.Attr != nil {
			v, keep := r.Attr(e, &e.Attr[i])
			if !keep {
				continue
			}
			a.Value = v
		}
		w.WriteByte(' ')
		a.WriteTo(w, &WriteSettings)
	}

	var inner string
	if edit.Children != nil {
		inner = *edit.Children
	} else {
		var sb strings.Builder
		for _, c := range e.Child {
			r.Write(&sb, c)
		}
		inner = sb.String()
	}

	if inner == "" {
		w.WriteString("/>")
		return
	}
	w.WriteByte('>')
	w.WriteString(inner)
	w.WriteString("</")
	w.WriteString(e.FullTag())
	w.WriteByte('>')
}

// Markup serializes t unchanged.
func Markup(t etree.Token) string {
	var r Rewriter
	return r.String(t)
}

// Placeholder builds the markup of an empty element carrying one id
// attribute, like <__N_-_O_-_D_-_E__ id="..."/>.
func Placeholder(tag, id string) string {
	e := etree.NewElement(tag)
	e.CreateAttr("id", id)
	return Markup(e)
}

// Package document adapts an etree tree to what the lexer needs from its XML
// layer: source lines, structural paths, namespace declarations, the prolog,
// and serialization back to markup.
package document

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/position"
)

const (
	DefaultVersion  = "1.0"
	DefaultEncoding = ""
)

var ErrNoRoot = errors.New("document has no root element")

// Document is a parsed template. It is never modified after Parse, so one
// Document can be lexed any number of times, also concurrently.
type Document struct {
	Name string

	src   []byte
	tree  *etree.Document
	index *position.Index

	offsets map[etree.Token]int
	tagEnds map[*etree.Element]int
	paths   map[*etree.Element]string
	order   []*etree.Element
}

// ReadSettings are the settings every template is parsed with. CDATA sections
// are kept so they can be told apart from text inside expressions.
func ReadSettings() etree.ReadSettings {
	return etree.ReadSettings{PreserveCData: true}
}

// Parse reads src into a tree and indexes it. Name is only used in messages.
func Parse(name string, src []byte) (*Document, error) {
	tree := etree.NewDocument()
	tree.ReadSettings = ReadSettings()
	if err := tree.ReadFromBytes(src); err != nil {
		return nil, errors.Errorf("parsing XML %s: %w", name, syntaxError(src, err))
	}
	if tree.Root() == nil {
		return nil, errors.Errorf("parsing XML %s: %w", name, ErrNoRoot)
	}

	d := &Document{
		Name:    name,
		src:     src,
		tree:    tree,
		index:   position.NewIndex(src),
		offsets: make(map[etree.Token]int),
		tagEnds: make(map[*etree.Element]int),
		paths:   make(map[*etree.Element]string),
	}

	if err := d.locate(); err != nil {
		return nil, errors.Errorf("locating tokens of %s: %w", name, err)
	}
	d.walk(&tree.Element, "")

	return d, nil
}

// syntaxError replaces the unpositioned errors etree reports for mismatched
// or unclosed tags with the *xml.SyntaxError of a checking decoder.
func syntaxError(src []byte, err error) error {
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	for {
		_, derr := dec.Token()
		if derr == nil {
			continue
		}
		var syntax *xml.SyntaxError
		if errors.As(derr, &syntax) {
			return syntax
		}
		return err
	}
}

// locate replays the raw token sequence etree was built from and records the
// start offset of every token. etree creates exactly one tree token per raw
// token that is not an end tag, in the same order as a pre-order walk.
func (d *Document) locate() error {
	dec := xml.NewDecoder(bytes.NewReader(d.src))
	dec.Strict = true
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var starts, ends []int
	for {
		off := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.EndElement); ok {
			continue
		}
		starts = append(starts, off)
		ends = append(ends, int(dec.InputOffset()))
	}

	i := 0
	var visit func(e *etree.Element) error
	visit = func(e *etree.Element) error {
		for _, c := range e.Child {
			if i >= len(starts) {
				return errors.Errorf("tree has more tokens than the source (%d)", len(starts))
			}
			d.offsets[c] = starts[i]
			if ce, ok := c.(*etree.Element); ok {
				d.tagEnds[ce] = ends[i]
			}
			i++
			if ce, ok := c.(*etree.Element); ok {
				if err := visit(ce); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := visit(&d.tree.Element); err != nil {
		return err
	}
	if i != len(starts) {
		return errors.Errorf("source has %d tokens, tree has %d", len(starts), i)
	}
	return nil
}

func (d *Document) walk(e *etree.Element, parentPath string) {
	counts := make(map[string]int)
	for _, c := range e.ChildElements() {
		counts[c.FullTag()]++
	}

	seen := make(map[string]int)
	for _, c := range e.ChildElements() {
		tag := c.FullTag()
		seen[tag]++

		path := parentPath + "/" + tag
		if counts[tag] > 1 {
			path += "[" + strconv.Itoa(seen[tag]) + "]"
		}

		d.paths[c] = path
		d.order = append(d.order, c)
		d.walk(c, path)
	}
}

// Source returns the raw template text.
func (d *Document) Source() string { return string(d.src) }

func (d *Document) Index() *position.Index { return d.index }

func (d *Document) Root() *etree.Element { return d.tree.Root() }

// Tree exposes the underlying etree document. Callers must not modify it.
func (d *Document) Tree() *etree.Document { return d.tree }

// Elements returns every element in document order.
func (d *Document) Elements() []*etree.Element { return d.order }

// IsRoot reports whether e is the document element.
func (d *Document) IsRoot(e *etree.Element) bool { return e == d.tree.Root() }

// Parent returns the parent element of t, or nil for the document element.
func (d *Document) Parent(t etree.Token) *etree.Element {
	p := t.Parent()
	if p == nil || p == &d.tree.Element {
		return nil
	}
	return p
}

// Offset returns the byte offset where t starts in the source.
func (d *Document) Offset(t etree.Token) (int, bool) {
	off, ok := d.offsets[t]
	return off, ok
}

// Line returns the 1-based source line t starts on, or 0 for tokens that do
// not come from the source.
func (d *Document) Line(t etree.Token) int {
	off, ok := d.offsets[t]
	if !ok {
		return 0
	}
	return d.index.Line(off)
}

// Place returns the line and column t starts at.
func (d *Document) Place(t etree.Token) position.Place {
	off, ok := d.offsets[t]
	if !ok {
		return position.Place{}
	}
	return d.index.Place(off)
}

// AttrPlace returns where the value of attribute a of e starts. When the
// attribute cannot be found in the start tag the element's place is used.
func (d *Document) AttrPlace(e *etree.Element, a *etree.Attr) position.Place {
	start, ok := d.offsets[e]
	if !ok {
		return position.Place{}
	}
	end := d.tagEnds[e]

	re := regexp.MustCompile(`(?:^|\s)` + regexp.QuoteMeta(a.FullKey()) + `\s*=\s*["']`)
	loc := re.FindIndex(d.src[start:end])
	if loc == nil {
		return d.index.Place(start)
	}
	return d.index.Place(start + loc[1])
}

// AttrLine is the line part of AttrPlace.
func (d *Document) AttrLine(e *etree.Element, a *etree.Attr) int {
	return d.AttrPlace(e, a).Line
}

// Path returns the structural path of e in the tree, like /html/body[2]/ex:if.
// A position predicate is only added when siblings share the tag.
func (d *Document) Path(e *etree.Element) string {
	return d.paths[e]
}

// AttrPath returns the structural path of an attribute of e.
func (d *Document) AttrPath(e *etree.Element, a *etree.Attr) string {
	return d.paths[e] + "/@" + a.FullKey()
}

// TextPath returns the structural path of the text content of e.
func (d *Document) TextPath(e *etree.Element) string {
	return d.paths[e] + "/text()"
}

// Declarations lists every namespace declaration in the document, in
// document order, with the path and line of the declaring element. The
// implicit xml prefix is not included.
func (d *Document) Declarations() []policy.Declaration {
	var out []policy.Declaration
	for _, e := range d.order {
		for _, a := range e.Attr {
			switch {
			case a.Space == "xmlns":
				out = append(out, policy.Declaration{Prefix: a.Key, URI: a.Value, Path: d.paths[e], Line: d.Line(e)})
			case a.Space == "" && a.Key == "xmlns":
				out = append(out, policy.Declaration{URI: a.Value, Path: d.paths[e], Line: d.Line(e)})
			}
		}
	}
	return out
}

var (
	versionPattern  = regexp.MustCompile(`version\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	encodingPattern = regexp.MustCompile(`encoding\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

func (d *Document) declaration() *etree.ProcInst {
	for _, c := range d.tree.Child {
		if pi, ok := c.(*etree.ProcInst); ok && pi.Target == "xml" {
			return pi
		}
	}
	return nil
}

func pseudoAttr(re *regexp.Regexp, inst, dflt string) string {
	m := re.FindStringSubmatch(inst)
	if m == nil {
		return dflt
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// Version returns the xml version of the prolog.
func (d *Document) Version() string {
	pi := d.declaration()
	if pi == nil {
		return DefaultVersion
	}
	return pseudoAttr(versionPattern, pi.Inst, DefaultVersion)
}

// Encoding returns the declared encoding of the prolog.
func (d *Document) Encoding() string {
	pi := d.declaration()
	if pi == nil {
		return DefaultEncoding
	}
	return pseudoAttr(encodingPattern, pi.Inst, DefaultEncoding)
}

// IsDeclaration reports whether a is a namespace declaration.
func IsDeclaration(a *etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

// DeclarationRange returns the source range of the first attribute that
// declares decl, from the xmlns name to the closing quote.
func (d *Document) DeclarationRange(decl policy.Declaration) (position.Range, bool) {
	key := "xmlns"
	if decl.Prefix != "" {
		key += ":" + decl.Prefix
	}
	re := regexp.MustCompile(`(?:^|\s)(` + regexp.QuoteMeta(key) + `\s*=\s*(?:"` + regexp.QuoteMeta(decl.URI) + `"|'` + regexp.QuoteMeta(decl.URI) + `'))`)

	for _, e := range d.order {
		start, ok := d.offsets[e]
		if !ok {
			continue
		}
		loc := re.FindSubmatchIndex(d.src[start:d.tagEnds[e]])
		if loc == nil {
			continue
		}
		raw := position.NewBasicPosition(string(d.src[start+loc[2]:start+loc[3]]), start+loc[2])
		return d.index.Range(raw), true
	}
	return position.Range{}, false
}

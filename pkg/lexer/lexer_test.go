package lexer_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/go-elixir/pkg/diff"
	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/lexer"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/token"
)

// view is a comparable rendering of one token where ids are replaced by the
// paths they were hashed from.
type view struct {
	Kind       string
	Path       string
	Line       int
	Value      string
	Attribute  string
	Ancestor   string
	Prev       string
	Next       string
	Children   []string
	Attributes map[string]string
	Content    []string
}

func lex(t *testing.T, src string) *token.Stream {
	t.Helper()
	s, err := lexWith(t, policy.Default(), src)
	require.NoError(t, err, "lex should succeed")
	return s
}

func lexWith(t *testing.T, p *policy.Policy, src string) (*token.Stream, error) {
	t.Helper()
	doc, err := document.Parse("test.xml", []byte(src))
	require.NoError(t, err, "parse should succeed")
	l, err := lexer.New(p)
	require.NoError(t, err, "lexer should build")
	return l.Lex(context.Background(), doc)
}

func views(s *token.Stream) []view {
	paths := map[token.ID]string{}
	for _, tok := range s.All() {
		if n, ok := tok.(*token.NodeToken); ok {
			paths[n.ID] = n.Path
		}
	}
	resolve := func(id *token.ID) string {
		if id == nil {
			return ""
		}
		if p, ok := paths[*id]; ok {
			return p
		}
		return "?" + id.Short()
	}

	out := []view{}
	for _, tok := range s.All() {
		v := view{Kind: tok.Kind().String(), Line: tok.Line()}
		switch tok := tok.(type) {
		case *token.PropertyToken:
			v.Value = tok.Value
		case *token.NodeToken:
			v.Path = tok.Path
			v.Value = tok.Content
			v.Ancestor = resolve(tok.Ancestor)
			v.Prev = resolve(tok.PrevSibling)
			v.Next = resolve(tok.NextSibling)
			for _, c := range tok.Children {
				v.Children = append(v.Children, resolve(&c))
			}
		case *token.HelperToken:
			v.Path = tok.Path
			v.Value = tok.Value
			v.Attributes = tok.Attributes
		case *token.ExpressionToken:
			v.Path = tok.Path
			v.Attribute = tok.Attribute
			for _, c := range tok.Content.All() {
				v.Content = append(v.Content, fmt.Sprintf("%s:%s", c.Kind(), c.(*token.ExpressionContentToken).Value))
			}
		}
		out = append(out, v)
	}
	return out
}

func id(path string) string {
	return token.NewID(path).String()
}

func nodePlaceholder(path string) string {
	return document.Placeholder(policy.NodePlaceholder, id(path))
}

func exprPlaceholder(path string) string {
	return document.Placeholder(policy.ExpressionPlaceholder, id(path))
}

func TestRoundTripWithoutHelpers(t *testing.T) {
	body := `<html><body class="x"><p>Hi &amp; bye</p><!--keep me--><br/></body></html>`
	s := lex(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+body)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1, Value: "UTF-8"},
		{Kind: "root-node", Path: "/html", Line: 2, Value: body},
	}

	got := views(s)
	if d := diff.ExportedOnly(want, got); d != "" {
		t.Errorf("unexpected tokens: %s", d)
	}
	assert.Equal(t, 3, s.Len())
}

func TestPropertyDefaults(t *testing.T) {
	s := lex(t, `<r/>`)

	require.True(t, s.Valid())
	first := s.Current().(*token.PropertyToken)
	second := s.Next().(*token.PropertyToken)

	assert.Equal(t, token.KindXMLVersion, first.Kind())
	assert.Equal(t, "1.0", first.Value)
	assert.Equal(t, token.KindXMLEncoding, second.Kind())
	assert.Equal(t, "", second.Value)
	assert.Equal(t, `<r/>`, s.Source())
}

func TestSiblingLinkage(t *testing.T) {
	s := lex(t, `<r xmlns:ex="urn:ex"><a ex:h="1"/><b ex:h="1"/></r>`)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    `<r>` + nodePlaceholder("/r/a") + nodePlaceholder("/r/b") + `</r>`,
			Children: []string{"/r/a", "/r/b"},
		},
		{Kind: "element-node", Path: "/r/a", Line: 1, Value: `<a/>`, Ancestor: "/r", Next: "/r/b"},
		{Kind: "attribute-helper", Path: "/r/a/@ex:h", Line: 1, Value: "1"},
		{Kind: "element-node", Path: "/r/b", Line: 1, Value: `<b/>`, Ancestor: "/r", Prev: "/r/a"},
		{Kind: "attribute-helper", Path: "/r/b/@ex:h", Line: 1, Value: "1"},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}
}

func TestPlainElementBreaksSiblingLinkage(t *testing.T) {
	s := lex(t, `<r xmlns:ex="urn:ex"><a ex:h="1"/><p/><b ex:h="1"/></r>`)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    `<r>` + nodePlaceholder("/r/a") + `<p/>` + nodePlaceholder("/r/b") + `</r>`,
			Children: []string{"/r/a", "/r/b"},
		},
		{Kind: "element-node", Path: "/r/a", Line: 1, Value: `<a/>`, Ancestor: "/r"},
		{Kind: "attribute-helper", Path: "/r/a/@ex:h", Line: 1, Value: "1"},
		{Kind: "element-node", Path: "/r/b", Line: 1, Value: `<b/>`, Ancestor: "/r"},
		{Kind: "attribute-helper", Path: "/r/b/@ex:h", Line: 1, Value: "1"},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}
}

func TestNextSiblingIsEmittedFirst(t *testing.T) {
	s := lex(t, `<r xmlns:ex="urn:ex"><ex:a/><ex:b/><ex:c/></r>`)

	emitted := map[token.ID]bool{}
	for _, tok := range s.Emitted() {
		n, ok := tok.(*token.NodeToken)
		if !ok {
			continue
		}
		if n.NextSibling != nil {
			assert.True(t, emitted[*n.NextSibling], "next sibling of %s must be emitted before it", n.Path)
		}
		for _, c := range n.Children {
			assert.True(t, emitted[c], "child of %s must be emitted before it", n.Path)
		}
		emitted[n.ID] = true
	}
}

func TestRawExclusion(t *testing.T) {
	raw := `<my:if test="{% x %}">{% y %}<my:else/></my:if>`
	s := lex(t, `<r xmlns:ex="http://elixir.mohiva.com" xmlns:my="urn:my"><ex:Raw>`+raw+`</ex:Raw></r>`)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    `<r>` + nodePlaceholder("/r/ex:Raw") + `</r>`,
			Children: []string{"/r/ex:Raw"},
		},
		{Kind: "element-node", Path: "/r/ex:Raw", Line: 1, Value: raw, Ancestor: "/r"},
		{Kind: "element-helper", Path: "/r/ex:Raw", Line: 1, Attributes: map[string]string{}},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}
}

func TestCommentDirectives(t *testing.T) {
	s := lex(t, `<r><!--%drop me%--><!--keep me--><p><!--%
multi line
%--></p></r>`)

	root := s.Tokens()[2].(*token.NodeToken)
	assert.Equal(t, `<r><!--keep me--><p/></r>`, root.Content)
	assert.False(t, lexer.IsDirectiveComment("keep me"))
	assert.True(t, lexer.IsDirectiveComment("%%"))
	assert.False(t, lexer.IsDirectiveComment("%"))
}

func TestExpressions(t *testing.T) {
	s := lex(t, `<r title="{% t %}"><p>{% 'a{%b%}' %}</p></r>`)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value: `<r title="` + policy.ExpressionPlaceholder + id("/r/@title") + `"><p>` + exprPlaceholder("/r/p/text()") + `</p></r>`,
		},
		{
			Kind: "expression", Path: "/r/@title", Line: 1, Attribute: "title",
			Content: []string{"expression-open:{%", "expression-chars: t ", "expression-close:%}"},
		},
		{
			Kind: "expression", Path: "/r/p/text()", Line: 1,
			Content: []string{
				"expression-open:{%",
				"expression-chars: ",
				"expression-chars:'a{%b%}'",
				"expression-chars: ",
				"expression-close:%}",
			},
		},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}

	for _, tok := range s.All() {
		if n, ok := tok.(*token.NodeToken); ok {
			assert.NotContains(t, n.Content, "{%", "node content keeps no raw delimiters")
		}
	}
}

func TestHelpers(t *testing.T) {
	src := `<r xmlns:ex="urn:ex">` + "\n" +
		`<ex:for each="{% items %}" as="item" ex:if="{% ok %}">{% item %}<b/><!--c--><![CDATA[x]]><?pi y?></ex:for>` + "\n" +
		`</r>`
	s := lex(t, src)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    "<r>\n" + nodePlaceholder("/r/ex:for") + "\n</r>",
			Children: []string{"/r/ex:for"},
		},
		{
			Kind: "element-node", Path: "/r/ex:for", Line: 2,
			Value:    exprPlaceholder("/r/ex:for/text()"),
			Ancestor: "/r",
		},
		{
			Kind: "expression", Path: "/r/ex:for/text()", Line: 2,
			Content: []string{
				"expression-open:{%",
				"expression-chars: item ",
				"expression-close:%}",
				"expression-element:<b/>",
				"expression-comment:<!--c-->",
				"expression-cdata:<![CDATA[x]]>",
				"expression-pi:<?pi y?>",
			},
		},
		{
			Kind: "element-helper", Path: "/r/ex:for", Line: 2,
			Attributes: map[string]string{"each": "{% items %}", "as": "item"},
		},
		{
			Kind: "expression", Path: "/r/ex:for/@each", Line: 2, Attribute: "each",
			Content: []string{"expression-open:{%", "expression-chars: items ", "expression-close:%}"},
		},
		{Kind: "attribute-helper", Path: "/r/ex:for/@ex:if", Line: 2, Value: "{% ok %}"},
		{
			Kind: "expression", Path: "/r/ex:for/@ex:if", Line: 2, Attribute: "ex:if",
			Content: []string{"expression-open:{%", "expression-chars: ok ", "expression-close:%}"},
		},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}

	var helper *token.HelperToken
	for _, tok := range s.All() {
		if h, ok := tok.(*token.HelperToken); ok && h.Kind() == token.KindElementHelper {
			helper = h
		}
	}
	require.NotNil(t, helper)
	assert.Equal(t, "for", helper.Name)
	assert.Equal(t, "urn:ex", helper.Namespace)
}

func TestNodeBelowTextSite(t *testing.T) {
	src := `<r xmlns:ex="urn:ex">` + "\n" + `<p>{% a %}` + "\n" + `<x ex:h="1"/><i><y ex:h="2"/></i></p></r>`
	s := lex(t, src)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    "<r>\n<p>" + exprPlaceholder("/r/p/text()") + "</p></r>",
			Children: []string{"/r/p/x", "/r/p/i/y"},
		},
		{
			Kind: "expression", Path: "/r/p/text()", Line: 2,
			Content: []string{
				"expression-open:{%",
				"expression-chars: a ",
				"expression-close:%}",
				"expression-chars:\n",
				"expression-element:" + nodePlaceholder("/r/p/x"),
				"expression-element:<i>" + nodePlaceholder("/r/p/i/y") + "</i>",
			},
		},
		{Kind: "element-node", Path: "/r/p/x", Line: 3, Value: `<x/>`, Ancestor: "/r"},
		{Kind: "attribute-helper", Path: "/r/p/x/@ex:h", Line: 3, Value: "1"},
		{Kind: "element-node", Path: "/r/p/i/y", Line: 3, Value: `<y/>`, Ancestor: "/r"},
		{Kind: "attribute-helper", Path: "/r/p/i/y/@ex:h", Line: 3, Value: "2"},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}

	for _, tok := range s.All() {
		if e, ok := tok.(*token.ExpressionToken); ok {
			assert.NotContains(t, e.Content.Source(), "ex:h", "embedded markers are replaced by their placeholder")
		}
	}
}

func TestThreeLevelNesting(t *testing.T) {
	s := lex(t, `<r xmlns:ex="urn:ex"><ex:a><div><ex:b><ex:c/></ex:b></div></ex:a></r>`)

	want := []view{
		{Kind: "xml-version", Line: 1, Value: "1.0"},
		{Kind: "xml-encoding", Line: 1},
		{
			Kind: "root-node", Path: "/r", Line: 1,
			Value:    `<r>` + nodePlaceholder("/r/ex:a") + `</r>`,
			Children: []string{"/r/ex:a"},
		},
		{
			Kind: "element-node", Path: "/r/ex:a", Line: 1,
			Value:    `<div>` + nodePlaceholder("/r/ex:a/div/ex:b") + `</div>`,
			Ancestor: "/r",
			Children: []string{"/r/ex:a/div/ex:b"},
		},
		{Kind: "element-helper", Path: "/r/ex:a", Line: 1, Attributes: map[string]string{}},
		{
			Kind: "element-node", Path: "/r/ex:a/div/ex:b", Line: 1,
			Value:    nodePlaceholder("/r/ex:a/div/ex:b/ex:c"),
			Ancestor: "/r/ex:a",
			Children: []string{"/r/ex:a/div/ex:b/ex:c"},
		},
		{Kind: "element-helper", Path: "/r/ex:a/div/ex:b", Line: 1, Attributes: map[string]string{}},
		{Kind: "element-node", Path: "/r/ex:a/div/ex:b/ex:c", Line: 1, Ancestor: "/r/ex:a/div/ex:b"},
		{Kind: "element-helper", Path: "/r/ex:a/div/ex:b/ex:c", Line: 1, Attributes: map[string]string{}},
	}

	if d := cmp.Diff(want, views(s)); d != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", d)
	}
}

func TestRootHelper(t *testing.T) {
	s := lex(t, `<ex:template xmlns:ex="urn:ex" xmlns="http://www.w3.org/1999/xhtml" name="main"><p/></ex:template>`)

	toks := s.Tokens()
	require.Len(t, toks, 4)

	root := toks[2].(*token.NodeToken)
	assert.True(t, root.IsRoot())
	assert.Nil(t, root.Ancestor)
	assert.Equal(t, `<p/>`, root.Content, "a helper root contributes only its children")

	helper := toks[3].(*token.HelperToken)
	assert.Equal(t, token.KindElementHelper, helper.Kind())
	assert.Equal(t, root.ID, helper.ID)
	assert.Equal(t, map[string]string{"name": "main"}, helper.Attributes)
}

func TestNamespaceStripping(t *testing.T) {
	s := lex(t, `<html xmlns="http://www.w3.org/1999/xhtml" xmlns:ex="urn:ex"><div xmlns:my="urn:my" id="d"><ex:x/></div></html>`)

	root := s.Tokens()[2].(*token.NodeToken)
	assert.Equal(t, `<html xmlns="http://www.w3.org/1999/xhtml"><div id="d">`+nodePlaceholder("/html/div/ex:x")+`</div></html>`, root.Content)
}

func TestMalformedExpression(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantPath   string
		wantLine   int
		wantColumn int
	}{
		{
			name:       "text",
			src:        `<r><p>{% x</p></r>`,
			wantPath:   "/r/p/text()",
			wantLine:   1,
			wantColumn: 7,
		},
		{
			name:       "attribute",
			src:        `<r a="x {% y"/>`,
			wantPath:   "/r/@a",
			wantLine:   1,
			wantColumn: 9,
		},
		{
			name:       "second line of a text run",
			src:        "<r>\n<p>ok\n  {% x</p></r>",
			wantPath:   "/r/p/text()",
			wantLine:   3,
			wantColumn: 3,
		},
		{
			name:       "helper attribute",
			src:        `<r xmlns:ex="urn:ex"><a ex:h="{% '%}'"/></r>`,
			wantPath:   "/r/a/@ex:h",
			wantLine:   1,
			wantColumn: 31,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := lexWith(t, policy.Default(), tt.src)
			require.Error(t, err)
			assert.Nil(t, s, "no partial stream on error")

			var malformed *lexer.MalformedExpressionError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.wantPath, malformed.Path)
			assert.Equal(t, tt.wantLine, malformed.Line)
			assert.Equal(t, tt.wantColumn, malformed.Column)
		})
	}
}

func TestStrictPolicy(t *testing.T) {
	p := policy.Default()
	p.HelperNamespaces = []string{"urn:ex"}
	p.Strict = true

	_, err := lexWith(t, p, `<r xmlns:svg="http://www.w3.org/2000/svg"/>`)
	require.NoError(t, err, "svg is not claimed, so there is no collision")

	p.HelperNamespaces = []string{policy.SVGNamespace}
	_, err = lexer.New(p)
	var amb *policy.AmbiguousHelperNamespaceError
	require.ErrorAs(t, err, &amb, "a strict policy claiming a deny-listed namespace is invalid")
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	p := policy.Default()
	p.RawElement = ""
	_, err := lexer.New(p)
	require.Error(t, err)

	l, err := lexer.New(nil)
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), l.Policy())
}

func TestCustomPolicy(t *testing.T) {
	p := policy.Default()
	p.RawElement = "Verbatim"
	p.NodePlaceholder = "NODE"

	s, err := lexWith(t, p, `<r xmlns:ex="http://elixir.mohiva.com"><ex:Verbatim><ex:x/></ex:Verbatim></r>`)
	require.NoError(t, err)

	root := s.Tokens()[2].(*token.NodeToken)
	assert.Equal(t, `<r>`+document.Placeholder("NODE", id("/r/ex:Verbatim"))+`</r>`, root.Content)
	assert.Len(t, root.Children, 1, "nothing under the raw element is a node")
}

func TestLexerIsReusable(t *testing.T) {
	src := `<r xmlns:ex="urn:ex"><ex:a x="{% 1 %}"><p ex:h="2">{% 3 %}</p></ex:a><ex:b/></r>`
	doc, err := document.Parse("reuse.xml", []byte(src))
	require.NoError(t, err)

	l, err := lexer.New(nil)
	require.NoError(t, err)

	first, err := l.Lex(context.Background(), doc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*token.Stream, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = l.Lex(context.Background(), doc)
		}()
	}
	wg.Wait()

	for i, s := range results {
		require.NoError(t, errs[i])
		if d := diff.Streams(first, s); d != "" {
			t.Errorf("pass %d differs: %s", i, d)
		}
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).Level(zerolog.DebugLevel).WithContext(context.Background())

	doc, err := document.Parse("log.xml", []byte(`<r xmlns:ex="urn:ex"><ex:a/></r>`))
	require.NoError(t, err)
	l, err := lexer.New(nil)
	require.NoError(t, err)

	_, err = l.Lex(ctx, doc)
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `"message":"emitted node"`))
	assert.Contains(t, out, `"message":"lexed document"`)
	assert.Contains(t, out, `"document":"log.xml"`)
	assert.Contains(t, out, `"pass":"`)
}

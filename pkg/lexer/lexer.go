// Package lexer turns a parsed template into the token stream the tree
// builder consumes. Every marker node (the root, helper elements and elements
// carrying helper attributes) becomes one Node token whose content has its
// own marker children replaced by placeholders, preceded by the tokens of its
// helpers and expressions.
//
// The document is never modified. Markers are collected first and then
// emitted deepest first, so every node is emitted after all the nodes it
// refers to.
package lexer

import (
	"context"
	"slices"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/pkg/document"
	"github.com/walteh/go-elixir/pkg/policy"
	"github.com/walteh/go-elixir/pkg/selector"
	"github.com/walteh/go-elixir/pkg/token"
)

// Lexer holds nothing but its policy, so one Lexer can serve any number of
// documents concurrently.
type Lexer struct {
	policy *policy.Policy
}

// New creates a lexer for p. A nil policy means policy.Default.
func New(p *policy.Policy) (*Lexer, error) {
	if p == nil {
		p = policy.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Errorf("invalid policy: %w", err)
	}
	return &Lexer{policy: p.Clone()}, nil
}

// Policy returns a copy of the policy the lexer runs under.
func (l *Lexer) Policy() *policy.Policy {
	return l.policy.Clone()
}

// Lex runs one pass over doc. The returned stream is frozen and rewound: it
// reads the version and encoding first, then every node group from the root
// down. On error no stream is returned.
func (l *Lexer) Lex(ctx context.Context, doc *document.Document) (*token.Stream, error) {
	start := time.Now()
	passID := xid.New()
	logger := zerolog.Ctx(ctx).With().Str("pass", passID.String()).Str("document", doc.Name).Logger()

	sel, err := selector.New(doc, l.policy)
	if err != nil {
		return nil, errors.Errorf("selecting nodes of %s: %w", doc.Name, err)
	}
	for _, c := range sel.Namespaces().Conflicts {
		logger.Warn().Str("namespace", c.URI).Str("prefix", c.Prefix).Str("path", c.Path).Int("line", c.Line).Msg("helper namespace is deny-listed, ignoring it")
	}

	p := &pass{
		logger:  &logger,
		doc:     doc,
		sel:     sel,
		policy:  l.policy,
		stream:  token.NewStream(doc.Source(), token.LIFO),
		ids:     make(map[*etree.Element]token.ID),
		emitted: make(map[token.ID]bool),
	}

	for _, n := range sel.Nodes() {
		p.ids[n] = token.NewID(doc.Path(n))
	}

	for _, n := range emissionOrder(doc, sel.Nodes()) {
		if err := p.node(n); err != nil {
			return nil, err
		}
	}

	if err := p.push(&token.PropertyToken{Code: token.KindXMLEncoding, Value: doc.Encoding()}); err != nil {
		return nil, err
	}
	if err := p.push(&token.PropertyToken{Code: token.KindXMLVersion, Value: doc.Version()}); err != nil {
		return nil, err
	}

	p.stream.Freeze()

	logger.Info().
		Int("nodes", len(sel.Nodes())).
		Int("tokens", p.stream.Len()).
		Strs("helper_namespaces", sel.Namespaces().URIs()).
		Dur("took", time.Since(start)).
		Msg("lexed document")

	return p.stream, nil
}

// emissionOrder sorts markers deepest first and, within one depth, later in
// the document first. Children and following siblings therefore always come
// before the node that refers to them.
func emissionOrder(doc *document.Document, nodes []*etree.Element) []*etree.Element {
	type entry struct {
		el    *etree.Element
		depth int
		index int
	}

	entries := make([]entry, 0, len(nodes))
	for i, n := range nodes {
		depth := 0
		for p := doc.Parent(n); p != nil; p = doc.Parent(p) {
			depth++
		}
		entries = append(entries, entry{el: n, depth: depth, index: i})
	}

	slices.SortFunc(entries, func(a, b entry) int {
		if a.depth != b.depth {
			return b.depth - a.depth
		}
		return b.index - a.index
	})

	out := make([]*etree.Element, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.el)
	}
	return out
}

// Package policy holds the dialect settings the document lexer runs under:
// which namespaces can carry helpers, which element switches discovery off
// for its subtree, and the names of the synthetic placeholder markup.
package policy

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

const (
	CoreNamespace = "http://elixir.mohiva.com"
	RawElement    = "Raw"

	NodePlaceholder       = "__N_-_O_-_D_-_E__"
	ExpressionPlaceholder = "__E_-_X_-_P__"
)

// Well-known namespaces that may be declared in a template but never carry
// helpers.
const (
	XIncludeNamespace = "http://www.w3.org/2001/XInclude"
	XMLNamespace      = "http://www.w3.org/XML/1998/namespace"
	XHTMLNamespace    = "http://www.w3.org/1999/xhtml"
	XSLTNamespace     = "http://www.w3.org/1999/XSL/Transform"
	MathMLNamespace   = "http://www.w3.org/1999/Math/MathML"
	SVGNamespace      = "http://www.w3.org/2000/svg"
	XLinkNamespace    = "http://www.w3.org/1999/xlink"
)

// WellKnown maps short names to the deny-listed namespace URIs. Config files
// can refer to them by these names.
var WellKnown = map[string]string{
	"xinclude": XIncludeNamespace,
	"xml":      XMLNamespace,
	"xhtml":    XHTMLNamespace,
	"xslt":     XSLTNamespace,
	"mathml":   MathMLNamespace,
	"svg":      SVGNamespace,
	"xlink":    XLinkNamespace,
}

// Policy is the injectable configuration of one lexer. The zero value is not
// usable; start from Default.
type Policy struct {
	// CoreNamespace is the namespace of the raw exclusion element.
	CoreNamespace string `yaml:"core_namespace" hcl:"core_namespace,optional"`

	// RawElement is the local name of the element under which no helper or
	// expression discovery happens.
	RawElement string `yaml:"raw_element" hcl:"raw_element,optional"`

	// NonHelperNamespaces never carry helpers, even when declared.
	NonHelperNamespaces []string `yaml:"non_helper_namespaces" hcl:"non_helper_namespaces,optional"`

	// HelperNamespaces, when not empty, restricts helpers to these URIs.
	HelperNamespaces []string `yaml:"helper_namespaces" hcl:"helper_namespaces,optional"`

	NodePlaceholder       string `yaml:"node_placeholder" hcl:"node_placeholder,optional"`
	ExpressionPlaceholder string `yaml:"expression_placeholder" hcl:"expression_placeholder,optional"`

	// Strict turns helper/deny-list collisions into errors.
	Strict bool `yaml:"strict" hcl:"strict,optional"`
}

// Default returns the elixir dialect.
func Default() *Policy {
	return &Policy{
		CoreNamespace: CoreNamespace,
		RawElement:    RawElement,
		NonHelperNamespaces: []string{
			XIncludeNamespace,
			XMLNamespace,
			XHTMLNamespace,
			XSLTNamespace,
			MathMLNamespace,
			SVGNamespace,
			XLinkNamespace,
		},
		NodePlaceholder:       NodePlaceholder,
		ExpressionPlaceholder: ExpressionPlaceholder,
	}
}

// Clone returns a deep copy, so callers can derive dialects from Default.
func (p *Policy) Clone() *Policy {
	c := *p
	c.NonHelperNamespaces = slices.Clone(p.NonHelperNamespaces)
	c.HelperNamespaces = slices.Clone(p.HelperNamespaces)
	return &c
}

// withDefaults fills every empty field from Default.
func (p *Policy) withDefaults() *Policy {
	d := Default()
	c := p.Clone()
	if c.CoreNamespace == "" {
		c.CoreNamespace = d.CoreNamespace
	}
	if c.RawElement == "" {
		c.RawElement = d.RawElement
	}
	if c.NonHelperNamespaces == nil {
		c.NonHelperNamespaces = d.NonHelperNamespaces
	}
	if c.NodePlaceholder == "" {
		c.NodePlaceholder = d.NodePlaceholder
	}
	if c.ExpressionPlaceholder == "" {
		c.ExpressionPlaceholder = d.ExpressionPlaceholder
	}
	return c
}

// Validate reports every problem of the policy at once.
func (p *Policy) Validate() error {
	var err error

	if p.CoreNamespace == "" {
		err = multierr.Append(err, errors.New("core namespace is empty"))
	}
	if p.RawElement == "" {
		err = multierr.Append(err, errors.New("raw element name is empty"))
	}
	if p.NodePlaceholder == "" {
		err = multierr.Append(err, errors.New("node placeholder is empty"))
	}
	if p.ExpressionPlaceholder == "" {
		err = multierr.Append(err, errors.New("expression placeholder is empty"))
	}
	for _, name := range []struct{ what, value string }{
		{"raw element name", p.RawElement},
		{"node placeholder", p.NodePlaceholder},
		{"expression placeholder", p.ExpressionPlaceholder},
	} {
		if name.value != "" && !ncName.MatchString(name.value) {
			err = multierr.Append(err, errors.Errorf("%s %q is not a valid XML name", name.what, name.value))
		}
	}
	if p.NodePlaceholder != "" && p.NodePlaceholder == p.ExpressionPlaceholder {
		err = multierr.Append(err, errors.Errorf("node and expression placeholder are both %q", p.NodePlaceholder))
	}
	if p.Strict {
		for _, uri := range p.HelperNamespaces {
			if p.IsNonHelper(uri) {
				err = multierr.Append(err, &AmbiguousHelperNamespaceError{URI: uri})
			}
		}
	}

	return err
}

// IsNonHelper reports whether uri is on the deny-list.
func (p *Policy) IsNonHelper(uri string) bool {
	return slices.Contains(p.NonHelperNamespaces, uri)
}

// AmbiguousHelperNamespaceError is a namespace that is claimed as a helper
// namespace and is also deny-listed. The deny-list always wins; the error only
// surfaces in strict policies. Path and Line are set when the namespace was
// found in a document.
type AmbiguousHelperNamespaceError struct {
	URI    string
	Prefix string
	Path   string
	Line   int
}

func (e *AmbiguousHelperNamespaceError) Error() string {
	var sb strings.Builder
	sb.WriteString("namespace " + e.URI)
	if e.Prefix != "" {
		fmt.Fprintf(&sb, " (prefix %q)", e.Prefix)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " declared on %s at line %d", e.Path, e.Line)
	}
	sb.WriteString(" is both a helper and a non-helper namespace")
	return sb.String()
}

// ncName matches an XML name without a colon, the only kind of name a
// placeholder or the raw element can have.
var ncName = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_.\-\x{B7}]*$`)

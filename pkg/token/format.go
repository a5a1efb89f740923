package token

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

func ref(id *ID) string {
	if id == nil {
		return "-"
	}
	return id.Short()
}

// Describe renders one token on a single line, for logs and text output.
func Describe(t Token) string {
	switch t := t.(type) {
	case *PropertyToken:
		return fmt.Sprintf("%s %q", t.Code, t.Value)
	case *NodeToken:
		children := make([]string, 0, len(t.Children))
		for _, c := range t.Children {
			children = append(children, c.Short())
		}
		return fmt.Sprintf("%s %s %s line=%d ancestor=%s prev=%s next=%s children=[%s] content=%s",
			t.Code, t.ID.Short(), t.Path, t.SourceLine, ref(t.Ancestor), ref(t.PrevSibling), ref(t.NextSibling),
			strings.Join(children, " "), strconv.Quote(t.Content))
	case *HelperToken:
		if t.Code == KindAttributeHelper {
			return fmt.Sprintf("%s %s %s line=%d {%s}%s=%q", t.Code, t.ID.Short(), t.Path, t.SourceLine, t.Namespace, t.Name, t.Value)
		}
		attrs := make([]string, 0, len(t.Attributes))
		for _, k := range slices.Sorted(maps.Keys(t.Attributes)) {
			attrs = append(attrs, fmt.Sprintf("%s=%q", k, t.Attributes[k]))
		}
		return fmt.Sprintf("%s %s %s line=%d {%s}%s [%s]", t.Code, t.ID.Short(), t.Path, t.SourceLine, t.Namespace, t.Name, strings.Join(attrs, " "))
	case *ExpressionToken:
		attr := ""
		if t.IsAttribute() {
			attr = " attribute=" + t.Attribute
		}
		n := 0
		if t.Content != nil {
			n = t.Content.Len()
		}
		return fmt.Sprintf("%s %s %s line=%d%s tokens=%d", t.Kind(), t.ID.Short(), t.Path, t.SourceLine, attr, n)
	case *ExpressionContentToken:
		return fmt.Sprintf("%s %q line=%d", t.Code, t.Value, t.SourceLine)
	default:
		return fmt.Sprintf("%s line=%d", t.Kind(), t.Line())
	}
}

// Dump renders a stream in read order, one token per line. Expression
// content is indented below its expression.
func Dump(s *Stream) string {
	var sb strings.Builder
	dump(&sb, s, "")
	return sb.String()
}

func dump(sb *strings.Builder, s *Stream, indent string) {
	for _, t := range s.All() {
		sb.WriteString(indent)
		sb.WriteString(Describe(t))
		sb.WriteByte('\n')
		if e, ok := t.(*ExpressionToken); ok && e.Content != nil {
			dump(sb, e.Content, indent+"    ")
		}
	}
}

// Record is the serializable form of a token, used for json and yaml output.
type Record struct {
	Kind        string            `json:"kind" yaml:"kind"`
	ID          ID                `json:"id,omitempty" yaml:"id,omitempty"`
	Path        string            `json:"path,omitempty" yaml:"path,omitempty"`
	Line        int               `json:"line" yaml:"line"`
	Value       string            `json:"value,omitempty" yaml:"value,omitempty"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Namespace   string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Attribute   string            `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Ancestor    *ID               `json:"ancestor,omitempty" yaml:"ancestor,omitempty"`
	PrevSibling *ID               `json:"prev_sibling,omitempty" yaml:"prev_sibling,omitempty"`
	NextSibling *ID               `json:"next_sibling,omitempty" yaml:"next_sibling,omitempty"`
	Children    []ID              `json:"children,omitempty" yaml:"children,omitempty"`
	Content     []Record          `json:"content,omitempty" yaml:"content,omitempty"`
}

// Records converts a stream in read order.
func Records(s *Stream) []Record {
	out := make([]Record, 0, s.Len())
	for _, t := range s.All() {
		r := Record{Kind: t.Kind().String(), Line: t.Line()}
		switch t := t.(type) {
		case *PropertyToken:
			r.Value = t.Value
		case *NodeToken:
			r.ID, r.Path, r.Value = t.ID, t.Path, t.Content
			r.Ancestor, r.PrevSibling, r.NextSibling = t.Ancestor, t.PrevSibling, t.NextSibling
			r.Children = t.Children
		case *HelperToken:
			r.ID, r.Path, r.Value = t.ID, t.Path, t.Value
			r.Name, r.Namespace, r.Attributes = t.Name, t.Namespace, t.Attributes
		case *ExpressionToken:
			r.ID, r.Path, r.Attribute = t.ID, t.Path, t.Attribute
			if t.Content != nil {
				r.Content = Records(t.Content)
			}
		case *ExpressionContentToken:
			r.Value = t.Value
		}
		out = append(out, r)
	}
	return out
}

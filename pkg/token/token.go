// Package token defines the tokens the document lexer emits and the stream
// that carries them to the tree builder.
package token

import (
	"crypto/sha1"
	"encoding/hex"
)

// ID identifies a node, helper or expression by the hash of its structural
// path in the unmodified document. The same document always yields the same
// ids.
type ID string

// NewID hashes a structural path.
func NewID(path string) ID {
	sum := sha1.Sum([]byte(path))
	return ID(hex.EncodeToString(sum[:]))
}

func (id ID) String() string {
	return string(id)
}

// Short returns the first 8 hex digits, for logs.
func (id ID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}

// Token is anything that can be pushed onto a Stream.
type Token interface {
	Kind() Kind
	Line() int
}

// PropertyToken carries document prolog metadata.
type PropertyToken struct {
	Code  Kind // KindXMLVersion or KindXMLEncoding
	Value string
}

func (t *PropertyToken) Kind() Kind { return t.Code }
func (t *PropertyToken) Line() int  { return 1 }

// NodeToken is one structurally significant element. Content is the node's
// markup with helper markup stripped and every direct child node replaced by
// a placeholder carrying the child's id.
type NodeToken struct {
	Code        Kind // KindRootNode or KindElementNode
	ID          ID
	Path        string
	SourceLine  int
	Ancestor    *ID
	PrevSibling *ID
	NextSibling *ID
	Content     string
	Children    []ID
}

func (t *NodeToken) Kind() Kind { return t.Code }
func (t *NodeToken) Line() int  { return t.SourceLine }

// IsRoot reports whether the node is the document element.
func (t *NodeToken) IsRoot() bool { return t.Code == KindRootNode }

// HelperToken is an element or attribute level extension point. Attributes
// is only set for element helpers, Value only for attribute helpers.
type HelperToken struct {
	Code       Kind // KindElementHelper or KindAttributeHelper
	ID         ID
	Path       string
	SourceLine int
	Name       string // local name
	Namespace  string
	Attributes map[string]string
	Value      string
}

func (t *HelperToken) Kind() Kind { return t.Code }
func (t *HelperToken) Line() int  { return t.SourceLine }

// ExpressionToken wraps the content stream of one expression site. Attribute
// is the qualified name of the owning attribute, empty for text sites.
type ExpressionToken struct {
	ID         ID
	Path       string
	SourceLine int
	Attribute  string
	Content    *Stream
}

func (t *ExpressionToken) Kind() Kind { return KindExpression }
func (t *ExpressionToken) Line() int  { return t.SourceLine }

// IsAttribute reports whether the expression lives in an attribute value.
func (t *ExpressionToken) IsAttribute() bool { return t.Attribute != "" }

// ExpressionContentToken is one sub-token of an expression.
type ExpressionContentToken struct {
	Code       Kind
	Value      string
	SourceLine int
}

func (t *ExpressionContentToken) Kind() Kind { return t.Code }
func (t *ExpressionContentToken) Line() int  { return t.SourceLine }

// Ref returns a pointer to id, or nil when id is empty.
func Ref(id ID) *ID {
	if id == "" {
		return nil
	}
	return &id
}

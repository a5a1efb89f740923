package token

// Kind identifies a token. The numbering is stable and shared with the
// downstream tree builder.
type Kind int

const (
	// KindXMLVersion is the xml version of the document prolog
	KindXMLVersion Kind = iota + 1

	// KindXMLEncoding is the xml encoding of the document prolog
	KindXMLEncoding

	// KindRootNode is the document element
	KindRootNode

	// KindElementNode is any other structurally significant element
	KindElementNode

	// KindElementHelper is a helper-qualified element
	KindElementHelper

	// KindAttributeHelper is a helper-qualified attribute
	KindAttributeHelper

	// KindExpression wraps one {% ... %} site
	KindExpression

	// KindExpressionOpen is {%
	KindExpressionOpen

	// KindExpressionClose is %}
	KindExpressionClose

	// KindExpressionChars is any literal run, quoted strings included
	KindExpressionChars

	// KindExpressionElement is <tag/> embedded in an expression
	KindExpressionElement

	// KindExpressionComment is <!-- comment --> embedded in an expression
	KindExpressionComment

	// KindExpressionCData is <![CDATA[ ]]> embedded in an expression
	KindExpressionCData

	// KindExpressionPI is <?target data?> embedded in an expression
	KindExpressionPI
)

func (k Kind) String() string {
	switch k {
	case KindXMLVersion:
		return "xml-version"
	case KindXMLEncoding:
		return "xml-encoding"
	case KindRootNode:
		return "root-node"
	case KindElementNode:
		return "element-node"
	case KindElementHelper:
		return "element-helper"
	case KindAttributeHelper:
		return "attribute-helper"
	case KindExpression:
		return "expression"
	case KindExpressionOpen:
		return "expression-open"
	case KindExpressionClose:
		return "expression-close"
	case KindExpressionChars:
		return "expression-chars"
	case KindExpressionElement:
		return "expression-element"
	case KindExpressionComment:
		return "expression-comment"
	case KindExpressionCData:
		return "expression-cdata"
	case KindExpressionPI:
		return "expression-pi"
	default:
		return "unknown"
	}
}

// IsNode reports whether k is a root or element node kind.
func (k Kind) IsNode() bool {
	return k == KindRootNode || k == KindElementNode
}

// IsHelper reports whether k is an element or attribute helper kind.
func (k Kind) IsHelper() bool {
	return k == KindElementHelper || k == KindAttributeHelper
}

// IsExpressionContent reports whether k can appear inside an expression
// content stream.
func (k Kind) IsExpressionContent() bool {
	return k >= KindExpressionOpen && k <= KindExpressionPI
}

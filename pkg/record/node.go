// Package record models a semi-structured message payload as a tree of
// mappings, sequences and scalar leaves, and provides the traversal and
// dotted-path addressing used to redact text leaves in place.
package record

// Kind identifies the variant of a Node
type Kind int

const (
	KindMapping Kind = iota
	KindSequence
	KindText
	KindNumber
	KindBool
	KindNull
	KindBinary
)

// String returns the lower-case name of the kind
func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Node is one element of a record tree. The concrete types below are the
// only implementations.
type Node interface {
	Kind() Kind
}

// Mapping is an internal node with unique string keys. Key order carries no
// meaning; traversal visits keys in sorted order.
type Mapping map[string]Node

// Sequence is an internal node addressed by index
type Sequence []Node

// Text is a string leaf, the only leaf kind redaction touches
type Text string

// Number keeps the literal form of a numeric leaf so that re-encoding does
// not change precision
type Number string

// Bool is a boolean leaf
type Bool bool

// Null is an explicit null leaf
type Null struct{}

// Binary is an opaque byte leaf
type Binary []byte

func (Mapping) Kind() Kind  { return KindMapping }
func (Sequence) Kind() Kind { return KindSequence }
func (Text) Kind() Kind     { return KindText }
func (Number) Kind() Kind   { return KindNumber }
func (Bool) Kind() Kind     { return KindBool }
func (Null) Kind() Kind     { return KindNull }
func (Binary) Kind() Kind   { return KindBinary }

// Clone returns a deep copy of n
func Clone(n Node) Node {
	switch v := n.(type) {
	case Mapping:
		out := make(Mapping, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case Sequence:
		out := make(Sequence, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	case Binary:
		out := make(Binary, len(v))
		copy(out, v)
		return out
	default:
		return n
	}
}

// Package nodetype defines the closed node-type enumeration shared by the
// state tree and the snapshot/diff engine (spec §3), along with the leaf
// codecs that convert between expanded (local) and storage (wire) byte
// layouts. It has no dependency on statetree or snapshot so both can
// depend on it without a cycle.
package nodetype

import "fmt"

// NodeType is the closed enumeration of replicable value kinds.
type NodeType uint8

const (
	Complex NodeType = iota
	Integer
	Integer4
	Float
	Float2
	Float3
	Float4
	Float4AsByteN4
	Float2AsHalf2
	Float4AsHalf4
	Matrix43
	Matrix44
	String
	WideString
	Float3Delta
	Float3AsHalf4Delta
	Float4AsHalf4Delta
	Float3AsQwordDelta
	PredictFloat3
	PredictQuaternion
	Blob
)

func (t NodeType) String() string {
	switch t {
	case Complex:
		return "Complex"
	case Integer:
		return "Integer"
	case Integer4:
		return "Integer4"
	case Float:
		return "Float"
	case Float2:
		return "Float2"
	case Float3:
		return "Float3"
	case Float4:
		return "Float4"
	case Float4AsByteN4:
		return "Float4AsByteN4"
	case Float2AsHalf2:
		return "Float2AsHalf2"
	case Float4AsHalf4:
		return "Float4AsHalf4"
	case Matrix43:
		return "Matrix43"
	case Matrix44:
		return "Matrix44"
	case String:
		return "String"
	case WideString:
		return "WideString"
	case Float3Delta:
		return "Float3Delta"
	case Float3AsHalf4Delta:
		return "Float3AsHalf4Delta"
	case Float4AsHalf4Delta:
		return "Float4AsHalf4Delta"
	case Float3AsQwordDelta:
		return "Float3AsQwordDelta"
	case PredictFloat3:
		return "PredictFloat3"
	case PredictQuaternion:
		return "PredictQuaternion"
	case Blob:
		return "Blob"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// IsDelta reports whether Type carries per-sample filter state and needs
// the sticky-change re-broadcast optimization (spec §4.2).
func (t NodeType) IsDelta() bool {
	switch t {
	case Float3Delta, Float3AsHalf4Delta, Float4AsHalf4Delta, Float3AsQwordDelta:
		return true
	default:
		return false
	}
}

// IsPredict reports whether Type is decoded through the double-exponential
// predictor filters (spec §4.4).
func (t NodeType) IsPredict() bool {
	return t == PredictFloat3 || t == PredictQuaternion
}

// IsBlobLike reports whether byte-equality comparison during diffing is
// unsupported for Type (spec §4.2: "Blob comparison is not supported,
// treated as always changed"). Strings use null-terminated compare instead
// of memcmp but are NOT blob-like for this purpose.
func (t NodeType) IsBlobLike() bool {
	return t == Blob
}

// StorageSize returns the wire-format size in bytes for Type, 0 for Complex
// (which carries no leaf value) and -1 for variable-length types (String,
// WideString, Blob) whose size is carried out of band.
func StorageSize(t NodeType) int {
	switch t {
	case Complex:
		return 0
	case Integer:
		return 4
	case Integer4:
		return 16
	case Float:
		return 4
	case Float2:
		return 8
	case Float3:
		return 12
	case Float4:
		return 16
	case Float4AsByteN4:
		return 4
	case Float2AsHalf2:
		return 4
	case Float4AsHalf4:
		return 8
	case Matrix43:
		return 48
	case Matrix44:
		return 64
	case Float3Delta:
		return 12
	case Float3AsHalf4Delta:
		return 8
	case Float4AsHalf4Delta:
		return 8
	case Float3AsQwordDelta:
		return 8
	case PredictFloat3:
		return 12
	case PredictQuaternion:
		return 16
	case String, WideString, Blob:
		return -1
	default:
		return 0
	}
}

package nodetype

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/mattlee78/netstate/internal/vecmath"
)

// DecodeLeaf converts storage-format bytes into an expanded Go value. The
// concrete type returned depends on t:
//
//	Integer            -> int32
//	Integer4            -> [4]int32
//	Float               -> float32
//	Float2               -> [2]float32
//	Float3, Float3Delta, Float3AsHalf4Delta, Float3AsQwordDelta, PredictFloat3 -> vecmath.Vec3
//	Float4, Float4AsByteN4, Float4AsHalf4, Float4AsHalf4Delta, PredictQuaternion -> vecmath.Quat
//	Matrix43            -> [12]float32
//	Matrix44            -> [16]float32
//	String, WideString, Blob -> []byte (copy of storage)
func DecodeLeaf(t NodeType, storage []byte) (any, error) {
	want := StorageSize(t)
	if want >= 0 && len(storage) != want {
		return nil, fmt.Errorf("nodetype: decode %s: expected %d storage bytes, got %d", t, want, len(storage))
	}
	switch t {
	case Integer:
		return int32(binary.LittleEndian.Uint32(storage)), nil
	case Integer4:
		var v [4]int32
		for i := range v {
			v[i] = int32(binary.LittleEndian.Uint32(storage[i*4:]))
		}
		return v, nil
	case Float:
		return decodeFloat32(storage), nil
	case Float2:
		return [2]float32{decodeFloat32(storage[0:4]), decodeFloat32(storage[4:8])}, nil
	case Float3, Float3Delta, PredictFloat3:
		return vecmath.Vec3{
			X: decodeFloat32(storage[0:4]),
			Y: decodeFloat32(storage[4:8]),
			Z: decodeFloat32(storage[8:12]),
		}, nil
	case Float4:
		return vecmath.Vec4{
			X: decodeFloat32(storage[0:4]),
			Y: decodeFloat32(storage[4:8]),
			Z: decodeFloat32(storage[8:12]),
			W: decodeFloat32(storage[12:16]),
		}, nil
	case Float4AsByteN4, PredictQuaternion:
		if t == PredictQuaternion {
			return vecmath.Vec4{
				X: decodeFloat32(storage[0:4]),
				Y: decodeFloat32(storage[4:8]),
				Z: decodeFloat32(storage[8:12]),
				W: decodeFloat32(storage[12:16]),
			}, nil
		}
		return vecmath.Vec4{
			X: vecmath.ByteNToFloat(int8(storage[0])),
			Y: vecmath.ByteNToFloat(int8(storage[1])),
			Z: vecmath.ByteNToFloat(int8(storage[2])),
			W: vecmath.ByteNToFloat(int8(storage[3])),
		}, nil
	case Float2AsHalf2:
		return [2]float32{
			vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[0:2])),
			vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[2:4])),
		}, nil
	case Float4AsHalf4, Float4AsHalf4Delta:
		return vecmath.Vec4{
			X: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[0:2])),
			Y: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[2:4])),
			Z: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[4:6])),
			W: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[6:8])),
		}, nil
	case Float3AsHalf4Delta:
		// Stored as half4 (4th component unused padding) but expanded as Vec3.
		return vecmath.Vec3{
			X: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[0:2])),
			Y: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[2:4])),
			Z: vecmath.HalfToFloat32(binary.LittleEndian.Uint16(storage[4:6])),
		}, nil
	case Float3AsQwordDelta:
		return vecmath.UnpackFloat3Qword(binary.LittleEndian.Uint64(storage)), nil
	case Matrix43:
		var v [12]float32
		for i := range v {
			v[i] = decodeFloat32(storage[i*4:])
		}
		return v, nil
	case Matrix44:
		var v [16]float32
		for i := range v {
			v[i] = decodeFloat32(storage[i*4:])
		}
		return v, nil
	case String, WideString, Blob:
		out := make([]byte, len(storage))
		copy(out, storage)
		return out, nil
	default:
		return nil, fmt.Errorf("nodetype: decode: unsupported type %s", t)
	}
}

// EncodeLeaf is the inverse of DecodeLeaf: it packs an expanded Go value
// (as returned by DecodeLeaf, or produced locally by the application) into
// storage bytes, appending to dst and returning the extended slice. This
// is where floats become halves, qwords, or signed-normalized bytes (spec
// §4.2: "this is where floats become halves, etc.").
func EncodeLeaf(t NodeType, v any, dst []byte) ([]byte, error) {
	switch t {
	case Integer:
		return binary.LittleEndian.AppendUint32(dst, uint32(v.(int32))), nil
	case Integer4:
		a := v.([4]int32)
		for _, x := range a {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(x))
		}
		return dst, nil
	case Float:
		return appendFloat32(dst, v.(float32)), nil
	case Float2:
		a := v.([2]float32)
		return appendFloat32(appendFloat32(dst, a[0]), a[1]), nil
	case Float3, Float3Delta, PredictFloat3:
		a := v.(vecmath.Vec3)
		return appendFloat32(appendFloat32(appendFloat32(dst, a.X), a.Y), a.Z), nil
	case Float4, PredictQuaternion:
		a := v.(vecmath.Vec4)
		return appendFloat32(appendFloat32(appendFloat32(appendFloat32(dst, a.X), a.Y), a.Z), a.W), nil
	case Float4AsByteN4:
		a := v.(vecmath.Vec4)
		return append(dst,
			byte(vecmath.FloatToByteN(a.X)),
			byte(vecmath.FloatToByteN(a.Y)),
			byte(vecmath.FloatToByteN(a.Z)),
			byte(vecmath.FloatToByteN(a.W))), nil
	case Float2AsHalf2:
		a := v.([2]float32)
		dst = binary.LittleEndian.AppendUint16(dst, vecmath.Float32ToHalf(a[0]))
		return binary.LittleEndian.AppendUint16(dst, vecmath.Float32ToHalf(a[1])), nil
	case Float4AsHalf4, Float4AsHalf4Delta:
		a := v.(vecmath.Vec4)
		for _, c := range []float32{a.X, a.Y, a.Z, a.W} {
			dst = binary.LittleEndian.AppendUint16(dst, vecmath.Float32ToHalf(c))
		}
		return dst, nil
	case Float3AsHalf4Delta:
		a := v.(vecmath.Vec3)
		for _, c := range []float32{a.X, a.Y, a.Z, 0} {
			dst = binary.LittleEndian.AppendUint16(dst, vecmath.Float32ToHalf(c))
		}
		return dst, nil
	case Float3AsQwordDelta:
		a := v.(vecmath.Vec3)
		return binary.LittleEndian.AppendUint64(dst, vecmath.PackFloat3Qword(a)), nil
	case Matrix43:
		a := v.([12]float32)
		for _, f := range a {
			dst = appendFloat32(dst, f)
		}
		return dst, nil
	case Matrix44:
		a := v.([16]float32)
		for _, f := range a {
			dst = appendFloat32(dst, f)
		}
		return dst, nil
	case String, WideString, Blob:
		return append(dst, v.([]byte)...), nil
	default:
		return nil, fmt.Errorf("nodetype: encode: unsupported type %s", t)
	}
}

// BytesEqual implements spec §4.2's byte-equality rule for diffing: strings
// compare as null-terminated text, Blob is always considered changed, and
// every other leaf compares its storage bytes directly (memcmp).
func BytesEqual(t NodeType, a, b []byte) bool {
	if t.IsBlobLike() {
		return false
	}
	if t == String {
		return cstr(a) == cstr(b)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cstr(b []byte) string {
	if i := indexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// EncodeWideString packs a Go string into UTF-16LE storage bytes (spec §6
// WCHAR fields), null-terminated and padded/truncated to exactly size
// bytes.
func EncodeWideString(s string, size int) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, size)
	off := 0
	for _, u := range units {
		if off+2 > size-2 {
			break
		}
		binary.LittleEndian.PutUint16(out[off:], u)
		off += 2
	}
	return out
}

// DecodeWideString reads a null-terminated UTF-16LE field.
func DecodeWideString(b []byte) string {
	var units []uint16
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	var sb strings.Builder
	for _, r := range utf16.Decode(units) {
		sb.WriteRune(r)
	}
	return sb.String()
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func appendFloat32(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
}

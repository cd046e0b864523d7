package statetree

import "github.com/mattlee78/netstate/internal/vecmath"

// Backing is the tree's view of a leaf node's expanded value storage
// (spec §9 design note: "each node records either owned_storage: Bytes
// or borrowed_storage: {object_handle, offset, size}"). A pointer-backed
// implementation models "borrowed" storage living in application memory;
// ValueBacking models "owned" storage living inside the node itself.
// Complex nodes carry a nil Backing.
type Backing interface {
	Read() any
	Write(v any)
}

// ValueBacking is owned storage: the node is the sole owner of the value,
// used for nodes with no corresponding application-side field (typically
// remotely created nodes mirroring a peer's object).
type ValueBacking struct{ v any }

func NewValueBacking(v any) *ValueBacking { return &ValueBacking{v: v} }
func (b *ValueBacking) Read() any         { return b.v }
func (b *ValueBacking) Write(v any)       { b.v = v }

type float32Backing struct{ p *float32 }

// BindFloat32 borrows storage from an application-owned float32 field.
func BindFloat32(p *float32) Backing { return &float32Backing{p} }
func (b *float32Backing) Read() any   { return *b.p }
func (b *float32Backing) Write(v any) { *b.p = v.(float32) }

type int32Backing struct{ p *int32 }

func BindInt32(p *int32) Backing      { return &int32Backing{p} }
func (b *int32Backing) Read() any     { return *b.p }
func (b *int32Backing) Write(v any)   { *b.p = v.(int32) }

type vec3Backing struct{ p *vecmath.Vec3 }

// BindVec3 borrows storage from an application-owned vecmath.Vec3 field,
// e.g. an object's position (original NetworkTransform.h's m_Position).
func BindVec3(p *vecmath.Vec3) Backing { return &vec3Backing{p} }
func (b *vec3Backing) Read() any       { return *b.p }
func (b *vec3Backing) Write(v any)     { *b.p = v.(vecmath.Vec3) }

type vec4Backing struct{ p *vecmath.Vec4 }

// BindVec4 borrows storage from an application-owned vecmath.Vec4 field,
// used for both Float4 and quaternion-typed nodes.
func BindVec4(p *vecmath.Vec4) Backing { return &vec4Backing{p} }
func (b *vec4Backing) Read() any       { return *b.p }
func (b *vec4Backing) Write(v any)     { *b.p = v.(vecmath.Vec4) }

type bytesBacking struct{ p *[]byte }

// BindBytes borrows storage from an application-owned byte slice, used
// for String, WideString, and Blob nodes.
func BindBytes(p *[]byte) Backing { return &bytesBacking{p} }
func (b *bytesBacking) Read() any  { return *b.p }
func (b *bytesBacking) Write(v any) {
	nv := v.([]byte)
	*b.p = append((*b.p)[:0], nv...)
}

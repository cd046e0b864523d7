package statetree

import "github.com/mattlee78/netstate/internal/nodetype"

// Member describes one field of a Replicable object, as required of
// embedders by spec §6: "ReplicableObject::members() -> [(type,
// offset_in_bytes, size_in_bytes)]". Offsets/sizes are implicit in Go:
// Backing already captures which field is bound.
type Member struct {
	Type              nodetype.NodeType
	Backing           Backing
	IncludeInSnapshot bool
}

// Replicable is implemented by application objects the embedder registers
// as a node group (spec §6's ReplicableObject interface, "members" half).
type Replicable interface {
	Members() []Member
}

// DynamicChildCreator is the optional half of ReplicableObject used for
// child nodes whose creation requires context: "create_dynamic_child
// (creation_blob, type) -> (ptr, size)" (spec §6).
type DynamicChildCreator interface {
	CreateDynamicChild(creationBlob []byte, t nodetype.NodeType) (Backing, error)
}

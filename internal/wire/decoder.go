package wire

import (
	"encoding/binary"
)

// ReliableMessage is a decoded ReliableMessage or UnreliableMessage
// mini-packet (spec §4.3). UniqueIndex is zero for unreliable messages.
type ReliableMessage struct {
	Opcode      uint32
	UniqueIndex uint32
	Reliable    bool
	Payload     []byte
}

// NodeCreateSimple is a decoded NodeCreateSimple mini-packet.
type NodeCreateSimple struct {
	NewNodeID    uint32
	ParentID     uint16
	NodeType     uint8
	CreationCode uint8
}

// NodeCreateComplex is a decoded NodeCreateComplex mini-packet.
type NodeCreateComplex struct {
	NewNodeID    uint32
	ParentID     uint16
	NodeType     uint8
	CreationBlob []byte
}

// NodeUpdate is a decoded NodeUpdate mini-packet.
type NodeUpdate struct {
	NodeID  uint32
	Storage []byte
}

// Handlers is the chain of callbacks a Decoder dispatches to while
// walking a datagram (spec §4.3: "dispatches to a chain of handlers").
// Any field may be left nil; a nil handler means that mini-packet type is
// skipped.
type Handlers struct {
	OnAcknowledge       func(snapshotIndex uint32)
	OnBeginSnapshot     func(snapshotIndex uint32) (accept bool)
	OnEndSnapshot       func(snapshotIndex uint32, packetCount uint32)
	OnReliableMessage   func(ReliableMessage)
	OnNodeUpdate        func(NodeUpdate)
	OnNodeCreateSimple  func(NodeCreateSimple)
	OnNodeCreateComplex func(NodeCreateComplex)
	OnNodeDelete        func(nodeID uint32)
}

// Decode walks one received datagram linearly, dispatching each
// mini-packet to h (spec §4.3). It stops and returns a
// *MalformedDatagramError if a header declares a byte count that
// overflows the remaining buffer or names an unknown type; mini-packets
// already dispatched before the malformed one stand. If an
// OnBeginSnapshot handler rejects a snapshot, the rest of the datagram is
// discarded without error (spec: "the remainder of that datagram is
// discarded").
func Decode(datagram []byte, h Handlers) error {
	b := datagram
	for len(b) > 0 {
		if len(b) < 4 {
			return &MalformedDatagramError{Reason: "trailing bytes shorter than one header"}
		}
		hdr := readHeader(b)
		switch hdr.packetType() {
		case NoOpTag:
			size := hdr.payloadSize()
			if size > len(b) {
				return &MalformedDatagramError{Reason: "NoOp byte count overflows datagram"}
			}
			b = b[size:]

		case AcknowledgeTag:
			if h.OnAcknowledge != nil {
				h.OnAcknowledge(hdr.sequence())
			}
			b = b[4:]

		case BeginSnapshotTag:
			seq := hdr.sequence()
			accept := true
			if h.OnBeginSnapshot != nil {
				accept = h.OnBeginSnapshot(seq)
			}
			if !accept {
				return nil
			}
			b = b[4:]

		case EndSnapshotTag:
			if len(b) < 8 {
				return &MalformedDatagramError{Reason: "EndSnapshot missing packet_count"}
			}
			packetCount := binary.LittleEndian.Uint32(b[4:8])
			if h.OnEndSnapshot != nil {
				h.OnEndSnapshot(hdr.sequence(), packetCount)
			}
			b = b[8:]

		case ReliableMessageTag, UnreliableMessageTag:
			size := hdr.payloadSize()
			if size > len(b) {
				return &MalformedDatagramError{Reason: "ReliableMessage byte count overflows datagram"}
			}
			body := b[4:size]
			msg := ReliableMessage{Opcode: hdr.payloadID(), Reliable: hdr.packetType() == ReliableMessageTag}
			if msg.Reliable {
				if len(body) < 4 {
					return &MalformedDatagramError{Reason: "ReliableMessage missing unique_index"}
				}
				msg.UniqueIndex = binary.LittleEndian.Uint32(body[0:4])
				msg.Payload = body[4:]
			} else {
				msg.Payload = body
			}
			if h.OnReliableMessage != nil {
				h.OnReliableMessage(msg)
			}
			b = b[size:]

		case NodeUpdateTag:
			size := hdr.payloadSize()
			if size > len(b) {
				return &MalformedDatagramError{Reason: "NodeUpdate byte count overflows datagram"}
			}
			if h.OnNodeUpdate != nil {
				h.OnNodeUpdate(NodeUpdate{NodeID: hdr.payloadID(), Storage: b[4:size]})
			}
			b = b[size:]

		case NodeCreateSimpleTag:
			size := hdr.payloadSize()
			if size > len(b) || size < 8 {
				return &MalformedDatagramError{Reason: "NodeCreateSimple byte count invalid"}
			}
			body := b[4:size]
			if h.OnNodeCreateSimple != nil {
				h.OnNodeCreateSimple(NodeCreateSimple{
					NewNodeID:    hdr.payloadID(),
					ParentID:     binary.LittleEndian.Uint16(body[0:2]),
					NodeType:     body[2],
					CreationCode: body[3],
				})
			}
			b = b[size:]

		case NodeCreateComplexTag:
			size := hdr.payloadSize()
			if size > len(b) || size < 8 {
				return &MalformedDatagramError{Reason: "NodeCreateComplex byte count invalid"}
			}
			body := b[4:size]
			if h.OnNodeCreateComplex != nil {
				h.OnNodeCreateComplex(NodeCreateComplex{
					NewNodeID:    hdr.payloadID(),
					ParentID:     binary.LittleEndian.Uint16(body[0:2]),
					NodeType:     body[2],
					CreationBlob: body[4:],
				})
			}
			b = b[size:]

		case NodeDeleteTag:
			size := hdr.payloadSize()
			if size > len(b) {
				return &MalformedDatagramError{Reason: "NodeDelete byte count overflows datagram"}
			}
			if h.OnNodeDelete != nil {
				h.OnNodeDelete(hdr.payloadID())
			}
			b = b[size:]

		default:
			return &MalformedDatagramError{Reason: "unknown mini-packet type"}
		}
	}
	return nil
}

// Package wire implements the framing protocol from spec §4.3: mini-packet
// headers, the MTU-bounded encoder/decoder pair, and the typed error kinds
// a decoder can raise. Header packing uses explicit shifts and masks
// instead of C bit-fields (spec §9's design note: "the on-wire encoding
// [should be] independent of host ABI"), and all multi-byte integers are
// little-endian (spec §6).
package wire

import "encoding/binary"

// PacketType is the mini-packet header's 4-bit tag (spec §4.3 table).
type PacketType uint8

const (
	NoOpTag PacketType = iota
	AcknowledgeTag
	ReliableMessageTag
	BeginSnapshotTag
	EndSnapshotTag
	NodeUpdateTag
	NodeCreateSimpleTag
	NodeCreateComplexTag
	NodeDeleteTag
	UnreliableMessageTag
)

// DatagramMTU is the target maximum size of one outgoing datagram (spec
// §4.3: "below typical Ethernet MTU to avoid fragmentation").
const DatagramMTU = 1400

// MaxReliablePayload is the largest payload a ReliableMessage/
// UnreliableMessage mini-packet may carry (spec §6).
const MaxReliablePayload = 512

// header packs/unpacks the 32-bit mini-packet header word. Variable-size
// packets use type:4|payload_id:20|byte_count_enc:8; fixed-size packets
// (Acknowledge, BeginSnapshot, EndSnapshot) use type:4|sequence:28.
type header uint32

func packVariable(t PacketType, payloadID uint32, byteCountEnc uint8) header {
	return header(uint32(t&0xf) | (payloadID&0xfffff)<<4 | uint32(byteCountEnc)<<24)
}

func (h header) packetType() PacketType { return PacketType(h & 0xf) }
func (h header) payloadID() uint32      { return uint32(h>>4) & 0xfffff }
func (h header) byteCountEnc() uint8    { return uint8(h >> 24) }

// payloadSize converts a header's byte_count_enc field into the mini-
// packet's total size in bytes, per spec §4.3: size = 4*(enc+1), so
// byte_count_enc=0 -> 4 bytes (just the header), byte_count_enc=255 ->
// 1024 bytes.
func (h header) payloadSize() int { return 4 * (int(h.byteCountEnc()) + 1) }

func packFixed(t PacketType, sequence uint32) header {
	return header(uint32(t&0xf) | (sequence&0x0fffffff)<<4)
}

func (h header) sequence() uint32 { return uint32(h>>4) & 0x0fffffff }

func encodeByteCount(totalSize int) uint8 {
	// totalSize must already be a multiple of 4 in [4,1024].
	return uint8(totalSize/4 - 1)
}

func readHeader(b []byte) header {
	return header(binary.LittleEndian.Uint32(b))
}

func appendHeader(dst []byte, h header) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(h))
}

// roundUp4 rounds n up to the next multiple of 4 (spec §4.3: "Payload
// sizes are rounded up to 4 bytes").
func roundUp4(n int) int { return (n + 3) &^ 3 }

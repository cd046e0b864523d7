package wire

import (
	"encoding/binary"
	"fmt"
)

// Encoder serializes a stream of mini-packets into MTU-bounded datagrams
// (spec §4.3). One Encoder is used per peer per snapshot cycle; it is not
// safe for concurrent use, matching the single-threaded encoder/decoder
// contract in spec §5.
type Encoder struct {
	buf           []byte
	snapshotIndex uint32
	packetCount   uint32
	send          func([]byte) error
}

// NewEncoder returns an Encoder that hands completed datagrams to send.
func NewEncoder(send func([]byte) error) *Encoder {
	return &Encoder{send: send}
}

// BeginSnapshot starts a new snapshot's datagram stream (spec §4.3).
func (e *Encoder) BeginSnapshot(index uint32) {
	e.snapshotIndex = index
	e.packetCount = 1
	e.buf = appendHeader(e.buf[:0], packFixed(BeginSnapshotTag, index))
}

// EndSnapshot writes the terminating EndSnapshot mini-packet (sequence +
// packet_count) and force-flushes the final datagram.
func (e *Encoder) EndSnapshot(index uint32) error {
	if err := e.allocate(8); err != nil {
		return err
	}
	e.buf = appendHeader(e.buf, packFixed(EndSnapshotTag, index))
	e.buf = binary.LittleEndian.AppendUint32(e.buf, e.packetCount)
	return e.flush()
}

// WriteAcknowledge queues an Acknowledge mini-packet for the given
// snapshot index.
func (e *Encoder) WriteAcknowledge(snapshotIndex uint32) error {
	return e.writeFixed(AcknowledgeTag, snapshotIndex, nil)
}

// WriteReliableMessage queues a ReliableMessage carrying opcode as the
// payload_id, uniqueIndex for dedup, and an opcode-specific payload
// (spec §6, max 512 bytes total per mini-packet).
func (e *Encoder) WriteReliableMessage(opcode uint32, uniqueIndex uint32, payload []byte) error {
	body := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uniqueIndex)
	body = append(body, payload...)
	if len(body) > MaxReliablePayload {
		return fmt.Errorf("wire: reliable message payload too large: %d bytes", len(body))
	}
	return e.writeVariable(ReliableMessageTag, opcode, body)
}

// WriteUnreliableMessage queues an UnreliableMessage: like
// WriteReliableMessage but with no unique_index (spec §4.3).
func (e *Encoder) WriteUnreliableMessage(opcode uint32, payload []byte) error {
	if len(payload) > MaxReliablePayload {
		return fmt.Errorf("wire: unreliable message payload too large: %d bytes", len(payload))
	}
	return e.writeVariable(UnreliableMessageTag, opcode, payload)
}

// WriteNodeUpdate queues a NodeUpdate carrying nodeID's current storage
// bytes.
func (e *Encoder) WriteNodeUpdate(nodeID uint32, storage []byte) error {
	return e.writeVariable(NodeUpdateTag, nodeID, storage)
}

// WriteNodeDelete queues a NodeDelete for nodeID.
func (e *Encoder) WriteNodeDelete(nodeID uint32) error {
	return e.writeVariable(NodeDeleteTag, nodeID, nil)
}

// WriteNodeCreateSimple queues a NodeCreateSimple: a leaf node creation
// with no creation blob (spec §4.3/§6).
func (e *Encoder) WriteNodeCreateSimple(newNodeID uint32, parentID uint16, nodeType, creationCode uint8) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], parentID)
	payload[2] = nodeType
	payload[3] = creationCode
	return e.writeVariable(NodeCreateSimpleTag, newNodeID, payload)
}

// WriteNodeCreateComplex queues a NodeCreateComplex: parentID/nodeType
// packed ahead of the (opaque) creationBlob (spec §4.3/§6).
func (e *Encoder) WriteNodeCreateComplex(newNodeID uint32, parentID uint16, nodeType uint8, creationBlob []byte) error {
	payload := make([]byte, 4, 4+len(creationBlob))
	binary.LittleEndian.PutUint16(payload[0:2], parentID)
	payload[2] = nodeType
	payload = append(payload, creationBlob...)
	return e.writeVariable(NodeCreateComplexTag, newNodeID, payload)
}

func (e *Encoder) writeVariable(t PacketType, payloadID uint32, payload []byte) error {
	total := 4 + roundUp4(len(payload))
	if total > 1024 {
		return fmt.Errorf("wire: mini-packet too large: %d bytes", total)
	}
	if err := e.allocate(total); err != nil {
		return err
	}
	e.buf = appendHeader(e.buf, packVariable(t, payloadID, encodeByteCount(total)))
	want := len(e.buf) + roundUp4(len(payload))
	e.buf = append(e.buf, payload...)
	for len(e.buf) < want {
		e.buf = append(e.buf, 0)
	}
	return nil
}

func (e *Encoder) writeFixed(t PacketType, sequence uint32, extra []byte) error {
	if err := e.allocate(4 + len(extra)); err != nil {
		return err
	}
	e.buf = appendHeader(e.buf, packFixed(t, sequence))
	e.buf = append(e.buf, extra...)
	return nil
}

// allocate ensures n more bytes fit in the current datagram, flushing and
// starting a fresh one (with an auto-inserted BeginSnapshot so every
// fragment is self-identifying) if they would not (spec §4.3).
func (e *Encoder) allocate(n int) error {
	if len(e.buf)+n > DatagramMTU {
		if err := e.flush(); err != nil {
			return err
		}
		e.packetCount++
		e.buf = appendHeader(e.buf[:0], packFixed(BeginSnapshotTag, e.snapshotIndex))
	}
	return nil
}

func (e *Encoder) flush() error {
	if len(e.buf) == 0 {
		return nil
	}
	err := e.send(e.buf)
	e.buf = e.buf[:0]
	return err
}

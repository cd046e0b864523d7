// Package protocol defines the reliable-message opcodes and handshake
// payload layouts spec §6 reserves for the core (opcodes 1-7; >=64 is
// left to the application), independent of the mini-packet framing in
// internal/wire.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/mattlee78/netstate/internal/nodetype"
)

// Opcode is a ReliableMessage/UnreliableMessage payload_id (spec §6).
type Opcode uint32

const (
	OpConnectAttempt Opcode = 1
	OpConnectAck     Opcode = 2
	OpDisconnect     Opcode = 3
	OpClientConnected Opcode = 4
	OpClientDisconnected Opcode = 5
	OpSubmitChat     Opcode = 6
	OpReceiveChat    Opcode = 7

	// FirstApplicationOpcode is the first opcode an embedding
	// application may define for itself (spec §6: ">= 64 reserved for
	// application").
	FirstApplicationOpcode Opcode = 64
)

// Version is the wire protocol version carried in ConnectAttempt (spec
// §6: "Protocol version: 4").
const Version = 4

const (
	usernameFieldSize = 32 * 2 // WCHAR[32]
	passwordFieldSize = 32 * 2 // WCHAR[32]
)

// ConnectAttempt is the client's handshake request (spec §6).
type ConnectAttempt struct {
	ProtocolVersion uint16
	Nonce           uint16
	Username        string
	HashedPassword  string
	ClientTicks     int64
	ClientTickFreq  int64
}

// Encode packs a into its wire layout: u16 protocol_version, u16 nonce,
// WCHAR[32] user, WCHAR[32] hashed_password, i64 client_ticks, i64
// client_tick_freq.
func (a ConnectAttempt) Encode() []byte {
	buf := make([]byte, 4+usernameFieldSize+passwordFieldSize+16)
	binary.LittleEndian.PutUint16(buf[0:2], a.ProtocolVersion)
	binary.LittleEndian.PutUint16(buf[2:4], a.Nonce)
	off := 4
	copy(buf[off:off+usernameFieldSize], nodetype.EncodeWideString(a.Username, usernameFieldSize))
	off += usernameFieldSize
	copy(buf[off:off+passwordFieldSize], nodetype.EncodeWideString(a.HashedPassword, passwordFieldSize))
	off += passwordFieldSize
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(a.ClientTicks))
	binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(a.ClientTickFreq))
	return buf
}

// DecodeConnectAttempt unpacks a wire ConnectAttempt payload.
func DecodeConnectAttempt(b []byte) (ConnectAttempt, error) {
	want := 4 + usernameFieldSize + passwordFieldSize + 16
	if len(b) < want {
		return ConnectAttempt{}, fmt.Errorf("protocol: ConnectAttempt payload too short: %d < %d", len(b), want)
	}
	off := 4
	user := nodetype.DecodeWideString(b[off : off+usernameFieldSize])
	off += usernameFieldSize
	pass := nodetype.DecodeWideString(b[off : off+passwordFieldSize])
	off += passwordFieldSize
	return ConnectAttempt{
		ProtocolVersion: binary.LittleEndian.Uint16(b[0:2]),
		Nonce:           binary.LittleEndian.Uint16(b[2:4]),
		Username:        user,
		HashedPassword:  pass,
		ClientTicks:     int64(binary.LittleEndian.Uint64(b[off : off+8])),
		ClientTickFreq:  int64(binary.LittleEndian.Uint64(b[off+8 : off+16])),
	}, nil
}

// ConnectAck is the server's handshake reply (spec §6).
type ConnectAck struct {
	Success        bool
	Nonce          uint16
	ServerTicks    int64
	ServerTickFreq int64
	ClientTicks    int64 // echoed back from the ConnectAttempt
}

// Encode packs ack into its wire layout: u32 success, u16 nonce, i64
// server_ticks, i64 server_tick_freq, i64 client_ticks.
func (ack ConnectAck) Encode() []byte {
	buf := make([]byte, 4+2+8+8+8)
	success := uint32(0)
	if ack.Success {
		success = 1
	}
	binary.LittleEndian.PutUint32(buf[0:4], success)
	binary.LittleEndian.PutUint16(buf[4:6], ack.Nonce)
	binary.LittleEndian.PutUint64(buf[6:14], uint64(ack.ServerTicks))
	binary.LittleEndian.PutUint64(buf[14:22], uint64(ack.ServerTickFreq))
	binary.LittleEndian.PutUint64(buf[22:30], uint64(ack.ClientTicks))
	return buf
}

// DecodeConnectAck unpacks a wire ConnectAck payload.
func DecodeConnectAck(b []byte) (ConnectAck, error) {
	const want = 4 + 2 + 8 + 8 + 8
	if len(b) < want {
		return ConnectAck{}, fmt.Errorf("protocol: ConnectAck payload too short: %d < %d", len(b), want)
	}
	return ConnectAck{
		Success:        binary.LittleEndian.Uint32(b[0:4]) != 0,
		Nonce:          binary.LittleEndian.Uint16(b[4:6]),
		ServerTicks:    int64(binary.LittleEndian.Uint64(b[6:14])),
		ServerTickFreq: int64(binary.LittleEndian.Uint64(b[14:22])),
		ClientTicks:    int64(binary.LittleEndian.Uint64(b[22:30])),
	}, nil
}

package wire

import "fmt"

// MalformedDatagramError means a header's declared byte count overflows
// the buffer or names an unknown packet type (spec §7, kind 2). Decoding
// the current datagram aborts; mini-packets already processed from it
// stand.
type MalformedDatagramError struct {
	Reason string
}

func (e *MalformedDatagramError) Error() string {
	return fmt.Sprintf("wire: malformed datagram: %s", e.Reason)
}

// ProtocolViolationError means an out-of-order/duplicate snapshot
// boundary, a duplicate node creation, or an update to an unknown node
// (spec §7, kind 3). These are silently ignored by callers; Decode never
// returns this type, which is available to a handler that wants to report
// such a case.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("wire: protocol violation: %s", e.Reason)
}

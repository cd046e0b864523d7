// Package transport wraps a UDP socket with the address-demultiplexed,
// non-blocking-receive/blocking-send contract spec §2 (L0) and §5 leave
// to an external collaborator: "Bind/connect a UDP endpoint; send/recv
// with peer address; non-blocking" receives, blocking sends.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ReceiveBufferBytes is the OS socket receive buffer size requested at
// bind time, matching the original engine's UdpReceiveBufferSize.
const ReceiveBufferBytes = 256 * 1024

// pollInterval bounds how long Recv blocks waiting for a datagram before
// reporting "no data" (spec §5: "the worker sleeps 1 ms" on an empty
// receive). Recv itself does the waiting so callers never sleep by hand.
const pollInterval = time.Millisecond

// Endpoint is a bound UDP socket. A server Endpoint has no fixed peer and
// demultiplexes incoming datagrams by source address; a client Endpoint
// is connected to exactly one remote address.
type Endpoint struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket on addr (host:port, host may be empty for
// all interfaces) for server-side use: many peers, demultiplexed by the
// source address Recv returns.
func Listen(addr string) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind %q: %w", addr, err)
	}
	if err := conn.SetReadBuffer(ReceiveBufferBytes); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set receive buffer: %w", err)
	}
	return &Endpoint{conn: conn}, nil
}

// Dial resolves remoteAddr and opens a UDP socket connected to it, for
// client-side use: send with Send (SendTo returns an error on a connected
// socket), and Recv only ever yields datagrams from the connected address.
func Dial(remoteAddr string) (*Endpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve remote address %q: %w", remoteAddr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %q: %w", remoteAddr, err)
	}
	if err := conn.SetReadBuffer(ReceiveBufferBytes); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set receive buffer: %w", err)
	}
	return &Endpoint{conn: conn}, nil
}

// LocalAddr returns the endpoint's bound local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close releases the underlying socket.
func (e *Endpoint) Close() error { return e.conn.Close() }

// Recv reads one datagram into buf, blocking for at most pollInterval.
// A timed-out read is not an error: it reports (0, nil, false, nil),
// mirroring the original RecvFrom's WSAEWOULDBLOCK-is-success contract
// ("no data" is the expected steady-state result, not a failure).
func (e *Endpoint) Recv(buf []byte) (n int, from net.Addr, ok bool, err error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, nil, false, fmt.Errorf("transport: set read deadline: %w", err)
	}
	n, from, err = e.conn.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("transport: recv: %w", err)
	}
	return n, from, true, nil
}

// SendTo writes one datagram to addr. UDP sendto rarely blocks (spec
// §5), so this call is allowed to block the caller; no deadline is set.
func (e *Endpoint) SendTo(addr net.Addr, payload []byte) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		var err error
		udpAddr, err = net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return fmt.Errorf("transport: resolve send target %q: %w", addr, err)
		}
	}
	if _, err := e.conn.WriteToUDP(payload, udpAddr); err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

// Send writes one datagram to a Dial'd endpoint's connected peer.
func (e *Endpoint) Send(payload []byte) error {
	if _, err := e.conn.Write(payload); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

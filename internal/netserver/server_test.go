package netserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattlee78/netstate/internal/netclient"
	"github.com/mattlee78/netstate/internal/nodetype"
	"github.com/mattlee78/netstate/internal/prediction"
	"github.com/mattlee78/netstate/internal/protocol"
	"github.com/mattlee78/netstate/internal/statetree"
	"github.com/mattlee78/netstate/internal/transport"
	"github.com/mattlee78/netstate/internal/wire"
)

func TestHandshakeConnectsClientAndRunsSnapshotCycle(t *testing.T) {
	tree := statetree.New(false)
	var position float32
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float, statetree.BindFloat32(&position), 0, nil, true))

	var connected *ConnectedClient
	srv, err := New(tree, Config{
		ListenAddr:    "127.0.0.1:0",
		Constants:     prediction.DefaultConstants(),
		SessionSecret: []byte("test"),
		Hooks: Hooks{
			OnClientConnected: func(c *ConnectedClient) { connected = c },
		},
	})
	require.NoError(t, err)
	defer srv.Close()

	clientTree := statetree.New(true)
	cl, err := netclient.New(clientTree, srv.ListenAddr(), prediction.DefaultConstants(), netclient.Hooks{})
	require.NoError(t, err)
	defer cl.Close()

	done := make(chan error, 1)
	go func() { done <- cl.Connect("Alice", "hash", 0xABCD) }()

	deadline := time.After(3 * time.Second)
	for i := 0; i < 100; i++ {
		require.NoError(t, srv.RunOnce())
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Equal(t, netclient.StateConnected, cl.State())
			require.NotNil(t, connected)
			assert.Equal(t, "Alice", connected.Username)
			return
		case <-deadline:
			t.Fatal("handshake did not complete")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("handshake did not complete within retry budget")
}

// TestChildOfCreatedComplexReachesPeer creates a Complex root with a Float
// child in one shot, before any client is connected, and asserts the
// child's creation and value both reach the newly-connected peer's tree
// (the diff between nil and the first snapshot must recurse into the new
// Complex node's children, not just report the Complex node itself).
func TestChildOfCreatedComplexReachesPeer(t *testing.T) {
	tree := statetree.New(false)
	position := float32(3.5)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, true))
	require.NoError(t, tree.CreateNode(1, 10, nodetype.Float, statetree.BindFloat32(&position), 0, nil, true))

	srv, err := New(tree, Config{ListenAddr: "127.0.0.1:0", Constants: prediction.DefaultConstants(), SessionSecret: []byte("test")})
	require.NoError(t, err)
	defer srv.Close()

	clientTree := statetree.New(true)
	cl, err := netclient.New(clientTree, srv.ListenAddr(), prediction.DefaultConstants(), netclient.Hooks{})
	require.NoError(t, err)
	defer cl.Close()

	done := make(chan error, 1)
	go func() { done <- cl.Connect("Carol", "hash", 0x1234) }()

	deadline := time.After(3 * time.Second)
	connected := false
	for i := 0; i < 100 && !connected; i++ {
		require.NoError(t, srv.RunOnce())
		select {
		case err := <-done:
			require.NoError(t, err)
			connected = true
		case <-deadline:
			t.Fatal("handshake did not complete")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.True(t, connected, "handshake did not complete within retry budget")

	// A few more ticks so the post-connect snapshot (carrying the
	// pre-existing tree) reaches the client and gets applied.
	for i := 0; i < 20 && clientTree.Find(10) == nil; i++ {
		require.NoError(t, srv.RunOnce())
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, cl.RunOnce())
	}

	root := clientTree.Find(1)
	require.NotNil(t, root, "Complex root must reach the peer")
	child := clientTree.Find(10)
	require.NotNil(t, child, "child of a newly-created Complex node must reach the peer")
	assert.Equal(t, uint32(1), child.ParentID)
}

func TestProtocolMismatchNeverSucceeds(t *testing.T) {
	tree := statetree.New(false)
	srv, err := New(tree, Config{ListenAddr: "127.0.0.1:0", Constants: prediction.DefaultConstants(), SessionSecret: []byte("test")})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := transport.Dial(srv.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	attempt := protocol.ConnectAttempt{ProtocolVersion: protocol.Version - 1, Nonce: 1, Username: "Bob"}
	enc := wire.NewEncoder(conn.Send)
	enc.BeginSnapshot(0)
	require.NoError(t, enc.WriteReliableMessage(uint32(protocol.OpConnectAttempt), 1, attempt.Encode()))
	require.NoError(t, enc.EndSnapshot(0))

	require.NoError(t, srv.RunOnce())

	buf := make([]byte, 1500)
	var gotAck bool
	for i := 0; i < 20 && !gotAck; i++ {
		n, _, ok, recvErr := conn.Recv(buf)
		require.NoError(t, recvErr)
		if !ok {
			continue
		}
		_ = wire.Decode(buf[:n], wire.Handlers{
			OnReliableMessage: func(m wire.ReliableMessage) {
				if protocol.Opcode(m.Opcode) != protocol.OpConnectAck {
					return
				}
				ack, decErr := protocol.DecodeConnectAck(m.Payload)
				require.NoError(t, decErr)
				assert.False(t, ack.Success, "mismatched protocol version must never ack success")
				gotAck = true
			},
		})
	}
	assert.True(t, gotAck, "server must still reply with a failed ConnectAck")
}

// TestFracturedSnapshotIsDiscarded drops one fragment of a multi-datagram
// snapshot and asserts the server counts it as fractured.
func TestFracturedSnapshotIsDiscarded(t *testing.T) {
	tree := statetree.New(false)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float, statetree.BindFloat32(new(float32)), 0, nil, true))

	srv, err := New(tree, Config{ListenAddr: "127.0.0.1:0", Constants: prediction.DefaultConstants(), SessionSecret: []byte("test")})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := transport.Dial(srv.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	var fragments [][]byte
	enc := wire.NewEncoder(func(b []byte) error {
		fragments = append(fragments, append([]byte(nil), b...))
		return nil
	})
	enc.BeginSnapshot(1)
	big := make([]byte, 500)
	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, enc.WriteReliableMessage(uint32(protocol.OpSubmitChat), i, big))
	}
	require.NoError(t, enc.EndSnapshot(1))
	require.GreaterOrEqual(t, len(fragments), 3, "payload must have forced at least three datagrams")

	// Drop the middle fragment, so the server's declared packet count
	// never matches the number of fragments it actually saw.
	for i, frag := range fragments {
		if i == 1 {
			continue
		}
		require.NoError(t, conn.Send(frag))
	}

	require.NoError(t, srv.RunOnce())

	peers := srv.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, uint64(1), peers[0].Stats.FracturedSnapshots)
}

// TestDuplicateReliableMessageCountsOnceOnSecondReceipt resends the same
// reliable message twice and asserts the dedup counter increments exactly
// once, on the second receipt.
func TestDuplicateReliableMessageCountsOnceOnSecondReceipt(t *testing.T) {
	tree := statetree.New(false)
	srv, err := New(tree, Config{ListenAddr: "127.0.0.1:0", Constants: prediction.DefaultConstants(), SessionSecret: []byte("test")})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := transport.Dial(srv.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	sendChat := func(idx uint32) {
		enc := wire.NewEncoder(conn.Send)
		enc.BeginSnapshot(idx)
		payload := append([]byte{1, 0}, []byte("hi")...)
		require.NoError(t, enc.WriteReliableMessage(uint32(protocol.OpSubmitChat), 7, payload))
		require.NoError(t, enc.EndSnapshot(idx))
	}

	sendChat(1)
	require.NoError(t, srv.RunOnce())
	peers := srv.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, uint64(0), peers[0].Stats.DuplicateReliableMessagesSkipped, "first receipt is not a duplicate")

	sendChat(2)
	require.NoError(t, srv.RunOnce())
	peers = srv.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, uint64(1), peers[0].Stats.DuplicateReliableMessagesSkipped, "second receipt of the same unique_index counts exactly once")
}

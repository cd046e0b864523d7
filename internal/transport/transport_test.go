package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAndDialRoundTripDatagram(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Dial(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send([]byte("hello")))

	buf := make([]byte, 64)
	for i := 0; i < 50; i++ {
		n, from, ok, recvErr := server.Recv(buf)
		require.NoError(t, recvErr)
		if ok {
			assert.Equal(t, "hello", string(buf[:n]))
			assert.NotNil(t, from)
			return
		}
	}
	t.Fatal("datagram never arrived")
}

func TestRecvReportsNoDataOnIdleSocket(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	buf := make([]byte, 64)
	n, from, ok, err := server.Recv(buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	assert.Nil(t, from)
}

func TestSendToReachesListener(t *testing.T) {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SendTo(server.LocalAddr(), []byte("ping")))

	buf := make([]byte, 64)
	for i := 0; i < 50; i++ {
		n, from, ok, recvErr := server.Recv(buf)
		require.NoError(t, recvErr)
		if ok {
			assert.Equal(t, "ping", string(buf[:n]))
			assert.NotNil(t, from)
			return
		}
	}
	t.Fatal("datagram never arrived")
}

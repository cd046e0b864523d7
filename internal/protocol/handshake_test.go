package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAttemptRoundTrips(t *testing.T) {
	a := ConnectAttempt{
		ProtocolVersion: Version,
		Nonce:           0xABCD,
		Username:        "Alice",
		HashedPassword:  "deadbeef",
		ClientTicks:     123456,
		ClientTickFreq:  1000000,
	}
	decoded, err := DecodeConnectAttempt(a.Encode())
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestConnectAckRoundTrips(t *testing.T) {
	ack := ConnectAck{
		Success:        true,
		Nonce:          0xABCD,
		ServerTicks:    555,
		ServerTickFreq: 1000,
		ClientTicks:    123456,
	}
	decoded, err := DecodeConnectAck(ack.Encode())
	require.NoError(t, err)
	assert.Equal(t, ack, decoded)
}

func TestConnectAckFailureRoundTrips(t *testing.T) {
	ack := ConnectAck{Success: false, Nonce: 1}
	decoded, err := DecodeConnectAck(ack.Encode())
	require.NoError(t, err)
	assert.False(t, decoded.Success)
}

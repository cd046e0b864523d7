package adminbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceEventRoundTrips(t *testing.T) {
	ev := PresenceEvent{ClientID: 7, Username: "Alice", Joined: true}
	decoded, err := decodePresence(encodePresence(ev))
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestChatEventRoundTrips(t *testing.T) {
	ev := ChatEvent{FromID: 1, ToID: 2, Line: "hello"}
	decoded, err := decodeChat(encodeChat(ev))
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestConnectRejectsEmptyAddress(t *testing.T) {
	_, err := Connect(Config{})
	assert.Error(t, err)
}

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteCountEncBoundaries(t *testing.T) {
	assert.Equal(t, uint8(0), encodeByteCount(4))
	assert.Equal(t, 4, int(header(packVariable(NodeUpdateTag, 0, 0)).payloadSize()))
	assert.Equal(t, uint8(255), encodeByteCount(1024))
	assert.Equal(t, 1024, int(header(packVariable(NodeUpdateTag, 0, 255)).payloadSize()))
}

func TestHeaderRoundTripsFields(t *testing.T) {
	h := packVariable(NodeUpdateTag, 12345, 7)
	assert.Equal(t, NodeUpdateTag, h.packetType())
	assert.Equal(t, uint32(12345), h.payloadID())
	assert.Equal(t, uint8(7), h.byteCountEnc())

	f := packFixed(EndSnapshotTag, 999)
	assert.Equal(t, EndSnapshotTag, f.packetType())
	assert.Equal(t, uint32(999), f.sequence())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var datagrams [][]byte
	enc := NewEncoder(func(b []byte) error {
		cp := append([]byte(nil), b...)
		datagrams = append(datagrams, cp)
		return nil
	})

	enc.BeginSnapshot(7)
	require.NoError(t, enc.WriteNodeUpdate(10, []byte{1, 2, 3, 4}))
	require.NoError(t, enc.WriteReliableMessage(6, 42, []byte("hi")))
	require.NoError(t, enc.WriteNodeDelete(11))
	require.NoError(t, enc.EndSnapshot(7))

	var updates []NodeUpdate
	var reliables []ReliableMessage
	var deletes []uint32
	var begins, ends []uint32
	var endCounts []uint32

	for _, d := range datagrams {
		err := Decode(d, Handlers{
			OnBeginSnapshot: func(i uint32) bool { begins = append(begins, i); return true },
			OnEndSnapshot: func(i uint32, pc uint32) {
				ends = append(ends, i)
				endCounts = append(endCounts, pc)
			},
			OnNodeUpdate:      func(u NodeUpdate) { updates = append(updates, u) },
			OnReliableMessage: func(m ReliableMessage) { reliables = append(reliables, m) },
			OnNodeDelete:      func(id uint32) { deletes = append(deletes, id) },
		})
		require.NoError(t, err)
	}

	require.Len(t, updates, 1)
	assert.Equal(t, uint32(10), updates[0].NodeID)
	assert.Equal(t, []byte{1, 2, 3, 4}, updates[0].Storage)

	require.Len(t, reliables, 1)
	assert.Equal(t, uint32(6), reliables[0].Opcode)
	assert.Equal(t, uint32(42), reliables[0].UniqueIndex)
	assert.Equal(t, "hi", string(reliables[0].Payload))

	require.Len(t, deletes, 1)
	assert.Equal(t, uint32(11), deletes[0])

	require.Len(t, ends, 1)
	assert.Equal(t, uint32(7), ends[0])
	assert.Equal(t, uint32(1), endCounts[0])
	assert.Equal(t, []uint32{7}, begins)
}

func TestFragmentationInsertsBeginSnapshotOnContinuation(t *testing.T) {
	var datagrams [][]byte
	enc := NewEncoder(func(b []byte) error {
		datagrams = append(datagrams, append([]byte(nil), b...))
		return nil
	})

	enc.BeginSnapshot(1)
	big := make([]byte, 600)
	for i := 0; i < 4; i++ {
		require.NoError(t, enc.WriteNodeUpdate(uint32(i+1), big))
	}
	require.NoError(t, enc.EndSnapshot(1))

	require.Greater(t, len(datagrams), 1, "large payload should force fragmentation")

	var begins []uint32
	for i, d := range datagrams {
		err := Decode(d, Handlers{
			OnBeginSnapshot: func(idx uint32) bool { begins = append(begins, idx); return true },
		})
		require.NoError(t, err)
		_ = i
	}
	assert.Equal(t, len(datagrams), len(begins), "every fragment must be self-identifying")
	for _, idx := range begins {
		assert.Equal(t, uint32(1), idx)
	}
}

func TestMalformedDatagramAbortsDecode(t *testing.T) {
	datagram := appendHeader(nil, packVariable(NodeUpdateTag, 1, 250)) // claims 1004 bytes, has none
	err := Decode(datagram, Handlers{})
	require.Error(t, err)
	var merr *MalformedDatagramError
	assert.ErrorAs(t, err, &merr)
}

func TestBeginSnapshotRejectionDiscardsRestOfDatagram(t *testing.T) {
	var datagrams [][]byte
	enc := NewEncoder(func(b []byte) error {
		datagrams = append(datagrams, append([]byte(nil), b...))
		return nil
	})
	enc.BeginSnapshot(5)
	require.NoError(t, enc.WriteNodeUpdate(1, []byte{1, 2, 3, 4}))
	require.NoError(t, enc.EndSnapshot(5))

	var updates int
	err := Decode(datagrams[0], Handlers{
		OnBeginSnapshot: func(uint32) bool { return false },
		OnNodeUpdate:    func(NodeUpdate) { updates++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updates)
}

package statelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLogWritesHeaderAndTypedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.csv")
	columns := []Column{
		{Name: "tick", Type: UInt32},
		{Name: "delta_seconds", Type: Float},
		{Name: "state", Type: Enum, Symbols: []string{"idle", "connecting", "connected"}},
	}
	log, err := Open(path, columns)
	require.NoError(t, err)

	log.SetUInt32(0, 42)
	log.SetFloat(1, 0.016)
	log.SetEnum(2, 2)
	require.NoError(t, log.FlushLine())
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "tick:UInt32,delta_seconds:Float,state:Enum")
	assert.Contains(t, content, "42,0.016,connected")
}

func TestRotatorArchivesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.csv")
	columns := []Column{{Name: "tick", Type: UInt32}}
	r, err := NewRotator(path, columns)
	require.NoError(t, err)

	r.Current().SetUInt32(0, 1)
	require.NoError(t, r.Current().FlushLine())
	require.NoError(t, r.Rotate())

	r.Current().SetUInt32(0, 2)
	require.NoError(t, r.Current().FlushLine())
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2")

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestTimestampedLogWritesPrefixedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	log, err := OpenTimestamped(path)
	require.NoError(t, err)
	require.NoError(t, log.WriteLine("client %d connected", 7))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "client 7 connected")
}

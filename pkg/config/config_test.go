package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"frames-per-second": 60, "listen-addr": ":1234"}`), 0o644))

	saved := Keys
	defer func() { Keys = saved }()

	require.NoError(t, Load(path))
	assert.Equal(t, 60, Keys.FramesPerSecond)
	assert.Equal(t, ":1234", Keys.ListenAddr)
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	saved := Keys
	defer func() { Keys = saved }()

	require.NoError(t, Load(filepath.Join(t.TempDir(), "missing.json")))
	assert.Equal(t, saved, Keys)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	err := Validate([]byte(`{"listen-addr": ":1234"}`))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownShape(t *testing.T) {
	err := Validate([]byte(`{"frames-per-second": "not-a-number"}`))
	assert.Error(t, err)
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_File(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	path := filepath.Join(t.TempDir(), "hydronic.log")
	closer, err := Init(zerolog.InfoLevel, path)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("device", "heat_pump").Msg("visible")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"device":"heat_pump"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(zerolog.InfoLevel, filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heapvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTemp(t, "arena_bytes: 8192\ncode_words: 32\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.ArenaBytes)
	assert.Equal(t, 32, cfg.CodeWords)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeTemp(t, "arena_bytes: [this is not a scalar\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestVerifyRejectsNonPositiveArena(t *testing.T) {
	cfg := Default()
	cfg.ArenaBytes = 0
	assert.Error(t, cfg.Verify())
}

func TestVerifyRejectsUnalignedArena(t *testing.T) {
	cfg := Default()
	cfg.ArenaBytes = 1025
	assert.Error(t, cfg.Verify())
}

func TestVerifyRejectsCodeWordsFillingArena(t *testing.T) {
	cfg := Config{ArenaBytes: 64, CodeWords: 16}
	assert.Error(t, cfg.Verify())
}

func TestVerifyRejectsNegativeFreeListClasses(t *testing.T) {
	cfg := Default()
	cfg.FreeListClasses = -1
	assert.Error(t, cfg.Verify())
}

func TestVerifyAcceptsDefault(t *testing.T) {
	assert.NoError(t, Default().Verify())
}

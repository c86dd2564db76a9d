package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEmptyInputDefaultsToEmptyMapping(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	require.Empty(t, m)
	require.NotNil(t, m)
}

func TestLoadLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "JSON", input: `{"hello": "world"}`},
		{name: "YAML", input: "hello: world\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Load(tc.input)
			require.NoError(t, err)
			require.Equal(t, map[string]any{"hello": "world"}, m)
		})
	}
}

func TestLoadFileReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frame: 12\n"), 0o600))

	m, err := Load("file://" + path)
	require.NoError(t, err)
	require.Equal(t, 12, m["frame"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("file://" + filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "open data file")
}

func TestLoadRejectsUnparseableInput(t *testing.T) {
	_, err := Load("@")
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse data")
}

func TestLoadRejectsNonMapping(t *testing.T) {
	_, err := Load("just-a-string")
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected data to be a mapping")
}

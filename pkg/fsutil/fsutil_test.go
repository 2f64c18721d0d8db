package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *Owner
		wantErr  bool
	}{
		{name: "empty", input: "", expected: nil},
		{name: "valid", input: "1000:2000", expected: &Owner{UID: 1000, GID: 2000}},
		{name: "missing gid", input: "1000", wantErr: true},
		{name: "too many parts", input: "1:2:3", wantErr: true},
		{name: "non numeric", input: "alice:staff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, err := ParseOwner(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, owner)
		})
	}
}

func TestOwner_String(t *testing.T) {
	var nilOwner *Owner

	assert.Equal(t, "", nilOwner.String())
	assert.Equal(t, "1:2", (&Owner{UID: 1, GID: 2}).String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, WriteFile(path, []byte("a,b\n"), 0o644, nil))
	require.NoError(t, WriteFile(path, []byte("c,d\n"), 0o644, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAtomic_WriterError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := WriteAtomic(path, 0o644, nil, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))

		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

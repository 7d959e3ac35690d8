package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestLocalStorage_SaveAndRead(t *testing.T) {
	s := newTestStorage(t)

	rel, err := s.Save("company-a", "pre_processing_batches_2026-10-15.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rel, filepath.Join("company-a", "2026", "10")+string(filepath.Separator)))
	assert.True(t, strings.HasSuffix(rel, "_pre_processing_batches_2026-10-15.csv"))

	full, err := s.FullPath(rel)
	require.NoError(t, err)
	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestLocalStorage_SameNameDoesNotCollide(t *testing.T) {
	s := newTestStorage(t)

	first, err := s.Save("company-a", "export.pdf", []byte("1"))
	require.NoError(t, err)
	second, err := s.Save("company-a", "export.pdf", []byte("2"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	s := newTestStorage(t)

	for _, tc := range []struct{ company, name string }{
		{"", "export.csv"},
		{"..", "export.csv"},
		{"company-a", "../export.csv"},
		{"a/b", "export.csv"},
		{"company-a", " "},
	} {
		_, err := s.Save(tc.company, tc.name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, tc)
	}

	_, err := s.FullPath("../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.FullPath("..")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

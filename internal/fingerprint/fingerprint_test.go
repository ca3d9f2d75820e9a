package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFile_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", []byte("some pdf bytes"))

	fp1, err := File(path)
	require.NoError(t, err)
	fp2, err := File(path)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 32, "md5 hex digest")
}

func TestFile_ContentChangeChangesFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", []byte("version one"))

	fp1, err := File(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	fp2, err := File(path)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestFile_MtimeChangeChangesFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.pdf", []byte("same bytes"))

	fp1, err := File(path)
	require.NoError(t, err)

	newTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, newTime, newTime))

	fp2, err := File(path)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestFile_IdenticalCopiesShareFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", []byte("shared content"))
	b := writeFile(t, dir, "b.pdf", []byte("shared content"))

	// Align metadata so only the content matters.
	ts := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(a, ts, ts))
	require.NoError(t, os.Chtimes(b, ts, ts))

	fpA, err := File(a)
	require.NoError(t, err)
	fpB, err := File(b)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

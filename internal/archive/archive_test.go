package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func readZip(t *testing.T, zipPath string) map[string][]byte {
	t.Helper()
	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	out := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = data
	}
	return out
}

func TestBuild_PreservesFolderLayout(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.bin", []byte("first file"))
	b := writeSource(t, dir, "b.bin", []byte("second file"))

	zipPath := filepath.Join(dir, "out.zip")
	err := Build(zipPath, []Entry{
		{Name: "reports/2024/scan.pdf", Source: a},
		{Name: "cover.pdf", Source: b},
	})
	require.NoError(t, err)

	contents := readZip(t, zipPath)
	require.Len(t, contents, 2)
	assert.Equal(t, []byte("first file"), contents["reports/2024/scan.pdf"])
	assert.Equal(t, []byte("second file"), contents["cover.pdf"])
}

func TestBuild_OrderPreserved(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "x.bin", []byte("x"))

	zipPath := filepath.Join(dir, "out.zip")
	names := []string{"c.pdf", "a.pdf", "b.pdf"}
	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, Entry{Name: n, Source: src})
	}
	require.NoError(t, Build(zipPath, entries))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	got := make([]string, 0, len(r.File))
	for _, f := range r.File {
		got = append(got, f.Name)
	}
	assert.Equal(t, names, got)
}

func TestBuild_MissingSourceRemovesPartialArchive(t *testing.T) {
	dir := t.TempDir()
	ok := writeSource(t, dir, "ok.bin", []byte("fine"))

	zipPath := filepath.Join(dir, "out.zip")
	err := Build(zipPath, []Entry{
		{Name: "ok.pdf", Source: ok},
		{Name: "gone.pdf", Source: filepath.Join(dir, "missing.bin")},
	})
	require.Error(t, err)

	_, statErr := os.Stat(zipPath)
	assert.True(t, os.IsNotExist(statErr), "half-written archive must not remain")
}

func TestBuild_EmptyEntryName(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "x.bin", []byte("x"))

	err := Build(filepath.Join(dir, "out.zip"), []Entry{{Name: "", Source: src}})
	assert.Error(t, err)
}

func TestBuild_NoEntriesYieldsValidEmptyArchive(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	require.NoError(t, Build(zipPath, nil))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, r.File)
}

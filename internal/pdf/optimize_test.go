package pdf

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestOptimize_BelowThresholdCopiesThrough(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(in, []byte("small pdf"), 0o644))

	o := &Optimizer{
		Ghostscript:     "gs",
		ThresholdBytes:  1 << 20,
		MinReductionPct: 10,
		Log:             testLogger(),
	}

	optimized, err := o.Optimize(context.Background(), in, out)
	require.NoError(t, err)
	assert.False(t, optimized)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("small pdf"), got)
}

func TestOptimize_GhostscriptFailureFallsBackToOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(in, []byte("bytes the engine chokes on"), 0o644))

	o := &Optimizer{
		Ghostscript:     "false", // exits non-zero without producing output
		ThresholdBytes:  1,
		MinReductionPct: 10,
		Log:             testLogger(),
	}

	optimized, err := o.Optimize(context.Background(), in, out)
	require.NoError(t, err)
	assert.False(t, optimized)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes the engine chokes on"), got)
}

func TestOptimize_MissingInput(t *testing.T) {
	dir := t.TempDir()
	o := &Optimizer{ThresholdBytes: 1 << 20, Log: testLogger()}

	_, err := o.Optimize(context.Background(), filepath.Join(dir, "gone.pdf"), filepath.Join(dir, "out.pdf"))
	assert.Error(t, err)
}

func TestCopyFile_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "gone.bin"), filepath.Join(dir, "dst.bin"))
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "dst.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	assert.Equal(t, "...cdefgh", tail("abcdefgh", 6))
}

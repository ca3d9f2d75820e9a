package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_IdleSnapshot(t *testing.T) {
	p := NewProgress(time.Minute)

	s := p.Snapshot()
	assert.False(t, s.IsProcessing)
	assert.Nil(t, s.ElapsedSeconds)
	assert.Nil(t, s.PossibleHang)
}

func TestProgress_ActiveSnapshot(t *testing.T) {
	p := NewProgress(time.Minute)
	p.Begin(5)
	p.Update("scan.pdf", 2)

	s := p.Snapshot()
	assert.True(t, s.IsProcessing)
	assert.Equal(t, "scan.pdf", s.CurrentFile)
	assert.Equal(t, 2, s.CurrentFileIndex)
	assert.Equal(t, 5, s.TotalFiles)
	require.NotNil(t, s.ElapsedSeconds)
	assert.GreaterOrEqual(t, *s.ElapsedSeconds, 0.0)
	require.NotNil(t, s.PossibleHang)
	assert.False(t, *s.PossibleHang)
}

func TestProgress_HangFlag(t *testing.T) {
	p := NewProgress(time.Nanosecond)
	p.Begin(1)
	time.Sleep(5 * time.Millisecond)

	s := p.Snapshot()
	require.NotNil(t, s.PossibleHang)
	assert.True(t, *s.PossibleHang)

	// Any activity resets the quiet period.
	p.Update("scan.pdf", 1)
	p.hangAfter = time.Minute
	s = p.Snapshot()
	assert.False(t, *s.PossibleHang)
}

func TestProgress_EndClearsProcessing(t *testing.T) {
	p := NewProgress(time.Minute)
	p.Begin(3)
	p.End()

	s := p.Snapshot()
	assert.False(t, s.IsProcessing)
	assert.Nil(t, s.ElapsedSeconds)
	assert.Equal(t, 3, s.TotalFiles, "last run's totals remain visible")
}

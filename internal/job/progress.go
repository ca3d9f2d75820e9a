package job

import (
	"sync"
	"time"
)

// Progress is the process-wide view served by the global /status endpoint.
// It tracks whichever job is currently feeding the worker pool; updates are
// cheap so workers call it on every completion.
type Progress struct {
	hangAfter time.Duration

	mu           sync.RWMutex
	currentFile  string
	currentIndex int
	totalFiles   int
	isProcessing bool
	startedAt    time.Time
	lastActivity time.Time
}

// NewProgress creates a tracker that flags a possible hang after the given
// quiet period during processing.
func NewProgress(hangAfter time.Duration) *Progress {
	return &Progress{hangAfter: hangAfter}
}

// Begin marks the start of a processing run with the given file count.
func (p *Progress) Begin(totalFiles int) {
	now := time.Now()
	p.mu.Lock()
	p.currentFile = ""
	p.currentIndex = 0
	p.totalFiles = totalFiles
	p.isProcessing = true
	p.startedAt = now
	p.lastActivity = now
	p.mu.Unlock()
}

// Update records that a file has just been resolved.
func (p *Progress) Update(file string, index int) {
	p.mu.Lock()
	p.currentFile = file
	p.currentIndex = index
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// End marks the run finished.
func (p *Progress) End() {
	p.mu.Lock()
	p.isProcessing = false
	p.mu.Unlock()
}

// Snapshot is the JSON shape of the global status endpoint.
type Snapshot struct {
	CurrentFile      string   `json:"current_file"`
	CurrentFileIndex int      `json:"current_file_index"`
	TotalFiles       int      `json:"total_files"`
	IsProcessing     bool     `json:"is_processing"`
	ElapsedSeconds   *float64 `json:"elapsed_seconds,omitempty"`
	PossibleHang     *bool    `json:"possible_hang,omitempty"`
}

// Snapshot returns the current view. Elapsed time and the hang flag are
// only present while processing.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		CurrentFile:      p.currentFile,
		CurrentFileIndex: p.currentIndex,
		TotalFiles:       p.totalFiles,
		IsProcessing:     p.isProcessing,
	}

	if p.isProcessing {
		now := time.Now()
		elapsed := now.Sub(p.startedAt).Seconds()
		s.ElapsedSeconds = &elapsed
		hang := now.Sub(p.lastActivity) > p.hangAfter
		s.PossibleHang = &hang
	}

	return s
}

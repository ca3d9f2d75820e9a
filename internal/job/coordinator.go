package job

import (
	"math"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/ocrbatch/internal/archive"
)

// run is the per-job coordinator. It owns the worker pool, dispatches files
// in submission order, aggregates outcomes, builds the archive, and drives
// the job to a terminal state. It runs on its own goroutine, launched by
// Submit.
func (m *Manager) run(j *Job) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("Coordinator panic for job %s: %v", j.ID, r)
			m.cleanup(j)
			j.finalize(StateFailed, &Result{
				Error:     "An unexpected error occurred during processing",
				ProcessID: j.ID,
			}, "")
			m.progress.End()
		}
	}()

	files := j.Files()

	// Canceled while still Pending: RequestCancel already published the
	// terminal result; only the staging tree remains to release.
	if !j.begin() {
		m.log.Infof("Job %s canceled before processing started", j.ID)
		m.cleanup(j)
		return
	}

	m.progress.Begin(len(files))
	defer m.progress.End()

	workers := minInt(runtime.NumCPU(), len(files), m.cfg.OCR.WorkerCap)
	m.log.Infof("Job %s: processing %d files with %d workers", j.ID, len(files), workers)

	env := &workerEnv{
		job:       j,
		cache:     m.cache,
		optimizer: m.optimizer,
		engine:    m.engine,
		timeout:   m.cfg.PerFileTimeout(),
		forgiving: m.cfg.OCR.Forgiving,
		log:       m.log,
	}

	taskCh := make(chan *FileEntry)
	var completed atomic.Int64

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			for fe := range taskCh {
				env.process(j.Context(), fe, workerID)
				idx := int(completed.Add(1))
				m.progress.Update(path.Base(fe.SubmittedPath), idx)
			}
			return nil
		})
	}

	// Dispatch in submission order; nothing new starts once cancel fires.
	for _, fe := range files {
		if j.CancelRequested() {
			break
		}
		taskCh <- fe
	}
	close(taskCh)
	_ = g.Wait()

	// Files never dispatched (or never started) resolve as skipped.
	for _, fe := range files {
		if fe.Outcome == OutcomeNotStarted {
			env.skipCanceled(fe)
		}
	}

	m.finish(j, workers)
}

// finish aggregates outcomes into the terminal result. The staging tree is
// released before the terminal state becomes observable; the archive (when
// Complete) lives outside it and is retained.
func (m *Manager) finish(j *Job, workers int) {
	files := j.Files()

	if j.CancelRequested() {
		m.log.Infof("Job %s canceled, %d of %d files resolved", j.ID, resolvedCount(files), len(files))
		m.cleanup(j)
		j.finalize(StateCanceled, canceledResult(j.ID, files, workers), "")
		return
	}

	var (
		errs       []string
		entries    []archive.Entry
		fileInfo   []FileInfo
		totalPages int
		optimized  int
		fromCache  int
	)

	for _, fe := range files {
		if fe.Outcome.Deliverable() {
			entries = append(entries, archive.Entry{
				Name:   fe.SubmittedPath,
				Source: fe.OutputPath,
			})
		}
		switch {
		case fe.Outcome == OutcomeFailed:
			errs = append(errs, fe.SubmittedPath+": "+fe.FailReason)
		case fe.Outcome == OutcomeOcred && fe.FailReason != "":
			// Forgiving delivery: bytes shipped, failure surfaced.
			errs = append(errs, fe.SubmittedPath+": "+fe.FailReason)
		}
		if fe.Optimized {
			optimized++
		}
		if fe.FromCache {
			fromCache++
		}
		totalPages += fe.PageCount
		fileInfo = append(fileInfo, FileInfo{
			Name:      path.Base(fe.SubmittedPath),
			Path:      fe.SubmittedPath,
			PageCount: fe.PageCount,
			SizeMB:    roundMB(fe.SizeBytes),
			Optimized: fe.Optimized,
			FromCache: fe.FromCache,
		})
	}

	if len(entries) == 0 {
		m.log.Errorf("Job %s: no files were processed successfully", j.ID)
		m.cleanup(j)
		j.finalize(StateFailed, &Result{
			Error:     "No files were processed successfully",
			Errors:    errs,
			ProcessID: j.ID,
		}, "")
		return
	}

	zipPath := filepath.Join(m.cfg.Server.UploadDir, "processed_files_"+j.ID+".zip")
	if err := archive.Build(zipPath, entries); err != nil {
		m.log.WithError(err).Errorf("Job %s: archive build failed", j.ID)
		m.cleanup(j)
		j.finalize(StateFailed, &Result{
			Error:     "Failed to assemble the result archive",
			Errors:    errs,
			ProcessID: j.ID,
		}, "")
		return
	}
	if info, err := os.Stat(zipPath); err == nil {
		m.log.Infof("Job %s: archive created, %s", j.ID, humanize.IBytes(uint64(info.Size())))
	}

	result := &Result{
		Message:     "Processing complete",
		DownloadURL: "/download/" + j.ID,
		Errors:      errs,
		FileInfo:    fileInfo,
		TotalPages:  totalPages,
		Stats: &Stats{
			OptimizedFiles: optimized,
			FromCache:      fromCache,
			TotalFiles:     len(files),
			CPUCores:       workers,
		},
		ProcessID: j.ID,
		Success:   true,
	}

	m.cleanup(j)
	j.finalize(StateComplete, result, zipPath)
	m.log.Infof("Job %s complete: %d files, %d from cache, %d optimized, %d errors",
		j.ID, len(files), fromCache, optimized, len(errs))
}

// cleanup removes the job's private directories. The archive lives in the
// upload dir and survives.
func (m *Manager) cleanup(j *Job) {
	if j.stagingRoot != "" {
		if err := os.RemoveAll(j.stagingRoot); err != nil {
			m.log.WithError(err).Warnf("Failed to remove staging root for job %s", j.ID)
		}
	}
	if j.outputRoot != "" {
		if err := os.RemoveAll(j.outputRoot); err != nil {
			m.log.WithError(err).Warnf("Failed to remove output root for job %s", j.ID)
		}
	}
}

// canceledResult still reports how far the job got: files that resolved
// before the signal keep their recorded flags.
func canceledResult(id string, files []*FileEntry, workers int) *Result {
	var optimized, fromCache int
	for _, fe := range files {
		if fe.Optimized {
			optimized++
		}
		if fe.FromCache {
			fromCache++
		}
	}
	return &Result{
		Error:     "Processing was canceled by the user",
		ProcessID: id,
		Stats: &Stats{
			OptimizedFiles: optimized,
			FromCache:      fromCache,
			TotalFiles:     len(files),
			CPUCores:       workers,
		},
	}
}

func resolvedCount(files []*FileEntry) int {
	n := 0
	for _, fe := range files {
		if fe.Outcome != OutcomeNotStarted && fe.Outcome != OutcomeSkipped {
			n++
		}
	}
	return n
}

func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/ocrbatch/internal/cache"
	"github.com/standardbeagle/ocrbatch/internal/fingerprint"
	"github.com/standardbeagle/ocrbatch/internal/pdf"
)

// workerEnv bundles everything a worker needs for one job's files. Workers
// share no mutable state beyond the cache store (serialised by rename
// atomicity) and the job itself (guarded by its lock).
type workerEnv struct {
	job       *Job
	cache     *cache.Store
	optimizer *pdf.Optimizer
	engine    pdf.Engine
	timeout   time.Duration
	forgiving bool
	log       *logrus.Logger
}

// process resolves one file to a terminal outcome. The decision tree:
// cancel check, cache lookup, optional optimisation, engine invocation,
// then cache admission on the Ocred/AlreadyOcred branches only.
func (w *workerEnv) process(ctx context.Context, fe *FileEntry, workerID int) {
	name := path.Base(fe.SubmittedPath)
	logger := w.log.WithFields(logrus.Fields{
		"job":    w.job.ID,
		"file":   fe.SubmittedPath,
		"worker": workerID,
	})

	if w.job.CancelRequested() || ctx.Err() != nil {
		w.skipCanceled(fe)
		return
	}

	fp, err := fingerprint.File(fe.StagedPath)
	if err != nil {
		logger.WithError(err).Error("Fingerprint failed")
		w.fail(fe, fmt.Sprintf("fingerprint: %v", err))
		return
	}
	w.job.setEntry(fe, func(e *FileEntry) { e.Fingerprint = fp })

	if cached, ok := w.cache.Lookup(fp, name); ok {
		if err := pdf.CopyFile(cached, fe.OutputPath); err == nil {
			logger.Info("Cache hit")
			w.job.setEntry(fe, func(e *FileEntry) {
				e.Outcome = OutcomeCacheHit
				e.FromCache = true
			})
			return
		}
		// Entry evicted between lookup and copy; fall through to a miss.
		logger.Warn("Cache entry vanished during copy, treating as miss")
	} else {
		logger.Info("Cache miss")
	}

	scratch, err := os.MkdirTemp("", "ocrbatch-work-*")
	if err != nil {
		w.fail(fe, fmt.Sprintf("scratch dir: %v", err))
		return
	}
	defer os.RemoveAll(scratch)

	workInput := filepath.Join(scratch, name)
	optimized, err := w.optimizer.Optimize(ctx, fe.StagedPath, workInput)
	if err != nil {
		w.fail(fe, fmt.Sprintf("prepare input: %v", err))
		return
	}
	w.job.setEntry(fe, func(e *FileEntry) { e.Optimized = optimized })

	// Last look before committing to the expensive part.
	if w.job.CancelRequested() {
		w.skipCanceled(fe)
		return
	}

	octx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res := w.engine.Run(octx, workInput, fe.OutputPath)
	switch res.Kind {
	case pdf.ResultOK:
		w.admit(fp, name, fe.OutputPath, logger)
		w.job.setEntry(fe, func(e *FileEntry) { e.Outcome = OutcomeOcred })
		logger.Info("OCR complete")

	case pdf.ResultAlreadyHasText:
		if err := pdf.CopyFile(workInput, fe.OutputPath); err != nil {
			w.fail(fe, fmt.Sprintf("copy through: %v", err))
			return
		}
		w.admit(fp, name, fe.OutputPath, logger)
		w.job.setEntry(fe, func(e *FileEntry) {
			e.Outcome = OutcomeAlreadyOcred
			e.FailReason = "File already has OCR"
		})
		logger.Info("File already has OCR, copied through")

	case pdf.ResultError:
		w.handleEngineError(fe, res.Err, octx, logger)
	}
}

func (w *workerEnv) handleEngineError(fe *FileEntry, engineErr error, octx context.Context, logger *logrus.Entry) {
	if w.job.CancelRequested() {
		w.skipCanceled(fe)
		return
	}

	if errors.Is(octx.Err(), context.DeadlineExceeded) {
		logger.Error("OCR timed out")
		w.fail(fe, fmt.Sprintf("timeout after %s", w.timeout))
		return
	}

	logger.WithError(engineErr).Error("OCR failed")
	if !w.forgiving {
		w.fail(fe, engineErr.Error())
		return
	}

	// Forgiving policy: deliver the original bytes so the client gets
	// something usable, and keep the failure as an annotation.
	if err := pdf.CopyFile(fe.StagedPath, fe.OutputPath); err != nil {
		w.fail(fe, fmt.Sprintf("%v (copy failed: %v)", engineErr, err))
		return
	}
	w.job.setEntry(fe, func(e *FileEntry) {
		e.Outcome = OutcomeOcred
		e.FailReason = engineErr.Error()
	})
	logger.Warn("Delivered original bytes after OCR failure")
}

// admit caches an output. Cache trouble never fails the file.
func (w *workerEnv) admit(fp, name, outputPath string, logger *logrus.Entry) {
	if err := w.cache.Admit(fp, name, outputPath); err != nil {
		logger.WithError(err).Warn("Cache admission failed")
		return
	}
	logger.Infof("Saved %s to cache", name)
}

func (w *workerEnv) fail(fe *FileEntry, reason string) {
	w.job.setEntry(fe, func(e *FileEntry) {
		e.Outcome = OutcomeFailed
		e.FailReason = reason
	})
}

func (w *workerEnv) skipCanceled(fe *FileEntry) {
	w.job.setEntry(fe, func(e *FileEntry) {
		e.Outcome = OutcomeSkipped
		e.FailReason = "canceled"
	})
}

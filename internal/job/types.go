// Package job owns the batch OCR jobs: registry, lifecycle, worker pool,
// and result aggregation.
package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the job lifecycle position. Transitions only move forward:
// Pending -> Running -> (Canceling ->) Complete | Failed | Canceled.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCanceling
	StateComplete
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCanceling:
		return "canceling"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCanceled
}

// Outcome is the terminal disposition of one file. Optimisation and cache
// provenance are recorded as flags on the entry, since an optimised file
// still ends in exactly one of these.
type Outcome int

const (
	OutcomeNotStarted Outcome = iota
	OutcomeCacheHit
	OutcomeOcred
	OutcomeAlreadyOcred
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotStarted:
		return "not_started"
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeOcred:
		return "ocred"
	case OutcomeAlreadyOcred:
		return "already_ocred"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Deliverable reports whether the file produced an output worth archiving.
func (o Outcome) Deliverable() bool {
	switch o {
	case OutcomeCacheHit, OutcomeOcred, OutcomeAlreadyOcred:
		return true
	default:
		return false
	}
}

// FileEntry tracks one submitted file through the pipeline. Progress fields
// (Outcome and friends) are mutated by exactly one worker, under the job's
// lock so status snapshots see consistent values.
type FileEntry struct {
	SubmittedPath string // submitter-relative, forward slashes
	StagedPath    string // absolute, under the job's staging root
	OutputPath    string // absolute, under the job's output root

	SizeBytes   int64
	PageCount   int
	Fingerprint string

	Outcome    Outcome
	Optimized  bool
	FromCache  bool
	FailReason string // failure reason or non-fatal annotation
}

// Job is one batch submission. All mutation happens through methods holding
// mu; the cancel signal is a separate atomic so workers can poll it without
// contending with status reads.
type Job struct {
	ID      string
	OwnerID string

	mu          sync.RWMutex
	state       State
	files       []*FileEntry
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	result      *Result
	archivePath string
	stagingRoot string
	outputRoot  string

	cancelFlag atomic.Bool
	cancelCtx  context.Context
	cancelFunc context.CancelFunc
}

func newJob(id, owner string, files []*FileEntry, stagingRoot, outputRoot string) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:          id,
		OwnerID:     owner,
		state:       StatePending,
		files:       files,
		submittedAt: time.Now(),
		stagingRoot: stagingRoot,
		outputRoot:  outputRoot,
		cancelCtx:   ctx,
		cancelFunc:  cancel,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// begin moves the job from Pending to Running. It reports false when
// cancellation won the race, in which case the job is already Canceled.
func (j *Job) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending || j.cancelFlag.Load() {
		return false
	}
	j.state = StateRunning
	j.startedAt = time.Now()
	return true
}

// RequestCancel sets the cancel signal. It reports false when the job is
// already terminal. A Running job moves to Canceling; a Pending job has
// nothing in flight and becomes Canceled immediately, terminal result
// included. The coordinator releases the staging tree when it observes
// the canceled state.
func (j *Job) RequestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.cancelFlag.Store(true)
	j.cancelFunc()
	switch j.state {
	case StateRunning:
		j.state = StateCanceling
	case StatePending:
		j.state = StateCanceled
		j.result = canceledResult(j.ID, j.files, 0)
		j.finishedAt = time.Now()
	}
	return true
}

// CancelRequested reports whether cancellation has been signalled. Workers
// check this at the top of each file's decision tree and again before
// launching the engine.
func (j *Job) CancelRequested() bool {
	return j.cancelFlag.Load()
}

// Context is canceled when the job is canceled; engine subprocesses run
// under it so cancellation kills them promptly.
func (j *Job) Context() context.Context {
	return j.cancelCtx
}

// Files returns the entries in submission order. The slice itself is never
// mutated after creation.
func (j *Job) Files() []*FileEntry {
	return j.files
}

// SubmittedAt returns the submission timestamp.
func (j *Job) SubmittedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.submittedAt
}

// Result returns the terminal result, or nil while the job is live.
func (j *Job) Result() *Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// ArchivePath returns the assembled archive location; empty unless Complete.
func (j *Job) ArchivePath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.archivePath
}

// setEntry applies fn to the entry under the job lock.
func (j *Job) setEntry(fe *FileEntry, fn func(*FileEntry)) {
	j.mu.Lock()
	fn(fe)
	j.mu.Unlock()
}

// finalize records the terminal result, archive path, and state in one
// critical section so no observer sees a terminal state without its result.
func (j *Job) finalize(s State, result *Result, archivePath string) {
	j.mu.Lock()
	j.state = s
	j.result = result
	j.archivePath = archivePath
	j.finishedAt = time.Now()
	j.mu.Unlock()
}

// Result is the terminal JSON document served by process-status.
type Result struct {
	Message     string     `json:"message,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	Errors      []string   `json:"errors"`
	FileInfo    []FileInfo `json:"file_info,omitempty"`
	TotalPages  int        `json:"total_pages"`
	Stats       *Stats     `json:"stats,omitempty"`
	ProcessID   string     `json:"process_id"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
}

// FileInfo is the per-file slice of the terminal result.
type FileInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	PageCount int     `json:"page_count"`
	SizeMB    float64 `json:"size_mb"`
	Optimized bool    `json:"optimized"`
	FromCache bool    `json:"from_cache"`
}

// Stats aggregates counts over the whole job.
type Stats struct {
	OptimizedFiles int `json:"optimized_files"`
	FromCache      int `json:"from_cache"`
	TotalFiles     int `json:"total_files"`
	CPUCores       int `json:"cpu_cores"`
}

// LiveStatus is the in-progress view served by process-status.
type LiveStatus struct {
	Message         string  `json:"message"`
	ProcessID       string  `json:"process_id"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	CancelRequested bool    `json:"cancel_requested"`
}

// Status is either a live view or a terminal result, never both.
type Status struct {
	Live     *LiveStatus
	Terminal *Result
}

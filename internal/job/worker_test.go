package job

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ocrbatch/internal/cache"
	"github.com/standardbeagle/ocrbatch/internal/fingerprint"
	"github.com/standardbeagle/ocrbatch/internal/pdf"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubEngine lets tests script the OCR outcome per invocation.
type stubEngine struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, in, out string) pdf.Result
}

func (s *stubEngine) Run(ctx context.Context, in, out string) pdf.Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, in, out)
}

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// okEngine copies the input with a marker prefix, the way a real run
// produces a new file at the output path.
func okEngine() *stubEngine {
	return &stubEngine{fn: func(_ context.Context, in, out string) pdf.Result {
		data, err := os.ReadFile(in)
		if err != nil {
			return pdf.Result{Kind: pdf.ResultError, Err: err}
		}
		if err := os.WriteFile(out, append([]byte("OCR::"), data...), 0o644); err != nil {
			return pdf.Result{Kind: pdf.ResultError, Err: err}
		}
		return pdf.Result{Kind: pdf.ResultOK}
	}}
}

func failingEngine(msg string) *stubEngine {
	return &stubEngine{fn: func(context.Context, string, string) pdf.Result {
		return pdf.Result{Kind: pdf.ResultError, Err: errors.New(msg)}
	}}
}

type workerFixture struct {
	env   *workerEnv
	entry *FileEntry
	store *cache.Store
}

func newWorkerFixture(t *testing.T, engine pdf.Engine, forgiving bool) *workerFixture {
	t.Helper()
	log := testLogger()

	stagingRoot := t.TempDir()
	outputRoot := t.TempDir()
	staged := filepath.Join(stagingRoot, "scan.pdf")
	require.NoError(t, os.WriteFile(staged, []byte("original bytes"), 0o644))

	entry := &FileEntry{
		SubmittedPath: "scan.pdf",
		StagedPath:    staged,
		OutputPath:    filepath.Join(outputRoot, "scan.pdf"),
		SizeBytes:     int64(len("original bytes")),
	}

	store, err := cache.New(filepath.Join(t.TempDir(), "cache"), 24*time.Hour, 1<<30, log)
	require.NoError(t, err)

	j := newJob("job1", "alice", []*FileEntry{entry}, stagingRoot, outputRoot)
	env := &workerEnv{
		job:   j,
		cache: store,
		optimizer: &pdf.Optimizer{
			Ghostscript:     "gs",
			ThresholdBytes:  1 << 30,
			MinReductionPct: 10,
			Log:             log,
		},
		engine:    engine,
		timeout:   5 * time.Second,
		forgiving: forgiving,
		log:       log,
	}
	return &workerFixture{env: env, entry: entry, store: store}
}

func TestWorker_OcrSuccessAdmitsToCache(t *testing.T) {
	engine := okEngine()
	f := newWorkerFixture(t, engine, true)

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeOcred, f.entry.Outcome)
	assert.Empty(t, f.entry.FailReason)
	assert.Equal(t, 1, engine.callCount())

	out, err := os.ReadFile(f.entry.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("OCR::original bytes"), out)

	_, ok := f.store.Lookup(f.entry.Fingerprint, "scan.pdf")
	assert.True(t, ok, "successful output must be admitted")
}

func TestWorker_CacheHitSkipsEngine(t *testing.T) {
	engine := okEngine()
	f := newWorkerFixture(t, engine, true)

	fp, err := fingerprint.File(f.entry.StagedPath)
	require.NoError(t, err)

	cached := filepath.Join(t.TempDir(), "cached.pdf")
	require.NoError(t, os.WriteFile(cached, []byte("previously ocred"), 0o644))
	require.NoError(t, f.store.Admit(fp, "scan.pdf", cached))

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeCacheHit, f.entry.Outcome)
	assert.True(t, f.entry.FromCache)
	assert.Equal(t, 0, engine.callCount())

	out, err := os.ReadFile(f.entry.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("previously ocred"), out)
}

func TestWorker_AlreadyHasTextCopiesThrough(t *testing.T) {
	engine := &stubEngine{fn: func(context.Context, string, string) pdf.Result {
		return pdf.Result{Kind: pdf.ResultAlreadyHasText}
	}}
	f := newWorkerFixture(t, engine, true)

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeAlreadyOcred, f.entry.Outcome)
	assert.Equal(t, "File already has OCR", f.entry.FailReason)

	out, err := os.ReadFile(f.entry.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("original bytes"), out)

	_, ok := f.store.Lookup(f.entry.Fingerprint, "scan.pdf")
	assert.True(t, ok, "already-ocred files are cached too")
}

func TestWorker_EngineFailureForgivingDeliversOriginal(t *testing.T) {
	f := newWorkerFixture(t, failingEngine("ocr engine: corrupted xref"), true)

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeOcred, f.entry.Outcome)
	assert.Equal(t, "ocr engine: corrupted xref", f.entry.FailReason)

	out, err := os.ReadFile(f.entry.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("original bytes"), out)

	_, ok := f.store.Lookup(f.entry.Fingerprint, "scan.pdf")
	assert.False(t, ok, "failed runs never pollute the cache")
}

func TestWorker_EngineFailureStrictFails(t *testing.T) {
	f := newWorkerFixture(t, failingEngine("ocr engine: corrupted xref"), false)

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeFailed, f.entry.Outcome)
	assert.Equal(t, "ocr engine: corrupted xref", f.entry.FailReason)

	_, err := os.Stat(f.entry.OutputPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWorker_TimeoutFails(t *testing.T) {
	engine := &stubEngine{fn: func(ctx context.Context, _, _ string) pdf.Result {
		<-ctx.Done()
		return pdf.Result{Kind: pdf.ResultError, Err: ctx.Err()}
	}}
	f := newWorkerFixture(t, engine, true)
	f.env.timeout = 20 * time.Millisecond

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeFailed, f.entry.Outcome)
	assert.Contains(t, f.entry.FailReason, "timeout after")
}

func TestWorker_CancelBeforeStartSkips(t *testing.T) {
	engine := okEngine()
	f := newWorkerFixture(t, engine, true)
	f.env.job.RequestCancel()

	f.env.process(f.env.job.Context(), f.entry, 0)

	assert.Equal(t, OutcomeSkipped, f.entry.Outcome)
	assert.Equal(t, 0, engine.callCount())
}

func TestWorker_FingerprintFailureFails(t *testing.T) {
	f := newWorkerFixture(t, okEngine(), true)
	require.NoError(t, os.Remove(f.entry.StagedPath))

	f.env.process(context.Background(), f.entry, 0)

	assert.Equal(t, OutcomeFailed, f.entry.Outcome)
	assert.Contains(t, f.entry.FailReason, "fingerprint")
}

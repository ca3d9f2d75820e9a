package job

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/ocrbatch/internal/cache"
	"github.com/standardbeagle/ocrbatch/internal/config"
	svcerrors "github.com/standardbeagle/ocrbatch/internal/errors"
	"github.com/standardbeagle/ocrbatch/internal/pdf"
)

// Upload is one file of a submission, decoupled from the HTTP layer so the
// manager can be driven directly in tests.
type Upload struct {
	RelPath string // submitter-chosen relative path
	Size    int64
	Open    func() (io.ReadCloser, error)
}

// Manager owns every job in the process: it stages uploads, launches
// coordinators, and answers status, cancel, and download queries.
type Manager struct {
	cfg       *config.Config
	log       *logrus.Logger
	registry  *Registry
	cache     *cache.Store
	optimizer *pdf.Optimizer
	engine    pdf.Engine
	progress  *Progress
}

// NewManager wires the manager from configuration. It creates the upload
// directory and cache root, and runs a cache eviction pass on startup when
// configured to.
func NewManager(cfg *config.Config, engine pdf.Engine, log *logrus.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return nil, svcerrors.New(svcerrors.ErrorTypeInternal, "create upload dir", err)
	}

	store, err := cache.New(cfg.Cache.Root, cfg.MaxAge(), cfg.MaxTotalBytes(), log)
	if err != nil {
		return nil, svcerrors.New(svcerrors.ErrorTypeInternal, "open cache", err)
	}

	m := &Manager{
		cfg:      cfg,
		log:      log,
		registry: NewRegistry(),
		cache:    store,
		optimizer: &pdf.Optimizer{
			Ghostscript:     cfg.Optimize.Ghostscript,
			ThresholdBytes:  cfg.OptimizeThresholdBytes(),
			MinReductionPct: cfg.Optimize.MinReductionPct,
			Log:             log,
		},
		engine:   engine,
		progress: NewProgress(cfg.HangWarning()),
	}

	if cfg.Cache.EvictOnStart {
		if removed, freed, err := store.Evict(time.Now()); err != nil {
			log.WithError(err).Warn("Startup cache eviction failed")
		} else if removed > 0 {
			log.Infof("Cache cleanup: removed %d entries (%s)", removed, humanize.IBytes(uint64(freed)))
		}
	}

	return m, nil
}

// Progress returns the process-wide progress tracker.
func (m *Manager) Progress() *Progress { return m.progress }

// Cache returns the underlying cache store.
func (m *Manager) Cache() *cache.Store { return m.cache }

// Submit validates and stages the uploads, registers a new job, and starts
// processing on a background goroutine. It returns as soon as staging and
// page counting are done; all observation happens through Status.
func (m *Manager) Submit(owner string, uploads []Upload) (*Job, error) {
	if len(uploads) == 0 {
		return nil, svcerrors.Newf(svcerrors.ErrorTypeBadInput, "submit", "no files provided")
	}

	valid := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		if !m.allowed(u.RelPath) {
			m.log.Warnf("Skipping file with invalid extension: %s", u.RelPath)
			continue
		}
		valid = append(valid, u)
	}
	if len(valid) == 0 {
		return nil, svcerrors.Newf(svcerrors.ErrorTypeNoValidInput, "submit",
			"no valid PDF files provided, only PDF files are accepted")
	}

	id := newJobID()
	m.log.Infof("Starting to process %d files (job %s)", len(valid), id)

	stagingRoot, err := os.MkdirTemp("", "ocrbatch-staging-*")
	if err != nil {
		return nil, svcerrors.New(svcerrors.ErrorTypeInternal, "create staging root", err)
	}
	outputRoot, err := os.MkdirTemp("", "ocrbatch-output-*")
	if err != nil {
		os.RemoveAll(stagingRoot)
		return nil, svcerrors.New(svcerrors.ErrorTypeInternal, "create output root", err)
	}

	files, err := m.stage(stagingRoot, outputRoot, valid)
	if err != nil {
		os.RemoveAll(stagingRoot)
		os.RemoveAll(outputRoot)
		return nil, err
	}

	j := newJob(id, owner, files, stagingRoot, outputRoot)
	m.registry.Add(j)

	// One retained result per owner: a fresh submission releases the
	// owner's finished jobs and their archives.
	for _, old := range m.registry.PruneTerminal(owner, id) {
		if p := old.ArchivePath(); p != "" {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				m.log.WithError(err).Warnf("Failed to remove archive for pruned job %s", old.ID)
			}
		}
		m.log.Infof("Pruned finished job %s for owner", old.ID)
	}

	go m.run(j)
	return j, nil
}

// stage copies uploads into the staging tree, preserving the submitter's
// folder layout, and records size and page count for each file.
func (m *Manager) stage(stagingRoot, outputRoot string, uploads []Upload) ([]*FileEntry, error) {
	files := make([]*FileEntry, 0, len(uploads))
	seen := make(map[string]bool, len(uploads))

	for i, u := range uploads {
		rel, err := SanitizeRelPath(u.RelPath)
		if err != nil {
			return nil, err
		}
		// Identical submitted paths collide on the same suffix too, so
		// vary the tag input until the staged path is actually free.
		base := rel
		for n := 1; seen[rel]; n++ {
			rel = disambiguate(base, uniqueSuffix(fmt.Sprintf("%s#%d", u.RelPath, n)))
		}
		seen[rel] = true

		staged := filepath.Join(stagingRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
			return nil, svcerrors.New(svcerrors.ErrorTypeTransientIO, "stage", err).WithFile(rel)
		}

		if err := saveUpload(u, staged); err != nil {
			return nil, svcerrors.New(svcerrors.ErrorTypeTransientIO, "stage", err).WithFile(rel)
		}

		info, err := os.Stat(staged)
		if err != nil {
			return nil, svcerrors.New(svcerrors.ErrorTypeTransientIO, "stage", err).WithFile(rel)
		}

		output := filepath.Join(outputRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return nil, svcerrors.New(svcerrors.ErrorTypeTransientIO, "stage", err).WithFile(rel)
		}

		pages := pdf.PageCount(staged, m.log)
		m.log.Infof("Saved file %d/%d: %s (%s, %d pages)",
			i+1, len(uploads), rel, humanize.IBytes(uint64(info.Size())), pages)

		files = append(files, &FileEntry{
			SubmittedPath: rel,
			StagedPath:    staged,
			OutputPath:    output,
			SizeBytes:     info.Size(),
			PageCount:     pages,
		})
	}

	return files, nil
}

func saveUpload(u Upload, dst string) error {
	src, err := u.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// allowed applies the extension whitelist and the include/exclude patterns
// to a submitted relative path.
func (m *Manager) allowed(relPath string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(relPath)), ".")
	ok := false
	for _, allowed := range m.cfg.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}

	normalized := strings.ReplaceAll(relPath, "\\", "/")
	if len(m.cfg.Upload.Include) > 0 {
		matched := false
		for _, pat := range m.cfg.Upload.Include {
			if hit, err := doublestar.Match(pat, normalized); err == nil && hit {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range m.cfg.Upload.Exclude {
		if hit, err := doublestar.Match(pat, normalized); err == nil && hit {
			return false
		}
	}
	return true
}

// Status returns either a live view or the terminal result for a job.
func (m *Manager) Status(id string) (Status, error) {
	j, ok := m.registry.Get(id)
	if !ok {
		return Status{}, svcerrors.Newf(svcerrors.ErrorTypeNotFound, "status", "process ID not found")
	}

	if result := j.Result(); result != nil {
		return Status{Terminal: result}, nil
	}

	return Status{Live: &LiveStatus{
		Message:         "Processing in progress",
		ProcessID:       j.ID,
		ElapsedSeconds:  time.Since(j.SubmittedAt()).Seconds(),
		CancelRequested: j.CancelRequested(),
	}}, nil
}

// Cancel signals cancellation. It never waits for workers; the job reaches
// a terminal state once in-flight files resolve.
func (m *Manager) Cancel(id string) error {
	j, ok := m.registry.Get(id)
	if !ok {
		return svcerrors.Newf(svcerrors.ErrorTypeNotFound, "cancel", "process ID not found")
	}
	if !j.RequestCancel() {
		return svcerrors.Newf(svcerrors.ErrorTypeAlreadyTerminal, "cancel", "process already completed")
	}
	m.log.Infof("Cancel requested for job %s", id)
	return nil
}

// ArchivePath returns the archive location for a Complete job.
func (m *Manager) ArchivePath(id string) (string, error) {
	j, ok := m.registry.Get(id)
	if !ok {
		return "", svcerrors.Newf(svcerrors.ErrorTypeNotFound, "download", "no processed files found")
	}
	if j.State() != StateComplete {
		return "", svcerrors.Newf(svcerrors.ErrorTypeNotFound, "download", "no processed files found")
	}
	return j.ArchivePath(), nil
}

// LastJobFor resolves an owner's most recent job for the legacy no-id
// download path.
func (m *Manager) LastJobFor(owner string) (*Job, bool) {
	return m.registry.LastFor(owner)
}

// ClearCache deletes all cache entries, best effort.
func (m *Manager) ClearCache() (int, error) {
	return m.cache.Clear()
}

// newJobID returns a 128-bit random id rendered as 32 hex characters.
func newJobID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

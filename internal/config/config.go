package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = ".ocrbatch.kdl"

type Config struct {
	Server   Server
	Upload   Upload
	Cache    Cache
	Optimize Optimize
	OCR      OCR
	Log      Log
}

type Server struct {
	Addr      string
	UploadDir string // holds per-job archives processed_files_<id>.zip
}

type Upload struct {
	MaxBytes          int64
	AllowedExtensions []string
	Include           []string // doublestar patterns on submitted relative paths; empty = everything
	Exclude           []string
}

type Cache struct {
	Root         string
	MaxAgeDays   int
	MaxTotalMB   int64
	EvictOnStart bool
}

type Optimize struct {
	ThresholdMB     int64   // files at or above are downsampled first
	MinReductionPct float64 // optimised copy adopted only when at least this much smaller
	Ghostscript     string
}

type OCR struct {
	Command           string
	WorkerCap         int
	PerFileTimeoutSec int
	HangWarningSec    int
	// Forgiving keeps the original bytes flowing to the output when the
	// engine fails on a file, reporting the failure as an annotation
	// instead of dropping the file from the archive.
	Forgiving bool
}

type Log struct {
	Level        string
	RingCapacity int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:      ":8080",
			UploadDir: "uploads",
		},
		Upload: Upload{
			MaxBytes:          3 * 512 * 1024 * 1024, // 1.5 GiB combined payload
			AllowedExtensions: []string{"pdf"},
			Include:           []string{},
			Exclude:           []string{},
		},
		Cache: Cache{
			Root:         "ocr_cache",
			MaxAgeDays:   7,
			MaxTotalMB:   5000,
			EvictOnStart: true,
		},
		Optimize: Optimize{
			ThresholdMB:     100,
			MinReductionPct: 10,
			Ghostscript:     "gs",
		},
		OCR: OCR{
			Command:           "ocrmypdf",
			WorkerCap:         4,
			PerFileTimeoutSec: 1800,
			HangWarningSec:    120,
			Forgiving:         true,
		},
		Log: Log{
			Level:        "info",
			RingCapacity: 100,
		},
	}
}

// Load reads configuration from the given KDL file path, falling back to
// defaults when the file does not exist. An empty path means
// DefaultConfigFile in the working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	// Resolve directories relative to the config file location so the
	// service behaves the same regardless of the invocation directory.
	base := filepath.Dir(path)
	cfg.Server.UploadDir = resolve(base, cfg.Server.UploadDir)
	cfg.Cache.Root = resolve(base, cfg.Cache.Root)

	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// MaxAge returns the cache age budget as a duration.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeDays) * 24 * time.Hour
}

// MaxTotalBytes returns the cache size budget in bytes.
func (c *Config) MaxTotalBytes() int64 {
	return c.Cache.MaxTotalMB * 1024 * 1024
}

// OptimizeThresholdBytes returns the optimisation threshold in bytes.
func (c *Config) OptimizeThresholdBytes() int64 {
	return c.Optimize.ThresholdMB * 1024 * 1024
}

// PerFileTimeout returns the per-file OCR timeout as a duration.
func (c *Config) PerFileTimeout() time.Duration {
	return time.Duration(c.OCR.PerFileTimeoutSec) * time.Second
}

// HangWarning returns the stalled-progress warning threshold as a duration.
func (c *Config) HangWarning() time.Duration {
	return time.Duration(c.OCR.HangWarningSec) * time.Second
}

package config

import (
	"fmt"
	"strings"
)

// Validate checks that configuration values are usable before the service
// starts. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Server.UploadDir == "" {
		return fmt.Errorf("upload_dir must not be empty")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed_extensions must not be empty")
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if ext == "" || strings.ContainsAny(ext, "./\\") {
			return fmt.Errorf("allowed extension %q must be a bare suffix like \"pdf\"", ext)
		}
	}

	if c.Cache.Root == "" {
		return fmt.Errorf("cache root must not be empty")
	}
	if c.Cache.MaxAgeDays < 1 {
		return fmt.Errorf("cache max_age_days must be >= 1, got %d", c.Cache.MaxAgeDays)
	}
	if c.Cache.MaxTotalMB < 1 {
		return fmt.Errorf("cache max_total_mb must be >= 1, got %d", c.Cache.MaxTotalMB)
	}

	if c.Optimize.ThresholdMB < 1 {
		return fmt.Errorf("optimize threshold_mb must be >= 1, got %d", c.Optimize.ThresholdMB)
	}
	if c.Optimize.MinReductionPct < 0 || c.Optimize.MinReductionPct > 100 {
		return fmt.Errorf("optimize min_reduction_pct must be between 0 and 100, got %v", c.Optimize.MinReductionPct)
	}
	if c.Optimize.Ghostscript == "" {
		return fmt.Errorf("ghostscript command must not be empty")
	}

	if c.OCR.Command == "" {
		return fmt.Errorf("ocr command must not be empty")
	}
	if c.OCR.WorkerCap < 1 {
		return fmt.Errorf("worker_cap must be >= 1, got %d", c.OCR.WorkerCap)
	}
	if c.OCR.PerFileTimeoutSec < 1 {
		return fmt.Errorf("per_file_timeout_seconds must be >= 1, got %d", c.OCR.PerFileTimeoutSec)
	}
	if c.OCR.HangWarningSec < 1 {
		return fmt.Errorf("hang_warning_seconds must be >= 1, got %d", c.OCR.HangWarningSec)
	}

	if c.Log.RingCapacity < 1 {
		return fmt.Errorf("log ring_capacity must be >= 1, got %d", c.Log.RingCapacity)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

package pdf

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

// Optimizer downsamples large PDFs before OCR so the engine spends its time
// on text, not on megapixel scans.
type Optimizer struct {
	Ghostscript     string  // gs binary, default "gs"
	ThresholdBytes  int64   // inputs below this size are copied through untouched
	MinReductionPct float64 // downsampled copy adopted only when at least this much smaller
	Log             *logrus.Logger
}

// Optimize writes either a downsampled or a verbatim copy of inputPath to
// outputPath and reports whether the downsampled variant was adopted.
//
// Ghostscript failure is non-fatal: the original bytes are copied through
// and a warning is logged. The returned error is only non-nil when even the
// fallback copy fails.
func (o *Optimizer) Optimize(ctx context.Context, inputPath, outputPath string) (bool, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return false, fmt.Errorf("optimize stat %s: %w", inputPath, err)
	}

	if info.Size() < o.ThresholdBytes {
		return false, CopyFile(inputPath, outputPath)
	}

	o.Log.Infof("File size %s exceeds %s threshold, optimizing before OCR",
		humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(o.ThresholdBytes)))

	tmp := outputPath + ".opt"
	defer os.Remove(tmp)

	gs := o.Ghostscript
	if gs == "" {
		gs = "gs"
	}
	cmd := exec.CommandContext(ctx, gs,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/ebook",
		"-dNOPAUSE", "-dQUIET", "-dBATCH",
		"-sOutputFile="+tmp,
		inputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		o.Log.WithError(err).Warnf("PDF optimization failed, using original: %s", tail(string(out), 300))
		return false, CopyFile(inputPath, outputPath)
	}

	optInfo, err := os.Stat(tmp)
	if err != nil {
		o.Log.WithError(err).Warn("Ghostscript reported success but produced no output, using original")
		return false, CopyFile(inputPath, outputPath)
	}

	reduction := float64(info.Size()-optInfo.Size()) / float64(info.Size()) * 100
	if reduction < o.MinReductionPct {
		o.Log.Infof("Optimization reduced size by only %.1f%%, using original", reduction)
		return false, CopyFile(inputPath, outputPath)
	}

	if err := os.Rename(tmp, outputPath); err != nil {
		// Scratch and output may sit on different filesystems.
		if copyErr := CopyFile(tmp, outputPath); copyErr != nil {
			return false, fmt.Errorf("adopt optimized copy: %w", copyErr)
		}
	}
	o.Log.Infof("Optimization complete: %s -> %s (reduced by %.1f%%)",
		humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(optInfo.Size())), reduction)
	return true, nil
}

// CopyFile copies src to dst through a temp file in dst's directory, so a
// crashed copy never leaves a truncated destination.
func CopyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy open %s: %w", src, err)
	}
	defer f.Close()
	if err := atomic.WriteFile(dst, f); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

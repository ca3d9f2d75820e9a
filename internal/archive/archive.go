// Package archive assembles the per-job ZIP returned to the client.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zip"
)

// Entry names one file to include: Name is the submitter-relative path used
// inside the archive (forward-slash segments, no leading slash), Source is
// the absolute path of the bytes to store.
type Entry struct {
	Name   string
	Source string
}

// Build writes a ZIP at zipPath containing the entries in the order given,
// recreating the submitter's folder layout through the entry names. Any
// writer error is fatal for the archive: a half-written ZIP is removed
// rather than left behind.
func Build(zipPath string, entries []Entry) (err error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", zipPath, err)
	}

	defer func() {
		if err != nil {
			out.Close()
			os.Remove(zipPath)
		}
	}()

	zw := zip.NewWriter(out)
	for _, e := range entries {
		if err = addEntry(zw, e); err != nil {
			zw.Close()
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, e Entry) error {
	name := path.Clean(e.Name)
	if name == "." || name == "" {
		return fmt.Errorf("empty archive entry name for %s", e.Source)
	}

	f, err := os.Open(e.Source)
	if err != nil {
		return fmt.Errorf("open archive source %s: %w", e.Source, err)
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}

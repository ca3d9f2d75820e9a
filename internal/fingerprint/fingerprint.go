// Package fingerprint derives the content address used to index the OCR
// result cache.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ContentHashLimit is the file size at and above which the fingerprint is
// computed from size and mtime alone. Hashing the full content of very
// large files would cost more than the OCR run it is trying to avoid.
// Known trade-off: a file of this size edited in place without changing
// size and mtime will produce a stale cache hit.
const ContentHashLimit = 100 * 1024 * 1024

// File returns a stable hexadecimal fingerprint for the file at path.
//
// The digest covers the byte string "<size>_<mtimeNanos>" and, for files
// below ContentHashLimit, the full file contents. It fails only when the
// file cannot be read.
func File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint stat %s: %w", path, err)
	}

	h := md5.New()
	fmt.Fprintf(h, "%d_%d", info.Size(), info.ModTime().UnixNano())

	if info.Size() < ContentHashLimit {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("fingerprint open %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("fingerprint read %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

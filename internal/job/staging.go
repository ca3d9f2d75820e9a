package job

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	svcerrors "github.com/standardbeagle/ocrbatch/internal/errors"
)

// Characters replaced inside a path segment. Separators are handled by the
// split; the rest are names that are hostile on at least one filesystem.
const hostileChars = "\\:*?\"<>|"

// SanitizeRelPath validates a submitter-chosen relative path and returns a
// normalised form with forward-slash segments. Traversal segments are
// rejected outright rather than cleaned away, so a crafted name can never
// escape the staging root.
func SanitizeRelPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		if seg == ".." {
			return "", svcerrors.Newf(svcerrors.ErrorTypeBadInput, "sanitize",
				"path traversal in %q", p)
		}
		clean := sanitizeSegment(seg)
		if clean == "" {
			return "", svcerrors.Newf(svcerrors.ErrorTypeBadInput, "sanitize",
				"unusable path segment %q in %q", seg, p)
		}
		out = append(out, clean)
	}

	if len(out) == 0 {
		return "", svcerrors.Newf(svcerrors.ErrorTypeBadInput, "sanitize",
			"empty path after sanitization: %q", p)
	}

	return strings.Join(out, "/"), nil
}

func sanitizeSegment(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(hostileChars, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.TrimSpace(b.String())
	if strings.Trim(clean, ".") == "" {
		return ""
	}
	return clean
}

// uniqueSuffix derives a short stable tag from the original submitted path,
// used to keep two uploads apart when their sanitised paths collide.
func uniqueSuffix(submittedPath string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(submittedPath)))
}

// disambiguate inserts the suffix before the extension:
// "a/b/scan.pdf" -> "a/b/scan_1a2b3c4d.pdf".
func disambiguate(relPath, suffix string) string {
	dot := strings.LastIndex(relPath, ".")
	slash := strings.LastIndex(relPath, "/")
	if dot <= slash {
		return relPath + "_" + suffix
	}
	return relPath[:dot] + "_" + suffix + relPath[dot:]
}

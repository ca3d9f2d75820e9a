// Package pdf wraps the external collaborators of the OCR pipeline: page
// counting, ghostscript downsampling, and the OCR engine subprocess.
package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

// PageCount returns the number of pages in the PDF at path. Page counts are
// progress metadata only, so failures degrade to 0 with a warning instead
// of blocking processing.
func PageCount(path string, log *logrus.Logger) int {
	n, err := api.PageCountFile(path)
	if err != nil {
		log.WithError(err).Warnf("Failed to count pages in %s", path)
		return 0
	}
	return n
}

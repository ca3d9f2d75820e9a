package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	svcerrors "github.com/standardbeagle/ocrbatch/internal/errors"
	"github.com/standardbeagle/ocrbatch/internal/job"
)

const multipartMemory = 32 << 20

// handleProcess accepts a multipart upload in field files[] and starts a
// job. The response carries only the process id; clients poll for the rest.
func (s *Server) handleProcess(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.log.Errorf("Upload rejected, payload over limit: %v", err)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "File size exceeds the limit (1.5GB combined). Please upload smaller files or fewer files at once.",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	form := c.Request.MultipartForm
	defer form.RemoveAll()

	headers := form.File["files[]"]
	if len(headers) == 0 {
		s.log.Warn("No files provided in request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	uploads := make([]job.Upload, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		uploads = append(uploads, job.Upload{
			RelPath: fh.Filename,
			Size:    fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	j, err := s.manager.Submit(owner(c), uploads)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Processing started",
		"process_id": j.ID,
	})
}

// handleProcessStatus reports a live view while the job runs and the full
// result document once it is terminal.
func (s *Server) handleProcessStatus(c *gin.Context) {
	status, err := s.manager.Status(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	if status.Terminal != nil {
		c.JSON(http.StatusOK, status.Terminal)
		return
	}
	c.JSON(http.StatusOK, status.Live)
}

func (s *Server) handleCancelProcess(c *gin.Context) {
	if err := s.manager.Cancel(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cancel request received. Processing will stop as soon as possible.",
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	s.serveArchive(c, c.Param("id"))
}

// handleDownloadLegacy keeps the historical no-id path working by
// resolving the caller's most recent job.
func (s *Server) handleDownloadLegacy(c *gin.Context) {
	j, ok := s.manager.LastJobFor(owner(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No processed files found"})
		return
	}
	s.serveArchive(c, j.ID)
}

func (s *Server) serveArchive(c *gin.Context, id string) {
	path, err := s.manager.ArchivePath(id)
	if err != nil {
		s.log.Warnf("Download requested but no archive for job %s", id)
		c.JSON(http.StatusNotFound, gin.H{"error": "No processed files found"})
		return
	}
	s.log.Infof("Download initiated for job %s", id)
	c.FileAttachment(path, "processed_files.zip")
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.ring.Snapshot())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Progress().Snapshot())
}

func (s *Server) handleClearCache(c *gin.Context) {
	removed, err := s.manager.ClearCache()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": fmt.Sprintf("Error clearing cache: %v", err),
		})
		return
	}
	s.log.Infof("Cache cleared, removed %d files", removed)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Cache cleared. Removed %d files.", removed),
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps a typed service error to its HTTP status and JSON body.
func (s *Server) respondError(c *gin.Context, err error) {
	var je *svcerrors.JobError
	msg := "An unexpected error occurred"
	if errors.As(err, &je) && je.Underlying != nil {
		msg = je.Underlying.Error()
	}
	c.JSON(svcerrors.HTTPStatus(err), gin.H{"error": msg})
}

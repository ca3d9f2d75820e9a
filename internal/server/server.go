// Package server adapts the HTTP surface to the job manager. Handlers only
// observe job state; all task lifetimes belong to the manager.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/ocrbatch/internal/config"
	"github.com/standardbeagle/ocrbatch/internal/job"
	"github.com/standardbeagle/ocrbatch/internal/logring"
)

// Server hosts the batch OCR HTTP API.
type Server struct {
	cfg     *config.Config
	manager *job.Manager
	ring    *logring.Ring
	log     *logrus.Logger
	http    *http.Server
}

// New builds the server and its routes.
func New(cfg *config.Config, manager *job.Manager, ring *logring.Ring, log *logrus.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		ring:    ring,
		log:     log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/process", s.limitBody, s.handleProcess)
	router.GET("/process-status/:id", s.handleProcessStatus)
	router.POST("/cancel-process/:id", s.handleCancelProcess)
	router.GET("/download/:id", s.handleDownload)
	router.GET("/download", s.handleDownloadLegacy)
	router.GET("/logs", s.handleLogs)
	router.GET("/status", s.handleStatus)
	router.GET("/clear-cache", s.handleClearCache)
	router.GET("/healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Infof("Listening on %s", s.cfg.Server.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. Running jobs are unaffected; they
// belong to the manager, not to request lifetimes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// limitBody caps the request payload so oversize uploads fail before any
// staging happens.
func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Upload.MaxBytes)
	c.Next()
}

// owner identifies the submitter. Session handling lives in front of this
// service; the header is what the proxy injects, with the client address
// as a fallback for direct use.
func owner(c *gin.Context) string {
	if v := c.GetHeader("X-Owner-ID"); v != "" {
		return v
	}
	return c.ClientIP()
}

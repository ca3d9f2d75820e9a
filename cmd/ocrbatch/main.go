package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/ocrbatch/internal/cache"
	"github.com/standardbeagle/ocrbatch/internal/config"
	"github.com/standardbeagle/ocrbatch/internal/job"
	"github.com/standardbeagle/ocrbatch/internal/logring"
	"github.com/standardbeagle/ocrbatch/internal/pdf"
	"github.com/standardbeagle/ocrbatch/internal/server"
	"github.com/standardbeagle/ocrbatch/internal/version"
)

func main() {
	app := &cli.App{
		Name:                   "ocrbatch",
		Usage:                  "Batch OCR processing service for PDF collections",
		Version:                version.Info(),
		UseShortOptionHandling: true,
		DefaultCommand:         "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.DefaultConfigFile,
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides config)",
			},
			&cli.StringFlag{
				Name:  "cache-root",
				Usage: "Cache directory (overrides config)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Worker cap per job (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the OCR batch service",
				Action: runServe,
			},
			{
				Name:   "clear-cache",
				Usage:  "Delete every OCR cache entry",
				Action: runClearCache,
			},
			{
				Name:   "evict",
				Usage:  "Run one cache eviction pass (age, then size budget)",
				Action: runEvict,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies CLI flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if root := c.String("cache-root"); root != "" {
		cfg.Cache.Root = root
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.OCR.WorkerCap = workers
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildLogger creates the shared logger with the ring hook attached, so
// everything logged is also visible through /logs.
func buildLogger(cfg *config.Config) (*logrus.Logger, *logring.Ring) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	ring := logring.New(cfg.Log.RingCapacity)
	log.AddHook(logring.NewHook(ring))
	return log, ring
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log, ring := buildLogger(cfg)
	log.Info(version.FullInfo())

	engine := &pdf.ExecEngine{Command: cfg.OCR.Command, Log: log}
	manager, err := job.NewManager(cfg, engine, log)
	if err != nil {
		return err
	}

	srv := server.New(cfg, manager, ring, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runClearCache(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, _ := buildLogger(cfg)

	store, err := cache.New(cfg.Cache.Root, cfg.MaxAge(), cfg.MaxTotalBytes(), log)
	if err != nil {
		return err
	}
	removed, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Cache cleared. Removed %d files.\n", removed)
	return nil
}

func runEvict(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, _ := buildLogger(cfg)

	store, err := cache.New(cfg.Cache.Root, cfg.MaxAge(), cfg.MaxTotalBytes(), log)
	if err != nil {
		return err
	}
	removed, freed, err := store.Evict(time.Now())
	if err != nil {
		return err
	}
	count, total, err := store.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Evicted %d entries (%s). Cache now holds %d entries (%s).\n",
		removed, humanize.IBytes(uint64(freed)), count, humanize.IBytes(uint64(total)))
	return nil
}

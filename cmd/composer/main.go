package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-composer/internal/api"
	"github.com/heimdex/heimdex-composer/internal/catalog"
	"github.com/heimdex/heimdex-composer/internal/config"
	"github.com/heimdex/heimdex-composer/internal/db"
	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/pipeline"
	"github.com/heimdex/heimdex-composer/internal/playback"
	"github.com/heimdex/heimdex-composer/internal/ui"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "join" {
		err = runJoin(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ExportDir(), 0755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex composer", "version", config.Version, "commit", config.GitCommit, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  HEIMDEX COMPOSER v%-38s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ff := pipeline.NewRunner(pipeline.Config{
		FFmpegPath:   cfg.FFmpegPath(),
		FFprobePath:  cfg.FFprobePath(),
		ProbeTimeout: cfg.ProbeTimeout(),
		Logger:       logger,
		DebugPaths:   cfg.DebugPaths(),
	})
	doctor := pipeline.NewCachedDoctor(ff, logger)

	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout())
	if caps, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed, composing disabled until ffmpeg is installed", "error", err)
	} else {
		logger.Info("ffmpeg capabilities detected",
			"ffmpeg", caps.HasFFmpeg,
			"ffprobe", caps.HasFFprobe,
			"libx264", caps.HasLibx264,
		)
	}
	initCancel()

	catalogSvc := catalog.NewService(repo, ff, logger)
	exports := catalog.NewExportManager(catalogSvc, repo, func(paths map[string]string) export.Encoder {
		return pipeline.NewEncoder(ff, paths, logger)
	}, cfg.ExportTimeout(), logger)

	previews := playback.NewSessions(logger)
	exports.OnFinish(func(rec catalog.ExportRecord) {
		if rec.Status != catalog.ExportStatusSucceeded {
			return
		}
		comp, err := catalogSvc.GetComposition(context.Background(), rec.CompositionID)
		if err != nil || comp == nil {
			return
		}
		if _, err := previews.OpenInSlot(rec.CompositionID, rec.ID, rec.OutputPath, comp.Duration.Duration(), playback.DefaultOptions()); err != nil {
			logger.Warn("failed to open preview", "export_id", rec.ID, "error", err)
		}
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		CatalogService: catalogSvc,
		Exports:        exports,
		Previews:       previews,
		PlaybackServer: playback.NewServer(logger),
		Config:         repo,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			CatalogService: catalogSvc,
			Exports:        exports,
			Logger:         logger,
			OnOpenExports:  func() error { return openFolder(cfg.ExportDir()) },
			OnQuit:         quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	previews.CloseAll()
	if err := exports.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("failed to stop exports", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, "device_id", 16)
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	return ensureSecret(repo, api.AuthTokenKey, 32)
}

// ensureSecret returns the stored value of key, generating and storing a
// random hex value of n bytes the first time.
func ensureSecret(repo catalog.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}

	return value, nil
}

func openFolder(dir string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	return cmd.Start()
}

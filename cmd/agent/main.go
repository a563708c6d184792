package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelkit/reelkit-agent/internal/api"
	"github.com/reelkit/reelkit-agent/internal/cloud"
	"github.com/reelkit/reelkit-agent/internal/config"
	"github.com/reelkit/reelkit-agent/internal/db"
	"github.com/reelkit/reelkit-agent/internal/destination"
	"github.com/reelkit/reelkit-agent/internal/editor"
	"github.com/reelkit/reelkit-agent/internal/engine"
	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/logging"
	"github.com/reelkit/reelkit-agent/internal/media"
	"github.com/reelkit/reelkit-agent/internal/project"
	"github.com/reelkit/reelkit-agent/internal/stream"
	"github.com/reelkit/reelkit-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ProjectsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create projects dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelkit agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    REELKIT AGENT v%-24s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Projects:   %-45s ║\n", cfg.ProjectsDir())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	prober := media.NewFFmpegProber(logger)
	projects := project.NewService(repo, prober, cfg.ProjectsDir(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := project.NewWatcher(projects, logger)
	go watcher.Start(ctx)

	eng := engine.NewClient(cfg.EngineURL(), logger)

	if cfg.EngineAutostart() {
		launcher := engine.NewLauncher(cfg.EngineBin(), cfg.EngineURL(), cfg.EngineStartTimeout(), logger)
		if err := launcher.Start(ctx, eng.Ping); err != nil {
			logger.Warn("engine autostart failed, exports unavailable until it comes up", "error", err)
		}
		defer launcher.Stop()
	} else {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := eng.Ping(pingCtx); err != nil {
			logger.Warn("render engine unreachable", "url", cfg.EngineURL(), "error", err)
		}
		pingCancel()
	}

	creds := cloud.NewCredentialStore(repo, logger)
	cloudClient := cloud.NewHTTPClient(cfg.CloudBaseURL(), creds, logger)
	plan := cloud.NewCachedPlan(cloudClient, logger)
	gate := cloud.NewEntitlementGate(creds, plan, logger)
	uploader := cloud.NewUploader(cloudClient, logger)
	logger.Info("cloud sharing configured", "base_url", cfg.CloudBaseURL())

	sink := destination.NewLocal(logger)

	exports := export.NewManager(repo, projects, eng, uploader, gate, sink, cfg.ArtifactsDir(), logger)

	editors := editor.NewManager(eng, projects, logger)
	defer editors.CloseAll()

	frames := editor.NewFrameHub(logger)
	go frames.Run(ctx, eng)

	streamer := stream.NewStreamer(repo, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Exports:    exports,
			Repository: repo,
			Watcher:    watcher,
			Sink:       sink,
			Logger:     logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		exports.SetOnChange(tray.HandleExportState)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Version:     config.Version,
		StartTime:   startTime,
		Projects:    projects,
		Repository:  repo,
		Engine:      eng,
		Exports:     exports,
		Editors:     editors,
		Frames:      frames,
		Streamer:    streamer,
		Credentials: creds,
		Cloud:       cloudClient,
		Plan:        plan,
		Logger:      logger,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if tray != nil {
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 16)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}

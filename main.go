package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/devdash/internal/config"
	"github.com/gluk-w/devdash/internal/database"
	"github.com/gluk-w/devdash/internal/handlers"
	"github.com/gluk-w/devdash/internal/logging"
	"github.com/gluk-w/devdash/internal/middleware"
	"github.com/gluk-w/devdash/internal/termaudit"
	"github.com/gluk-w/devdash/internal/terminal"
)

func main() {
	config.Load()
	logging.Init()
	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	profiles, err := config.LoadProfiles(config.Cfg.ProfilesPath)
	if err != nil {
		log.Fatalf("Profiles: %v", err)
	}
	handlers.Profiles = profiles
	log.Printf("Config: listen=%s data=%s auth=%v profiles=%v",
		config.Cfg.ListenAddr, config.Cfg.DataPath, config.Cfg.AuthToken != "", profiles.Names())

	auditor := termaudit.NewAuditor(database.DB, config.Cfg.AuditRetentionDays)
	handlers.TermAudit = auditor

	// Init terminal manager. The PTY and tmux capabilities are probed here,
	// once, for the lifetime of the process.
	termMgr := terminal.NewManager(terminal.Config{
		TmuxSocket:       config.Cfg.TmuxSocket,
		TmuxConfig:       config.Cfg.TmuxConfig,
		DefaultShell:     config.Cfg.TerminalDefaultShell,
		PreviewLines:     config.Cfg.TerminalPreviewLines,
		KillGrace:        config.Cfg.TerminalKillGrace,
		CrashedRetention: config.Cfg.TerminalCrashedRetention,
		RecordingDir:     config.Cfg.TerminalRecordingDir,
		Store:            database.NewSessionStore(database.DB),
		Events:           auditor,
	})
	handlers.Terminals = termMgr
	log.Printf("Terminal manager initialized (pty=%v, tmux=%v, socket=%s, preview=%d lines, recording=%q)",
		termMgr.Available() == nil, termMgr.TmuxAvailable(), config.Cfg.TmuxSocket,
		config.Cfg.TerminalPreviewLines, config.Cfg.TerminalRecordingDir)

	ctx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	sched, err := startMaintenance(ctx, config.Cfg.MaintenanceSchedule, termMgr, auditor)
	if err != nil {
		log.Fatalf("Maintenance schedule %q: %v", config.Cfg.MaintenanceSchedule, err)
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(config.Cfg.AuthToken))

		r.Get("/server/logs", handlers.GetServerLogs)
		r.Delete("/server/logs", handlers.ClearServerLogs)

		r.Route("/terminals", func(r chi.Router) {
			r.Use(middleware.RequireTerminalBackend(termMgr.Available))

			r.Post("/", handlers.CreateTerminal)
			r.Get("/", handlers.ListTerminals)
			r.Get("/events", handlers.ListTerminalEvents)

			// Persisted tmux sessions
			r.Get("/persisted", handlers.ListPersistedSessions)
			r.Delete("/persisted/{name}", handlers.KillPersistedSession)
			r.Get("/persisted/{name}/capture", handlers.CapturePersistedSession)
			r.Post("/reconnect", handlers.ReconnectTerminal)

			r.Get("/{id}", handlers.GetTerminal)
			r.Patch("/{id}", handlers.RenameTerminal)
			r.Delete("/{id}", handlers.CloseTerminal)
			r.Post("/{id}/write", handlers.WriteTerminal)
			r.Post("/{id}/resize", handlers.ResizeTerminal)
			r.Get("/{id}/preview", handlers.PreviewTerminal)
			r.Post("/{id}/detach", handlers.DetachTerminal)

			// Streaming bridge
			r.Get("/{id}/ws", handlers.TerminalWS)
		})
	})

	// SPA static files
	if config.Cfg.StaticDir != "" {
		spa := middleware.NewSPAHandlerDir(config.Cfg.StaticDir)
		r.NotFound(spa.ServeHTTP)
	}

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-sched.Stop().Done()
	cancelJobs()
	termMgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

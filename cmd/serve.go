package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
	"github.com/kozaktomas/rollcall/internal/pipeline"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/kozaktomas/rollcall/internal/tracking"
	"github.com/kozaktomas/rollcall/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Rollcall API server.
Camera clients post frames to /api/v1/sessions/{id}/frames; recognized
students are recorded against the session's attendance windows.

Storage is PostgreSQL when DATABASE_URL is set, MariaDB when MARIADB_DSN is
set, and in-memory otherwise.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// newServices wires the recognition and attendance components on top of the
// storage backend.
func newServices(ctx context.Context, cfg *config.Config, backend database.Backend) (web.Services, *tracking.Registry) {
	vision := visionClient(cfg)
	engine := newEngine(cfg, vision)
	tracker := tracking.NewRegistry(cfg.Tracking.TTL(), cfg.Tracking.IoUThreshold, cfg.Tracking.IdleTimeout())
	recorder := attendance.NewRecorder(backend)
	sessions := attendance.NewSessions(backend, tracker, recorder,
		cfg.Attendance.PresentWindowMinutes, cfg.Attendance.LateWindowMinutes)

	opts := pipeline.Options{
		MinConfidence:   cfg.Attendance.ConfidenceThreshold,
		CropPadding:     cfg.Tracking.CropPadding,
		BorderlineScore: cfg.Liveness.BorderlineScore,
		Verbose:         cfg.Log.Verbose,
	}
	var detector fingerprint.Detector
	if vision != nil {
		detector = vision
		opts.Detector = vision
		if cfg.Liveness.Enabled {
			opts.Liveness = vision
		}
	} else {
		fmt.Println("No VISION_URL configured: clients must send their own face detections")
	}

	enroller := recognition.NewEnroller(ctx, engine, recognition.EnrollerConfig{
		Detector:          detector,
		DuplicateDistance: cfg.Recognition.DuplicateDistance,
		CropPadding:       cfg.Tracking.CropPadding,
	})

	return web.Services{
		Sessions: sessions,
		Recorder: recorder,
		Records:  backend,
		Pipeline: pipeline.New(engine, sessions, recorder, tracker, opts),
		Engine:   engine,
		Enroller: enroller,
	}, tracker
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, name, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	fmt.Printf("Using %s backend\n", name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, tracker := newServices(ctx, cfg, backend)
	fmt.Printf("Known faces: %d samples from %s\n",
		services.Engine.Store(ctx).Len(), cfg.Faces.DatabasePath)

	go tracker.Run(ctx, constants.SweepInterval)

	server := web.NewServer(cfg, services)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	fmt.Printf("Starting Rollcall API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

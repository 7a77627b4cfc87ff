package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/memory"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// openBackend picks the session and record storage: PostgreSQL when
// DATABASE_URL is set, MariaDB when MARIADB_DSN is set, memory otherwise.
func openBackend(cfg *config.Config) (database.Backend, string, error) {
	switch {
	case cfg.Database.URL != "":
		backend, err := postgres.Initialize(&cfg.Database)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return backend, "PostgreSQL", nil
	case cfg.MariaDB.DSN != "":
		backend, err := mariadb.Initialize(cfg.MariaDB.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return backend, "MariaDB", nil
	default:
		return memory.New(), "in-memory", nil
	}
}

// visionClient returns the configured vision service client, or nil.
func visionClient(cfg *config.Config) *fingerprint.VisionClient {
	if cfg.Vision.URL == "" {
		return nil
	}
	return fingerprint.NewVisionClient(cfg.Vision.URL)
}

// newEngine creates the recognition engine from configuration.
func newEngine(cfg *config.Config, vision *fingerprint.VisionClient) *recognition.Engine {
	return recognition.NewEngine(recognition.EngineConfig{
		FaceDatabasePath: cfg.Faces.DatabasePath,
		Thresholds: recognition.Thresholds{
			Euclidean: cfg.Recognition.EuclideanThreshold,
			Cosine:    cfg.Recognition.CosineThreshold,
		},
		Vision: vision,
	})
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

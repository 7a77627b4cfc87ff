package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database    DatabaseConfig
	MariaDB     MariaDBConfig
	Faces       FacesConfig
	Vision      VisionConfig
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Web         WebConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string // e.g. rollcall:rollcall@tcp(mariadb:3306)/rollcall?parseTime=true
}

type FacesConfig struct {
	DatabasePath string // gob blob with known identities
	IndexPath    string // optional HNSW graph export for near-duplicate checks
}

type VisionConfig struct {
	URL string // detection/encoding/liveness service, empty disables the remote encoder
}

type RecognitionConfig struct {
	EuclideanThreshold float64 `yaml:"euclidean_threshold"`
	CosineThreshold    float64 `yaml:"cosine_threshold"`
	DuplicateDistance  float64 `yaml:"duplicate_distance"`
}

type AttendanceConfig struct {
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	PresentWindowMinutes int     `yaml:"present_window_minutes"`
	LateWindowMinutes    int     `yaml:"late_window_minutes"`
}

type LivenessConfig struct {
	Enabled         bool    `yaml:"enabled"`
	BorderlineScore float64 `yaml:"borderline_score"`
}

type TrackingConfig struct {
	TTLMillis    int     `yaml:"ttl_ms"`
	IoUThreshold float64 `yaml:"iou_threshold"`
	CropPadding  int     `yaml:"crop_padding"`
	IdleMinutes  int     `yaml:"idle_minutes"`
}

// TTL returns the cache entry lifetime.
func (c TrackingConfig) TTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

// IdleTimeout returns how long a session cache may go without frames before it is swept.
func (c TrackingConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

type WebConfig struct {
	Host     string
	Port     int
	APIToken string // bearer token required on /api/v1 (empty disables the check)

	AllowedOrigins []string // CORS origins besides localhost
}

type LogConfig struct {
	Verbose bool
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration baked into the binary, without any
// environment overrides applied.
func Defaults() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Faces.DatabasePath = "data/face_database.gob"
	cfg.Web.Host = "0.0.0.0"
	cfg.Web.Port = 8080
	return cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns),
		MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns),
	}
	cfg.MariaDB.DSN = os.Getenv("MARIADB_DSN")
	cfg.Faces = FacesConfig{
		DatabasePath: envString("FACE_DATABASE_PATH", cfg.Faces.DatabasePath),
		IndexPath:    os.Getenv("FACE_INDEX_PATH"),
	}
	cfg.Vision.URL = os.Getenv("VISION_URL")

	r := &cfg.Recognition
	r.EuclideanThreshold = envFloat("RECOGNITION_EUCLIDEAN_THRESHOLD", r.EuclideanThreshold)
	r.CosineThreshold = envFloat("RECOGNITION_COSINE_THRESHOLD", r.CosineThreshold)
	r.DuplicateDistance = envFloat("RECOGNITION_DUPLICATE_DISTANCE", r.DuplicateDistance)

	a := &cfg.Attendance
	a.ConfidenceThreshold = envFloat("ATTENDANCE_CONFIDENCE_THRESHOLD", a.ConfidenceThreshold)
	a.PresentWindowMinutes = envInt("ATTENDANCE_PRESENT_WINDOW_MINUTES", a.PresentWindowMinutes)
	a.LateWindowMinutes = envInt("ATTENDANCE_LATE_WINDOW_MINUTES", a.LateWindowMinutes)

	cfg.Liveness.Enabled = envBool("LIVENESS_ENABLED", cfg.Liveness.Enabled)
	cfg.Liveness.BorderlineScore = envFloat("LIVENESS_BORDERLINE_SCORE", cfg.Liveness.BorderlineScore)

	t := &cfg.Tracking
	t.TTLMillis = envInt("TRACKING_TTL_MS", t.TTLMillis)
	t.IoUThreshold = envFloat("TRACKING_IOU_THRESHOLD", t.IoUThreshold)
	t.CropPadding = envInt("TRACKING_CROP_PADDING", t.CropPadding)
	t.IdleMinutes = envInt("TRACKING_IDLE_MINUTES", t.IdleMinutes)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.APIToken = os.Getenv("WEB_API_TOKEN")
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS")
	cfg.Log.Verbose = envBool("LOG_VERBOSE", false)

	return cfg
}

// Validate reports the first configuration value that would make the
// recognition pipeline misbehave.
func (c *Config) Validate() error {
	if err := ValidateWindows(c.Attendance.PresentWindowMinutes, c.Attendance.LateWindowMinutes); err != nil {
		return err
	}
	thresholds := []struct {
		name  string
		value float64
	}{
		{"recognition euclidean threshold", c.Recognition.EuclideanThreshold},
		{"recognition cosine threshold", c.Recognition.CosineThreshold},
		{"attendance confidence threshold", c.Attendance.ConfidenceThreshold},
		{"tracking IoU threshold", c.Tracking.IoUThreshold},
	}
	for _, th := range thresholds {
		if th.value <= 0 || th.value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", th.name, th.value)
		}
	}
	if c.Liveness.BorderlineScore < 0 || c.Liveness.BorderlineScore > 1 {
		return fmt.Errorf("liveness borderline score must be in [0, 1], got %v", c.Liveness.BorderlineScore)
	}
	if c.Tracking.TTLMillis <= 0 {
		return errors.New("tracking TTL must be positive")
	}
	return nil
}

// ValidateWindows checks the attendance window invariant 0 < present < late.
func ValidateWindows(present, late int) error {
	if present <= 0 || late <= 0 {
		return fmt.Errorf("attendance windows must be positive, got present=%d late=%d", present, late)
	}
	if present >= late {
		return fmt.Errorf("present window (%d) must be shorter than late window (%d)", present, late)
	}
	return nil
}

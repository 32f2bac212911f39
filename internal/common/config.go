package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sheetsnap/sheetsnap/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Quota    QuotaConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration. DSN selects the
// backend: postgres:// URLs open a pgx pool, anything else is treated as a
// SQLite path.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
	InboxDir string
}

// OCRConfig holds recognition engine configuration
type OCRConfig struct {
	Languages   []string // tesseract language set, e.g. chi_sim+eng
	TessdataDir string
	DPI         int
	MaxPages    int
	Concurrency int64
	WorkDir     string
	Timeout     time.Duration
}

// LLMConfig holds model backend configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	Concurrency int64
	MaxTextLen  int
}

// QuotaConfig allows overriding plan page limits per deployment.
type QuotaConfig struct {
	FreePages    int
	MonthlyPages int
	YearlyPages  int
	InviteBonus  int
}

// PagesLimit returns the deployment's page allowance for a plan, falling
// back to the built-in defaults when an override is unset or nonsensical.
func (q QuotaConfig) PagesLimit(p constants.Plan) int {
	limit := q.FreePages
	switch p {
	case constants.PlanMonthly:
		limit = q.MonthlyPages
	case constants.PlanYearly:
		limit = q.YearlyPages
	}
	if limit <= 0 {
		return constants.PagesLimit(p)
	}
	return limit
}

// BonusPages returns the per-redemption invite bonus for this deployment.
func (q QuotaConfig) BonusPages() int {
	if q.InviteBonus <= 0 {
		return constants.InviteBonusPages
	}
	return q.InviteBonus
}

// QueueConfig sizes the pipeline worker pool.
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
			InboxDir: getEnv("INBOX_DIR", ""),
		},
		OCR: OCRConfig{
			Languages:   splitList(getEnv("OCR_LANGUAGES", "chi_sim+eng")),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 50),
			Concurrency: int64(getEnvAsInt("OCR_CONCURRENCY", 2)),
			WorkDir:     getEnv("OCR_WORK_DIR", os.TempDir()),
			Timeout:     getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			Concurrency: int64(getEnvAsInt("OPENAI_CONCURRENCY", 4)),
			MaxTextLen:  getEnvAsInt("OPENAI_MAX_TEXT_LEN", 12000),
		},
		Quota: QuotaConfig{
			FreePages:    getEnvAsInt("QUOTA_FREE_PAGES", 10),
			MonthlyPages: getEnvAsInt("QUOTA_MONTHLY_PAGES", 500),
			YearlyPages:  getEnvAsInt("QUOTA_YEARLY_PAGES", 8000),
			InviteBonus:  getEnvAsInt("QUOTA_INVITE_BONUS", 5),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// splitList accepts either "chi_sim+eng" or "chi_sim,eng".
func splitList(s string) []string {
	s = strings.ReplaceAll(s, "+", ",")
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if len(c.OCR.Languages) == 0 {
		return NewAppError("CONFIG_ERROR", "OCR_LANGUAGES must not be empty", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}

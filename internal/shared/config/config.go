package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	KurrentDB  KurrentDBConfig
	Auth       AuthConfig
	Forecaster ForecasterConfig
	Forecast   ForecastConfig
	Epi        EpiConfig
	Legacy     LegacyConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// ForecasterConfig describes how the external statistical forecaster is run.
type ForecasterConfig struct {
	// Command is the interpreter binary (e.g. python3)
	Command string
	// ScriptPath is the forecaster script passed to Command
	ScriptPath string
	// Timeout bounds a single subprocess invocation
	Timeout time.Duration
	// RateLimitRPS / RateLimitBurst throttle the forecast route
	RateLimitRPS   int
	RateLimitBurst int
}

// ForecastConfig holds orchestration tunables.
type ForecastConfig struct {
	// CacheTTL is the effective age limit for cached results
	CacheTTL time.Duration
	// DedupWindow is how long a persisted run satisfies repeat requests
	DedupWindow time.Duration
	// DefaultHorizon is the forecast horizon in periods when not requested
	DefaultHorizon int
	// DefaultPopulation is the catchment population used when not supplied
	DefaultPopulation int
	// HighRiskThreshold is the projected case count marking an area high-risk
	HighRiskThreshold float64
}

// EpiConfig holds the SEIR heuristic constants. Defaults are the values the
// surveillance unit calibrated against historical outbreak data.
type EpiConfig struct {
	// RiskHighCases / RiskHighNew7d: counts above which risk is High
	RiskHighCases int
	RiskHighNew7d int
	// RiskModerateCases / RiskModerateNew7d: thresholds for Moderate
	RiskModerateCases int
	RiskModerateNew7d int
	// TrendCap bounds the recent-acceleration scaling of beta
	TrendCap float64
}

// LegacyConfig points at the legacy records system (SQL Server) used as a
// backfill source when a facility migrates onto this engine.
type LegacyConfig struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	DiagnosisTable string
	PollInterval   time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "prms"),
			Password: getEnv("DB_PASSWORD", "prms"),
			Database: getEnv("DB_NAME", "prms_forecast"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Forecaster: ForecasterConfig{
			Command:        getEnv("FORECASTER_COMMAND", "python3"),
			ScriptPath:     getEnv("FORECASTER_SCRIPT", "scripts/arima_forecast.py"),
			Timeout:        getEnvDuration("FORECASTER_TIMEOUT", 60*time.Second),
			RateLimitRPS:   getEnvInt("FORECASTER_RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvInt("FORECASTER_RATE_LIMIT_BURST", 10),
		},
		Forecast: ForecastConfig{
			CacheTTL:          getEnvDuration("FORECAST_CACHE_TTL", time.Hour),
			DedupWindow:       getEnvDuration("FORECAST_DEDUP_WINDOW", 7*24*time.Hour),
			DefaultHorizon:    getEnvInt("FORECAST_DEFAULT_HORIZON", 6),
			DefaultPopulation: getEnvInt("FORECAST_DEFAULT_POPULATION", 50000),
			HighRiskThreshold: getEnvFloat("FORECAST_HIGH_RISK_THRESHOLD", 10),
		},
		Epi: EpiConfig{
			RiskHighCases:     getEnvInt("EPI_RISK_HIGH_CASES", 10),
			RiskHighNew7d:     getEnvInt("EPI_RISK_HIGH_NEW7D", 3),
			RiskModerateCases: getEnvInt("EPI_RISK_MODERATE_CASES", 5),
			RiskModerateNew7d: getEnvInt("EPI_RISK_MODERATE_NEW7D", 1),
			TrendCap:          getEnvFloat("EPI_TREND_CAP", 2.0),
		},
		Legacy: LegacyConfig{
			Enabled:        getEnvBool("LEGACY_IMPORT_ENABLED", false),
			Host:           getEnv("LEGACY_DB_HOST", "localhost"),
			Port:           getEnvInt("LEGACY_DB_PORT", 1433),
			User:           getEnv("LEGACY_DB_USER", "sa"),
			Password:       getEnv("LEGACY_DB_PASSWORD", ""),
			Database:       getEnv("LEGACY_DB_NAME", "prms"),
			DiagnosisTable: getEnv("LEGACY_DIAGNOSIS_TABLE", "dbo.MedicalRecords"),
			PollInterval:   getEnvDuration("LEGACY_POLL_INTERVAL", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

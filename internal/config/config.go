// Package config provides configuration for the image description server.
// All configuration is loaded from environment variables with sensible
// defaults; a .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	// Server
	Port            int
	ShutdownTimeout time.Duration

	// Paths
	UploadDir string
	StaticDir string

	// Upload
	MaxUploadSize int64

	// Nominatim (reverse geocoding + POI search)
	NominatimBaseURL string
	GeocodeTimeout   time.Duration
	POITimeout       time.Duration

	// Wikidata SPARQL endpoint. Empty disables the knowledge-graph
	// proximity query and degrades it to an explicit unavailable result.
	WikidataEndpoint string
	WikidataTimeout  time.Duration

	// User-Agent sent to Nominatim and Wikidata (required by their
	// usage policies).
	UserAgent string

	// Ollama
	OllamaURL        string
	VisionModel      string
	TranslationModel string
	VisionTimeout    time.Duration
	TranslateTimeout time.Duration
	FilenameTimeout  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, loading a .env file first
// if one exists.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvInt("PORT", 8000),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		UploadDir: getEnvString("UPLOAD_DIR", "uploads"),
		StaticDir: getEnvString("STATIC_DIR", "static"),

		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 64<<20),

		NominatimBaseURL: getEnvString("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocodeTimeout:   getEnvDuration("GEOCODE_TIMEOUT", 10*time.Second),
		POITimeout:       getEnvDuration("POI_TIMEOUT", 10*time.Second),

		WikidataEndpoint: getEnvString("WIKIDATA_SPARQL_URL", "https://query.wikidata.org/sparql"),
		WikidataTimeout:  getEnvDuration("WIKIDATA_TIMEOUT", 30*time.Second),

		UserAgent: getEnvString("USER_AGENT", "CommonsImageDescription/1.0 (https://github.com/MathiasSchindler/commonsimagedescription)"),

		OllamaURL:        getEnvString("OLLAMA_URL", "http://localhost:11434/api/chat"),
		VisionModel:      getEnvString("OLLAMA_MODEL", "qwen3-vl:8b"),
		TranslationModel: getEnvString("OLLAMA_TRANSLATION_MODEL", "gemma3:12b-it-qat"),
		VisionTimeout:    getEnvDuration("VISION_TIMEOUT", 120*time.Second),
		TranslateTimeout: getEnvDuration("TRANSLATE_TIMEOUT", 60*time.Second),
		FilenameTimeout:  getEnvDuration("FILENAME_TIMEOUT", 30*time.Second),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "text"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("UPLOAD_DIR must not be empty")
	}

	return cfg, nil
}

// EnsureDirs creates required directories if they don't exist.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.UploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.UploadDir, err)
	}
	return nil
}

// getEnvString returns environment variable or default value.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default value.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 returns environment variable as int64 or default value.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration returns environment variable as duration or default value.
// Accepts Go duration syntax ("10s", "2m").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

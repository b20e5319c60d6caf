package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath  string
	PDFDir  string
	JSONDir string

	GenAIAPIKey       string
	GenAIModel        string
	GenAIBaseURL      string
	GenAITimeoutMs    int
	GenAIRateLimitRPM int

	DriveAPIKey       string
	DriveClientID     string
	DriveClientSecret string
	DriveRedirectURI  string
	DriveRefreshToken string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:  getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		PDFDir:  getEnv("PDF_DIR", filepath.Join(cwd, "data", "remote_pdfs")),
		JSONDir: getEnv("JSON_DIR", filepath.Join(cwd, "data", "json_outputs")),

		GenAIAPIKey:       getEnv("GENAI_API_KEY", ""),
		GenAIModel:        getEnv("GENAI_MODEL", "gemini-flash-latest"),
		GenAIBaseURL:      getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenAITimeoutMs:    getEnvInt("GENAI_TIMEOUT_MS", 120000),
		GenAIRateLimitRPM: getEnvInt("GENAI_RATE_LIMIT_RPM", 10),

		DriveAPIKey:       getEnv("DRIVE_API_KEY", ""),
		DriveClientID:     getEnv("DRIVE_CLIENT_ID", ""),
		DriveClientSecret: getEnv("DRIVE_CLIENT_SECRET", ""),
		DriveRedirectURI:  getEnv("DRIVE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		DriveRefreshToken: getEnv("DRIVE_REFRESH_TOKEN", ""),
	}

	if cfg.DriveAPIKey == "" {
		cfg.DriveAPIKey = cfg.GenAIAPIKey
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Package config provides configuration management for invoice generation.
// Runtime settings come from environment variables and .env files; billing
// settings (biller, clients, rates) come from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default locations used when neither the environment nor flags say otherwise.
const (
	DefaultConfigPath   = "config/default.yaml"
	DefaultOutputDir    = "invoices"
	DefaultLatexCommand = "pdflatex"
	DefaultTimewCommand = "timew"
)

// Config represents the runtime configuration.
type Config struct {
	ConfigPath   string
	OutputDir    string
	DBPath       string
	LatexCommand string
	TimewCommand string
	Debug        bool
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	debug, err := parseBoolEnv("INVOICE_DEBUG", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		ConfigPath:   getEnvOrDefault("INVOICE_CONFIG", DefaultConfigPath),
		OutputDir:    getEnvOrDefault("INVOICE_OUTPUT_DIR", ""),
		DBPath:       os.Getenv("INVOICE_DB_PATH"),
		LatexCommand: getEnvOrDefault("INVOICE_LATEX_COMMAND", ""),
		TimewCommand: getEnvOrDefault("TIMEW_COMMAND", DefaultTimewCommand),
		Debug:        debug,
	}, nil
}

// Validate checks that every named setting is non-empty.
func (c *Config) Validate(required ...string) error {
	var missing []string
	for _, name := range required {
		var value string
		switch name {
		case "config":
			value = c.ConfigPath
		case "outputDir":
			value = c.OutputDir
		case "dbPath":
			value = c.DBPath
		case "latexCommand":
			value = c.LatexCommand
		case "timewCommand":
			value = c.TimewCommand
		default:
			return fmt.Errorf("unknown configuration setting %q", name)
		}
		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s\nPlease check your .env file or environment variables", strings.Join(missing, ", "))
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBoolEnv parses a boolean environment variable.
// Returns defaultValue if the variable is not set.
func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, value)
	}
	return parsed, nil
}

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Auth   AuthSection   `toml:"auth"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	HTTPPort     int    `toml:"http_port"`
	DatabasePath string `toml:"database_path"`
}

type AuthSection struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
	BcryptCost    int    `toml:"bcrypt_cost"`
}

type LimitsSection struct {
	MaxCaptionLength int `toml:"max_caption_length"`
	MaxCommentLength int `toml:"max_comment_length"`
	MaxMessageLength int `toml:"max_message_length"`
	MaxBioLength     int `toml:"max_bio_length"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			HTTPPort:     8080,
			DatabasePath: "~/.glimpse/glimpse.db",
		},
		Auth: AuthSection{
			JWTSecret:     "", // Must be set via config or GLIMPSE_AUTH_JWT_SECRET
			TokenTTLHours: 24,
			BcryptCost:    10,
		},
		Limits: LimitsSection{
			MaxCaptionLength: 2200,
			MaxCommentLength: 500,
			MaxMessageLength: 4096,
			MaxBioLength:     200,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	// Load from file
	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config = applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: GLIMPSE_SECTION_KEY
// Example: GLIMPSE_SERVER_HTTP_PORT=8080
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	// Server section
	if val := os.Getenv("GLIMPSE_SERVER_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("GLIMPSE_SERVER_DATABASE_PATH"); val != "" {
		config.Server.DatabasePath = val
	}

	// Auth section
	if val := os.Getenv("GLIMPSE_AUTH_JWT_SECRET"); val != "" {
		config.Auth.JWTSecret = val
	}
	if val := os.Getenv("GLIMPSE_AUTH_TOKEN_TTL_HOURS"); val != "" {
		if hours, err := strconv.Atoi(val); err == nil {
			config.Auth.TokenTTLHours = hours
		}
	}
	if val := os.Getenv("GLIMPSE_AUTH_BCRYPT_COST"); val != "" {
		if cost, err := strconv.Atoi(val); err == nil {
			config.Auth.BcryptCost = cost
		}
	}

	// Limits section
	if val := os.Getenv("GLIMPSE_LIMITS_MAX_CAPTION_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxCaptionLength = limit
		}
	}
	if val := os.Getenv("GLIMPSE_LIMITS_MAX_COMMENT_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxCommentLength = limit
		}
	}
	if val := os.Getenv("GLIMPSE_LIMITS_MAX_MESSAGE_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxMessageLength = limit
		}
	}
	if val := os.Getenv("GLIMPSE_LIMITS_MAX_BIO_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxBioLength = limit
		}
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	// Active settings use defaults, commented settings show available options
	content := `# Glimpse Server Configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# GLIMPSE_SECTION_KEY (e.g., GLIMPSE_SERVER_HTTP_PORT=8080)

[server]
# Port for the HTTP server (REST API and /ws endpoint)
http_port = 8080

# Path to SQLite database file
database_path = "~/.glimpse/glimpse.db"

[auth]
# Secret used to sign session tokens. REQUIRED for production.
# Prefer setting GLIMPSE_AUTH_JWT_SECRET instead of storing it here.
# jwt_secret = "change-me"

# Session token lifetime in hours
token_ttl_hours = 24

# bcrypt cost for password hashing (10 is the library default)
# bcrypt_cost = 10

[limits]
# Maximum post caption length in characters
max_caption_length = 2200

# Maximum comment length in characters
max_comment_length = 500

# Maximum direct message length in characters
max_message_length = 4096

# Maximum profile bio length in characters
# max_bio_length = 200
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetDatabasePath returns the database path with ~ expanded
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	path := c.Server.DatabasePath
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

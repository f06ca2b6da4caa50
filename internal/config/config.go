// File: internal/config/config.go
// War of Dots Server - Configuration Management

package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the game server.
type Config struct {
	// Server settings
	ServerName      string
	ServerVersion   string
	ServerHost      string // empty = bind to all interfaces
	ServerPort      int
	ProtocolVersion string // must match the client's first-message "version" field

	// Database settings
	DBType           string // "sqlite" or "postgres"
	DBHost           string
	DBPort           int
	DBName           string
	DBUser           string
	DBPassword       string
	DBMaxConnections int
	DBMaxIdleConns   int

	// Redis settings - backs the pending-code table and the online-registry cache
	RedisEnabled bool
	RedisHost    string
	RedisPort    int
	RedisDB      int

	// Email settings for verification codes
	EmailUser string
	EmailPass string

	// Store worker pool
	StoreWorkers int

	// Server behavior
	ShutdownTimeoutSecs int
	TickPeriod          time.Duration // override for tests; defaults to 1.03s
	PendingCodeTTL      time.Duration // default 30 minutes
}

// Default configuration values.
var defaultConfig = Config{
	ServerName:          "War of Dots",
	ServerVersion:       "0.1.0",
	ServerHost:          "",
	ServerPort:          9056,
	ProtocolVersion:     "0.13.3",
	DBType:              "sqlite",
	DBHost:              "localhost",
	DBPort:              5432,
	DBName:              "data/wod.db",
	DBUser:              "wodserver",
	DBPassword:          "",
	DBMaxConnections:    25,
	DBMaxIdleConns:      5,
	RedisEnabled:        false,
	RedisHost:           "localhost",
	RedisPort:           6379,
	RedisDB:             0,
	StoreWorkers:        16,
	ShutdownTimeoutSecs: 30,
	TickPeriod:          1030 * time.Millisecond,
	PendingCodeTTL:      30 * time.Minute,
}

// LoadConfig loads configuration from an environment file.
// The -env flag can point at a custom file.
func LoadConfig() (*Config, error) {
	envFile := flag.String("env", ".env", "Path to environment configuration file")
	flag.Parse()

	log.Printf("Loading configuration from: %s", *envFile)

	config := defaultConfig

	if err := loadEnvFile(*envFile, &config); err != nil {
		if os.IsNotExist(err) {
			log.Printf("Configuration file %s not found, creating with defaults...", *envFile)
			if err := createDefaultEnvFile(*envFile); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			log.Printf("Created default configuration file: %s", *envFile)
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("Configuration loaded successfully")
	return &config, nil
}

// loadEnvFile parses filename with godotenv (handling comments, blank lines,
// and quoted values) and applies each key to config via setConfigValue.
func loadEnvFile(filename string, config *Config) error {
	values, err := godotenv.Read(filename)
	if err != nil {
		return err
	}

	for key, value := range values {
		if err := setConfigValue(config, key, value); err != nil {
			log.Printf("Warning: Error setting %s: %v", key, err)
		}
	}

	return nil
}

func setConfigValue(config *Config, key, value string) error {
	switch key {
	case "SERVER_NAME":
		config.ServerName = value
	case "SERVER_VERSION":
		config.ServerVersion = value
	case "SERVER_HOST":
		config.ServerHost = value
	case "SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.ServerPort = port
	case "PROTOCOL_VERSION":
		config.ProtocolVersion = value

	case "DB_TYPE":
		config.DBType = value
	case "DB_HOST":
		config.DBHost = value
	case "DB_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.DBPort = port
	case "DB_NAME":
		config.DBName = value
	case "DB_USER":
		config.DBUser = value
	case "DB_PASSWORD":
		config.DBPassword = value
	case "DB_MAX_CONNECTIONS":
		max, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.DBMaxConnections = max
	case "DB_MAX_IDLE_CONNS":
		max, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.DBMaxIdleConns = max

	case "REDIS_ENABLED":
		config.RedisEnabled = value == "true" || value == "1"
	case "REDIS_HOST":
		config.RedisHost = value
	case "REDIS_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.RedisPort = port
	case "REDIS_DB":
		db, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.RedisDB = db

	case "EMAIL_USER":
		config.EmailUser = value
	case "EMAIL_PASS":
		config.EmailPass = value

	case "STORE_WORKERS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.StoreWorkers = n

	case "SHUTDOWN_TIMEOUT_SECS":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		config.ShutdownTimeoutSecs = timeout

	default:
		log.Printf("Warning: Unknown configuration key: %s", key)
	}

	return nil
}

func createDefaultEnvFile(filename string) error {
	content := `# War of Dots Server Configuration File
# Created automatically with defaults if missing.

# ==============================================================================
# SERVER SETTINGS
# ==============================================================================
SERVER_NAME=War of Dots
SERVER_VERSION=0.1.0
PROTOCOL_VERSION=0.13.3

# Host/IP to bind to:
#   (empty)      = Bind to all interfaces (0.0.0.0)
#   localhost    = Bind to localhost only
SERVER_HOST=
SERVER_PORT=9056

# ==============================================================================
# DATABASE SETTINGS
# ==============================================================================
# DB_TYPE: "sqlite" or "postgres"
DB_TYPE=sqlite
DB_NAME=data/wod.db

# For PostgreSQL (uncomment and configure for production)
# DB_HOST=localhost
# DB_PORT=5432
# DB_USER=wodserver
# DB_PASSWORD=your_secure_password_here

DB_MAX_CONNECTIONS=25
DB_MAX_IDLE_CONNS=5

# ==============================================================================
# REDIS SETTINGS (pending-code table + online-registry cache)
# ==============================================================================
REDIS_ENABLED=false
REDIS_HOST=localhost
REDIS_PORT=6379
REDIS_DB=0

# ==============================================================================
# EMAIL (verification codes)
# ==============================================================================
# EMAIL_USER=
# EMAIL_PASS=

# ==============================================================================
# SERVER BEHAVIOR
# ==============================================================================
STORE_WORKERS=16
SHUTDOWN_TIMEOUT_SECS=30
`

	return os.WriteFile(filename, []byte(content), 0644)
}

func validateConfig(config *Config) error {
	if config.ServerPort < 1 || config.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: must be between 1 and 65535")
	}

	if config.DBType != "sqlite" && config.DBType != "postgres" {
		return fmt.Errorf("invalid DB_TYPE: must be 'sqlite' or 'postgres'")
	}

	if config.DBName == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}

	if config.DBType == "postgres" {
		if config.DBHost == "" {
			return fmt.Errorf("DB_HOST required for PostgreSQL")
		}
		if config.DBUser == "" {
			return fmt.Errorf("DB_USER required for PostgreSQL")
		}
	}

	if config.StoreWorkers < 1 {
		return fmt.Errorf("STORE_WORKERS must be at least 1")
	}

	if config.ShutdownTimeoutSecs < 5 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECS must be at least 5 seconds")
	}

	return nil
}

// GetConnectionString returns the database connection string.
func (c *Config) GetConnectionString() string {
	switch c.DBType {
	case "sqlite":
		return c.DBName
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
		)
	default:
		return ""
	}
}

// GetBindAddress returns the address to bind the server to.
func (c *Config) GetBindAddress() string {
	if c.ServerHost == "" {
		return "0.0.0.0"
	}
	return c.ServerHost
}

// GetListenAddress returns the full listen address (host:port).
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.GetBindAddress(), c.ServerPort)
}

// EmailConfigured reports whether outbound SMTP has usable credentials.
func (c *Config) EmailConfigured() bool {
	return c.EmailUser != "" && c.EmailPass != ""
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig() {
	log.Println("=== Server Configuration ===")
	log.Printf("Server: %s v%s (protocol %s)", c.ServerName, c.ServerVersion, c.ProtocolVersion)
	log.Printf("Listen Address: %s", c.GetListenAddress())
	log.Printf("Database Type: %s", c.DBType)
	if c.DBType == "sqlite" {
		log.Printf("Database File: %s", c.DBName)
	} else {
		log.Printf("Database Host: %s:%d", c.DBHost, c.DBPort)
		log.Printf("Database Name: %s", c.DBName)
	}
	log.Printf("Store Workers: %d", c.StoreWorkers)
	log.Printf("Redis: %v", c.RedisEnabled)
	log.Printf("Email Configured: %v", c.EmailConfigured())
	log.Println("===========================")
}

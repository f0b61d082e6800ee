package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"kuri/database"
	"kuri/domain/entities"
)

// Config holds all application configuration
type Config struct {
	// Pool configuration
	PoolCreator          string
	PoolAmount           int64
	RequiredParticipants int
	IntervalType         string // "weekly" or "monthly"
	LaunchPeriod         time.Duration

	// Capability grants
	AdminIDs             []string // identities allowed to admit, flag, raffle and withdraw
	InitializerIDs       []string // identities allowed to attempt the launch transition
	RandomnessSubscriber string   // identity the randomness source delivers under

	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)

	// HTTP configuration
	ListenAddr string

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			// In test environment, use a default test config instead of panicking
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Pool settings with defaults
		PoolCreator:          os.Getenv("POOL_CREATOR"),
		PoolAmount:           10000,
		RequiredParticipants: 10,
		IntervalType:         getEnvWithDefault("INTERVAL_TYPE", string(entities.IntervalTypeWeekly)),
		LaunchPeriod:         14 * 24 * time.Hour,

		// Capability grants
		RandomnessSubscriber: getEnvWithDefault("RANDOMNESS_SUBSCRIBER", "oracle:local"),

		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// NATS
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),

		// HTTP
		ListenAddr: getEnvWithDefault("LISTEN_ADDR", ":8080"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if amount := os.Getenv("POOL_AMOUNT"); amount != "" {
		parsed, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid POOL_AMOUNT %q: %w", amount, err)
		}
		config.PoolAmount = parsed
	}
	if count := os.Getenv("REQUIRED_PARTICIPANTS"); count != "" {
		parsed, err := strconv.Atoi(count)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRED_PARTICIPANTS %q: %w", count, err)
		}
		config.RequiredParticipants = parsed
	}
	if period := os.Getenv("LAUNCH_PERIOD"); period != "" {
		parsed, err := time.ParseDuration(period)
		if err != nil {
			return nil, fmt.Errorf("invalid LAUNCH_PERIOD %q: %w", period, err)
		}
		config.LaunchPeriod = parsed
	}
	config.AdminIDs = splitIDs(os.Getenv("ADMIN_IDS"))
	config.InitializerIDs = splitIDs(os.Getenv("INITIALIZER_IDS"))

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.PoolCreator == "" {
			return nil, fmt.Errorf("POOL_CREATOR is required")
		}
		if len(config.AdminIDs) == 0 {
			return nil, fmt.Errorf("ADMIN_IDS is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	// The creator can always run launch transitions
	if config.PoolCreator != "" {
		config.InitializerIDs = append(config.InitializerIDs, config.PoolCreator)
	}

	return config, nil
}

// splitIDs parses a comma-separated identity list, dropping empty entries
func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		PoolCreator:          "creator-test",
		PoolAmount:           10000,
		RequiredParticipants: 10,
		IntervalType:         string(entities.IntervalTypeWeekly),
		LaunchPeriod:         14 * 24 * time.Hour,
		AdminIDs:             []string{"admin-test"},
		InitializerIDs:       []string{"creator-test"},
		RandomnessSubscriber: "oracle:test",
	}
}

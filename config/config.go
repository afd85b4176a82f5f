package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends understood by STORE_BACKEND.
const (
	StoreJSON  = "json"
	StoreMongo = "mongo"
	StoreRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// Telegram
	BotToken         string
	ForceJoinChannel string // channel username ("@name") or numeric id
	ChannelLink      string
	DeveloperHandle  string
	OwnerID          int64 // 0 disables owner features

	// Vehicle info API
	APIBaseURL string
	APIKey     string
	APITimeout time.Duration

	// Credits
	InitialCredits  int64
	CreditsPerCheck int64
	CodeValues      []int64

	// Storage
	StoreBackend  string
	UsersFile     string
	RedeemFile    string
	MongoURI      string
	MongoDB       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limits
	BroadcastDelay time.Duration
	CommandDelay   time.Duration

	// Export
	SpreadsheetID   string
	CredentialsFile string

	LogLevel string
}

// Load builds the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		ForceJoinChannel: getEnvWithDefault("FORCE_JOIN_CHANNEL", "@vehicleinfochannel"),
		ChannelLink:      getEnvWithDefault("CHANNEL_LINK", "https://t.me/vehicleinfochannel"),
		DeveloperHandle:  getEnvWithDefault("DEVELOPER_HANDLE", "@xunarc"),

		APIBaseURL: getEnvWithDefault("API_BASE_URL", "https://vehicle-infoapi.vercel.app/api"),
		APIKey:     getEnvWithDefault("API_KEY", "test"),
		APITimeout: 30 * time.Second,

		InitialCredits:  3,
		CreditsPerCheck: 1,
		CodeValues:      []int64{5, 10},

		StoreBackend:  strings.ToLower(getEnvWithDefault("STORE_BACKEND", StoreJSON)),
		UsersFile:     getEnvWithDefault("USERS_FILE", "users_data.json"),
		RedeemFile:    getEnvWithDefault("REDEEM_FILE", "redeem_codes.json"),
		MongoURI:      getEnvWithDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       getEnvWithDefault("MONGO_DB", "vehiclebot"),
		RedisAddr:     getEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		BroadcastDelay: 50 * time.Millisecond,
		CommandDelay:   2 * time.Second,

		SpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
		CredentialsFile: getEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "service-account.json"),

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	var err error
	if cfg.OwnerID, err = parseInt("OWNER_ID", 0); err != nil {
		return nil, err
	}
	if cfg.InitialCredits, err = parseInt("INITIAL_CREDITS", cfg.InitialCredits); err != nil {
		return nil, err
	}
	if cfg.CreditsPerCheck, err = parseInt("CREDITS_PER_CHECK", cfg.CreditsPerCheck); err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB = int(redisDB)

	if cfg.APITimeout, err = parseDuration("API_TIMEOUT", cfg.APITimeout); err != nil {
		return nil, err
	}
	if cfg.BroadcastDelay, err = parseDuration("BROADCAST_DELAY", cfg.BroadcastDelay); err != nil {
		return nil, err
	}
	if cfg.CommandDelay, err = parseDuration("COMMAND_DELAY", cfg.CommandDelay); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case StoreJSON, StoreMongo, StoreRedis:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// IsOwner reports whether id is the configured privileged user.
func (c *Config) IsOwner(id int64) bool {
	return c.OwnerID != 0 && id == c.OwnerID
}

// ExportEnabled reports whether /export has a target sheet.
func (c *Config) ExportEnabled() bool {
	return c.SpreadsheetID != ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

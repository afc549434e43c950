package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Team store backends
const (
	TeamStoreMemory = "memory"
	TeamStoreRedis  = "redis"
	TeamStoreS3     = "s3"
)

// Config holds all configuration for the application
type Config struct {
	// Slack app credentials
	SlackClientID          string // Required: OAuth client id
	SlackClientSecret      string // Required: OAuth client secret
	SlackVerificationToken string // Required: token Slack sends with every event
	SlackBotToken          string // Required: bot token used until a team installs the app
	SlackOAuthScope        string
	SlackRedirectURI       string
	SlackSkipRetries       bool

	// Bot identity and warning
	BotName      string
	BotIconEmoji string
	WarningText  string

	// Link inspection
	WatchKeyword    string
	TitleSelector   string
	TitleAttribute  string
	FetchTimeout    time.Duration
	TitleCacheTTL   time.Duration
	LinkConcurrency int

	// Team credential storage
	TeamStore       string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	TokenBucketName string
	TokenEncryptKey string // base64 encoded 32-byte key

	Port     int
	LogLevel string
}

var (
	// instance holds the singleton config instance
	instance *Config
)

var defaults = map[string]interface{}{
	"SLACK_OAUTH_SCOPE":  "links:read,chat:write,chat:write.customize",
	"SLACK_REDIRECT_URI": "",
	"SLACK_SKIP_RETRIES": true,
	"BOT_NAME":           "music_police_bot",
	"BOT_ICON_EMOJI":     ":robot_face:",
	"WARNING_TEXT":       "WARNING!! ANDREW IS POSTING GRATEFUL DEAD AGAIN!!",
	"WATCH_KEYWORD":      "grateful",
	"TITLE_SELECTOR":     ".watch-title",
	"TITLE_ATTRIBUTE":    "title",
	"FETCH_TIMEOUT":      "10s",
	"TITLE_CACHE_TTL":    "10m",
	"LINK_CONCURRENCY":   4,
	"TEAM_STORE":         TeamStoreMemory,
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_DB":           0,
	"PORT":               4390,
	"LOG_LEVEL":          "info",
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not initialized")
	}
	return instance
}

// Load creates a new Config instance from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{
		SlackOAuthScope:  v.GetString("SLACK_OAUTH_SCOPE"),
		SlackRedirectURI: v.GetString("SLACK_REDIRECT_URI"),
		SlackSkipRetries: v.GetBool("SLACK_SKIP_RETRIES"),
		BotName:          v.GetString("BOT_NAME"),
		BotIconEmoji:     v.GetString("BOT_ICON_EMOJI"),
		WarningText:      v.GetString("WARNING_TEXT"),
		WatchKeyword:     v.GetString("WATCH_KEYWORD"),
		TitleSelector:    v.GetString("TITLE_SELECTOR"),
		TitleAttribute:   v.GetString("TITLE_ATTRIBUTE"),
		FetchTimeout:     v.GetDuration("FETCH_TIMEOUT"),
		TitleCacheTTL:    v.GetDuration("TITLE_CACHE_TTL"),
		LinkConcurrency:  v.GetInt("LINK_CONCURRENCY"),
		TeamStore:        strings.ToLower(v.GetString("TEAM_STORE")),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		TokenBucketName:  v.GetString("TOKEN_BUCKET_NAME"),
		TokenEncryptKey:  v.GetString("TOKEN_ENCRYPT_KEY"),
		Port:             v.GetInt("PORT"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}

	// Load required values
	requiredVars := map[string]*string{
		"SLACK_CLIENT_ID":          &cfg.SlackClientID,
		"SLACK_CLIENT_SECRET":      &cfg.SlackClientSecret,
		"SLACK_VERIFICATION_TOKEN": &cfg.SlackVerificationToken,
		"SLACK_BOT_TOKEN":          &cfg.SlackBotToken,
	}
	switch cfg.TeamStore {
	case TeamStoreMemory:
	case TeamStoreRedis:
		requiredVars["TOKEN_ENCRYPT_KEY"] = &cfg.TokenEncryptKey
	case TeamStoreS3:
		requiredVars["TOKEN_ENCRYPT_KEY"] = &cfg.TokenEncryptKey
		requiredVars["TOKEN_BUCKET_NAME"] = &cfg.TokenBucketName
	default:
		return nil, fmt.Errorf("unknown TEAM_STORE %q: want %s, %s or %s", cfg.TeamStore, TeamStoreMemory, TeamStoreRedis, TeamStoreS3)
	}

	var missingVars []string
	for env, ptr := range requiredVars {
		*ptr = v.GetString(env)
		if *ptr == "" {
			missingVars = append(missingVars, env)
		}
	}

	if len(missingVars) > 0 {
		sort.Strings(missingVars)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	if cfg.LinkConcurrency < 1 {
		return nil, fmt.Errorf("LINK_CONCURRENCY must be at least 1, got %d", cfg.LinkConcurrency)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", cfg.FetchTimeout)
	}

	// Store the instance
	instance = cfg

	return cfg, nil
}

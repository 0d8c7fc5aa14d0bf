package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the agent console daemon
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// External collaborators
	SignalingURL string // websocket endpoint of the signaling/presence server
	APIBaseURL   string // REST backend base URL
	AuthToken    string // bearer token used for both collaborators

	// Local identity used on emitted call events. Overridden by the
	// backend's support-agent lookup when reachable.
	AgentID   string
	AgentName string

	// Call behaviour
	RingTimeout  time.Duration // unanswered calls are abandoned after this
	ChatPageSize int           // messages per history page

	// Local persistence
	HistoryPath string // sqlite file for the call log

	// WebSocket keepalive
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8090"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SignalingURL:   getEnv("SIGNALING_URL", "ws://localhost:5000/socket"),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:5000/api"),
		AuthToken:      getEnv("AUTH_TOKEN", ""),
		AgentID:        getEnv("AGENT_ID", "support-agent"),
		AgentName:      getEnv("AGENT_NAME", "Support"),
		HistoryPath:    getEnv("HISTORY_PATH", "agentd.db"),
	}

	ringTimeout, err := strconv.Atoi(getEnv("RING_TIMEOUT", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid RING_TIMEOUT: %w", err)
	}
	config.RingTimeout = time.Duration(ringTimeout) * time.Second

	pageSize, err := strconv.Atoi(getEnv("CHAT_PAGE_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_PAGE_SIZE: %w", err)
	}
	config.ChatPageSize = pageSize

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 64 * 1024

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

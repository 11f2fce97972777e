package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Engine struct {
	// BookCapacity is the maximum number of resting orders per book side.
	BookCapacity int
	// EventQueueCapacity is the size of each market's event ring buffer.
	EventQueueCapacity int
	// MaxTakenOrders bounds maker orders processed per placement when the
	// request does not pass an explicit limit.
	MaxTakenOrders int
}

type Server struct {
	ListenAddr string
	DBPath     string
	LogPath    string
}

type Config struct {
	Engine Engine
	Server Server
}

func Default() Config {
	return Config{
		Engine: Engine{
			BookCapacity:       1024,
			EventQueueCapacity: 600,
			MaxTakenOrders:     45,
		},
		Server: Server{
			ListenAddr: ":8080",
			DBPath:     "data/meridian",
			LogPath:    "",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("ENGINE_BOOK_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.BookCapacity = n
		}
	}
	if v := os.Getenv("ENGINE_EVENT_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.EventQueueCapacity = n
		}
	}
	if v := os.Getenv("ENGINE_MAX_TAKEN_ORDERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxTakenOrders = n
		}
	}
	cfg.Server.ListenAddr = getEnv("SERVER_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.DBPath = getEnv("SERVER_DB_PATH", cfg.Server.DBPath)
	cfg.Server.LogPath = getEnv("SERVER_LOG_PATH", cfg.Server.LogPath)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

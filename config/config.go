package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Values come from the
// environment (optionally seeded from a .env file) with sensible defaults
// for a single-machine setup.
type Config struct {
	// Bus selects the broadcast transport: "ws", "redis" or "none".
	Bus string

	// HubAddr is the listen address of the relay hub (syncfm hub).
	HubAddr string
	// HubURL is the websocket URL tabs dial when Bus is "ws".
	HubURL string

	// Redis connection, used by the redis bus, the shared key-value store
	// and the track metadata cache.
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// CatalogBaseURL is the base URL of the catalog backend API.
	CatalogBaseURL string

	// StorePath is the file used by the file-backed key-value store when
	// Redis is not configured.
	StorePath string

	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables already set in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		Bus:            getEnv("SYNCFM_BUS", "ws"),
		HubAddr:        getEnv("SYNCFM_HUB_ADDR", ":8520"),
		HubURL:         getEnv("SYNCFM_HUB_URL", "ws://localhost:8520/ws"),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		CatalogBaseURL: getEnv("SYNCFM_CATALOG_URL", "http://localhost:3000"),
		StorePath:      getEnv("SYNCFM_STORE_PATH", "syncfm_store.json"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPath:        getEnv("LOG_PATH", ""),
	}
}

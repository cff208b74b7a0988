// Package config provides centralized default values for SlateDeck
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	SQLitePath               string
	TursoEnabled             bool
	TursoDatabase            string
	TursoToken               string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int

	// Identity
	JWTSecret string

	// Websocket Gateway
	WSWriteTimeout    time.Duration
	WSPongTimeout     time.Duration
	WSPingInterval    time.Duration
	WSMaxMessageBytes int64
	WSSendBuffer      int

	// Collaboration Engine
	PersistDebounce time.Duration
	EvictionGrace   time.Duration

	// Reconciliation Sweeper
	PresenceSweepInterval time.Duration
	PresenceStaleAfter    time.Duration
	EvictionSweepInterval time.Duration
	SweepVerbose          bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	SQLitePath = getEnvString("SQLITE_PATH", "data/slatedeck.db")
	TursoEnabled = getEnvBool("TURSO_ENABLED", false)
	TursoDatabase = getEnvString("TURSO_DATABASE_URL", "")
	TursoToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)

	// Identity
	JWTSecret = getEnvString("JWT_SECRET", "")

	// Websocket Gateway
	WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	WSPongTimeout = getEnvDuration("WS_PONG_TIMEOUT", 60*time.Second)
	WSPingInterval = getEnvDuration("WS_PING_INTERVAL", 54*time.Second)
	WSMaxMessageBytes = int64(getEnvInt("WS_MAX_MESSAGE_KB", 1024)) * 1024
	WSSendBuffer = getEnvInt("WS_SEND_BUFFER", 256)

	// Collaboration Engine
	PersistDebounce = getEnvDuration("COLLAB_PERSIST_DEBOUNCE", 2*time.Second)
	EvictionGrace = getEnvDuration("COLLAB_EVICTION_GRACE", 10*time.Minute)

	// Reconciliation Sweeper
	PresenceSweepInterval = getEnvDuration("PRESENCE_SWEEP_INTERVAL", 2*time.Minute)
	PresenceStaleAfter = getEnvDuration("PRESENCE_STALE_AFTER", 5*time.Minute)
	EvictionSweepInterval = getEnvDuration("EVICTION_SWEEP_INTERVAL", 20*time.Minute)
	SweepVerbose = getEnvBool("SWEEP_VERBOSE", false)
}

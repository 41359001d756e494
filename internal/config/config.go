// Package config reads the CLI entrypoint's environment-variable
// configuration, grounded on the teacher's internal/infrastructure/config
// getEnv pattern but generalized from HTTP-service settings (port, database
// DSN) to orchestration-engine settings (spec.md's Options surface, §6.3).
package config

import (
	"os"
	"strconv"
)

// Config holds the CLI entrypoint's environment-derived defaults. Library
// callers of the engine construct orchestrator.Options directly; this type
// only serves cmd/inferloom.
type Config struct {
	DBPath          string
	MaxCycles       int
	LogLevel        string
	CheckpointEvery int
}

// Load reads DB_PATH, MAX_CYCLES, LOG_LEVEL, CHECKPOINT_EVERY from the
// environment, falling back to sensible defaults.
func Load() *Config {
	return &Config{
		DBPath:          getEnv("DB_PATH", "./run.db"),
		MaxCycles:       getEnvInt("MAX_CYCLES", 10_000),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CheckpointEvery: getEnvInt("CHECKPOINT_EVERY", 1),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

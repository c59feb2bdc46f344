// Package config loads the environment-level configuration the kernel
// needs outside of a scenario document: archetype search paths, the
// nuclide data table location, and CLI-surfaced toggles.
//
// Configuration Loading Order:
//  1. Load from .env file (if present)
//  2. Load from environment variables
//  3. CLI flags override both (handled by cmd/simrun)
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration for a kernel run.
type Config struct {
	// CyclusPath lists directories searched for archetype libraries
	// (colon-separated, mirroring spec §6's CYCLUS_PATH).
	CyclusPath  []string
	NucDataPath string
	LogLevel    string
	WarnAsError bool
	FlatSchema  bool
}

// Load reads environment variables (after loading a local .env file, if
// any) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CyclusPath:  splitPath(getEnv("CYCLUS_PATH", "")),
		NucDataPath: getEnv("CYCLUS_NUC_DATA", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		WarnAsError: getEnvAsBool("WARN_AS_ERROR", false),
		FlatSchema:  getEnvAsBool("FLAT_SCHEMA", false),
	}
	return cfg, nil
}

func splitPath(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, string(os.PathListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

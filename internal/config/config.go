package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func mustAtoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func mustAtoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// LoadConfig reads the environment, applies the YAML file named by
// KUMASTREAM_CONFIG on top, validates, and creates the data directories.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataDir: getenv("DATA_DIR", "./data"),
		// CACHE_LIMIT supports simple suffix-less bytes number
		CacheLimitBytes:    mustAtoi64(getenv("CACHE_LIMIT", "2147483648")), // default 2GB
		ListenAddr:         getenv("LISTEN_ADDR", ":7905"),
		DefaultBitrate:     mustAtoi(getenv("DEFAULT_BITRATE", "192")),
		MaxBitrate:         mustAtoi(getenv("MAX_BITRATE", "320")),
		Debug:              getenv("DEBUG", "false") == "true" || os.Getenv("DEBUG") == "1",
		YouTubeCookiesPath: os.Getenv("YOUTUBE_COOKIES_PATH"),
		YouTubePOToken:     os.Getenv("YOUTUBE_PO_TOKEN"),
	}

	if path := os.Getenv("KUMASTREAM_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.DataDir, cfg.CacheDir, filepath.Join(cfg.CacheDir, "tmp")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return cfg, nil
}

// overlay replaces any field present in the YAML file at path.
func (c *Config) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return ErrConfig(fmt.Sprintf("parse %s: %v", path, err))
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return ErrConfig("DATA_DIR required")
	case c.ListenAddr == "":
		return ErrConfig("LISTEN_ADDR required")
	case c.CacheLimitBytes <= 0:
		return ErrConfig("CACHE_LIMIT must be a positive number of bytes")
	case c.MaxBitrate < MinBitrate || c.MaxBitrate > 320:
		return ErrConfig(fmt.Sprintf("MAX_BITRATE must be between %d and 320", MinBitrate))
	case c.DefaultBitrate < MinBitrate || c.DefaultBitrate > c.MaxBitrate:
		return ErrConfig(fmt.Sprintf("DEFAULT_BITRATE must be between %d and MAX_BITRATE", MinBitrate))
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the process settings. All artifacts are fixed at startup.
type Config struct {
	Port            string
	ModelPath       string
	LabelsPath      string
	ORTLibraryPath  string
	MaxUploadBytes  int64
	LogLevel        string
	GinMode         string
	ShutdownTimeout time.Duration
}

// Load reads settings from the environment, after applying an optional .env
// file in the working directory. Lookup warnings go to log, which may be nil.
func Load(log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not load .env file", zap.Error(err))
	}

	env := envReader{log: log}
	maxUploadMB, err := strconv.Atoi(env.get("MAX_UPLOAD_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_MB: %w", err)
	}
	shutdown, err := time.ParseDuration(env.get("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:            env.get("PORT", "8080"),
		ModelPath:       env.get("MODEL_PATH", "models/densenet121.onnx"),
		LabelsPath:      env.get("LABELS_PATH", "imagenet_class_index.json"),
		ORTLibraryPath:  env.get("ORT_LIB_PATH", ""),
		MaxUploadBytes:  int64(maxUploadMB) << 20,
		LogLevel:        env.get("LOG_LEVEL", "info"),
		GinMode:         env.get("GIN_MODE", "release"),
		ShutdownTimeout: shutdown,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Port == "" {
		return errors.New("PORT must be set")
	}
	if c.ModelPath == "" {
		return errors.New("MODEL_PATH must be set")
	}
	if c.LabelsPath == "" {
		return errors.New("LABELS_PATH must be set")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be > 0 (got %d bytes)", c.MaxUploadBytes)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0 (got %s)", c.ShutdownTimeout)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test (got %q)", c.GinMode)
	}
	return nil
}

// NewLogger builds the process logger for the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.GinMode == "debug" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

type envReader struct {
	log *zap.Logger
}

func (e envReader) get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	e.log.Debug("environment variable not set, using default",
		zap.String("key", key), zap.String("default", fallback))
	return fallback
}

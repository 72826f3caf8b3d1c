/*
File: cmd/feedrelay/main.go
Description: Main entrypoint for the feed relay.
Handles config loading, dependency injection, and starting the application.
*/
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nceruchalu/go-feed-relay/feedrelay"
	"github.com/nceruchalu/go-feed-relay/feedrelay/config"
	"github.com/nceruchalu/go-feed-relay/internal/app"
)

//go:embed config.yaml
var configFile []byte

func main() {
	flagSet := pflag.NewFlagSet("feedrelay", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML config file (default: embedded config)")
	envFile := flagSet.String("env-file", "", "path to a .env file (default: ./.env when present)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// --- 1. Bootstrap logging from LOG_LEVEL until the config is known ---
	bootLogger, _, err := app.NewLogger("go-feed-relay", app.LogOptions{Level: os.Getenv("LOG_LEVEL")})
	if err != nil {
		bootLogger, _, _ = app.NewLogger("go-feed-relay", app.LogOptions{})
	}

	// --- 2. Load Configuration ---
	cfg, err := loadConfig(*configPath, *envFile, bootLogger)
	if err != nil {
		bootLogger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// --- 3. Final logger ---
	logger, logCloser, err := app.NewLogger("go-feed-relay", app.LogOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    cfg.RunMode == config.RunModeLocal,
	})
	if err != nil {
		bootLogger.Error().Err(err).Msg("Failed to initialize logger")
		os.Exit(1)
	}
	defer logCloser.Close()

	// --- 4. Create dependencies ---
	ctx := context.Background()
	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize dependencies")
		os.Exit(1)
	}

	// --- 5. Create the service ---
	service, err := feedrelay.New(cfg, deps, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create feed relay")
		os.Exit(1)
	}

	// --- 6. Run the application ---
	if err := app.Run(ctx, logger, service); err != nil {
		logCloser.Close()
		os.Exit(1)
	}
}

// loadConfig runs the three configuration stages.
func loadConfig(path, envFile string, logger zerolog.Logger) (*config.AppConfig, error) {
	raw := configFile
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		raw = b
	}

	// Stage 0: Unmarshal
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}

	// Stage 1: YAML to base struct
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration from YAML: %w", err)
	}

	// Stage 2: env overrides and validation
	if err := config.LoadEnvFile(envFile, logger); err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/daikw/keyvox/internal/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show, validate or create the configuration file",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with secrets masked",
				Action: handleConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration for errors",
				Action: handleConfigValidate,
			},
			{
				Name:   "init",
				Usage:  "Create an example configuration file",
				Action: handleConfigInit,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "global",
						Usage: "Create ~/.keyvox/config.json instead of the project file",
					},
				},
			},
		},
	}
}

// rawConfig loads the configuration without validating it
func rawConfig(c *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	loader := config.NewLoader()
	if path := c.String("config"); path != "" {
		return loader.LoadFromPath(path)
	}
	workDir, _ := os.Getwd()
	return loader.Load(workDir)
}

func handleConfigShow(ctx context.Context, c *cli.Command) error {
	cfg, err := rawConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	output, err := json.MarshalIndent(cfg.MaskSecrets(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}

	if cfg.Path == "" {
		fmt.Println("No configuration file found, showing defaults:")
	} else {
		fmt.Printf("Configuration from %s (secrets masked):\n", cfg.Path)
	}
	fmt.Println(string(output))
	if keys := cfg.Keys(); len(keys) > 0 {
		fmt.Printf("\n%d keys configured (including %s)\n", len(keys), config.KeysEnvVar)
	}
	return nil
}

func handleConfigValidate(ctx context.Context, c *cli.Command) error {
	cfg, err := rawConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	errs := cfg.Validate()
	if len(errs) == 0 {
		fmt.Println("✅ Configuration is valid.")
		return nil
	}

	fmt.Println("❌ Configuration has errors:")
	for _, e := range errs {
		fmt.Printf("  - %s\n", e)
	}
	return fmt.Errorf("configuration validation failed")
}

func handleConfigInit(ctx context.Context, c *cli.Command) error {
	configPath := filepath.Join(".keyvox", "config.json")
	if c.Bool("global") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, configPath)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(config.GenerateExampleConfig()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✅ Created configuration: %s\n", configPath)
	fmt.Println("\nUse ${ENV_VAR} syntax for API keys, or set " + config.KeysEnvVar + ".")
	return nil
}

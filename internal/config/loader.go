package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the full configuration from the environment. A .env file in
// the working directory is merged in first (lowest priority); real
// environment variables always win. The populated struct is validated with
// the `validate` tags before being returned.
//
// Load is called exactly once per process, at cold start. Errors are fatal
// to the caller.
func Load() (*Config, error) {
	// Best-effort dotenv merge for local development. A missing file is not
	// an error; production relies on real environment variables.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

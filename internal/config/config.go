package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// New fills a config struct such as AppLinkConfig from the environment,
// applying its envDefault tags. Call LoadEnv first to pick up a .env file.
// Range checks are left to the struct's own Validate.
func New[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing %T from environment: %w", *cfg, err)
	}
	return cfg, nil
}

// LoadEnv loads the file named by ENV_FILE (default .env) into the environment.
// A missing default .env is not an error; a missing ENV_FILE is.
func LoadEnv() error {
	envfile := os.Getenv("ENV_FILE")

	if envfile == "" {
		if _, err := os.Stat(".env"); os.IsNotExist(err) {
			return nil
		}
		return godotenv.Load()
	}

	return godotenv.Load(envfile)
}

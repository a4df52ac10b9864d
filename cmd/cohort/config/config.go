package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting the cohort service needs.
type Config struct {
	Terminology Terminology
	Warehouse   Warehouse
	API         API
}

type Terminology struct {
	BaseURL      string `env:"FHIR_API_URL"`
	AuthServer   string `env:"FHIR_API_AUTH_SERVER"`
	ClientID     string `env:"FHIR_API_CLIENT_ID"`
	ClientSecret string `env:"FHIR_API_CLIENT_SECRET"`
	RetryMax     int    `env:"TERMINOLOGY_RETRY_MAX" envDefault:"0"`
}

type Warehouse struct {
	DSN string `env:"WAREHOUSE_DSN"`
	// When the warehouse cannot be reached, return a well-formed empty
	// result view instead of failing the request.
	DegradeToEmpty bool `env:"DEGRADE_TO_EMPTY" envDefault:"true"`
}

type API struct {
	Port             string `env:"API_PORT" envDefault:"8080"`
	SavedSearchesDir string `env:"SAVED_SEARCHES_DIR" envDefault:"saved_searches"`
}

// ReadFromEnv loads a .env file when one is present and parses the
// configuration from the process environment.
func ReadFromEnv() (Config, error) {
	// A missing .env file is fine in deployed environments, where the
	// settings come from the process environment directly.
	_ = godotenv.Load()

	parseOptions := env.Options{RequiredIfNoDef: true}

	var config Config

	if err := env.ParseWithOptions(&config.Terminology, parseOptions); err != nil {
		return Config{}, fmt.Errorf("failed to parse terminology config: %w", err)
	}
	if err := env.ParseWithOptions(&config.Warehouse, parseOptions); err != nil {
		return Config{}, fmt.Errorf("failed to parse warehouse config: %w", err)
	}
	if err := env.ParseWithOptions(&config.API, parseOptions); err != nil {
		return Config{}, fmt.Errorf("failed to parse API config: %w", err)
	}

	return config, nil
}

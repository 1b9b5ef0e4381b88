// Package config содержит логику чтения конфигурации сервиса nexi.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса nexi.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	GeminiAddress  string `env:"GEMINI_ADDRESS"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GatewayAddress string `env:"PAYMENT_ADDRESS"`
	GatewayKeyID   string `env:"PAYMENT_KEY_ID"`
	GatewaySecret  string `env:"PAYMENT_SECRET"`
	AuthSecret     string `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGeminiAddress := cfg.GeminiAddress
	envGatewayAddress := cfg.GatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GeminiAddress, "g", "https://generativelanguage.googleapis.com", "text generation API address")
	flag.StringVar(&cfg.GatewayAddress, "p", "", "payment gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGeminiAddress != "" {
		cfg.GeminiAddress = envGeminiAddress
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "nexi-secret"
	}

	return cfg, nil
}

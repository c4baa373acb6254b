package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using its `env` tags.
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix is like Load but only considers variables starting with
// prefix, which is stripped before matching tags.
func LoadWithPrefix(cfg any, prefix string) error {
	opts := env.Options{Prefix: strings.ToUpper(prefix)}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// IsDevelopment reports whether environment names a local setup.
func IsDevelopment(environment string) bool {
	switch strings.ToLower(environment) {
	case "", "development", "dev", "local", "test":
		return true
	}
	return false
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds the faderbank server configuration, loaded from the
// environment.
type Server struct {
	Addr           string        `env:"FADERBANK_ADDR" envDefault:":8455"`
	DBPath         string        `env:"FADERBANK_DB" envDefault:"faderbank.db"`
	PresenceWindow time.Duration `env:"FADERBANK_PRESENCE_WINDOW" envDefault:"30s"`
	ActivityMaxAge time.Duration `env:"FADERBANK_ACTIVITY_MAX_AGE" envDefault:"10m"`
	Debug          bool          `env:"FADERBANK_DEBUG" envDefault:"false"`
}

// ParseServer loads the server configuration from environment variables.
func ParseServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

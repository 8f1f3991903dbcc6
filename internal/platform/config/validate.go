package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the loaded values and resolves Care.Location. Load calls it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("database.max_conns must be > 0 (got %d)", c.Database.MaxConns)
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database.min_conns must be between 0 and max_conns (got %d)", c.Database.MinConns)
		}
	default:
		return fmt.Errorf("database.driver must be postgres or memory (got %q)", c.Database.Driver)
	}

	if c.NATS.Enabled && strings.TrimSpace(c.NATS.URL) == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	return c.Care.validate()
}

func (c *CareConfig) validate() error {
	if c.DefaultWateringDays < 1 {
		return fmt.Errorf("care.default_watering_days must be >= 1 (got %d)", c.DefaultWateringDays)
	}
	if c.DefaultFertilizingDays < 1 {
		return fmt.Errorf("care.default_fertilizing_days must be >= 1 (got %d)", c.DefaultFertilizingDays)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("care.timezone: %w", err)
	}
	c.Location = loc
	return nil
}

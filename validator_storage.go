package leads

import (
	"errors"
	"time"
)

// validate checks the required settings and fills in defaults.
func (c *Config) validate() error {
	if c == nil {
		return errors.New("config must be set")
	}
	if c.ServiceName == "" {
		return errors.New("ServiceName must be set")
	}
	if c.Backend == nil {
		return errors.New("Backend must be set")
	}
	if c.CacheSize < 0 {
		return errors.New("CacheSize must not be negative")
	}
	if c.CacheTTL < 0 {
		return errors.New("CacheTTL must not be negative")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

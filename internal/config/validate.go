package config

import (
	"fmt"
	"net"
	"unicode"

	"github.com/syncread/syncread/internal/logging"
)

var log = logging.L("config")

// Validate checks the config and returns all fatal errors found. Dangerous
// but recoverable values are clamped to safe defaults with a warning instead
// of failing startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.UserID != "" {
		for _, r := range c.UserID {
			if unicode.IsControl(r) || unicode.IsSpace(r) {
				// The wire protocol is line-framed JSON; ids embedded in
				// socket paths and messages must stay printable.
				errs = append(errs, fmt.Errorf("user_id %q contains whitespace or control characters", c.UserID))
				break
			}
		}
	}

	if c.ServerAddr != "" {
		if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
			errs = append(errs, fmt.Errorf("server_addr %q is not host:port: %w", c.ServerAddr, err))
		}
	}
	if c.BindAddr != "" {
		if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
			errs = append(errs, fmt.Errorf("bind_addr %q is not host:port: %w", c.BindAddr, err))
		}
	}

	if c.PollIntervalMs < 100 {
		log.Warn("poll_interval_ms below minimum, clamping", "value", c.PollIntervalMs, "min", 100)
		c.PollIntervalMs = 100
	} else if c.PollIntervalMs > 60000 {
		log.Warn("poll_interval_ms above maximum, clamping", "value", c.PollIntervalMs, "max", 60000)
		c.PollIntervalMs = 60000
	}

	if c.SyncTolerance < 0 {
		log.Warn("sync_tolerance is negative, clamping to 0", "value", c.SyncTolerance)
		c.SyncTolerance = 0
	}

	return errs
}

package am

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/teranos/jawala/errors"
)

// MinUserNameLength is the minimum display name length after trimming
const MinUserNameLength = 2

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// An empty backend.url is reported by the commands that need it
	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil {
			return errors.Wrapf(err, "backend.url is not a valid URL: %q", c.Backend.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Newf("backend.url must use http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.Newf("backend.url has no host: %q", c.Backend.URL)
		}
	}

	if c.Backend.TimeoutSeconds < 0 {
		return errors.Newf("backend.timeout_seconds must be >= 0, got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.RequestsPerSecond < 0 {
		return errors.Newf("backend.requests_per_second must be >= 0, got %f", c.Backend.RequestsPerSecond)
	}
	if c.Backend.Burst < 0 {
		return errors.Newf("backend.burst must be >= 0, got %d", c.Backend.Burst)
	}

	if c.Realtime.Enabled {
		if c.Realtime.HeartbeatSeconds < 0 {
			return errors.Newf("realtime.heartbeat_seconds must be >= 0, got %d", c.Realtime.HeartbeatSeconds)
		}
		if c.Realtime.BackoffBaseMillis < 0 {
			return errors.Newf("realtime.backoff_base_millis must be >= 0, got %d", c.Realtime.BackoffBaseMillis)
		}
		if c.Realtime.BackoffMax() < c.Realtime.BackoffBase() {
			return errors.Newf("realtime.backoff_max_seconds (%s) must not be below backoff_base_millis (%s)",
				c.Realtime.BackoffMax(), c.Realtime.BackoffBase())
		}
		if c.Realtime.MaxAttempts < 0 {
			return errors.Newf("realtime.max_attempts must be >= 0, got %d", c.Realtime.MaxAttempts)
		}
	}

	// Empty name is allowed until the first rating prompts for one
	if name := strings.TrimSpace(c.Rating.UserName); c.Rating.UserName != "" && utf8.RuneCountInString(name) < MinUserNameLength {
		return errors.Newf("rating.user_name must be at least %d characters, got %q", MinUserNameLength, c.Rating.UserName)
	}

	if c.Assistant.TimeoutSeconds < 0 {
		return errors.Newf("assistant.timeout_seconds must be >= 0, got %d", c.Assistant.TimeoutSeconds)
	}
	if t := c.Assistant.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errors.Newf("assistant.temperature must be within [0, 2], got %f", *t)
	}

	switch c.Log.Theme {
	case "", "everforest", "gruvbox":
	default:
		return errors.Newf("log.theme must be everforest or gruvbox, got %q", c.Log.Theme)
	}

	return nil
}

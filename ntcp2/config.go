package ntcp2

import "time"

// Config carries the tunables spec.md §6 calls out plus the ambient
// connection-lifecycle settings every Session needs. It follows the
// teacher's builder pattern: defaulted constructor, chainable With*
// setters, and a Validate step run before the config is used.
type Config struct {
	// MinPaddingRequest/MaxPaddingRequest bound SessionRequest's padding.
	MinPaddingRequest int
	MaxPaddingRequest int

	// MinPaddingCreated/MaxPaddingCreated bound SessionCreated's padding.
	MinPaddingCreated int
	MaxPaddingCreated int

	// MinPaddingConfirmed/MaxPaddingConfirmed bound SessionConfirmed's
	// padding.
	MinPaddingConfirmed int
	MaxPaddingConfirmed int

	// ClockSkewTolerance bounds how far a peer's handshake timestamp may
	// drift from the local clock before InvalidTimestamp is raised.
	ClockSkewTolerance time.Duration

	// BlacklistDuration is how long a peer that triggered a fatal error
	// stays blacklisted before the manager will accept a new session.
	BlacklistDuration time.Duration

	// HandshakeTimeout bounds how long a full three-message handshake may
	// take before it is abandoned.
	HandshakeTimeout time.Duration

	// ReadTimeout/WriteTimeout bound individual data-phase socket
	// operations. Zero means no deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// HandshakeRetries is the number of additional handshake attempts
	// after the first failure. 0 disables retries, -1 retries forever.
	HandshakeRetries int

	// RetryBackoff is the base delay between handshake retry attempts;
	// actual delay is RetryBackoff * 2^attempt, capped at 30s.
	RetryBackoff time.Duration
}

// NewConfig returns a Config populated with the padding bounds and clock
// skew tolerance spec.md §6 recommends as sane defaults.
func NewConfig() *Config {
	return &Config{
		MinPaddingRequest:   0,
		MaxPaddingRequest:   64,
		MinPaddingCreated:   0,
		MaxPaddingCreated:   64,
		MinPaddingConfirmed: 0,
		MaxPaddingConfirmed: 64,
		ClockSkewTolerance:  60 * time.Second,
		BlacklistDuration:   10 * time.Minute,
		HandshakeTimeout:    30 * time.Second,
		ReadTimeout:         0,
		WriteTimeout:        0,
		HandshakeRetries:    0,
		RetryBackoff:        1 * time.Second,
	}
}

func (c *Config) WithPaddingRequest(min, max int) *Config {
	c.MinPaddingRequest, c.MaxPaddingRequest = min, max
	return c
}

func (c *Config) WithPaddingCreated(min, max int) *Config {
	c.MinPaddingCreated, c.MaxPaddingCreated = min, max
	return c
}

func (c *Config) WithPaddingConfirmed(min, max int) *Config {
	c.MinPaddingConfirmed, c.MaxPaddingConfirmed = min, max
	return c
}

func (c *Config) WithClockSkewTolerance(d time.Duration) *Config {
	c.ClockSkewTolerance = d
	return c
}

func (c *Config) WithBlacklistDuration(d time.Duration) *Config {
	c.BlacklistDuration = d
	return c
}

func (c *Config) WithHandshakeTimeout(d time.Duration) *Config {
	c.HandshakeTimeout = d
	return c
}

func (c *Config) WithReadTimeout(d time.Duration) *Config {
	c.ReadTimeout = d
	return c
}

func (c *Config) WithWriteTimeout(d time.Duration) *Config {
	c.WriteTimeout = d
	return c
}

func (c *Config) WithHandshakeRetries(retries int) *Config {
	c.HandshakeRetries = retries
	return c
}

func (c *Config) WithRetryBackoff(backoff time.Duration) *Config {
	c.RetryBackoff = backoff
	return c
}

// Validate checks the configuration for internal consistency, decomposed
// into small per-concern checks in the teacher's style.
func (c *Config) Validate() error {
	if err := c.validatePaddingBounds(c.MinPaddingRequest, c.MaxPaddingRequest, "request"); err != nil {
		return err
	}
	if err := c.validatePaddingBounds(c.MinPaddingCreated, c.MaxPaddingCreated, "created"); err != nil {
		return err
	}
	if err := c.validatePaddingBounds(c.MinPaddingConfirmed, c.MaxPaddingConfirmed, "confirmed"); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaddingBounds(min, max int, which string) error {
	if min < 0 {
		return errInvalidArgument("ntcp2", "minimum padding for "+which+" cannot be negative")
	}
	if max < min {
		return errInvalidArgument("ntcp2", "maximum padding for "+which+" cannot be less than minimum")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if c.HandshakeTimeout <= 0 {
		return errInvalidArgument("ntcp2", "handshake timeout must be positive")
	}
	if c.ClockSkewTolerance <= 0 {
		return errInvalidArgument("ntcp2", "clock skew tolerance must be positive")
	}
	if c.BlacklistDuration <= 0 {
		return errInvalidArgument("ntcp2", "blacklist duration must be positive")
	}
	return nil
}

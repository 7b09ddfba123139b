package coordinator

import (
	"fmt"
	"time"
)

// ReloadPolicy decides what Reload does while computations are running.
type ReloadPolicy string

const (
	// ReloadWait blocks new computations and waits for running ones to drain.
	ReloadWait ReloadPolicy = "wait"
	// ReloadFailFast refuses with ErrBusy while anything is pending.
	ReloadFailFast ReloadPolicy = "fail"
)

// Config holds cache and scheduling limits.
type Config struct {
	Capacity       int           `mapstructure:"capacity"`
	TTL            time.Duration `mapstructure:"ttl"`
	FailureBackoff time.Duration `mapstructure:"failure_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReloadPolicy   ReloadPolicy  `mapstructure:"reload_policy"`
}

// DefaultConfig returns 100 entries, a 5 minute TTL, immediate retry of failures and a
// 10 second request ceiling.
func DefaultConfig() Config {
	return Config{
		Capacity:       100,
		TTL:            5 * time.Minute,
		FailureBackoff: 0,
		RequestTimeout: 10 * time.Second,
		ReloadPolicy:   ReloadWait,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("invalid cache capacity: %d", c.Capacity)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl: %s", c.TTL)
	}
	if c.FailureBackoff < 0 {
		return fmt.Errorf("invalid failure backoff: %s", c.FailureBackoff)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %s", c.RequestTimeout)
	}
	switch c.ReloadPolicy {
	case ReloadWait, ReloadFailFast:
	default:
		return fmt.Errorf("invalid reload policy: %q", c.ReloadPolicy)
	}
	return nil
}

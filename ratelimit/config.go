package ratelimit

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config controls the per-submitter quota.
type Config struct {
	// Quota is the number of transactions a submitter may send per window.
	Quota uint32 `mapstructure:"quota" validate:"gt=0"`
	// WindowSize is the number of blocks in one window.
	WindowSize uint64 `mapstructure:"window-size" validate:"gt=0"`
	// BanThreshold is the number of consecutive exceeded windows before a
	// ban. A window within quota resets the count. Zero and one ban on the
	// first excess.
	BanThreshold uint32 `mapstructure:"ban-threshold"`
	// BanWindows is the ban length in windows.
	BanWindows uint64 `mapstructure:"ban-windows" validate:"gt=0"`
	// BannedKey is the tag key that lists banned submitters.
	BannedKey string `mapstructure:"banned-key" validate:"required"`
	// UserTagKey is the tag key carrying the submitter of a delivered
	// transaction.
	UserTagKey string `mapstructure:"user-tag-key" validate:"required"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Quota:        100,
		WindowSize:   10,
		BanThreshold: 3,
		BanWindows:   10,
		BannedKey:    "rateLimitedBanKey",
		UserTagKey:   "userId",
	}
}

var configValidator = validator.New()

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid rate limiter config: %w", err)
	}
	return nil
}

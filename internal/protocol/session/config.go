package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/fragment"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior. A zero InitialDelay disables it.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-transfer reliability knobs.
type Config struct {
	FragmentSize int
	AckTimeout   time.Duration
	// MaxAttempts bounds consecutive unanswered transmissions of one fragment.
	// Zero retries forever.
	MaxAttempts int
	Backoff     BackoffConfig
}

// DefaultConfig matches the peer firmware: 1400 byte fragments, one second
// per acknowledgment, unbounded retries without backoff.
func DefaultConfig() Config {
	return Config{
		FragmentSize: fragment.DefaultSize,
		AckTimeout:   time.Second,
	}
}

// SuggestedBackoff is a starting point for links that drop bursts.
func SuggestedBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     500 * time.Millisecond,
		Jitter:       true,
	}
}

func (c Config) Validate() error {
	if _, err := fragment.NewLayout(c.FragmentSize); err != nil {
		return err
	}
	if c.FragmentSize > frame.MaxPayloadLen {
		return fmt.Errorf("%w: fragment size %d exceeds %d", frame.ErrPayloadTooLarge, c.FragmentSize, frame.MaxPayloadLen)
	}
	if c.AckTimeout <= 0 {
		return errors.New("session: ack timeout must be positive")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("session: max attempts must not be negative: %d", c.MaxAttempts)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return errors.New("session: backoff delays must not be negative")
	}
	return nil
}

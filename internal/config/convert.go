package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/session"
	"github.com/go-redis/redis/v8"
)

// Link converts the section onto link.DefaultConfig; zero fields keep defaults.
func (s LinkSection) Link() (link.Config, error) {
	cfg := link.DefaultConfig()
	cfg.Interface = strings.TrimSpace(s.Interface)
	if cfg.Interface == "" {
		return link.Config{}, fmt.Errorf("interface is required")
	}
	var err error
	if cfg.Src, err = frame.ParseMAC(s.SrcMAC); err != nil {
		return link.Config{}, fmt.Errorf("src_mac: %w", err)
	}
	if cfg.Dst, err = frame.ParseMAC(s.DstMAC); err != nil {
		return link.Config{}, fmt.Errorf("dst_mac: %w", err)
	}
	if s.DataEtherType != 0 {
		cfg.DataType = s.DataEtherType
	}
	if s.RequestEtherType != 0 {
		cfg.RequestType = s.RequestEtherType
	}
	if s.AckEtherType != 0 {
		cfg.AckType = s.AckEtherType
	}
	if s.FrameDelay != "" {
		if cfg.Delay, err = parseDuration("frame_delay", s.FrameDelay); err != nil {
			return link.Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

func (c HostConfig) LinkConfig() (link.Config, error) {
	return c.Link.Link()
}

func (c PeerConfig) LinkConfig() (link.Config, error) {
	return c.Link.Link()
}

func (c HostConfig) SessionConfig() (session.Config, error) {
	s := c.Session
	cfg := session.DefaultConfig()
	if s.FragmentSize != 0 {
		cfg.FragmentSize = s.FragmentSize
	}
	var err error
	if s.AckTimeout != "" {
		if cfg.AckTimeout, err = parseDuration("ack_timeout", s.AckTimeout); err != nil {
			return session.Config{}, err
		}
	}
	cfg.MaxAttempts = s.MaxAttempts
	if s.Backoff.InitialDelay != "" {
		if cfg.Backoff.InitialDelay, err = parseDuration("backoff.initial_delay", s.Backoff.InitialDelay); err != nil {
			return session.Config{}, err
		}
	}
	if s.Backoff.MaxDelay != "" {
		if cfg.Backoff.MaxDelay, err = parseDuration("backoff.max_delay", s.Backoff.MaxDelay); err != nil {
			return session.Config{}, err
		}
	}
	cfg.Backoff.Multiplier = s.Backoff.Multiplier
	cfg.Backoff.Jitter = s.Backoff.Jitter
	return cfg, cfg.Validate()
}

// RedisOptions is nil for the memory backend.
func (j JournalSection) RedisOptions() *redis.Options {
	if !strings.EqualFold(strings.TrimSpace(j.Backend), "redis") {
		return nil
	}
	return &redis.Options{
		Addr:     j.RedisAddr,
		Password: j.RedisPassword,
		DB:       j.RedisDB,
	}
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

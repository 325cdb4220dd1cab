package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LinkSection addresses the raw Ethernet link. Durations are Go duration
// strings ("5ms").
type LinkSection struct {
	Interface        string `toml:"interface"`
	SrcMAC           string `toml:"src_mac"`
	DstMAC           string `toml:"dst_mac"`
	DataEtherType    uint16 `toml:"data_ethertype"`
	RequestEtherType uint16 `toml:"request_ethertype"`
	AckEtherType     uint16 `toml:"ack_ethertype"`
	FrameDelay       string `toml:"frame_delay"`
}

type BackoffSection struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type SessionSection struct {
	FragmentSize int            `toml:"fragment_size"`
	AckTimeout   string         `toml:"ack_timeout"`
	MaxAttempts  int            `toml:"max_attempts"`
	Backoff      BackoffSection `toml:"backoff"`
}

type JournalSection struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

type HostConfig struct {
	Name           string         `toml:"name"`
	ModelPath      string         `toml:"model_path"`
	InputPath      string         `toml:"input_path"`
	InputTensorID  uint32         `toml:"input_tensor_id"`
	ListenRequests bool           `toml:"listen_requests"`
	Resume         bool           `toml:"resume"`
	RequestPoll    string         `toml:"request_poll"`
	StatusAddr     string         `toml:"status_addr"`
	CorsOrigins    []string       `toml:"cors_origins"`
	StatusToken    string         `toml:"status_token"`
	Link           LinkSection    `toml:"link"`
	Session        SessionSection `toml:"session"`
	Journal        JournalSection `toml:"journal"`
}

type PeerConfig struct {
	Name           string      `toml:"name"`
	OutputDir      string      `toml:"output_dir"`
	RequestOnStart bool        `toml:"request_on_start"`
	Link           LinkSection `toml:"link"`
}

func LoadHostConfig(path string) (HostConfig, error) {
	var cfg HostConfig
	if err := loadToml(path, &cfg); err != nil {
		return HostConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "tensorctl"
	}
	if cfg.InputTensorID == 0 {
		cfg.InputTensorID = 99
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = "memory"
	}
	if err := ValidateHostConfig(cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	var cfg PeerConfig
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "tensorpeer"
	}
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateHostConfig(cfg HostConfig) error {
	if strings.TrimSpace(cfg.ModelPath) == "" && !cfg.ListenRequests {
		return fmt.Errorf("host config needs model_path or listen_requests")
	}
	if cfg.ListenRequests && strings.TrimSpace(cfg.InputPath) == "" {
		return fmt.Errorf("host config input_path required when listen_requests is set")
	}
	if cfg.RequestPoll != "" {
		if d, err := parseDuration("request_poll", cfg.RequestPoll); err != nil || d == 0 {
			return fmt.Errorf("host config request_poll must be a positive duration")
		}
	}
	if _, err := cfg.LinkConfig(); err != nil {
		return fmt.Errorf("link invalid: %w", err)
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return fmt.Errorf("session invalid: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Journal.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Journal.RedisAddr) == "" {
			return fmt.Errorf("journal redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("unknown journal backend: %s", cfg.Journal.Backend)
	}
	return nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if _, err := cfg.LinkConfig(); err != nil {
		return fmt.Errorf("link invalid: %w", err)
	}
	return nil
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/config"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/host"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
)

// loadServiceConfig applies the keys present in path onto the host defaults.
func loadServiceConfig(path string) (host.ServiceConfig, config.JournalSection, error) {
	cfg := host.DefaultServiceConfig()
	journal := config.JournalSection{Backend: "memory"}

	var raw config.HostConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return host.ServiceConfig{}, journal, fmt.Errorf("load tensorctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return host.ServiceConfig{}, journal, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("model_path") {
		cfg.ModelPath = strings.TrimSpace(raw.ModelPath)
	}
	if meta.IsDefined("input_path") {
		cfg.InputPath = strings.TrimSpace(raw.InputPath)
	}
	if meta.IsDefined("input_tensor_id") {
		cfg.InputTensorID = raw.InputTensorID
	}
	if meta.IsDefined("listen_requests") {
		cfg.ListenRequests = raw.ListenRequests
	}
	if meta.IsDefined("resume") {
		cfg.Resume = raw.Resume
	}
	if meta.IsDefined("request_poll") {
		d, err := parseDuration("request_poll", raw.RequestPoll)
		if err != nil {
			return host.ServiceConfig{}, journal, err
		}
		cfg.RequestPoll = d
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("status_token") {
		cfg.StatusToken = strings.TrimSpace(raw.StatusToken)
	}

	if err := applyLink(meta, raw.Link, &cfg); err != nil {
		return host.ServiceConfig{}, journal, err
	}
	if err := applySession(meta, raw.Session, &cfg); err != nil {
		return host.ServiceConfig{}, journal, err
	}

	if meta.IsDefined("journal", "backend") {
		journal.Backend = strings.ToLower(strings.TrimSpace(raw.Journal.Backend))
	}
	journal.RedisAddr = strings.TrimSpace(raw.Journal.RedisAddr)
	journal.RedisPassword = raw.Journal.RedisPassword
	journal.RedisDB = raw.Journal.RedisDB
	journal.Prefix = raw.Journal.Prefix
	switch journal.Backend {
	case "memory":
	case "redis":
		if journal.RedisAddr == "" {
			return host.ServiceConfig{}, journal, fmt.Errorf("journal.redis_addr required for redis backend")
		}
	default:
		return host.ServiceConfig{}, journal, fmt.Errorf("unknown journal backend: %q", journal.Backend)
	}

	return cfg, journal, nil
}

func applyLink(meta toml.MetaData, raw config.LinkSection, cfg *host.ServiceConfig) error {
	if meta.IsDefined("link", "interface") {
		cfg.Link.Interface = strings.TrimSpace(raw.Interface)
	}
	if meta.IsDefined("link", "src_mac") {
		mac, err := frame.ParseMAC(strings.TrimSpace(raw.SrcMAC))
		if err != nil {
			return fmt.Errorf("parse link.src_mac: %w", err)
		}
		cfg.Link.Src = mac
	}
	if meta.IsDefined("link", "dst_mac") {
		mac, err := frame.ParseMAC(strings.TrimSpace(raw.DstMAC))
		if err != nil {
			return fmt.Errorf("parse link.dst_mac: %w", err)
		}
		cfg.Link.Dst = mac
	}
	if meta.IsDefined("link", "data_ethertype") {
		cfg.Link.DataType = raw.DataEtherType
	}
	if meta.IsDefined("link", "request_ethertype") {
		cfg.Link.RequestType = raw.RequestEtherType
	}
	if meta.IsDefined("link", "ack_ethertype") {
		cfg.Link.AckType = raw.AckEtherType
	}
	if meta.IsDefined("link", "frame_delay") {
		d, err := parseDuration("link.frame_delay", raw.FrameDelay)
		if err != nil {
			return err
		}
		cfg.Link.Delay = d
	}
	return nil
}

func applySession(meta toml.MetaData, raw config.SessionSection, cfg *host.ServiceConfig) error {
	if meta.IsDefined("session", "fragment_size") {
		cfg.Session.FragmentSize = raw.FragmentSize
	}
	if meta.IsDefined("session", "ack_timeout") {
		d, err := parseDuration("session.ack_timeout", raw.AckTimeout)
		if err != nil {
			return err
		}
		cfg.Session.AckTimeout = d
	}
	if meta.IsDefined("session", "max_attempts") {
		cfg.Session.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("session", "backoff", "initial_delay") {
		d, err := parseDuration("session.backoff.initial_delay", raw.Backoff.InitialDelay)
		if err != nil {
			return err
		}
		cfg.Session.Backoff.InitialDelay = d
	}
	if meta.IsDefined("session", "backoff", "max_delay") {
		d, err := parseDuration("session.backoff.max_delay", raw.Backoff.MaxDelay)
		if err != nil {
			return err
		}
		cfg.Session.Backoff.MaxDelay = d
	}
	if meta.IsDefined("session", "backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("session", "backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}
	return cfg.Session.Validate()
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/config"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/logging"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/observability"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/peer"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/tensorpeer/config.toml", "peer config path")
	request := flag.Bool("request", false, "send a request frame after starting")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("tensorpeer")

	if err := run(*configPath, *request); err != nil {
		fmt.Fprintf(os.Stderr, "tensorpeer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, request bool) error {
	cfg, err := config.LoadPeerConfig(configPath)
	if err != nil {
		return err
	}
	linkCfg, err := cfg.LinkConfig()
	if err != nil {
		return err
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := link.OpenPacket(linkCfg)
	if err != nil {
		return err
	}
	l, err := link.New(conn, linkCfg)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer l.Close()

	r := peer.NewReceiver(l, func(t peer.Tensor) {
		if cfg.OutputDir == "" {
			return
		}
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("tensor_%d.bin", t.ID))
		if err := os.WriteFile(path, t.Payload, 0o644); err != nil {
			log.Error().Err(err).Str("path", path).Msg("write tensor failed")
			return
		}
		log.Info().Uint32("tensor_id", t.ID).Str("path", path).Msg("tensor saved")
	})

	if request || cfg.RequestOnStart {
		if err := r.RequestTransfer(ctx); err != nil {
			return err
		}
		log.Info().Msg("request sent")
	}
	log.Info().Str("node", cfg.Name).Str("interface", linkCfg.Interface).Msg("tensorpeer listening")
	return r.Serve(ctx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/config"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/host"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/journal"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/logging"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/tensorctl/config.toml", "host config path")
	model := flag.String("model", "", "model container to send (overrides model_path)")
	noListen := flag.Bool("no-listen", false, "exit after sending the model")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("tensorctl")

	if err := run(*configPath, *model, *noListen); err != nil {
		fmt.Fprintf(os.Stderr, "tensorctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, model string, noListen bool) error {
	cfg, journalCfg, err := loadServiceConfig(configPath)
	if err != nil {
		return err
	}
	if model != "" {
		cfg.ModelPath = model
	}
	if noListen {
		cfg.ListenRequests = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openJournal(ctx, journalCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	conn, err := link.OpenPacket(cfg.Link)
	if err != nil {
		return err
	}
	l, err := link.New(conn, cfg.Link)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer l.Close()

	svc, err := host.NewService(cfg, l, store)
	if err != nil {
		return err
	}
	log.Info().Str("run_id", svc.RunID()).Str("journal", journalCfg.Backend).Msg("tensorctl starting")
	return svc.Run(ctx)
}

func openJournal(ctx context.Context, cfg config.JournalSection) (journal.Store, func(), error) {
	opts := cfg.RedisOptions()
	if opts == nil {
		return journal.NewMemory(), func() {}, nil
	}
	r, err := journal.DialRedis(ctx, opts, cfg.Prefix)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

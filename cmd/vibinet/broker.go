package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiovibi/vibinet/internal/broker"
)

var (
	brokerAddr    string
	brokerDataDir string
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the append-only WebSocket broker",
	RunE:  runBroker,
}

func init() {
	cfg := broker.DefaultConfig()
	brokerCmd.Flags().StringVar(&brokerAddr, "addr", cfg.Addr, "listen address")
	brokerCmd.Flags().StringVar(&brokerDataDir, "data-dir", cfg.DataDir, "directory holding per-room NDJSON logs")
}

func runBroker(cmd *cobra.Command, args []string) error {
	log := newLogger()

	srv, err := broker.New(broker.Config{Addr: brokerAddr, DataDir: brokerDataDir}, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down broker")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

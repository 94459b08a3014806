package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/devserver"
)

var serveDevCmd = &cobra.Command{
	Use:   "serve-dev",
	Short: "Run an in-memory auth server for local development",
	Long: `Run an in-memory implementation of the /api/auth endpoints.
Accounts are lost on exit and OTPs are written to the log instead of
being mailed. Do not expose it to a network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devCfg := cfg.Dev
		if addr := mustGetString(cmd, "addr"); addr != "" {
			devCfg.Addr = addr
		}

		srv, err := devserver.New(devCfg, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveDevCmd.Flags().String("addr", "", "Listen address (overrides devserver.addr)")
	rootCmd.AddCommand(serveDevCmd)
}

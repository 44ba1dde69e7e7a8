package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/sandbox"
)

var (
	sandboxHost string
	sandboxPort int
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local Broker Eyes backend",
	Long: `Run an in-memory backend that serves every endpoint the client uses,
seeded with sample IBs and client accounts.

Examples:
  broker-eyes sandbox
  broker-eyes sandbox --port 9090
  broker-eyes --api http://127.0.0.1:9090 login -e admin@brokereyes.local -p admin123`,
	RunE: runSandbox,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)

	sandboxCmd.Flags().StringVar(&sandboxHost, "host", "", "Listen host (overrides SANDBOX_HOST)")
	sandboxCmd.Flags().IntVarP(&sandboxPort, "port", "p", 0, "Listen port (overrides SANDBOX_PORT)")
}

func runSandbox(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if sandboxHost != "" {
		cfg.Sandbox.Host = sandboxHost
	}
	if sandboxPort != 0 {
		cfg.Sandbox.Port = sandboxPort
	}

	srv := sandbox.NewServer(&cfg.Sandbox, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(interrupt)

	select {
	case err := <-errCh:
		return err
	case sig := <-interrupt:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Sandbox shutdown error")
		return err
	}
	log.Info("Sandbox stopped")
	return nil
}

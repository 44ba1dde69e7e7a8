package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Aamir1055/BrokerEye-sub005/internal/app"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
)

var (
	verbose  bool
	logLevel string
	apiURL   string
	ibAPIURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "broker-eyes",
	Short: "Broker Eyes back-office client",
	Long: `Command line client for the Broker Eyes brokerage back office.

Features:
• Broker login with optional two-factor authentication
• Transparent access token refresh shared by every request
• IB commission listing and percentage updates (single and bulk)
• IB selection that scopes client, position and deal listings
• Local sandbox backend for trying everything offline`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "General API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&ibAPIURL, "ib-api", "", "IB API base URL (overrides API_IB_BASE_URL)")
}

// loadConfig loads .env and the environment, then applies the global flags
func loadConfig() (*config.Config, *logrus.Logger, error) {
	envFile, envErr := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if apiURL != "" {
		cfg.API.BaseURL = apiURL
		if ibAPIURL == "" {
			cfg.API.IBBaseURL = apiURL
		}
	}
	if ibAPIURL != "" {
		cfg.API.IBBaseURL = ibAPIURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if envErr == nil && envFile != "" {
		log.WithField("file", envFile).Debug("Loaded .env")
	}
	return cfg, log, nil
}

// bootstrap builds and starts the application for a single command
func bootstrap(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	out := cmd.ErrOrStderr()
	application := app.New(cfg, log, app.WithLogoutHook(func(loginURL string) {
		fmt.Fprintf(out, "Session expired. Log in again with `broker-eyes login` (%s).\n", loginURL)
	}))

	ctx := cmd.Context()
	if err := application.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Stop()
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return application, nil
}

// withApp runs fn with a started application and stops it afterwards
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Stop()
		return fn(cmd, args, a)
	}
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

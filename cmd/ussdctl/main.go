package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/app"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/config"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ussdctl",
		Short:         "Operator tooling for the USSD credit service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(partnersCmd())
	rootCmd.AddCommand(scoreCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// env holds what every store-backed command needs.
type env struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	stores *app.Stores
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	stores, err := app.OpenStores(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return &env{cfg: cfg, logger: lg.Sugar(), stores: stores}, nil
}

func (e *env) Close() {
	_ = e.stores.Close()
	_ = e.logger.Sync()
}

func (e *env) build(ctx context.Context) (*app.App, error) {
	return app.New(ctx, e.cfg, e.stores, nil, e.logger)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.stores.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Mark idle active sessions as EXPIRED",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.Sessions.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
			return nil
		},
	})
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "SMS outbox maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Send pending SMS once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			sent, failed, err := a.Dispatcher.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d\n", sent, failed)
			return nil
		},
	})
	return cmd
}

func partnersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partners",
		Short: "Partner bank and wallet tooling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Test the connection to every configured partner",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			return printChecks(cmd, a.Gateway.TestAll(cmd.Context()))
		},
	})
	return cmd
}

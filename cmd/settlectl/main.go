package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/events"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/app"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/config"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operator tooling for the kanso discipline engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")

	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newSettleCmd(&configPath))
	root.AddCommand(newCoefficientsCmd(&configPath))
	root.AddCommand(newTokenCmd(&configPath))
	root.AddCommand(newWatchCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Server.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func loadApp(ctx context.Context, path string) (*app.App, error) {
	cfg, log, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := repository.OpenPostgres(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN(), 2, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(db); err != nil {
				return err
			}
			version, err := repository.SchemaVersion(db)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newSettleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <report-id>",
		Short: "Settle a daily report synchronously",
		Long: "Runs the settlement engine for one report and prints the result. " +
			"Re-running a settled report is a no-op reported as already_settled.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			res, procErr := a.Processor.Process(cmd.Context(), args[0])
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if procErr != nil && !res.AlreadySettled {
				return procErr
			}
			return nil
		},
	}
}

func newCoefficientsCmd(configPath *string) *cobra.Command {
	coefficients := &cobra.Command{
		Use:   "coefficients",
		Short: "Inspect or store engine coefficients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			coeffs, err := a.ConfigProvider.GetCoefficients(cmd.Context())
			if err != nil {
				return err
			}
			thresholds, err := a.ConfigProvider.GetThresholds(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"source":       a.Cfg.Engine.Source,
				"coefficients": coeffs,
				"thresholds":   thresholds,
			})
		},
	}

	coefficients.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Write the configured coefficients and thresholds to the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := repository.OpenPostgres(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN(), 2, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewPostgresConfigRepository(db)
			if err := repo.SaveCoefficients(cmd.Context(), cfg.Engine.Coefficients); err != nil {
				return err
			}
			for key, th := range cfg.Engine.ThresholdSet() {
				if th.Policy == "" {
					th.Policy = domain.PolicyGeneric
				}
				if err := repo.SaveThreshold(cmd.Context(), key, th); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored coefficients and %d thresholds\n", len(cfg.Engine.Thresholds))
			return nil
		},
	})
	return coefficients
}

func newTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream settlement results published on redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if !cfg.Redis.Enabled {
				return fmt.Errorf("watch requires redis.enabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rdb, err := cache.NewRedisClient(ctx, cache.Config{
				Host:     cfg.Redis.Host,
				Port:     cfg.Redis.Port,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return err
			}
			defer rdb.Close()

			out := cmd.OutOrStdout()
			notifier := events.NewRedisNotifier(rdb, cfg.Redis.Channel, log)
			err = notifier.Subscribe(ctx, func(res domain.SettlementResult) {
				_, _ = fmt.Fprintf(out, "%s user=%s date=%s state=%s health=%.2f delta=%+.2f xp=%+d\n",
					res.ReportID, res.UserID, res.ReportDate.Format("2006-01-02"), res.State,
					res.NewHealth, res.DeltaHealth, res.XPGained)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

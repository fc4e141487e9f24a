package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	auditservice "gatekeeper/internal/audit/service"
	auditstore "gatekeeper/internal/audit/store"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/database"
	"gatekeeper/internal/platform/logger"
	"gatekeeper/migrations"
)

// storeOpener returns the audit store and a release func for it.
type storeOpener func(ctx context.Context, cfg *config.Config, log *slog.Logger) (auditservice.Store, func(), error)

type rootOptions struct {
	envFile string
	pretty  bool
}

func newRootCmd(open storeOpener) *cobra.Command {
	opts := &rootOptions{}
	var svc *auditservice.Service
	var release func()

	root := &cobra.Command{
		Use:   "auditctl",
		Short: "Audit log maintenance and reporting",
		Long: `auditctl reads and maintains the gatekeeper audit log directly.

Examples:
  # Export one day as CSV
  auditctl export --start 2026-03-01 --end 2026-03-02 --format csv -o audit.csv

  # Run one retention pass
  auditctl archive

  # Compliance summary for March
  auditctl compliance --start 2026-03-01 --end 2026-04-01`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var cfgFiles []string
			if opts.envFile != "" {
				cfgFiles = append(cfgFiles, opts.envFile)
			}
			cfg, err := config.Load(cfgFiles...)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Server.LogLevel)
			store, closeStore, err := open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			release = closeStore
			svc = auditservice.New(store, auditservice.Config{
				QueryMaxLimit: cfg.Audit.QueryMaxLimit,
				ArchiveAfter:  cfg.Audit.ArchiveAfter,
				Retention:     cfg.Audit.Retention,
				ReportTopN:    cfg.Audit.ReportTopN,
				MaxRange:      cfg.Audit.ReportMaxRange,
			}, auditservice.WithLogger(log))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if release != nil {
				release()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "optional .env file to load before the environment")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", true, "indent JSON output")

	service := func() *auditservice.Service { return svc }
	root.AddCommand(
		newExportCmd(service),
		newArchiveCmd(service, opts),
		newReportCmd(service, opts),
		newComplianceCmd(service, opts),
	)
	return root
}

func openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (auditservice.Store, func(), error) {
	if cfg.InMemory() {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, pool.DB(), migrations.FS, log); err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
	}
	return auditstore.NewPostgres(pool.DB()), func() { _ = pool.Close() }, nil
}

// rangeFlags holds the half-open [start, end) window shared by every read command.
type rangeFlags struct {
	start string
	end   string
}

func (r *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "", "range start, RFC 3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&r.end, "end", "", "range end, exclusive (required)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func (r *rangeFlags) parse() (time.Time, time.Time, error) {
	start, err := parseTime(r.start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := parseTime(r.end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	return t, nil
}

func printJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Brettillian123/email-scraper-verifier-sub000/config"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/bootstrap"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/data"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"recompute-evidence": {
			name:        "recompute-evidence",
			description: "Recompute a domain's delivery evidence and apply status upgrades",
			run:         runRecomputeEvidence,
		},
		"age-test-sends": {
			name:        "age-test-sends",
			description: "Mark stale pending test sends as delivered-assumed",
			run:         runAgeTestSends,
		},
		"dead-letters": {
			name:        "dead-letters",
			description: "List recent dead-lettered verification attempts",
			run:         runDeadLetters,
		},
		"clear-unproven": {
			name:        "clear-unproven",
			description: "Delete old generated addresses without delivery evidence for a domain",
			run:         runClearUnproven,
		},
		"job-stats": {
			name:        "job-stats",
			description: "Show queue depth per job type",
			run:         runJobStats,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: verifier-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0)
	cmds := commands()
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(os.Stdout, "  %-22s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runRecomputeEvidence(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("recompute-evidence", flag.ContinueOnError)
	domain := fs.String("domain", "", "domain to recompute (required)")
	timeout := fs.Duration("timeout", 2*time.Minute, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *domain == "" {
		return errors.New("-domain is required")
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		evidence, err := newEvidenceService(cmdCtx, db)
		if err != nil {
			return err
		}

		status, err := evidence.DomainStatus(ctx, *domain)
		if err != nil {
			return fmt.Errorf("classify domain %q: %w", *domain, err)
		}

		upgraded, err := evidence.ApplyUpgrades(ctx, *domain)
		if err != nil {
			return fmt.Errorf("apply upgrades for %q: %w", *domain, err)
		}

		return writef(os.Stdout, "domain=%s catch_all_status=%s rows_upgraded=%d\n", *domain, status, upgraded)
	})
}

func runAgeTestSends(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("age-test-sends", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 2*time.Minute, "command timeout")
	window := fs.Duration("window", 0, "override the waiting window (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		waiting := cmdCtx.Config.TestSend.WaitingWindow
		if *window > 0 {
			waiting = *window
		}
		evidence, err := service.NewEvidenceService(service.EvidenceServiceOptions{
			Results:       data.NewVerificationRepo(db, cmdCtx.Logger),
			WaitingWindow: waiting,
			Logger:        cmdCtx.Logger,
		})
		if err != nil {
			return fmt.Errorf("wire evidence service: %w", err)
		}

		aged, err := evidence.AgePendingTestSends(ctx)
		if err != nil {
			return fmt.Errorf("age pending test sends: %w", err)
		}
		return writef(os.Stdout, "rows_aged=%d waiting_window=%s\n", aged, waiting)
	})
}

func runDeadLetters(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("dead-letters", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum rows to list")
	timeout := fs.Duration("timeout", time.Minute, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		letters, err := data.NewDeadLetterRepo(db).ListRecent(ctx, *limit)
		if err != nil {
			return fmt.Errorf("list dead letters: %w", err)
		}
		if len(letters) == 0 {
			return writeln(os.Stdout, "no dead letters")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if err := writeln(w, "CREATED\tEMAIL\tMX HOST\tATTEMPTS\tERROR"); err != nil {
			return err
		}
		for _, letter := range letters {
			if err := writef(w, "%s\t%s\t%s\t%d\t%s\n",
				letter.CreatedAt.Format(time.RFC3339),
				letter.Email,
				letter.MXHost,
				letter.Attempts,
				letter.Error,
			); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush table: %w", err)
		}
		return nil
	})
}

func runClearUnproven(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-unproven", flag.ContinueOnError)
	domain := fs.String("domain", "", "domain to clean up (required)")
	olderThan := fs.Duration("older-than", 14*24*time.Hour, "minimum row age")
	timeout := fs.Duration("timeout", 2*time.Minute, "command timeout")
	yes := fs.Bool("yes", false, "skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *domain == "" {
		return errors.New("-domain is required")
	}
	if !*yes {
		return errors.New("refusing to delete without -yes")
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		evidence, err := newEvidenceService(cmdCtx, db)
		if err != nil {
			return err
		}

		deleted, err := evidence.CleanupUnprovenGenerated(ctx, *domain, *olderThan)
		if err != nil {
			return fmt.Errorf("cleanup %q: %w", *domain, err)
		}
		return writef(os.Stdout, "domain=%s rows_deleted=%d\n", *domain, deleted)
	})
}

func runJobStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-stats", flag.ContinueOnError)
	timeout := fs.Duration("timeout", time.Minute, "command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	jobTypes := []model.JobType{
		model.JobTypeDiscovery,
		model.JobTypeGenerate,
		model.JobTypeVerifySweep,
		model.JobTypeProbe,
		model.JobTypeBounceApply,
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if err := writeln(w, "TYPE\tPENDING\tRUNNING\tCOMPLETED\tFAILED"); err != nil {
			return err
		}
		for _, jobType := range jobTypes {
			stats, err := repo.Stats(ctx, jobType)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", jobType, err)
			}
			if err := writef(w, "%s\t%d\t%d\t%d\t%d\n",
				jobType, stats.Pending, stats.Running, stats.Completed, stats.Failed,
			); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush table: %w", err)
		}
		return nil
	})
}

func newEvidenceService(cmdCtx *commandContext, db *sql.DB) (*service.EvidenceService, error) {
	evidence, err := service.NewEvidenceService(service.EvidenceServiceOptions{
		Results:       data.NewVerificationRepo(db, cmdCtx.Logger),
		WaitingWindow: cmdCtx.Config.TestSend.WaitingWindow,
		Logger:        cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire evidence service: %w", err)
	}
	return evidence, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

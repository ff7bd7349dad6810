package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"podvault/internal/config"
	"podvault/internal/db"
	"podvault/internal/handlers"
	"podvault/internal/metrics"
	"podvault/internal/notify"
	"podvault/internal/otel"
	"podvault/internal/payments"
	"podvault/internal/pods"
	"podvault/internal/scheduler"
	"podvault/internal/version"
	"podvault/pkg/bus"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           version.Name,
		Short:         "Rotating savings pod lifecycle and payout engine",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	return cmd
}

func setup(ctx context.Context) (config.Config, error) {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	return config.Load(ctx)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			database, err := db.Connect(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()
			return db.Migrate(ctx, database)
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			database, err := db.Connect(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()
			return db.Seed(ctx, database, cfg.PlanCatalogPath)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: HTTP surface plus background schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cleanup, err := otel.Init(ctx, version.Name, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown otel")
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(ctx, database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := db.Seed(ctx, database, cfg.PlanCatalogPath); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}

	var events notify.Events = notify.Nop{}
	if cfg.NATSURL != "" {
		eventBus, err := bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer eventBus.Close()
		events = notify.NewBusEvents(eventBus, log.Logger)
	}

	var processor payments.Processor
	if cfg.ProcessorBaseURL != "" {
		processor, err = payments.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorToken, nil)
		if err != nil {
			return fmt.Errorf("payment processor client: %w", err)
		}
	} else {
		log.Warn().Msg("no payment processor configured; debit and payout schedulers disabled")
	}

	svc := pods.New(database, pods.Options{
		ChecksumKey: []byte(cfg.ChecksumKey),
		Events:      events,
		Processor:   processor,
		Logger:      log.Logger,
	})

	startSchedulers(ctx, cfg, svc)

	router := handlers.Router(handlers.RouterOptions{
		Service:        svc,
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookSecret:  cfg.WebhookSecret,
		Logger:         log.Logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting " + version.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startSchedulers launches the four background drivers. Each one is
// self-rescheduling: a tick computes the delay to its own next run, so slow
// ticks never overlap.
func startSchedulers(ctx context.Context, cfg config.Config, svc *pods.Service) {
	clock := scheduler.RealClock()
	onError := scheduler.WithErrorHook(func(name string) {
		metrics.SchedulerTickErrors.WithLabelValues(name).Inc()
	})

	lifecycle := scheduler.New("lifecycle-refresh", clock, cfg.LifecycleInitialDelay,
		func(ctx context.Context, now time.Time) (time.Duration, error) {
			return cfg.LifecycleInterval, svc.RefreshPods(ctx, &now)
		}, log.Logger, onError)
	go lifecycle.Run(ctx)

	sweep := scheduler.New("due-notification-sweep", clock, cfg.NotifySweepInterval,
		func(ctx context.Context, now time.Time) (time.Duration, error) {
			return cfg.NotifySweepInterval, svc.RunDueNotifications(ctx, now)
		}, log.Logger, onError)
	go sweep.Run(ctx)

	if cfg.ProcessorBaseURL == "" {
		return
	}

	debit := scheduler.New("contribution-debit", clock,
		scheduler.UntilUTCHour(clock.Now(), cfg.DebitHourUTC),
		func(ctx context.Context, now time.Time) (time.Duration, error) {
			err := svc.RunContributionDebits(ctx, now)
			return scheduler.UntilUTCHour(clock.Now(), cfg.DebitHourUTC), err
		}, log.Logger, onError)
	go debit.Run(ctx)

	payout := scheduler.New("payout-credit", clock,
		scheduler.UntilUTCHour(clock.Now(), cfg.PayoutHourUTC),
		func(ctx context.Context, now time.Time) (time.Duration, error) {
			err := svc.RunPayoutCredits(ctx, now)
			return scheduler.UntilUTCHour(clock.Now(), cfg.PayoutHourUTC), err
		}, log.Logger, onError)
	go payout.Run(ctx)
}

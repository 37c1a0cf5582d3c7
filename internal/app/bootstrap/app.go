package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bsm/redislock"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dental-whatsapp-bot/internal/api/router"
	"github.com/wolfman30/dental-whatsapp-bot/internal/assistant"
	"github.com/wolfman30/dental-whatsapp-bot/internal/availability"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	appconfig "github.com/wolfman30/dental-whatsapp-bot/internal/config"
	"github.com/wolfman30/dental-whatsapp-bot/internal/events"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
	"github.com/wolfman30/dental-whatsapp-bot/internal/http/handlers"
	"github.com/wolfman30/dental-whatsapp-bot/internal/jobs"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/notify"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/internal/waitlist"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Options carries collaborators the caller builds itself.
type Options struct {
	Logger *logging.Logger
	// SES is used when the email provider resolves to SES.
	SES notify.SESAPI
	// Sender replaces the Cloud API client. Tests use it.
	Sender   whatsapp.Sender
	Clock    clock.Clock
	Registry *prometheus.Registry
}

// App is the wired process: the HTTP surface, the dispatcher behind the
// webhook and the cron runner.
type App struct {
	Router    http.Handler
	Assistant *assistant.Handler
	Runner    *jobs.Runner
	Clinic    *clinic.Clinic

	closers []func() error
}

// New builds every collaborator named by cfg.
func New(ctx context.Context, cfg *appconfig.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: clinic timezone: %w", err)
	}
	c := clinic.Default(loc)
	c.AgentPhones = whatsapp.NormalizePhones(cfg.AgentPhones)
	app.Clinic = c
	catalog := messages.NewCatalog(c)

	messagingMetrics := metrics.NewMessagingMetrics(reg)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
	}
	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
	}
	googleOpts, err := BuildGoogleOptions(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := BuildLedger(ctx, cfg, loc, pool, googleOpts, logger)
	if err != nil {
		return nil, err
	}
	cal, err := BuildCalendar(ctx, cfg, loc, googleOpts, logger)
	if err != nil {
		return nil, err
	}

	sender := opts.Sender
	if sender == nil {
		client := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID, logger).
			WithRateLimit(cfg.WhatsAppSendRate, cfg.WhatsAppSendBurst).
			WithMetrics(messagingMetrics)
		if cfg.WhatsAppAPIBase != "" {
			client = client.WithGraphAPIBase(cfg.WhatsAppAPIBase)
		}
		sender = client
	}

	oracle := availability.NewOracle(ledger, cal, c, cfg.SlotConflictWindow, logger)
	finalizer := booking.NewFinalizer(ledger, cal, oracle, c, catalog, sender, logger).
		WithClock(clk).
		WithMetrics(bookingMetrics).
		WithConfirmationDelay(cfg.ConfirmationDelay)
	coordinator := booking.NewCoordinator(ledger, cal, oracle, c, logger).
		WithClock(clk).
		WithMetrics(bookingMetrics)
	scheduler := waitlist.NewScheduler(ledger, oracle, coordinator, c, catalog, sender, waitlist.Config{
		PerWave:   cfg.UpgradePerWave,
		Delay:     cfg.UpgradeWaveDelay,
		Lookahead: cfg.UpgradeLookahead,
		Randomize: cfg.UpgradeRandomize,
	}, logger).WithClock(clk).WithMetrics(bookingMetrics)
	coordinator.SetNotifier(scheduler)

	funnelStore := BuildFunnelStore(cfg, redisClient, logger)
	dedup := BuildDedupStore(cfg, redisClient, pool, logger)
	leadRepo := BuildLeadsRepository(pool, ledger.Sheets, logger)
	notifier := notify.NewService(sender, catalog, BuildEmailSender(cfg, opts.SES, logger), notify.Config{
		AgentPhones: c.AgentPhones,
		InboxEmail:  cfg.AdvisorInboxEmail,
	}, logger)

	app.Assistant = assistant.NewHandler(assistant.Deps{
		Clinic:       c,
		Catalog:      catalog,
		Sender:       sender,
		Funnel:       funnel.NewTracker(funnelStore, clk),
		Slots:        oracle,
		Booker:       finalizer,
		Appointments: coordinator,
		Upgrades:     scheduler,
		Leads:        leadRepo,
		Notifier:     notifier,
		Dedup:        dedup,
		Language:     clinic.ParseLanguage(cfg.DefaultLanguage),
	}, logger).WithClock(clk).WithMetrics(messagingMetrics).WithTimeout(cfg.MessageTimeout)

	reminders := jobs.NewReminders(ledger, c, catalog, sender, logger).
		WithClock(clk).
		WithMetrics(bookingMetrics)
	nudger := funnel.NewNudger(funnelStore, ledger, catalog, sender, funnel.NudgeConfig{
		First:  cfg.NudgeFirstAfter,
		Second: cfg.NudgeSecondAfter,
		MaxAge: cfg.NudgeMaxAge,
	}, logger).WithClock(clk)
	app.Runner = jobs.NewRunner(logger).
		Add(jobs.Jobs(reminders, nudger, jobs.Schedule{
			Sweep:    cfg.SweepInterval,
			Complete: cfg.CompleteInterval,
		})...).
		WithMetrics(bookingMetrics)
	if pg, ok := dedup.(*events.PostgresProcessedStore); ok {
		app.Runner.Add(pruneJob(pg, clk, cfg.DedupTTL, logger))
	}
	if cfg.JobLocksEnabled {
		if redisClient == nil {
			logger.Warn("JOB_LOCKS_ENABLED but redis is unavailable; sweeps run unlocked")
		} else {
			app.Runner.WithLocker(redislock.New(redisClient))
		}
	}

	webhook := whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, app.Assistant.Accept, logger, messagingMetrics)
	app.Router = router.New(&router.Config{
		Logger:               logger,
		Webhook:              webhook,
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookRatePerSecond: cfg.WebhookRateLimit,
		WebhookRateBurst:     cfg.WebhookRateBurst,
		AdminJWTSecret:       cfg.AdminJWTSecret,
		AdminJWTIssuer:       cfg.AdminJWTIssuer,
		LeadsHandler:         leads.NewHandler(leadRepo, logger),
		AdminAppointments:    handlers.NewAdminAppointmentsHandler(ledger, coordinator, c, logger),
	})

	logger.Info("bootstrap complete",
		"ledger", cfg.LedgerBackend,
		"calendar", cfg.CalendarBackend,
		"funnel_store", cfg.FunnelStore,
		"dedup_store", cfg.DedupStore,
		"redis", redisClient != nil,
		"postgres", pool != nil,
	)
	return app, nil
}

// Close releases the Redis client and the Postgres pool.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

// pruneJob trims processed_events to the dedup TTL once an hour.
func pruneJob(store *events.PostgresProcessedStore, clk clock.Clock, ttl time.Duration, logger *logging.Logger) jobs.Job {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return jobs.Job{
		Name:     "dedup-prune",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			n, err := store.Prune(ctx, clk.Now().Add(-ttl))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Debug("pruned processed events", "deleted", n)
			}
			return nil
		},
	}
}

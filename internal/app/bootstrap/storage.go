package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	appconfig "github.com/wolfman30/dental-whatsapp-bot/internal/config"
	"github.com/wolfman30/dental-whatsapp-bot/internal/events"
	"github.com/wolfman30/dental-whatsapp-bot/internal/funnel"
	"github.com/wolfman30/dental-whatsapp-bot/internal/gsuite"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Ledger is the appointment ledger plus the spreadsheet, when the ledger
// lives in Sheets. Leads are mirrored to the same spreadsheet.
type Ledger struct {
	appointments.Ledger
	Sheets *gsuite.SheetsLedger
}

// BuildLedger selects the appointment ledger backend.
func BuildLedger(ctx context.Context, cfg *appconfig.Config, loc *time.Location, pool *pgxpool.Pool, opts []option.ClientOption, logger *logging.Logger) (Ledger, error) {
	switch cfg.LedgerBackend {
	case "sheets":
		if cfg.SheetID == "" {
			return Ledger{}, fmt.Errorf("bootstrap: SHEET_ID is required for the sheets ledger")
		}
		sheets, err := gsuite.NewSheetsLedger(ctx, cfg.SheetID, loc, logger, opts...)
		if err != nil {
			return Ledger{}, fmt.Errorf("bootstrap: sheets ledger: %w", err)
		}
		return Ledger{Ledger: sheets, Sheets: sheets}, nil
	case "postgres":
		if pool == nil {
			return Ledger{}, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres ledger")
		}
		return Ledger{Ledger: appointments.NewPostgresLedger(pool, loc)}, nil
	case "memory":
		logger.Warn("appointment ledger kept in memory; rows are lost on restart")
		return Ledger{Ledger: appointments.NewMemoryLedger()}, nil
	default:
		return Ledger{}, fmt.Errorf("bootstrap: unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
}

// BuildCalendar selects the calendar backend.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, loc *time.Location, opts []option.ClientOption, logger *logging.Logger) (calendar.Calendar, error) {
	switch cfg.CalendarBackend {
	case "google":
		if cfg.CalendarID == "" {
			return nil, fmt.Errorf("bootstrap: CALENDAR_ID is required for the google calendar")
		}
		cal, err := gsuite.NewCalendar(ctx, cfg.CalendarID, loc, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
		}
		return cal, nil
	case "memory":
		return calendar.NewMemory(loc), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown CALENDAR_BACKEND %q", cfg.CalendarBackend)
	}
}

// BuildFunnelStore selects where funnel progress lives. Redis falls back to
// memory when the client is unavailable.
func BuildFunnelStore(cfg *appconfig.Config, client *redis.Client, logger *logging.Logger) funnel.Store {
	if cfg.FunnelStore == "redis" {
		if client != nil {
			return funnel.NewRedisStore(client, cfg.FunnelTTL)
		}
		logger.Warn("FUNNEL_STORE=redis but redis is unavailable; using memory")
	}
	return funnel.NewMemoryStore()
}

// BuildDedupStore selects the webhook dedup store.
func BuildDedupStore(cfg *appconfig.Config, client *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) events.ProcessedStore {
	switch cfg.DedupStore {
	case "redis":
		if client != nil {
			return events.NewRedisProcessedStore(client, cfg.DedupTTL)
		}
		logger.Warn("DEDUP_STORE=redis but redis is unavailable; using memory")
	case "postgres":
		if pool != nil {
			return events.NewPostgresProcessedStore(pool)
		}
		logger.Warn("DEDUP_STORE=postgres but DATABASE_URL is unset; using memory")
	}
	return events.NewMemoryProcessedStore(events.DefaultMemoryCapacity)
}

// BuildLeadsRepository keeps leads in Postgres when available and mirrors
// them to the spreadsheet when the ledger is in Sheets.
func BuildLeadsRepository(pool *pgxpool.Pool, sheets *gsuite.SheetsLedger, logger *logging.Logger) leads.Repository {
	var repo leads.Repository = leads.NewInMemoryRepository()
	if pool != nil {
		repo = leads.NewPostgresRepository(pool)
	}
	if sheets != nil {
		return leads.NewMirroredRepository(repo, sheets, logger)
	}
	return repo
}

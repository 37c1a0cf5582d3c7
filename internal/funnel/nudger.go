package funnel

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// Nudge thresholds, measured from the last patient activity.
const (
	DefaultFirstNudge  = 8 * time.Minute
	DefaultSecondNudge = 25 * time.Minute
	DefaultMaxAge      = 90 * time.Minute
)

// NudgeConfig tunes the idle reminders.
type NudgeConfig struct {
	First  time.Duration
	Second time.Duration
	// MaxAge drops funnels older than this, or idle for this long.
	MaxAge time.Duration
}

func (c NudgeConfig) withDefaults() NudgeConfig {
	if c.First <= 0 {
		c.First = DefaultFirstNudge
	}
	if c.Second <= c.First {
		c.Second = DefaultSecondNudge
	}
	if c.MaxAge <= c.Second {
		c.MaxAge = DefaultMaxAge
	}
	return c
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Nudged  int
	Dropped int
	Failed  int
}

// Nudger reminds patients who stopped halfway through booking.
type Nudger struct {
	store   Store
	ledger  appointments.Ledger
	catalog *messages.Catalog
	sender  whatsapp.Sender
	clock   clock.Clock
	cfg     NudgeConfig
	logger  *logging.Logger
}

// NewNudger wires the nudger.
func NewNudger(store Store, ledger appointments.Ledger, catalog *messages.Catalog, sender whatsapp.Sender, cfg NudgeConfig, logger *logging.Logger) *Nudger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Nudger{
		store:   store,
		ledger:  ledger,
		catalog: catalog,
		sender:  sender,
		clock:   clock.New(),
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// WithClock swaps the time source.
func (n *Nudger) WithClock(c clock.Clock) *Nudger {
	if c != nil {
		n.clock = c
	}
	return n
}

// Sweep drops expired funnels and sends the nudges that are due. Failures
// on one phone never stop the others.
func (n *Nudger) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	states, err := n.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("funnel: sweep: %w", err)
	}

	now := n.clock.Now()
	var (
		rows       []appointments.Row
		rowsLoaded bool
		ledgerDown bool
	)
	for _, st := range states {
		age, idle := now.Sub(st.CreatedAt), now.Sub(st.LastActivityAt)
		if age > n.cfg.MaxAge || idle >= n.cfg.MaxAge {
			n.drop(ctx, st.Phone, "expired", &stats)
			continue
		}

		first := !st.Nudge1Sent && idle >= n.cfg.First && idle < n.cfg.Second
		second := !st.Nudge2Sent && idle >= n.cfg.Second
		if !first && !second {
			continue
		}

		if !rowsLoaded && !ledgerDown {
			rows, err = n.ledger.List(ctx)
			if err != nil {
				n.logger.Warn("funnel: ledger unavailable, skipping nudges", "error", err)
				ledgerDown = true
			}
			rowsLoaded = !ledgerDown
		}
		if ledgerDown {
			continue
		}
		if appointments.HasFuture(rows, st.Phone, now) {
			n.drop(ctx, st.Phone, "already_booked", &stats)
			continue
		}

		msg := n.catalog.Nudge(st.Phone, st.Language, second, st.ResumeAction())
		if err := n.sender.Send(ctx, msg); err != nil {
			n.logger.Warn("funnel: nudge not delivered", "phone", st.Phone, "error", err)
			stats.Failed++
			continue
		}
		if err := n.markNudged(ctx, st, second); err != nil {
			n.logger.Error("funnel: nudge flag not saved", "phone", st.Phone, "error", err)
			stats.Failed++
			continue
		}
		stats.Nudged++
	}
	return stats, nil
}

// markNudged sets the nudge flag on the stored state. The send can be slow,
// so the state is read again and left alone when the patient moved on or the
// funnel was closed in the meantime.
func (n *Nudger) markNudged(ctx context.Context, seen State, second bool) error {
	cur, err := n.store.Get(ctx, seen.Phone)
	if err != nil {
		return err
	}
	if cur == nil || !cur.LastActivityAt.Equal(seen.LastActivityAt) {
		n.logger.Debug("funnel: state changed during nudge", "phone", seen.Phone, "gone", cur == nil)
		return nil
	}
	if second {
		cur.Nudge2Sent = true
	} else {
		cur.Nudge1Sent = true
	}
	return n.store.Put(ctx, *cur)
}

func (n *Nudger) drop(ctx context.Context, phone, reason string, stats *SweepStats) {
	if err := n.store.Delete(ctx, phone); err != nil {
		n.logger.Warn("funnel: state not dropped", "phone", phone, "reason", reason, "error", err)
		stats.Failed++
		return
	}
	n.logger.Debug("funnel: state dropped", "phone", phone, "reason", reason)
	stats.Dropped++
}

// Package waitlist offers freed slots to patients booked later, in staged
// waves: the same day first, then the next days after a delay. The first
// patient to accept moves into the slot, freeing their old one for the next
// round.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/availability"
	"github.com/wolfman30/dental-whatsapp-bot/internal/booking"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

var (
	// ErrNotFound means the accepting patient no longer holds the appointment
	// the offer was made for.
	ErrNotFound = errors.New("waitlist: appointment not found")
	// ErrSlotGone means someone else took the offered slot first.
	ErrSlotGone = errors.New("waitlist: slot no longer available")
)

// Defaults of Config.
const (
	DefaultPerWave   = 3
	DefaultDelay     = 8 * time.Minute
	DefaultLookahead = 2
)

// waveTimeout bounds a timer-driven wave.
const waveTimeout = time.Minute

var bucketNames = [...]string{"same_day", "next_day", "day_after"}

// Config tunes the waves.
type Config struct {
	// PerWave caps the offers of a single wave.
	PerWave int
	// Delay separates consecutive waves.
	Delay time.Duration
	// Lookahead is how many following days get a wave (0, 1 or 2).
	Lookahead int
	// Randomize shuffles candidates inside a bucket.
	Randomize bool
}

func (c Config) withDefaults() Config {
	if c.PerWave <= 0 {
		c.PerWave = DefaultPerWave
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Lookahead < 0 {
		c.Lookahead = 0
	}
	if c.Lookahead > len(bucketNames)-1 {
		c.Lookahead = len(bucketNames) - 1
	}
	return c
}

// Rescheduler moves appointments. booking.Coordinator implements it.
type Rescheduler interface {
	Find(ctx context.Context, phone string, start time.Time) (appointments.Record, error)
	Reschedule(ctx context.Context, key appointments.Key, newStart time.Time) (appointments.Record, error)
}

// controller tracks the waves of one freed slot.
type controller struct {
	start    time.Time
	filled   bool
	stage    int
	notified map[string]bool
	timers   []clock.Timer
}

// Scheduler runs the upgrade waves.
type Scheduler struct {
	ledger  appointments.Ledger
	oracle  *availability.Oracle
	mover   Rescheduler
	clinic  *clinic.Clinic
	catalog *messages.Catalog
	sender  whatsapp.Sender
	clock   clock.Clock
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	cfg     Config

	mu        sync.Mutex
	waves     map[string]*controller
	slotLocks map[string]*slotMutex
}

// slotMutex serializes accepts for one slot. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type slotMutex struct {
	sync.Mutex
	refs int
}

// NewScheduler wires the scheduler.
func NewScheduler(ledger appointments.Ledger, oracle *availability.Oracle, mover Rescheduler, c *clinic.Clinic, catalog *messages.Catalog, sender whatsapp.Sender, cfg Config, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		ledger:    ledger,
		oracle:    oracle,
		mover:     mover,
		clinic:    c,
		catalog:   catalog,
		sender:    sender,
		clock:     clock.New(),
		logger:    logger,
		cfg:       cfg.withDefaults(),
		waves:     make(map[string]*controller),
		slotLocks: make(map[string]*slotMutex),
	}
}

// WithClock swaps the time source and timer factory.
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	if c != nil {
		s.clock = c
	}
	return s
}

// WithMetrics counts offers per bucket.
func (s *Scheduler) WithMetrics(m *metrics.BookingMetrics) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) slotID(start time.Time) string {
	return s.clinic.FormatSlot(start)
}

// SlotFreed starts offering start. Calling it again while a wave controller
// for the slot is active sends a deduplicated top-up of the current wave and
// schedules nothing new.
func (s *Scheduler) SlotFreed(ctx context.Context, start time.Time) {
	log := s.logger.With("slot", s.slotID(start))
	free, err := s.oracle.IsFree(ctx, start)
	if err != nil {
		log.Warn("waitlist: availability check failed", "error", err)
		return
	}
	if !free {
		log.Debug("waitlist: slot not free, no offers")
		return
	}

	s.mu.Lock()
	ctrl, reused := s.waves[s.slotID(start)]
	if !reused {
		ctrl = &controller{start: start, notified: make(map[string]bool)}
		s.waves[s.slotID(start)] = ctrl
	}
	stage := ctrl.stage
	s.mu.Unlock()

	s.runWave(ctx, ctrl, stage)

	if reused {
		log.Debug("waitlist: topped up active wave", "stage", stage)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctrl.filled {
		return
	}
	if s.cfg.Lookahead == 0 {
		s.discardLocked(ctrl)
		return
	}
	for stage := 1; stage <= s.cfg.Lookahead; stage++ {
		t := s.clock.AfterFunc(time.Duration(stage)*s.cfg.Delay, func() {
			s.delayedWave(ctrl, stage)
		})
		ctrl.timers = append(ctrl.timers, t)
	}
}

func (s *Scheduler) delayedWave(ctrl *controller, stage int) {
	ctx, cancel := context.WithTimeout(context.Background(), waveTimeout)
	defer cancel()

	s.mu.Lock()
	if ctrl.filled || s.waves[s.slotID(ctrl.start)] != ctrl {
		s.mu.Unlock()
		return
	}
	ctrl.stage = stage
	s.mu.Unlock()

	free, err := s.oracle.IsFree(ctx, ctrl.start)
	if err != nil || !free {
		s.logger.Info("waitlist: slot no longer offered", "slot", s.slotID(ctrl.start), "stage", stage, "error", err)
		s.mu.Lock()
		s.discardLocked(ctrl)
		s.mu.Unlock()
		return
	}

	s.runWave(ctx, ctrl, stage)

	if stage == s.cfg.Lookahead {
		s.mu.Lock()
		s.discardLocked(ctrl)
		s.mu.Unlock()
	}
}

type offer struct {
	phone    string
	language clinic.Language
	current  time.Time
}

// runWave sends the offers of one bucket to patients not yet notified.
func (s *Scheduler) runWave(ctx context.Context, ctrl *controller, stage int) {
	rows, err := s.ledger.List(ctx)
	if err != nil {
		s.logger.Warn("waitlist: read ledger failed", "slot", s.slotID(ctrl.start), "error", err)
		return
	}
	candidates := s.buckets(rows, ctrl.start)[stage]
	if s.cfg.Randomize {
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}

	s.mu.Lock()
	if ctrl.filled {
		s.mu.Unlock()
		return
	}
	var offers []offer
	for _, rec := range candidates {
		if len(offers) == s.cfg.PerWave {
			break
		}
		if ctrl.notified[rec.Phone] {
			continue
		}
		ctrl.notified[rec.Phone] = true
		offers = append(offers, offer{phone: rec.Phone, language: rec.Language, current: rec.StartTime})
	}
	s.mu.Unlock()

	for _, o := range offers {
		msg := s.catalog.UpgradeOffer(o.phone, o.language, ctrl.start, o.current)
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("waitlist: offer not delivered", "phone", o.phone, "slot", s.slotID(ctrl.start), "error", err)
			continue
		}
		s.metrics.ObserveOffer(bucketNames[stage])
	}
	if len(offers) > 0 {
		s.logger.Info("waitlist: wave sent", "slot", s.slotID(ctrl.start), "bucket", bucketNames[stage], "offers", len(offers))
	}
}

// buckets groups the confirmed future appointments that could move into
// start: later the same day, the next day and the day after.
func (s *Scheduler) buckets(rows []appointments.Row, start time.Time) [len(bucketNames)][]appointments.Record {
	var out [len(bucketNames)][]appointments.Record
	now := s.clock.Now()
	day := dayOf(start.In(s.clinic.TimeZone))
	for _, row := range rows {
		rec := row.Record
		if rec.Status != appointments.Confirmed || !rec.StartTime.After(now) {
			continue
		}
		local := rec.StartTime.In(s.clinic.TimeZone)
		switch diff := daysBetween(day, dayOf(local)); {
		case diff == 0 && rec.StartTime.After(start):
			out[0] = append(out[0], rec)
		case diff == 1:
			out[1] = append(out[1], rec)
		case diff == 2:
			out[2] = append(out[2], rec)
		}
	}
	for i := range out {
		sort.SliceStable(out[i], func(a, b int) bool {
			return out[i][a].StartTime.Before(out[i][b].StartTime)
		})
	}
	return out
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Accept moves phone from current into slot. Accepts for the same slot are
// serialized so exactly one patient wins.
func (s *Scheduler) Accept(ctx context.Context, phone string, slot, current time.Time) (appointments.Record, error) {
	unlock := s.lockSlot(slot)
	defer unlock()

	rec, err := s.mover.Find(ctx, phone, current)
	if errors.Is(err, booking.ErrNotFound) {
		return appointments.Record{}, ErrNotFound
	}
	if err != nil {
		return appointments.Record{}, fmt.Errorf("waitlist: accept: %w", err)
	}

	moved, err := s.mover.Reschedule(ctx, rec.Key(), slot)
	switch {
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, booking.ErrPast):
		return appointments.Record{}, ErrSlotGone
	case errors.Is(err, booking.ErrNotFound):
		return appointments.Record{}, ErrNotFound
	case err != nil:
		return appointments.Record{}, fmt.Errorf("waitlist: accept: %w", err)
	}

	s.MarkFilled(slot)
	s.logger.Info("waitlist: upgrade accepted", "phone", phone, "slot", s.slotID(slot), "from", s.slotID(current))
	s.SlotFreed(ctx, current)
	return moved, nil
}

// Decline records a skipped offer. The wave goes on for everyone else.
func (s *Scheduler) Decline(_ context.Context, phone string, slot time.Time) {
	s.logger.Info("waitlist: upgrade declined", "phone", phone, "slot", s.slotID(slot))
}

// MarkFilled stops the waves of start.
func (s *Scheduler) MarkFilled(start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctrl, ok := s.waves[s.slotID(start)]; ok {
		ctrl.filled = true
		s.discardLocked(ctrl)
	}
}

// Active reports whether waves for start are still pending.
func (s *Scheduler) Active(start time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.waves[s.slotID(start)]
	return ok
}

func (s *Scheduler) discardLocked(ctrl *controller) {
	for _, t := range ctrl.timers {
		t.Stop()
	}
	ctrl.timers = nil
	if s.waves[s.slotID(ctrl.start)] == ctrl {
		delete(s.waves, s.slotID(ctrl.start))
	}
}

func (s *Scheduler) lockSlot(slot time.Time) func() {
	id := s.slotID(slot)
	s.mu.Lock()
	l, ok := s.slotLocks[id]
	if !ok {
		l = &slotMutex{}
		s.slotLocks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.slotLocks, id)
		}
		s.mu.Unlock()
	}
}

var _ booking.SlotFreedNotifier = (*Scheduler)(nil)

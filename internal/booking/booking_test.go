package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/availability"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
)

var tijuana = time.FixedZone("UTC-7", -7*60*60)

type recordingSender struct {
	mu   sync.Mutex
	sent []whatsapp.Message
}

func (s *recordingSender) Send(_ context.Context, msg whatsapp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) to(phone string) []whatsapp.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []whatsapp.Message
	for _, m := range s.sent {
		if m.To == phone {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	clinic      *clinic.Clinic
	clock       *clock.Fake
	ledger      *appointments.MemoryLedger
	calendar    *calendar.Memory
	oracle      *availability.Oracle
	sender      *recordingSender
	finalizer   *Finalizer
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clinic.Default(tijuana)
	f := &fixture{
		clinic:   c,
		clock:    clock.NewFake(time.Date(2026, 10, 14, 10, 0, 0, 0, tijuana)),
		ledger:   appointments.NewMemoryLedger(),
		calendar: calendar.NewMemory(tijuana),
		sender:   &recordingSender{},
	}
	f.oracle = availability.NewOracle(f.ledger, f.calendar, c, 0, nil)
	f.finalizer = NewFinalizer(f.ledger, f.calendar, f.oracle, c, messages.NewCatalog(c), f.sender, nil).WithClock(f.clock)
	f.coordinator = NewCoordinator(f.ledger, f.calendar, f.oracle, c, nil).WithClock(f.clock)
	return f
}

func (f *fixture) slot(t *testing.T, date, hour string) time.Time {
	t.Helper()
	start, err := f.clinic.Slot(date, hour)
	require.NoError(t, err)
	return start
}

func (f *fixture) activeRows(t *testing.T) []appointments.Row {
	t.Helper()
	rows, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	var out []appointments.Row
	for _, r := range rows {
		if r.Record.Active() {
			out = append(out, r)
		}
	}
	return out
}

func TestFinalizeSuccessSequence(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-15", "09:40")

	res, err := f.finalizer.Finalize(context.Background(), Request{
		Phone:     "5216641111111",
		Name:      "Ana López",
		Procedure: clinic.Cleaning,
		Start:     start,
		Language:  clinic.Spanish,
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	rec := res.Record
	assert.Equal(t, appointments.Confirmed, rec.Status)
	assert.True(t, rec.FollowUpDate.Equal(start.AddDate(0, 6, 0)))
	assert.Equal(t, clinic.PostDocumentKey, rec.DocumentKey)

	events := f.calendar.Events()
	require.Len(t, events, 1)
	assert.Equal(t, rec.Key().String(), events[0].Key)
	assert.Equal(t, "🧼 Limpieza dental – Ana López – 5216641111111", events[0].Summary)
	assert.True(t, events[0].End.Equal(start.Add(40*time.Minute)))
	assert.Equal(t, []time.Duration{60 * time.Minute, 10 * time.Minute}, events[0].Reminders)

	sent := f.sender.to("5216641111111")
	require.Len(t, sent, 3)
	assert.Equal(t, "document", sent[0].Type)
	assert.Equal(t, "location", sent[1].Type)
	assert.Equal(t, "text", sent[2].Type)
	assert.Contains(t, sent[2].Text.Body, "Ana López")
}

func TestFinalizeRejectsPastSlot(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now().Add(-time.Minute)

	res, err := f.finalizer.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: start})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonPast, res.Reason)
	assert.Empty(t, f.activeRows(t))
	assert.Len(t, f.sender.to("5216641111111"), 1)
}

func TestFinalizeTakenBeforeAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.slot(t, "2026-10-15", "09:00")
	_, err := f.calendar.CreateEvent(ctx, calendar.Event{Summary: "Bloqueo", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	res, err := f.finalizer.Finalize(ctx, Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: start})
	require.NoError(t, err)
	assert.Equal(t, ReasonTakenPre, res.Reason)

	rows, err := f.ledger.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "nothing is written when the pre-check fails")
}

type flakyLedger struct {
	*appointments.MemoryLedger
	listErr   error
	appendErr error
	// listOK is how many List calls succeed before listErr applies, and
	// listFails how many fail after that; zero means all of them.
	listOK    int32
	listFails int32
	listCalls int32
	// beforeAppend runs ahead of every Append, e.g. to land a rival row.
	beforeAppend func()
}

func (l *flakyLedger) List(ctx context.Context) ([]appointments.Row, error) {
	n := atomic.AddInt32(&l.listCalls, 1)
	if l.listErr != nil && n > l.listOK && (l.listFails == 0 || n <= l.listOK+l.listFails) {
		return nil, l.listErr
	}
	return l.MemoryLedger.List(ctx)
}

func (l *flakyLedger) Append(ctx context.Context, r appointments.Record) error {
	if l.beforeAppend != nil {
		l.beforeAppend()
	}
	if l.appendErr != nil {
		return l.appendErr
	}
	return l.MemoryLedger.Append(ctx, r)
}

// rivalRow lands an earlier-stamped booking for start, as if another patient
// appended between our pre-check and our append.
func (f *fixture) rivalRow(t *testing.T, start time.Time) func() {
	return func() {
		require.NoError(t, f.ledger.Append(context.Background(), appointments.Record{
			CreatedAt: appointments.StampCreatedAt(f.clock.Now().Add(-time.Second)),
			Name:      "Rival",
			Phone:     "5216649999999",
			StartTime: start,
			Procedure: clinic.Checkup,
			Status:    appointments.Confirmed,
		}))
	}
}

func reconcileNeeded(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, "dental_booking_reconcile_needed_total")
	require.NoError(t, err)
	return n
}

func TestFinalizeDoesNotConfirmWhenReconcileReadFails(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-15", "10:20")
	ledger := &flakyLedger{MemoryLedger: f.ledger, listErr: errors.New("sheets 503"), listOK: 1}
	ledger.beforeAppend = f.rivalRow(t, start)
	reg := prometheus.NewRegistry()
	oracle := availability.NewOracle(ledger, f.calendar, f.clinic, 0, nil)
	fin := NewFinalizer(ledger, f.calendar, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).
		WithClock(f.clock).
		WithMetrics(metrics.NewBookingMetrics(reg))

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: start, Language: clinic.Spanish})
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonUnavailable, res.Reason)
	assert.EqualValues(t, 1+reconcileAttempts, atomic.LoadInt32(&ledger.listCalls), "pre-check plus every reconcile read")

	sent := f.sender.to("5216641111111")
	require.Len(t, sent, 1, "no document, pin or confirmation")
	assert.Equal(t, "text", sent[0].Type)
	assert.Equal(t, 1, reconcileNeeded(t, reg))
}

func TestFinalizeRetriesReconcileRead(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-15", "10:20")
	ledger := &flakyLedger{MemoryLedger: f.ledger, listErr: errors.New("sheets 503"), listOK: 1, listFails: 1}
	oracle := availability.NewOracle(ledger, f.calendar, f.clinic, 0, nil)
	fin := NewFinalizer(ledger, f.calendar, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).WithClock(f.clock)

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: start})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&ledger.listCalls))
	assert.Len(t, f.sender.to("5216641111111"), 3)
}

func TestFinalizeLoserDeletesItsEventOnce(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-15", "10:20")
	ledger := &flakyLedger{MemoryLedger: f.ledger}
	ledger.beforeAppend = f.rivalRow(t, start)
	reg := prometheus.NewRegistry()
	oracle := availability.NewOracle(ledger, f.calendar, f.clinic, 0, nil)
	fin := NewFinalizer(ledger, f.calendar, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).
		WithClock(f.clock).
		WithMetrics(metrics.NewBookingMetrics(reg))

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: start})
	require.NoError(t, err)
	assert.Equal(t, ReasonTakenPost, res.Reason)
	assert.Empty(t, f.calendar.Events())
	assert.Zero(t, reconcileNeeded(t, reg), "an already deleted event is not a reconcile failure")

	active := f.activeRows(t)
	require.Len(t, active, 1)
	assert.Equal(t, "Rival", active[0].Record.Name)
}

func TestFinalizeFailsClosed(t *testing.T) {
	f := newFixture(t)
	ledger := &flakyLedger{MemoryLedger: f.ledger, listErr: errors.New("quota")}
	oracle := availability.NewOracle(ledger, f.calendar, f.clinic, 0, nil)
	fin := NewFinalizer(ledger, f.calendar, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).WithClock(f.clock)

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: f.slot(t, "2026-10-15", "09:00")})
	require.Error(t, err)
	assert.Equal(t, ReasonUnavailable, res.Reason)
	assert.Empty(t, f.calendar.Events())
}

func TestFinalizeAppendFailure(t *testing.T) {
	f := newFixture(t)
	ledger := &flakyLedger{MemoryLedger: f.ledger, appendErr: errors.New("sheets down")}
	oracle := availability.NewOracle(ledger, f.calendar, f.clinic, 0, nil)
	fin := NewFinalizer(ledger, f.calendar, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).WithClock(f.clock)

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: f.slot(t, "2026-10-15", "09:00")})
	require.Error(t, err)
	assert.Equal(t, ReasonFailed, res.Reason)
	assert.Empty(t, f.calendar.Events())
}

type brokenCreateCalendar struct{ *calendar.Memory }

func (brokenCreateCalendar) CreateEvent(context.Context, calendar.Event) (calendar.Event, error) {
	return calendar.Event{}, errors.New("calendar 500")
}

func TestFinalizeKeepsBookingWhenCalendarFails(t *testing.T) {
	f := newFixture(t)
	cal := brokenCreateCalendar{f.calendar}
	oracle := availability.NewOracle(f.ledger, cal, f.clinic, 0, nil)
	fin := NewFinalizer(f.ledger, cal, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).WithClock(f.clock)

	res, err := fin.Finalize(context.Background(), Request{Phone: "5216641111111", Name: "Ana", Procedure: clinic.Cleaning, Start: f.slot(t, "2026-10-15", "09:00")})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Len(t, f.activeRows(t), 1)
}

// barrierCalendar holds the first n availability reads until all of them
// arrived, so concurrent bookers all pass the pre-check.
type barrierCalendar struct {
	*calendar.Memory
	n     int32
	calls int32
	wg    sync.WaitGroup
}

func newBarrierCalendar(mem *calendar.Memory, n int) *barrierCalendar {
	b := &barrierCalendar{Memory: mem, n: int32(n)}
	b.wg.Add(n)
	return b
}

func (b *barrierCalendar) ListEventsByDate(ctx context.Context, date string) ([]calendar.Event, error) {
	if atomic.AddInt32(&b.calls, 1) <= b.n {
		b.wg.Done()
		b.wg.Wait()
	}
	return b.Memory.ListEventsByDate(ctx, date)
}

func TestFinalizeConcurrentBookersKeepEarliest(t *testing.T) {
	f := newFixture(t)
	cal := newBarrierCalendar(f.calendar, 2)
	oracle := availability.NewOracle(f.ledger, cal, f.clinic, 0, nil)
	fin := NewFinalizer(f.ledger, cal, oracle, f.clinic, messages.NewCatalog(f.clinic), f.sender, nil).
		WithClock(f.clock).
		WithConfirmationDelay(0)
	start := f.slot(t, "2026-10-15", "11:40")

	phones := []string{"5216641111111", "5216642222222"}
	results := make([]Result, len(phones))
	var wg sync.WaitGroup
	for i, phone := range phones {
		wg.Add(1)
		go func(i int, phone string) {
			defer wg.Done()
			res, err := fin.Finalize(context.Background(), Request{Phone: phone, Name: "Paciente", Procedure: clinic.Checkup, Start: start})
			assert.NoError(t, err)
			results[i] = res
		}(i, phone)
	}
	wg.Wait()

	var ok, lost int
	for _, r := range results {
		switch {
		case r.OK:
			ok++
		case r.Reason == ReasonTakenPost:
			lost++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)

	rows, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	active := appointments.ActiveAt(rows, start)
	require.Len(t, active, 1)
	assert.Equal(t, appointments.Cancelled, rows[1].Record.Status, "the later row loses")
	assert.Equal(t, rows[0].Record.Key(), active[0].Record.Key())

	events := f.calendar.Events()
	require.Len(t, events, 1)
	assert.Equal(t, active[0].Record.Key().String(), events[0].Key)
}

func TestCreationStampsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	fin := f.finalizer.WithConfirmationDelay(0)
	ctx := context.Background()

	a, err := fin.appendRecord(ctx, Request{Phone: "1", Start: f.slot(t, "2026-10-15", "09:00")})
	require.NoError(t, err)
	b, err := fin.appendRecord(ctx, Request{Phone: "2", Start: f.slot(t, "2026-10-15", "09:40")})
	require.NoError(t, err)
	assert.Less(t, a.CreatedAt, b.CreatedAt)
}

type freedRecorder struct {
	mu    sync.Mutex
	slots []time.Time
}

func (r *freedRecorder) SlotFreed(_ context.Context, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, start)
}

func (f *fixture) book(t *testing.T, phone string, start time.Time) appointments.Record {
	t.Helper()
	res, err := f.finalizer.Finalize(context.Background(), Request{Phone: phone, Name: "Paciente", Procedure: clinic.Cleaning, Start: start})
	require.NoError(t, err)
	require.True(t, res.OK)
	return res.Record
}

func TestRescheduleMovesRowAndEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.slot(t, "2026-10-16", "17:00")
	to := f.slot(t, "2026-10-15", "09:00")
	rec := f.book(t, "5216641111111", from)

	moved, err := f.coordinator.Reschedule(ctx, rec.Key(), to)
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(to))
	assert.Equal(t, rec.Key(), moved.Key(), "the key survives a reschedule")
	assert.True(t, moved.FollowUpDate.Equal(to.AddDate(0, 6, 0)))

	events := f.calendar.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Start.Equal(to))
	assert.True(t, events[0].End.Equal(to.Add(40*time.Minute)))
}

func TestRescheduleToOwnSlotIsAllowed(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-16", "17:00")
	rec := f.book(t, "5216641111111", start)

	_, err := f.coordinator.Reschedule(context.Background(), rec.Key(), start.Add(10*time.Minute))
	require.NoError(t, err, "the own event never blocks")
}

func TestRescheduleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, "5216641111111", f.slot(t, "2026-10-16", "17:00"))
	f.book(t, "5216642222222", f.slot(t, "2026-10-15", "09:00"))

	_, err := f.coordinator.Reschedule(ctx, a.Key(), f.slot(t, "2026-10-15", "09:00"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = f.coordinator.Reschedule(ctx, appointments.Key{CreatedAt: "x", Phone: "y"}, f.slot(t, "2026-10-15", "10:20"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.coordinator.Reschedule(ctx, a.Key(), f.clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrPast)
}

func TestRescheduleWithoutEventStillUpdatesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.book(t, "5216641111111", f.slot(t, "2026-10-16", "17:00"))
	for _, e := range f.calendar.Events() {
		require.NoError(t, f.calendar.DeleteEvent(ctx, e.ID))
	}

	to := f.slot(t, "2026-10-15", "09:00")
	_, err := f.coordinator.Reschedule(ctx, rec.Key(), to)
	require.NoError(t, err)
	_, err = f.coordinator.Find(ctx, rec.Phone, to)
	require.NoError(t, err)
}

func TestCancelFreesSlotAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	freed := &freedRecorder{}
	f.coordinator.SetNotifier(freed)
	start := f.slot(t, "2026-10-15", "09:00")
	f.book(t, "5216641111111", start)

	rec, err := f.coordinator.Cancel(ctx, start, "5216641111111")
	require.NoError(t, err)
	assert.Equal(t, appointments.Cancelled, rec.Status)
	assert.Empty(t, f.calendar.Events())
	require.Len(t, freed.slots, 1)
	assert.True(t, freed.slots[0].Equal(start))

	free, err := f.oracle.IsFree(ctx, start)
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.coordinator.Cancel(ctx, start, "5216641111111")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelRespectsPhone(t *testing.T) {
	f := newFixture(t)
	start := f.slot(t, "2026-10-15", "09:00")
	f.book(t, "5216641111111", start)

	_, err := f.coordinator.Cancel(context.Background(), start, "5216649999999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.activeRows(t), 1)
}

func TestAcknowledgeReminderAndFutureLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.slot(t, "2026-10-15", "09:00")
	f.book(t, "5216641111111", start)

	has, err := f.coordinator.HasFutureAppointment(ctx, "5216641111111")
	require.NoError(t, err)
	assert.True(t, has)

	rec, err := f.coordinator.AcknowledgeReminder(ctx, start, "5216641111111")
	require.NoError(t, err)
	assert.True(t, rec.ReminderAck)

	f.clock.Set(start.Add(time.Hour))
	has, err = f.coordinator.HasFutureAppointment(ctx, "5216641111111")
	require.NoError(t, err)
	assert.False(t, has)
}

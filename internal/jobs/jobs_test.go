package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/channels/whatsapp"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
	"github.com/wolfman30/dental-whatsapp-bot/internal/messages"
)

var tijuana = time.FixedZone("UTC-7", -7*60*60)

type outbox struct {
	mu              sync.Mutex
	sent            []whatsapp.Message
	failInteractive bool
	failAll         bool
}

func (o *outbox) Send(_ context.Context, msg whatsapp.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failAll || (o.failInteractive && msg.Type == "interactive") {
		return errors.New("graph 500")
	}
	o.sent = append(o.sent, msg)
	return nil
}

type fixture struct {
	clock  *clock.Fake
	ledger *appointments.MemoryLedger
	out    *outbox
	rem    *Reminders
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	c := clinic.Default(tijuana)
	f := &fixture{clock: clock.NewFake(now), ledger: appointments.NewMemoryLedger(), out: &outbox{}}
	f.rem = NewReminders(f.ledger, c, messages.NewCatalog(c), f.out, nil).WithClock(f.clock)
	return f
}

func (f *fixture) add(t *testing.T, rec appointments.Record) {
	t.Helper()
	if rec.CreatedAt == "" {
		rec.CreatedAt = rec.Phone
	}
	if rec.Status == "" {
		rec.Status = appointments.Confirmed
	}
	require.NoError(t, f.ledger.Append(context.Background(), rec))
}

func (f *fixture) record(t *testing.T, phone string) appointments.Record {
	t.Helper()
	rows, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	for _, r := range rows {
		if r.Record.Phone == phone {
			return r.Record
		}
	}
	t.Fatalf("no row for %s", phone)
	return appointments.Record{}
}

func TestConfirm3hWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.add(t, appointments.Record{Phone: "due", StartTime: now.Add(3*time.Hour + 4*time.Minute)})
	f.add(t, appointments.Record{Phone: "early", StartTime: now.Add(3*time.Hour + 6*time.Minute)})
	f.add(t, appointments.Record{Phone: "sent", StartTime: now.Add(3 * time.Hour), Confirm3hSent: true})
	f.add(t, appointments.Record{Phone: "cancelled", StartTime: now.Add(3 * time.Hour), Status: appointments.Cancelled})

	require.NoError(t, f.rem.Confirm3h(context.Background()))

	require.Len(t, f.out.sent, 1)
	assert.Equal(t, "due", f.out.sent[0].To)
	assert.Equal(t, "interactive", f.out.sent[0].Type)
	assert.True(t, f.record(t, "due").Confirm3hSent)
	assert.False(t, f.record(t, "early").Confirm3hSent)
}

func TestConfirm3hFallsBackToTemplate(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.out.failInteractive = true
	f.add(t, appointments.Record{Phone: "521", Name: "Ana López", StartTime: now.Add(3 * time.Hour)})

	require.NoError(t, f.rem.Confirm3h(context.Background()))
	require.Len(t, f.out.sent, 1)
	assert.Equal(t, "template", f.out.sent[0].Type)
	assert.True(t, f.record(t, "521").Confirm3hSent)
}

func TestConfirm3hLeavesFlagWhenNothingDelivered(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.out.failAll = true
	f.add(t, appointments.Record{Phone: "521", StartTime: now.Add(3 * time.Hour)})

	require.NoError(t, f.rem.Confirm3h(context.Background()))
	assert.False(t, f.record(t, "521").Confirm3hSent)
}

func TestNudge2hGates(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	start := now.Add(2 * time.Hour)
	f := newFixture(t, now)
	f.add(t, appointments.Record{Phone: "due", StartTime: start, Confirm3hSent: true})
	f.add(t, appointments.Record{Phone: "acked", StartTime: start, Confirm3hSent: true, ReminderAck: true})
	f.add(t, appointments.Record{Phone: "unreminded", StartTime: start})
	f.add(t, appointments.Record{Phone: "nudged", StartTime: start, Confirm3hSent: true, Nudge2hSent: true})

	require.NoError(t, f.rem.Nudge2h(context.Background()))
	require.Len(t, f.out.sent, 1)
	assert.Equal(t, "due", f.out.sent[0].To)
	assert.True(t, f.record(t, "due").Nudge2hSent)
}

func TestCompleteSendsAfterCareOnce(t *testing.T) {
	now := time.Date(2026, 10, 15, 14, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.add(t, appointments.Record{Phone: "done", StartTime: now.Add(-61 * time.Minute), DocumentKey: clinic.PostDocumentKey})
	f.add(t, appointments.Record{Phone: "ongoing", StartTime: now.Add(-30 * time.Minute)})

	require.NoError(t, f.rem.Complete(context.Background()))
	done := f.record(t, "done")
	assert.Equal(t, appointments.Completed, done.Status)
	assert.True(t, done.PDFSent)
	assert.Equal(t, appointments.Confirmed, f.record(t, "ongoing").Status)

	require.Len(t, f.out.sent, 1)
	assert.Equal(t, "document", f.out.sent[0].Type)

	require.NoError(t, f.rem.Complete(context.Background()))
	assert.Len(t, f.out.sent, 1)
}

func TestCompleteRetriesDocumentLater(t *testing.T) {
	now := time.Date(2026, 10, 15, 14, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.out.failAll = true
	f.add(t, appointments.Record{Phone: "done", StartTime: now.Add(-2 * time.Hour)})

	require.NoError(t, f.rem.Complete(context.Background()))
	rec := f.record(t, "done")
	assert.Equal(t, appointments.Completed, rec.Status, "completion is saved even when the document fails")
	assert.False(t, rec.PDFSent)

	f.out.failAll = false
	require.NoError(t, f.rem.Complete(context.Background()))
	assert.True(t, f.record(t, "done").PDFSent)
}

func TestFollowUpWaitsForMorning(t *testing.T) {
	early := time.Date(2027, 4, 15, 8, 30, 0, 0, tijuana)
	f := newFixture(t, early)
	visit := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	f.add(t, appointments.Record{Phone: "521", StartTime: visit, Status: appointments.Completed, FollowUpDate: visit.AddDate(0, 6, 0)})
	f.add(t, appointments.Record{Phone: "522", StartTime: visit, Status: appointments.Cancelled, FollowUpDate: visit.AddDate(0, 6, 0)})
	f.add(t, appointments.Record{Phone: "523", StartTime: visit, Status: appointments.Completed, FollowUpDate: visit.AddDate(0, 6, 1)})

	require.NoError(t, f.rem.FollowUp(context.Background()))
	assert.Empty(t, f.out.sent)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.rem.FollowUp(context.Background()))
	require.Len(t, f.out.sent, 1)
	assert.Equal(t, "521", f.out.sent[0].To)
	assert.Equal(t, "followup_6m", f.out.sent[0].Template.Name)
	assert.True(t, f.record(t, "521").FollowUpSent)
}

type brokenLedger struct{ *appointments.MemoryLedger }

func (brokenLedger) Update(context.Context, int, appointments.Record) error {
	return errors.New("sheets 503")
}

func TestSweepIsolatesRowFailures(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	f := newFixture(t, now)
	f.add(t, appointments.Record{Phone: "a", StartTime: now.Add(3 * time.Hour)})
	f.add(t, appointments.Record{Phone: "b", StartTime: now.Add(3 * time.Hour)})
	c := clinic.Default(tijuana)
	rem := NewReminders(brokenLedger{f.ledger}, c, messages.NewCatalog(c), f.out, nil).WithClock(f.clock)

	require.NoError(t, rem.Confirm3h(context.Background()))
	assert.Len(t, f.out.sent, 2, "a failed update does not stop the sweep")
}

func TestRunnerTickHonorsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := redislock.New(client)
	ctx := context.Background()

	var runs int32
	job := Job{Name: Confirm3hJob, Interval: time.Minute, Run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}
	runner := NewRunner(nil).WithLocker(locker)

	runner.Tick(ctx, job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	held, err := locker.Obtain(ctx, "jobs:"+Confirm3hJob, time.Minute, nil)
	require.NoError(t, err)
	runner.Tick(ctx, job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "another replica holds the tick")

	require.NoError(t, held.Release(ctx))
	runner.Tick(ctx, job)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestRunnerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	runner := NewRunner(nil).Add(Job{Name: "tick", Interval: time.Hour, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("ignored")
	}})

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerRejectsInvalidJob(t *testing.T) {
	err := NewRunner(nil).Add(Job{Name: "bad"}).Run(context.Background())
	assert.Error(t, err)
}

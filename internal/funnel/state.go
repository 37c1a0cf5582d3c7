// Package funnel tracks where each patient is in the booking conversation
// and nudges the ones who stall.
package funnel

import (
	"context"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/actions"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clock"
)

// Step is a funnel position.
type Step string

const (
	ChooseProc      Step = "choose_proc"
	ChooseDay       Step = "choose_day"
	ChoosePeriod    Step = "choose_period"
	ChooseTime      Step = "choose_time"
	AwaitName       Step = "await_name"
	AwaitPreconfirm Step = "await_preconfirm"
)

var order = []Step{ChooseProc, ChooseDay, ChoosePeriod, ChooseTime, AwaitName, AwaitPreconfirm}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, o := range order {
		if o == s {
			return true
		}
	}
	return false
}

// State is the in-progress booking of one phone.
type State struct {
	Phone          string               `json:"phone"`
	Step           Step                 `json:"step"`
	Procedure      clinic.ProcedureCode `json:"procedure,omitempty"`
	Date           string               `json:"date,omitempty"`
	Period         clinic.Period        `json:"period,omitempty"`
	Hour           string               `json:"hour,omitempty"`
	Name           string               `json:"name,omitempty"`
	Language       clinic.Language      `json:"language,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	Nudge1Sent     bool                 `json:"nudge1_sent,omitempty"`
	Nudge2Sent     bool                 `json:"nudge2_sent,omitempty"`
}

// ResumeAction is the token that brings the patient back to s.
func (s State) ResumeAction() actions.Action {
	return actions.Action{
		Kind:      actions.Resume,
		Step:      string(s.Step),
		Procedure: string(s.Procedure),
		Date:      s.Date,
		Period:    string(s.Period),
		Hour:      s.Hour,
		Name:      s.Name,
	}
}

// Store persists funnel states keyed by phone.
type Store interface {
	// Get returns nil without error when phone has no state.
	Get(ctx context.Context, phone string) (*State, error)
	Put(ctx context.Context, s State) error
	Delete(ctx context.Context, phone string) error
	List(ctx context.Context) ([]State, error)
}

// Tracker applies funnel transitions on top of a Store.
type Tracker struct {
	store Store
	clock clock.Clock
}

// NewTracker wraps store.
func NewTracker(store Store, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{store: store, clock: clk}
}

// Current returns the state of phone, or nil.
func (t *Tracker) Current(ctx context.Context, phone string) (*State, error) {
	return t.store.Get(ctx, phone)
}

// Advance moves phone to step and applies the selections set by update.
// The first write stamps CreatedAt; every write refreshes LastActivityAt.
func (t *Tracker) Advance(ctx context.Context, phone string, lang clinic.Language, step Step, update func(*State)) (State, error) {
	now := t.clock.Now()
	cur, err := t.store.Get(ctx, phone)
	if err != nil {
		return State{}, err
	}
	next := State{Phone: phone, CreatedAt: now}
	if cur != nil {
		next = *cur
	}
	next.Step = step
	next.Language = lang
	next.LastActivityAt = now
	if update != nil {
		update(&next)
	}
	if err := t.store.Put(ctx, next); err != nil {
		return State{}, err
	}
	return next, nil
}

// Resume rebuilds the state carried by a resume token.
func (t *Tracker) Resume(ctx context.Context, phone string, lang clinic.Language, a actions.Action) (State, error) {
	step := Step(a.Step)
	if !step.Valid() {
		step = ChooseProc
	}
	return t.Advance(ctx, phone, lang, step, func(s *State) {
		s.Procedure = clinic.ProcedureCode(a.Procedure)
		s.Date = a.Date
		s.Period = clinic.Period(a.Period)
		s.Hour = a.Hour
		s.Name = a.Name
	})
}

// Reset forgets phone's funnel.
func (t *Tracker) Reset(ctx context.Context, phone string) error {
	return t.store.Delete(ctx, phone)
}

package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrEventNotFound is returned when patching or deleting a missing event.
var ErrEventNotFound = errors.New("calendar: event not found")

// Memory is an in-process calendar for development and tests.
type Memory struct {
	mu     sync.RWMutex
	loc    *time.Location
	seq    int
	events map[string]Event
}

// NewMemory returns an empty calendar whose dates are interpreted in loc.
func NewMemory(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{loc: loc, events: make(map[string]Event)}
}

func (m *Memory) CreateEvent(ctx context.Context, e Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e.ID = fmt.Sprintf("evt-%d", m.seq)
	m.events[e.ID] = e
	return e, nil
}

func (m *Memory) ListEventsByDate(ctx context.Context, date string) ([]Event, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", date, m.loc)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid date %q: %w", date, err)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Overlaps(dayStart, dayEnd) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) FindEventByKey(ctx context.Context, key string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.Key == key {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) PatchEvent(ctx context.Context, id string, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if e.Summary != "" {
		cur.Summary = e.Summary
	}
	if e.Description != "" {
		cur.Description = e.Description
	}
	if !e.Start.IsZero() {
		cur.Start = e.Start
	}
	if !e.End.IsZero() {
		cur.End = e.End
	}
	m.events[id] = cur
	return nil
}

func (m *Memory) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(m.events, id)
	return nil
}

// Events returns a snapshot of every stored event ordered by start.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

var _ Calendar = (*Memory)(nil)

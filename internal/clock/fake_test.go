package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []string
	c.AfterFunc(16*time.Minute, func() { fired = append(fired, "second") })
	c.AfterFunc(8*time.Minute, func() {
		fired = append(fired, "first")
		assert.Equal(t, start.Add(8*time.Minute), c.Now())
	})

	c.Advance(10 * time.Minute)
	require.Equal(t, []string{"first"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(10 * time.Minute)
	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, start.Add(20*time.Minute), c.Now())
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	called := false
	timer := c.AfterFunc(time.Minute, func() { called = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Hour)
	assert.False(t, called)
}

func TestFakeTimerScheduledFromCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	c.AfterFunc(time.Minute, func() {
		count++
		c.AfterFunc(time.Minute, func() { count++ })
	})

	c.Advance(5 * time.Minute)
	assert.Equal(t, 2, count)
}

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewFake(start)
	require.NoError(t, c.Sleep(context.Background(), 900*time.Millisecond))
	assert.Equal(t, start.Add(900*time.Millisecond), c.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Sleep(ctx, time.Second))
}

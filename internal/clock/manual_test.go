package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_AdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)

	var fired []time.Duration
	record := func() { fired = append(fired, m.Now().Sub(start)) }

	m.AfterFunc(3*time.Second, record)
	m.AfterFunc(time.Second, record)
	m.AfterFunc(2*time.Second, func() {
		record()
		m.AfterFunc(500*time.Millisecond, record)
	})

	m.Advance(5 * time.Second)

	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		2500 * time.Millisecond,
		3 * time.Second,
	}, fired)
	assert.Equal(t, 5*time.Second, m.Now().Sub(start))
	assert.Zero(t, m.Pending())
}

func TestManual_StopPreventsFiring(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	called := false
	timer := m.AfterFunc(time.Second, func() { called = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	m.Advance(2 * time.Second)
	assert.False(t, called)
}

func TestManual_BlockUntilWaitsForTimers(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	go m.AfterFunc(time.Second, func() {})

	done := make(chan struct{})
	go func() {
		m.BlockUntil(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BlockUntil did not return")
	}
}

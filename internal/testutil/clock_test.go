package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_AdvanceMovesNow(t *testing.T) {
	c := NewFakeClock()

	c.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), c.Now())
}

func TestFakeClock_AfterFuncFiresWhenDue(t *testing.T) {
	c := NewFakeClock()
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	assert.Equal(t, 0, fired, "timer must not fire early")
	assert.Equal(t, 1, c.PendingTimers())

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.PendingTimers())

	c.Advance(time.Hour)
	assert.Equal(t, 1, fired, "timer fires once")
}

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock()
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "c") })

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFakeClock_StopPreventsFiring(t *testing.T) {
	c := NewFakeClock()
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports not pending")

	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFakeClock_SetDoesNotFire(t *testing.T) {
	c := NewFakeClock()
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	c.Set(Epoch.Add(time.Hour))
	assert.False(t, fired)
	assert.Equal(t, Epoch.Add(time.Hour), c.Now())
}

func TestFakeClock_ConcurrentNow(t *testing.T) {
	c := NewFakeClock()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Now()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, Epoch, c.Now())
}

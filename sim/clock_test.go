package sim

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_ConcurrentAdvances_AreCounted(t *testing.T) {
	// GIVEN eight goroutines advancing one clock
	c := NewClock()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Active(2)
				c.Idle()
			}
		}()
	}
	wg.Wait()

	// THEN every tick is accounted for exactly once
	idle, active, total := c.Ticks()
	assert.Equal(t, int64(800), idle)
	assert.Equal(t, int64(1600), active)
	assert.Equal(t, int64(2400), total)
	assert.Equal(t, total, c.Now())
}

func TestClock_ActiveIgnoresNonPositive(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Active(0))
	assert.Equal(t, int64(0), c.Active(-3))
	assert.Equal(t, int64(5), c.Active(5))
}

func TestAdmissionError_WrapsSentinel(t *testing.T) {
	err := error(&AdmissionError{PID: 3, Name: "p3", Reason: "insufficient frames (need 1, free 0)"})
	assert.True(t, errors.Is(err, ErrAdmissionRejected))
	assert.True(t, IsAdmissionRejected(err))
	assert.Contains(t, err.Error(), "p3 (pid 3)")
}

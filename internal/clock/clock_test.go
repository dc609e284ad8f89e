package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	timer := fc.NewTimer(5 * time.Second)
	fc.Advance(2 * time.Second)

	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	fc.Advance(3 * time.Second)

	select {
	case got := <-timer.C():
		assert.Equal(t, start.Add(5*time.Second), got)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeTimerStopPreventsFire(t *testing.T) {
	fc := NewFake(time.Now())
	timer := fc.NewTimer(time.Second)
	require.True(t, timer.Stop())

	fc.Advance(2 * time.Second)

	select {
	case <-timer.C():
		t.Fatal("stopped timer must not fire")
	default:
	}
}

func TestFakeRandomCyclesThenHoldsLastValue(t *testing.T) {
	r := NewFakeRandom(0.1, 0.5, 0.9)

	assert.Equal(t, 0.1, r.Float64())
	assert.Equal(t, 0.5, r.Float64())
	assert.Equal(t, 0.9, r.Float64())
	assert.Equal(t, 0.9, r.Float64())
}

func TestJitterStaysWithinBounds(t *testing.T) {
	base := 10 * time.Second
	pct := 0.2

	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
		got := Jitter(NewFakeRandom(v), base, pct)
		assert.GreaterOrEqual(t, got, base-time.Duration(float64(base)*pct))
		assert.LessOrEqual(t, got, base+time.Duration(float64(base)*pct))
	}
}

func TestJitterZeroPctReturnsBase(t *testing.T) {
	assert.Equal(t, 10*time.Second, Jitter(NewFakeRandom(0.9), 10*time.Second, 0))
}

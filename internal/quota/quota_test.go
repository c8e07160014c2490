package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTracker_FreshIsFullyAvailable(t *testing.T) {
	tr := NewTracker(DefaultLimits(), WithClock(newClock().Now))
	s := tr.Snapshot()
	assert.Equal(t, 1.0, s.Minute)
	assert.Equal(t, 1.0, s.Hour)
	assert.Equal(t, 1.0, s.Day)
	assert.InDelta(t, 1.0, s.Overall, 1e-9)
}

func TestTracker_BlendedAvailability(t *testing.T) {
	tr := NewTracker(Limits{Minute: 10, Hour: 100, Day: 1000}, WithClock(newClock().Now))
	tr.Consume(5)

	s := tr.Snapshot()
	assert.InDelta(t, 0.5, s.Minute, 1e-9)
	assert.InDelta(t, 0.95, s.Hour, 1e-9)
	assert.InDelta(t, 0.995, s.Day, 1e-9)
	assert.InDelta(t, 0.5*0.995+0.3*0.95+0.2*0.5, s.Overall, 1e-9)
}

func TestTracker_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		consume int
	}{
		{"none", 0},
		{"some", 30},
		{"exactly limit", 60},
		{"over limit", 500},
		{"negative ignored", -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(DefaultLimits(), WithClock(newClock().Now))
			tr.Consume(tt.consume)
			s := tr.Snapshot()
			for _, v := range []float64{s.Minute, s.Hour, s.Day, s.Overall} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		})
	}
}

func TestTracker_WindowsResetLazily(t *testing.T) {
	clock := newClock()
	tr := NewTracker(Limits{Minute: 10, Hour: 100, Day: 1000}, WithClock(clock.Now))
	tr.Consume(10)
	assert.Equal(t, 0.0, tr.MinuteAvailability())

	clock.Advance(61 * time.Second)
	s := tr.Snapshot()
	assert.Equal(t, 1.0, s.Minute)
	assert.InDelta(t, 0.9, s.Hour, 1e-9)

	clock.Advance(time.Hour)
	assert.Equal(t, 1.0, tr.Snapshot().Hour)
}

func TestTracker_ZeroLimitMeansUnlimited(t *testing.T) {
	tr := NewTracker(Limits{}, WithClock(newClock().Now))
	tr.Consume(1000)
	assert.Equal(t, 1.0, tr.Availability())
}

func TestTracker_ConcurrentConsume(t *testing.T) {
	tr := NewTracker(Limits{Minute: 1000, Hour: 1000, Day: 1000}, WithClock(newClock().Now))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Consume(2)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 0.9, tr.MinuteAvailability(), 1e-9)
}

// Package quota tracks provider request budgets over minute, hour and day windows.
package quota

import (
	"sync"
	"time"
)

// Window names one of the tracked budget windows
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Default request limits per window
const (
	DefaultMinuteLimit = 60
	DefaultHourLimit   = 1000
	DefaultDayLimit    = 10000
)

// Weights used to blend window fractions into the overall availability
const (
	dayWeight    = 0.5
	hourWeight   = 0.3
	minuteWeight = 0.2
)

// Limits holds the request budget for each window
type Limits struct {
	Minute int `toml:"minute"`
	Hour   int `toml:"hour"`
	Day    int `toml:"day"`
}

// DefaultLimits returns the stock provider budget
func DefaultLimits() Limits {
	return Limits{
		Minute: DefaultMinuteLimit,
		Hour:   DefaultHourLimit,
		Day:    DefaultDayLimit,
	}
}

// Snapshot is a point-in-time view of the remaining budget
type Snapshot struct {
	Minute  float64
	Hour    float64
	Day     float64
	Overall float64
}

type window struct {
	limit int
	span  time.Duration
	used  int
	start time.Time
}

func (w *window) roll(now time.Time) {
	if now.Sub(w.start) >= w.span {
		w.used = 0
		w.start = now.Truncate(w.span)
	}
}

func (w *window) fraction() float64 {
	if w.limit <= 0 {
		return 1
	}
	f := 1 - float64(w.used)/float64(w.limit)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Tracker counts consumed requests. Windows reset lazily on access.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	minute window
	hour   window
	day    window
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker with the given limits
func NewTracker(limits Limits, opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	start := t.now()
	t.minute = window{limit: limits.Minute, span: time.Minute, start: start.Truncate(time.Minute)}
	t.hour = window{limit: limits.Hour, span: time.Hour, start: start.Truncate(time.Hour)}
	t.day = window{limit: limits.Day, span: 24 * time.Hour, start: start.Truncate(24 * time.Hour)}
	return t
}

func (t *Tracker) rollLocked() {
	now := t.now()
	t.minute.roll(now)
	t.hour.roll(now)
	t.day.roll(now)
}

// Consume records n provider requests
func (t *Tracker) Consume(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()
	t.minute.used += n
	t.hour.used += n
	t.day.used += n
}

// Snapshot returns the remaining fraction of every window
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollLocked()
	s := Snapshot{
		Minute: t.minute.fraction(),
		Hour:   t.hour.fraction(),
		Day:    t.day.fraction(),
	}
	s.Overall = dayWeight*s.Day + hourWeight*s.Hour + minuteWeight*s.Minute
	return s
}

// Availability returns the blended overall availability in [0,1]
func (t *Tracker) Availability() float64 {
	return t.Snapshot().Overall
}

// MinuteAvailability returns the remaining fraction of the minute window
func (t *Tracker) MinuteAvailability() float64 {
	return t.Snapshot().Minute
}

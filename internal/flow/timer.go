package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrTimerStopped is returned when scheduling on a timer that has been stopped.
var ErrTimerStopped = errors.New("timer stopped")

// Timer schedules the cadence of progress steps. Stop must prevent every pending callback
// that has not yet started from running and refuse new schedules.
type Timer interface {
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	Cancel(id string)
	Stop()
}

// TimerInfo describes a pending callback.
type TimerInfo struct {
	ID          string
	ScheduledAt time.Time
	ExpiresAt   time.Time
	Remaining   time.Duration
}

type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// SimpleTimer implements Timer using time.AfterFunc.
type SimpleTimer struct {
	mu      sync.Mutex
	timers  map[string]*timerEntry
	nextID  int64
	stopped bool
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*timerEntry)}
}

// ScheduleAfter runs fn after delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return "", ErrTimerStopped
	}

	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	now := time.Now()
	t.timers[id] = &timerEntry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
		timer: time.AfterFunc(delay, func() {
			t.mu.Lock()
			_, live := t.timers[id]
			delete(t.timers, id)
			t.mu.Unlock()
			if live {
				fn()
			}
		}),
	}
	slog.Debug("SimpleTimer.ScheduleAfter succeeded", "id", id, "delay", delay)
	return id, nil
}

// Cancel drops a pending callback. Unknown ids are ignored.
func (t *SimpleTimer) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.timers[id]; ok {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer.Cancel succeeded", "id", id)
	}
}

// Stop cancels all pending callbacks. The timer cannot be reused afterwards.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	if n := len(t.timers); n > 0 {
		slog.Debug("SimpleTimer.Stop cancelled pending timers", "count", n)
	}
	t.timers = make(map[string]*timerEntry)
	t.stopped = true
}

// ListActive returns the callbacks that have not fired yet.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	result := make([]TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		remaining := entry.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, TimerInfo{
			ID:          id,
			ScheduledAt: entry.scheduledAt,
			ExpiresAt:   entry.expiresAt,
			Remaining:   remaining,
		})
	}
	return result
}

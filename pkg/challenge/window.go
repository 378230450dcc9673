package challenge

import (
	"sync"
	"time"
)

const DefaultWindowDuration = 24 * time.Hour

// Window is the open challenge period for one committed task, grounded
// on original_source/src/challenges/window.py (absent from the pack;
// reconstructed from test_challenges.py's TestChallengeWindow).
type Window struct {
	TaskID        string
	OpenedNs      int64
	Duration      time.Duration
	ExtendedCount int
}

func (w Window) closesAt() time.Time {
	return time.Unix(0, w.OpenedNs).Add(w.Duration)
}

// IsOpen reports whether now is still within the window.
func (w Window) IsOpen(now time.Time) bool {
	return now.Before(w.closesAt())
}

func (w Window) remaining(now time.Time) time.Duration {
	d := w.closesAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// WindowManager opens and tracks one challenge window per task. Windows
// open on commit observation and default to 24h, matching
// spec.md §4.10 ("duration default 86,400 s").
type WindowManager struct {
	mu      sync.Mutex
	windows map[string]*Window
	clock   func() time.Time
}

func NewWindowManager() *WindowManager {
	return &WindowManager{windows: make(map[string]*Window), clock: time.Now}
}

func (m *WindowManager) WithClock(clock func() time.Time) *WindowManager {
	m.clock = clock
	return m
}

// Open starts a window for taskID with the given duration, or
// DefaultWindowDuration if duration <= 0.
func (m *WindowManager) Open(taskID string, duration time.Duration) Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	if duration <= 0 {
		duration = DefaultWindowDuration
	}
	w := &Window{TaskID: taskID, OpenedNs: m.clock().UnixNano(), Duration: duration}
	m.windows[taskID] = w
	return *w
}

// Extend lengthens an existing window by extra, returning the updated
// window, or false if taskID has no open window.
func (m *WindowManager) Extend(taskID string, extra time.Duration) (Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[taskID]
	if !ok {
		return Window{}, false
	}
	w.Duration += extra
	w.ExtendedCount++
	return *w, true
}

func (m *WindowManager) Get(taskID string) (Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[taskID]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// IsOpen reports whether taskID has a window and it hasn't closed.
func (m *WindowManager) IsOpen(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[taskID]
	if !ok {
		return false
	}
	return w.IsOpen(m.clock())
}

// RemainingTime returns the seconds left in taskID's window, or -1 if no
// window exists. Negative-clamped to zero once closed.
func (m *WindowManager) RemainingTime(taskID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[taskID]
	if !ok {
		return -1
	}
	return w.remaining(m.clock()).Seconds()
}

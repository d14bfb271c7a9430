package service

import "time"

// settleTracker remembers when the scheduler last commanded each device.
// Reconciliation ignores a device until its settle window has passed.
type settleTracker struct {
	window   time.Duration
	commands map[string]time.Time
}

func newSettleTracker(window time.Duration) *settleTracker {
	return &settleTracker{window: window, commands: make(map[string]time.Time)}
}

func (s *settleTracker) mark(name string, now time.Time) {
	s.commands[name] = now
}

func (s *settleTracker) settling(name string, now time.Time) bool {
	at, ok := s.commands[name]
	return ok && now.Sub(at) < s.window
}

// expire drops entries older than the window.
func (s *settleTracker) expire(now time.Time) {
	for name, at := range s.commands {
		if now.Sub(at) >= s.window {
			delete(s.commands, name)
		}
	}
}

func (s *settleTracker) forget(name string) {
	delete(s.commands, name)
}

// onceSet reports true the first time a key is added.
type onceSet map[string]struct{}

func (o onceSet) first(key string) bool {
	if _, ok := o[key]; ok {
		return false
	}
	o[key] = struct{}{}
	return true
}

package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler tracks deferred one-shot callbacks by key so they can be
// cancelled when the room or message they target is deleted through another
// path. Scheduling an existing key replaces its pending callback, which is
// how extending a room's time limit reschedules its expiry.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		logger: logger,
	}
}

// Schedule runs fn after d, replacing any pending callback under the same
// key. The callback runs on its own goroutine; callbacks must tolerate
// their target being already gone.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}

	// The callback only clears its own handle: a replaced timer whose
	// callback was already in flight must not drop the replacement's entry.
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timers[key] == timer {
			delete(s.timers, key)
		}
		s.mu.Unlock()

		s.logger.Debug("Deferred callback fired", zap.String("key", key))
		fn()
	})
	s.timers[key] = timer
}

// Cancel drops the pending callback for key. Cancelling an unknown or
// already-fired key is a safe no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// Pending reports whether a callback is scheduled under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every pending callback and rejects new ones. Used on
// shutdown so in-flight timers don't fire against closed dependencies.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

package scheduler

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduler_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired int32
	s.Schedule("room:r1", 20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("Expected callback to fire once, fired %d times", fired)
	}
	if s.Pending("room:r1") {
		t.Error("Expected key to be cleared after firing")
	}
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired int32
	s.Schedule("empty:r1", 30*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	s.Cancel("empty:r1")

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Expected cancelled callback not to fire")
	}
}

func TestScheduler_CancelUnknownIsNoop(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	s.Cancel("never-scheduled")
}

func TestScheduler_ScheduleReplaces(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var first, second int32
	s.Schedule("room:r1", 30*time.Millisecond, func() {
		atomic.AddInt32(&first, 1)
	})
	s.Schedule("room:r1", 60*time.Millisecond, func() {
		atomic.AddInt32(&second, 1)
	})

	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&first) != 0 {
		t.Error("Expected replaced callback not to fire")
	}
	if atomic.LoadInt32(&second) != 1 {
		t.Error("Expected replacement callback to fire")
	}
}

func TestScheduler_CancelWinsOverReplacedTimer(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	// Replacing a key whose timer is firing at that moment must not lose
	// the replacement's handle; the follow-up Cancel has to stick.
	var fired int32
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("msg:r1:%d", i)
		s.Schedule(key, 0, func() {})
		s.Schedule(key, 30*time.Millisecond, func() {
			atomic.AddInt32(&fired, 1)
		})
		s.Cancel(key)
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Errorf("Expected no cancelled callbacks to fire, fired %d", fired)
	}
}

func TestScheduler_StopCancelsAll(t *testing.T) {
	s := New(zap.NewNop())

	var fired int32
	s.Schedule("a", 30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.Schedule("b", 30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.Stop()

	// Scheduling after Stop is rejected.
	s.Schedule("c", 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Errorf("Expected no callbacks after Stop, fired %d", fired)
	}
}

package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTimerManager_OneShot(t *testing.T) {
	m := NewTimerManager(WithResolution(5 * time.Millisecond))
	defer m.Stop()

	var fired int32
	m.AddTimer("once", 10*time.Millisecond, 0, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Errorf("One-shot timer fired %d times", n)
	}
	if m.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", m.Len())
	}
}

func TestTimerManager_Repeating(t *testing.T) {
	m := NewTimerManager(WithResolution(5 * time.Millisecond))
	defer m.Stop()

	var fired int32
	m.AddTimer("repeat", 0, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) >= 3 })
	if m.Len() != 1 {
		t.Errorf("Repeating timer should stay queued, got %d", m.Len())
	}
}

func TestTimerManager_Remove(t *testing.T) {
	m := NewTimerManager(WithResolution(5 * time.Millisecond))
	defer m.Stop()

	var fired int32
	id := m.AddTimer("removed", 50*time.Millisecond, 0, func() { atomic.AddInt32(&fired, 1) })
	if !m.RemoveTimer(id) {
		t.Fatal("RemoveTimer should find the task")
	}
	if m.RemoveTimer(id) {
		t.Error("Second RemoveTimer should report false")
	}

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Removed timer must not fire")
	}
}

func TestTimerManager_NoOverlap(t *testing.T) {
	m := NewTimerManager(WithResolution(2 * time.Millisecond))

	var running, overlaps, runs int32
	m.AddTimer("slow", 0, 2*time.Millisecond, func() {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&runs, 1)
	})

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 2 })
	m.Stop()
	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Errorf("Repeating task overlapped itself %d times", n)
	}
}

func TestTimerManager_StopWaitsForCallbacks(t *testing.T) {
	m := NewTimerManager(WithResolution(2 * time.Millisecond))

	started := make(chan struct{})
	var finished int32
	m.AddTimer("slow", 0, 0, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	<-started
	m.Stop()
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Stop returned before the callback finished")
	}
	m.Stop()
}

package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_OneShot(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	fired := make(chan struct{}, 1)
	m.Add(10*time.Millisecond, 0, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	if n := m.Pending(); n != 0 {
		t.Errorf("Expected one-shot timer to be removed after firing, %d pending", n)
	}
}

func TestManager_Repeating(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	var count int32
	id := m.Add(0, 10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&count) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected at least 3 runs, got %d", atomic.LoadInt32(&count))
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Remove(id)
	if n := m.Pending(); n != 0 {
		t.Errorf("Expected no pending timers after Remove, got %d", n)
	}
}

func TestManager_RemoveBeforeFire(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	id := m.Add(50*time.Millisecond, 0, func() { atomic.StoreInt32(&fired, 1) })
	m.Remove(id)

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Removed timer should not fire")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}

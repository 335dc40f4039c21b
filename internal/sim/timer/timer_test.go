package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// advance drives one tick without waiting for the ticker.
func advance(t *Timer) {
	t.mu.Lock()
	stop := t.stop
	t.mu.Unlock()
	if stop != nil {
		t.step(stop)
	}
}

func TestNewTimerIsStoppedWithFullDuration(t *testing.T) {
	tm := New(5*time.Second, time.Second)
	defer tm.Close()
	if tm.Running() || tm.Ended() {
		t.Fatalf("expected stopped, not ended")
	}
	if got := tm.Remaining(); got != 5*time.Second {
		t.Fatalf("remaining = %v, want 5s", got)
	}
}

func TestStopPreservesRemaining(t *testing.T) {
	tm := New(10*time.Second, time.Second)
	defer tm.Close()
	if !tm.Start() {
		t.Fatalf("start should succeed")
	}
	if tm.Start() {
		t.Fatalf("second start should be a no-op")
	}
	advance(tm)
	advance(tm)
	tm.Stop()
	tm.Stop()
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("remaining after stop = %v, want 8s", got)
	}
	advance(tm)
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("remaining changed while stopped: %v", got)
	}
	tm.Start()
	advance(tm)
	if got := tm.Remaining(); got != 7*time.Second {
		t.Fatalf("remaining after resume = %v, want 7s", got)
	}
}

func TestEndedFiresExactlyOnceAndIsTerminal(t *testing.T) {
	tm := New(3*time.Second, 2*time.Second)
	defer tm.Close()
	var ended atomic.Int32
	var mu sync.Mutex
	var updates []time.Duration
	tm.OnEnded(func() { ended.Add(1) })
	tm.OnUpdate(func(r time.Duration) {
		mu.Lock()
		updates = append(updates, r)
		mu.Unlock()
	})
	tm.Start()
	advance(tm)
	advance(tm)
	advance(tm)
	if got := ended.Load(); got != 1 {
		t.Fatalf("ended fired %d times, want 1", got)
	}
	if tm.Remaining() != 0 {
		t.Fatalf("remaining = %v, want 0", tm.Remaining())
	}
	if tm.Start() {
		t.Fatalf("start after end must fail")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 2 || updates[0] != time.Second || updates[1] != 0 {
		t.Fatalf("updates = %v, want [1s 0s]", updates)
	}
}

func TestTickerCountsDownStrictly(t *testing.T) {
	tm := New(50*time.Millisecond, 10*time.Millisecond)
	defer tm.Close()
	done := make(chan struct{})
	var mu sync.Mutex
	var seen []time.Duration
	tm.OnUpdate(func(r time.Duration) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})
	tm.OnEnded(func() { close(done) })
	tm.Start()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not end")
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] >= seen[i-1] {
			t.Fatalf("remaining not strictly decreasing: %v", seen)
		}
	}
	if seen[len(seen)-1] != 0 {
		t.Fatalf("last update = %v, want 0", seen[len(seen)-1])
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	tm := New(10*time.Second, time.Second)
	defer tm.Close()
	var n atomic.Int32
	cancel := tm.OnUpdate(func(time.Duration) { n.Add(1) })
	tm.Start()
	advance(tm)
	cancel()
	advance(tm)
	if got := n.Load(); got != 1 {
		t.Fatalf("updates after cancel = %d, want 1", got)
	}
}

func TestPartialTicksSurvivePauses(t *testing.T) {
	tick := 40 * time.Millisecond
	tm := New(10*time.Second, tick)
	defer tm.Close()
	for i := 0; i < 10; i++ {
		tm.Start()
		time.Sleep(25 * time.Millisecond)
		tm.Stop()
	}
	if got, max := tm.Remaining(), 10*time.Second-3*tick; got > max {
		t.Fatalf("remaining = %v after 250ms of run time, want <= %v", got, max)
	}
}

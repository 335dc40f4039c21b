// Package timer implements the countdown clock that drives a match.
//
// A Timer starts STOPPED with the full duration remaining. While running it
// decrements once per tick and notifies update subscribers; on reaching zero
// it notifies ended subscribers exactly once and can never run again. Time
// run since the last tick is kept across a pause, so the first tick after a
// resume comes early by that much.
package timer

import (
	"sync"
	"time"
)

type Timer struct {
	mu        sync.Mutex
	duration  time.Duration
	remaining time.Duration
	tick      time.Duration
	running   bool
	ended     bool
	closed    bool

	since time.Time     // start of the current partial tick
	carry time.Duration // partial tick run before the last pause

	// stop identifies the current run goroutine; a goroutine whose stop
	// channel is no longer current must not touch remaining.
	stop chan struct{}
	done chan struct{}

	nextSub  int
	onUpdate map[int]func(time.Duration)
	onEnded  map[int]func()
}

func New(duration, tick time.Duration) *Timer {
	if tick <= 0 {
		tick = time.Second
	}
	if duration < 0 {
		duration = 0
	}
	return &Timer{
		duration:  duration,
		remaining: duration,
		tick:      tick,
		onUpdate:  map[int]func(time.Duration){},
		onEnded:   map[int]func(){},
	}
}

// Start resumes counting down. It reports false when the timer is already
// running, has ended, or was closed.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.ended || t.closed {
		return false
	}
	t.running = true
	t.since = time.Now()
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done, t.tick-t.carry)
	return true
}

// Stop pauses the countdown and keeps the remaining time. It does not wait
// for the tick goroutine, so it is safe to call from a subscriber.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if !t.running {
		return
	}
	t.running = false
	t.carry += time.Since(t.since)
	if t.carry > t.tick {
		t.carry = t.tick
	}
	close(t.stop)
	t.stop = nil
}

// Close stops the timer for good and waits for the tick goroutine to exit.
// It must not be called from a subscriber.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopLocked()
	done := t.done
	t.onUpdate = map[int]func(time.Duration){}
	t.onEnded = map[int]func(){}
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Timer) Duration() time.Duration { return t.duration }

func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *Timer) OnUpdate(fn func(remaining time.Duration)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.onUpdate[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.onUpdate, id)
		t.mu.Unlock()
	}
}

func (t *Timer) OnEnded(fn func()) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.onEnded[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.onEnded, id)
		t.mu.Unlock()
	}
}

func (t *Timer) run(stop, done chan struct{}, first time.Duration) {
	defer close(done)
	wait := time.NewTimer(first)
	defer wait.Stop()
	select {
	case <-stop:
		return
	case <-wait.C:
		if last := t.step(stop); last {
			return
		}
	}
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if last := t.step(stop); last {
				return
			}
		}
	}
}

// step applies one tick on behalf of the run goroutine owning stop and
// reports whether that goroutine should exit.
func (t *Timer) step(stop chan struct{}) bool {
	t.mu.Lock()
	if !t.running || t.stop != stop {
		t.mu.Unlock()
		return true
	}
	t.remaining -= t.tick
	t.carry = 0
	t.since = time.Now()
	ended := false
	if t.remaining <= 0 {
		t.remaining = 0
		t.running = false
		t.ended = true
		t.stop = nil
		ended = true
	}
	remaining := t.remaining
	updates := make([]func(time.Duration), 0, len(t.onUpdate))
	for _, fn := range t.onUpdate {
		updates = append(updates, fn)
	}
	var enders []func()
	if ended {
		for _, fn := range t.onEnded {
			enders = append(enders, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range updates {
		fn(remaining)
	}
	for _, fn := range enders {
		fn()
	}
	return ended
}

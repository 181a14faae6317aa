// Package clock drives mini-game sessions in virtual time.
//
// A Scheduler is the timer arena owned by one session: every countdown step,
// simulation tick, entity expiry and deferred completion is registered here,
// and a terminal transition clears all of them with CancelAll. Time only moves
// when Advance is called, so the same session can be driven by a wall-clock
// ticker in production and stepped manually in tests and replays.
package clock

import (
	"container/heap"
	"time"
)

// TimerID identifies a scheduled callback.
type TimerID uint64

type timer struct {
	id        TimerID
	at        time.Duration
	seq       uint64
	every     time.Duration
	fn        func()
	cancelled bool
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(*timer)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

// Scheduler is a single-threaded virtual-time timer registry.
// Timers due at the same instant fire in registration order.
type Scheduler struct {
	now    time.Duration
	seq    uint64
	nextID TimerID
	queue  timerQueue
	live   map[TimerID]*timer
}

// NewScheduler creates a scheduler at virtual time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{live: make(map[TimerID]*timer)}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After runs fn once, d from now.
func (s *Scheduler) After(d time.Duration, fn func()) TimerID {
	return s.add(d, 0, fn)
}

// Every runs fn every d, first firing d from now. d must be positive.
func (s *Scheduler) Every(d time.Duration, fn func()) TimerID {
	if d <= 0 {
		panic("clock: Every requires a positive interval")
	}
	return s.add(d, d, fn)
}

func (s *Scheduler) add(d, every time.Duration, fn func()) TimerID {
	if d < 0 {
		d = 0
	}
	s.nextID++
	s.seq++
	t := &timer{id: s.nextID, at: s.now + d, seq: s.seq, every: every, fn: fn}
	s.live[t.id] = t
	heap.Push(&s.queue, t)
	return t.id
}

// Cancel stops a pending timer. Returns false if it already fired or was cancelled.
func (s *Scheduler) Cancel(id TimerID) bool {
	t, ok := s.live[id]
	if !ok {
		return false
	}
	t.cancelled = true
	delete(s.live, id)
	return true
}

// CancelAll clears every pending timer.
func (s *Scheduler) CancelAll() {
	for _, t := range s.live {
		t.cancelled = true
	}
	s.live = make(map[TimerID]*timer)
	s.queue = nil
}

// Pending returns the number of live timers.
func (s *Scheduler) Pending() int {
	return len(s.live)
}

// Advance moves virtual time forward by d, firing every timer that falls due,
// including timers registered by callbacks during the advance. Returns the
// number of callbacks run.
func (s *Scheduler) Advance(d time.Duration) int {
	target := s.now + d
	fired := 0
	for len(s.queue) > 0 && s.queue[0].at <= target {
		t := heap.Pop(&s.queue).(*timer)
		if t.cancelled {
			continue
		}
		s.now = t.at
		if t.every > 0 {
			s.seq++
			t.at += t.every
			t.seq = s.seq
			heap.Push(&s.queue, t)
		} else {
			delete(s.live, t.id)
		}
		t.fn()
		fired++
	}
	s.now = target
	return fired
}

// RunUntilIdle advances until no timers remain or limit elapses.
func (s *Scheduler) RunUntilIdle(limit time.Duration) {
	end := s.now + limit
	for len(s.live) > 0 && s.now < end {
		next := end
		for len(s.queue) > 0 && s.queue[0].cancelled {
			heap.Pop(&s.queue)
		}
		if len(s.queue) > 0 && s.queue[0].at < next {
			next = s.queue[0].at
		}
		s.Advance(next - s.now)
	}
}

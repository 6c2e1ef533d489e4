package client

import (
	"sync"
	"time"
)

// Scheduler invokes fn every interval until the returned stop func is called.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler is the wall-clock Scheduler.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// QuestionTimer counts down one question. Ticks are handed to post so that
// every state change happens on the owner's event loop; all methods must be
// called from that loop.
type QuestionTimer struct {
	sched     Scheduler
	post      func(func())
	onTick    func(remaining int)
	onExpired func()

	remaining int
	running   bool
	locked    bool
	gen       uint64
	cancel    func()
}

// NewQuestionTimer builds a stopped, unlocked timer.
func NewQuestionTimer(sched Scheduler, post func(func()), onTick func(int), onExpired func()) *QuestionTimer {
	if sched == nil {
		sched = TickerScheduler{}
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &QuestionTimer{
		sched:     sched,
		post:      post,
		onTick:    onTick,
		onExpired: onExpired,
	}
}

// Start resets the countdown to limit seconds and unlocks. A non-positive
// limit expires at once.
func (t *QuestionTimer) Start(limit int) {
	t.Stop()
	t.gen++
	t.remaining = limit
	t.locked = false
	if limit <= 0 {
		t.remaining = 0
		t.expire()
		return
	}

	t.running = true
	gen := t.gen
	t.cancel = t.sched.Every(time.Second, func() {
		t.post(func() { t.tick(gen) })
	})
}

// Restart is Stop followed by Start.
func (t *QuestionTimer) Restart(limit int) {
	t.Stop()
	t.Start(limit)
}

// Stop cancels pending ticks. Safe to call repeatedly and from onExpired.
func (t *QuestionTimer) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.running = false
}

func (t *QuestionTimer) Remaining() int { return t.remaining }
func (t *QuestionTimer) Running() bool  { return t.running }
func (t *QuestionTimer) Locked() bool   { return t.locked }

func (t *QuestionTimer) tick(gen uint64) {
	// stale tick from a countdown that was stopped or replaced
	if gen != t.gen || !t.running {
		return
	}
	t.remaining--
	if t.onTick != nil {
		t.onTick(t.remaining)
	}
	if t.remaining <= 0 {
		t.expire()
	}
}

// expire locks before stopping so an advance arriving next sees a settled timer.
func (t *QuestionTimer) expire() {
	t.locked = true
	t.Stop()
	if t.onExpired != nil {
		t.onExpired()
	}
}

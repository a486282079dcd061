package timer

import (
	"sync"
	"time"
)

// FrameFunc is invoked once per requested frame with the frame timestamp.
type FrameFunc func(now time.Time)

// FrameID identifies a pending frame request. Zero is never issued.
type FrameID uint64

// Scheduler is a cooperative, single-threaded frame source. Frame callbacks
// and posted funcs never run concurrently with each other.
type Scheduler interface {
	Now() time.Time
	// RequestFrame registers fn to run once on the next frame.
	RequestFrame(fn FrameFunc) FrameID
	// CancelFrame drops a pending request; cancelling a fired or unknown id is a no-op.
	CancelFrame(id FrameID)
	// Post queues fn to run on the scheduler thread before the next frame.
	// Safe to call from any goroutine.
	Post(fn func())
}

type frameQueue struct {
	mu      sync.Mutex
	nextID  FrameID
	pending map[FrameID]FrameFunc
	order   []FrameID
	posted  []func()
}

func newFrameQueue() frameQueue {
	return frameQueue{pending: make(map[FrameID]FrameFunc)}
}

func (q *frameQueue) request(fn FrameFunc) FrameID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.pending[q.nextID] = fn
	q.order = append(q.order, q.nextID)
	return q.nextID
}

func (q *frameQueue) cancel(id FrameID) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

func (q *frameQueue) post(fn func()) {
	q.mu.Lock()
	q.posted = append(q.posted, fn)
	q.mu.Unlock()
}

// take detaches everything currently queued; requests made while the returned
// work runs belong to the following frame.
func (q *frameQueue) take() ([]func(), []FrameID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	posted := q.posted
	q.posted = nil
	order := q.order
	q.order = nil
	return posted, order
}

// claim removes and returns a frame callback if it is still pending.
func (q *frameQueue) claim(id FrameID) (FrameFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	return fn, ok
}

func (q *frameQueue) size() (frames, posted int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.posted)
}

func (q *frameQueue) run(now time.Time) {
	posted, order := q.take()
	for _, fn := range posted {
		fn()
	}
	for _, id := range order {
		// a callback earlier in this frame may have cancelled this one
		if fn, ok := q.claim(id); ok {
			fn(now)
		}
	}
}

// ManualScheduler advances a fake clock on demand. Used by tests and by
// anything that wants to drive frames deterministically.
type ManualScheduler struct {
	queue    frameQueue
	guard    sync.Locker
	interval time.Duration

	clockMu sync.Mutex
	now     time.Time
}

// NewManualScheduler starts the fake clock at start. guard, when non-nil, is
// held while frames run.
func NewManualScheduler(start time.Time, guard sync.Locker) *ManualScheduler {
	return &ManualScheduler{
		queue:    newFrameQueue(),
		guard:    guard,
		interval: 16 * time.Millisecond,
		now:      start,
	}
}

func (m *ManualScheduler) Now() time.Time {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	return m.now
}

func (m *ManualScheduler) RequestFrame(fn FrameFunc) FrameID { return m.queue.request(fn) }
func (m *ManualScheduler) CancelFrame(id FrameID)            { m.queue.cancel(id) }
func (m *ManualScheduler) Post(fn func())                    { m.queue.post(fn) }

// Pending reports queued frame requests and posted funcs.
func (m *ManualScheduler) Pending() (frames, posted int) { return m.queue.size() }

// Step moves the clock forward by d and runs one frame.
func (m *ManualScheduler) Step(d time.Duration) {
	m.clockMu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	m.clockMu.Unlock()

	if m.guard != nil {
		m.guard.Lock()
		defer m.guard.Unlock()
	}
	m.queue.run(now)
}

// RunFor steps frame by frame until d of simulated time has passed.
func (m *ManualScheduler) RunFor(d time.Duration) {
	for d > 0 {
		step := m.interval
		if d < step {
			step = d
		}
		m.Step(step)
		d -= step
	}
}

// LoopScheduler fires frames from a ticker goroutine. Work runs while guard is
// held so callers serialize commands with frames by taking the same lock.
type LoopScheduler struct {
	queue frameQueue
	guard sync.Locker
	now   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLoopScheduler starts ticking every interval until Stop is called.
func NewLoopScheduler(interval time.Duration, guard sync.Locker) *LoopScheduler {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	s := &LoopScheduler{
		queue: newFrameQueue(),
		guard: guard,
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.loop(interval)
	return s
}

func (s *LoopScheduler) loop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if frames, posted := s.queue.size(); frames == 0 && posted == 0 {
				continue
			}
			s.guard.Lock()
			s.queue.run(s.now())
			s.guard.Unlock()
		}
	}
}

func (s *LoopScheduler) Now() time.Time                    { return s.now() }
func (s *LoopScheduler) RequestFrame(fn FrameFunc) FrameID { return s.queue.request(fn) }
func (s *LoopScheduler) CancelFrame(id FrameID)            { s.queue.cancel(id) }
func (s *LoopScheduler) Post(fn func())                    { s.queue.post(fn) }

// Stop ends the ticker goroutine. It must not be called while holding guard.
func (s *LoopScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

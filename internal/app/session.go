package app

import (
	"image"
	"sync"
	"time"

	"reveal-challenge-service/internal/challenge"
	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/render"
)

// Session owns one player's challenge. Its mutex is also the scheduler
// guard, so frames, posted callbacks and commands never interleave.
type Session struct {
	id     string
	userID string

	mu            sync.Mutex
	machine       *challenge.Machine
	settlement    challenge.Settlement
	stopScheduler func()
	subscribers   map[chan domain.Snapshot]struct{}
	closed        bool
	lastSeen      time.Time
}

func newSession(id, userID string, now time.Time) *Session {
	return &Session{
		id:          id,
		userID:      userID,
		subscribers: make(map[chan domain.Snapshot]struct{}),
		lastSeen:    now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

// idle reports whether nobody has used the session for ttl. A session with a
// live subscriber is never idle.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.subscribers) > 0 {
		return false
	}
	return now.Sub(s.lastSeen) >= ttl
}

func (s *Session) snapshot() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return s.snapshotLocked(), nil
}

func (s *Session) submit(optionID string) (domain.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Snapshot{}, false, domain.ErrSessionNotFound
	}
	accepted := s.machine.Submit(optionID)
	return s.snapshotLocked(), accepted, nil
}

func (s *Session) advance() (domain.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Snapshot{}, false, domain.ErrSessionNotFound
	}
	accepted := s.machine.Advance()
	return s.snapshotLocked(), accepted, nil
}

func (s *Session) render(size render.Size) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionNotFound
	}
	return s.machine.Render(size)
}

// beginClaim sets the settlement guard. ok is false when a claim already
// succeeded or is running.
func (s *Session) beginClaim() (amount int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, domain.ErrSessionNotFound
	}
	if s.machine.Phase() != domain.PhaseFinished {
		return 0, false, domain.ErrNotFinished
	}
	if !s.settlement.Begin(s.machine.Total()) {
		return s.settlement.Amount(), false, nil
	}
	return s.settlement.Amount(), true, nil
}

func (s *Session) finishClaim(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlement.Finish(err)
	if !s.closed {
		s.broadcastLocked(s.snapshotLocked())
	}
}

func (s *Session) finished() (done, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Phase() == domain.PhaseFinished, s.settlement.Claimed()
}

// close stops the machine and releases subscribers. Safe to call twice.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.machine.Close()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	stop := s.stopScheduler
	s.mu.Unlock()

	// the frame loop takes s.mu, so it is stopped outside the lock
	if stop != nil {
		stop()
	}
}

func (s *Session) subscribe() (<-chan domain.Snapshot, func(), error) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	ch <- s.snapshotLocked()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := s.machine.Snapshot()
	snap.Claimed = s.settlement.Claimed()
	return snap
}

// onUpdate is the machine's update hook; it always runs with s.mu held.
func (s *Session) onUpdate(snap domain.Snapshot) {
	snap.Claimed = s.settlement.Claimed()
	s.broadcastLocked(snap)
}

func (s *Session) broadcastLocked(snap domain.Snapshot) {
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow reader: replace its oldest pending snapshot with this one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

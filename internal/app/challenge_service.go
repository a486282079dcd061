package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"reveal-challenge-service/internal/challenge"
	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/render"
	"reveal-challenge-service/internal/timer"
)

// SessionRepository abstracts where live challenge sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	List() []*Session
}

// EntityRepository loads the pool of guessable entities (from cache/backing store).
type EntityRepository interface {
	ListEntities(ctx context.Context) ([]domain.Entity, error)
}

// CurrencyGranter credits a settlement. grantID is unique per session, so an
// implementation can refuse duplicates; amount 0 must succeed without effect.
type CurrencyGranter interface {
	GrantCurrency(ctx context.Context, grantID, userID string, amount int) error
}

// SchedulerFactory builds the frame source for a session. guard is the
// session lock; the returned stop func is called once on exit.
type SchedulerFactory func(guard sync.Locker) (timer.Scheduler, func())

// LoopSchedulers ticks sessions in real time at interval.
func LoopSchedulers(interval time.Duration) SchedulerFactory {
	return func(guard sync.Locker) (timer.Scheduler, func()) {
		s := timer.NewLoopScheduler(interval, guard)
		return s, s.Stop
	}
}

// Options configures a ChallengeService.
type Options struct {
	Variants       map[string]domain.Variant
	DefaultVariant string
	PreFill        time.Duration
	Category       string
	Schedulers     SchedulerFactory
	Logger         *slog.Logger
	// IdleTTL expires sessions nobody has touched for this long; zero keeps them.
	IdleTTL time.Duration
	Clock   func() time.Time
}

// ChallengeService contains the challenge use cases.
type ChallengeService struct {
	sessions SessionRepository
	entities EntityRepository
	granter  CurrencyGranter
	images   *render.Cache
	opts     Options
	log      *slog.Logger

	seedMu sync.Mutex
	seeds  *rand.Rand
}

func NewChallengeService(sessions SessionRepository, entities EntityRepository, granter CurrencyGranter, images *render.Cache, opts Options) *ChallengeService {
	if len(opts.Variants) == 0 {
		opts.Variants = domain.DefaultVariants()
	}
	if opts.DefaultVariant == "" {
		opts.DefaultVariant = "center-tile"
	}
	if opts.Schedulers == nil {
		opts.Schedulers = LoopSchedulers(50 * time.Millisecond)
	}
	if opts.Category == "" {
		opts.Category = "characters"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeService{
		sessions: sessions,
		entities: entities,
		granter:  granter,
		images:   images,
		opts:     opts,
		log:      logger,
		seeds:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Variant looks up a variant by name; empty selects the default.
func (s *ChallengeService) Variant(name string) (domain.Variant, error) {
	if name == "" {
		name = s.opts.DefaultVariant
	}
	v, ok := s.opts.Variants[name]
	if !ok {
		return domain.Variant{}, fmt.Errorf("%w: %s", domain.ErrVariantNotFound, name)
	}
	return v, nil
}

// Start loads the entity pool and opens a new session. No session exists
// when the pool is empty.
func (s *ChallengeService) Start(ctx context.Context, userID, variantName string) (domain.Snapshot, error) {
	variant, err := s.Variant(variantName)
	if err != nil {
		return domain.Snapshot{}, err
	}

	pool, err := s.entities.ListEntities(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load entity pool: %w", err)
	}
	if len(pool) == 0 {
		return domain.Snapshot{}, domain.ErrEmptyPool
	}

	session := newSession(uuid.NewString(), userID, s.opts.Clock())
	sched, stop := s.opts.Schedulers(&session.mu)
	session.stopScheduler = stop
	session.machine = challenge.NewMachine(session.id, challenge.Config{
		Variant:  variant,
		PreFill:  s.opts.PreFill,
		Category: s.opts.Category,
	}, challenge.Options{
		Scheduler: sched,
		Images:    s.images,
		Rand:      s.newRand(),
		OnUpdate:  session.onUpdate,
		Logger:    s.log,
	})

	session.mu.Lock()
	err = session.machine.Begin(pool)
	snap := session.snapshotLocked()
	session.mu.Unlock()
	if err != nil {
		session.close()
		return domain.Snapshot{}, err
	}

	s.sessions.Put(session)
	s.log.Info("challenge started", "session", session.id, "user", userID, "variant", variant.Name, "pool", len(pool))
	return snap, nil
}

// Snapshot returns the current view of a session.
func (s *ChallengeService) Snapshot(_ context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.snapshot()
}

// Submit picks an option. accepted is false when the pick was ignored
// (round not counting, already submitted, or unknown option).
func (s *ChallengeService) Submit(_ context.Context, sessionID, optionID string) (snap domain.Snapshot, accepted bool, err error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return domain.Snapshot{}, false, domain.ErrSessionNotFound
	}
	return session.submit(optionID)
}

// Advance leaves a resolved round.
func (s *ChallengeService) Advance(_ context.Context, sessionID string) (domain.Snapshot, bool, error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return domain.Snapshot{}, false, domain.ErrSessionNotFound
	}
	return session.advance()
}

// Render draws the current round image at size.
func (s *ChallengeService) Render(_ context.Context, sessionID string, size render.Size) (*image.RGBA, error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.render(size)
}

// Subscribe returns a channel that receives snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ChallengeService) Subscribe(_ context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	return session.subscribe()
}

// Claim grants the final total at most once per session. Repeated calls
// report AlreadyClaimed without touching the granter.
func (s *ChallengeService) Claim(ctx context.Context, sessionID string) (domain.SettlementResult, error) {
	session, ok := s.lookup(sessionID)
	if !ok {
		return domain.SettlementResult{}, domain.ErrSessionNotFound
	}

	amount, begun, err := session.beginClaim()
	if err != nil {
		return domain.SettlementResult{}, err
	}
	result := domain.SettlementResult{SessionID: sessionID, Amount: amount}
	if !begun {
		result.AlreadyClaimed = true
		return result, nil
	}

	err = s.granter.GrantCurrency(ctx, session.id, session.userID, amount)
	session.finishClaim(err)
	if err != nil {
		s.log.Error("currency grant failed", "session", sessionID, "amount", amount, "error", err)
		return result, fmt.Errorf("%w: %v", domain.ErrGrant, err)
	}
	result.Granted = true
	s.log.Info("currency granted", "session", sessionID, "user", session.userID, "amount", amount)
	return result, nil
}

// Exit dismisses the session. A finished, unclaimed session is settled first;
// a grant failure is returned but the session is still removed.
func (s *ChallengeService) Exit(ctx context.Context, sessionID string) (domain.SettlementResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SettlementResult{}, domain.ErrSessionNotFound
	}
	var (
		result domain.SettlementResult
		err    error
	)
	if done, claimed := session.finished(); done && !claimed {
		result, err = s.Claim(ctx, sessionID)
	}
	s.Leave(ctx, sessionID)
	return result, err
}

// Leave drops a session without settling.
func (s *ChallengeService) Leave(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.close()
	s.sessions.Delete(sessionID)
	s.log.Info("challenge closed", "session", sessionID)
}

// Sweep exits every session idle for at least IdleTTL, settling finished
// ones the same way Exit does. It returns how many were removed.
func (s *ChallengeService) Sweep(ctx context.Context) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	now := s.opts.Clock()
	removed := 0
	for _, session := range s.sessions.List() {
		if !session.idle(now, s.opts.IdleTTL) {
			continue
		}
		if _, err := s.Exit(ctx, session.id); err != nil {
			s.log.Warn("idle session settle failed", "session", session.id, "error", err)
		}
		s.log.Info("idle session expired", "session", session.id, "user", session.userID)
		removed++
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *ChallengeService) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.log.Info("session sweeper started", "interval", interval, "ttl", s.opts.IdleTTL)
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// lookup finds a live session and marks it as used.
func (s *ChallengeService) lookup(sessionID string) (*Session, bool) {
	session, ok := s.sessions.Get(sessionID)
	if ok {
		session.touch(s.opts.Clock())
	}
	return session, ok
}

func (s *ChallengeService) newRand() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return rand.New(rand.NewSource(s.seeds.Int63()))
}

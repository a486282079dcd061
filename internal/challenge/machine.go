package challenge

import (
	"context"
	"image"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/render"
	"reveal-challenge-service/internal/timer"
)

// Config parameterizes one engine instance.
type Config struct {
	Variant  domain.Variant
	PreFill  time.Duration
	Category string
}

// Options carries the collaborators of a Machine.
type Options struct {
	Scheduler timer.Scheduler
	Images    *render.Cache
	Rand      *rand.Rand
	// OnUpdate receives a snapshot after every visible state change. It runs on
	// the scheduler thread or inside the command that caused the change.
	OnUpdate func(domain.Snapshot)
	Logger   *slog.Logger
}

type imageSlot struct {
	ref     string
	loading bool
	ready   bool
	err     error
	cancel  context.CancelFunc
}

// Machine is the challenge state machine. It is not safe for concurrent use:
// commands, frames and posted callbacks must be serialized by the owner,
// which is what the scheduler guard is for.
type Machine struct {
	id       string
	cfg      Config
	sched    timer.Scheduler
	images   *render.Cache
	rnd      *rand.Rand
	onUpdate func(domain.Snapshot)
	log      *slog.Logger

	phase  domain.Phase
	rounds []domain.Round
	stage  int
	ledger *Ledger
	timer  *timer.Timer
	closed bool

	img    imageSlot
	imgGen uint64

	lastPercent int
	lastTier    domain.DangerTier
}

// NewMachine creates a machine in the Loading phase.
func NewMachine(id string, cfg Config, opts Options) *Machine {
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		id:       id,
		cfg:      cfg,
		sched:    opts.Scheduler,
		images:   opts.Images,
		rnd:      rnd,
		onUpdate: opts.OnUpdate,
		log:      logger.With("session", id, "variant", cfg.Variant.Name),
		phase:    domain.PhaseLoading,
		ledger:   NewLedger(cfg.Variant.Penalty),
		timer:    timer.New(opts.Scheduler, cfg.PreFill),
	}
}

// Begin generates every round from pool and starts the first stage.
// On ErrEmptyPool the machine stays in Loading and must be discarded.
func (m *Machine) Begin(pool []domain.Entity) error {
	if m.phase != domain.PhaseLoading || m.closed {
		return nil
	}
	rounds, err := GenerateRounds(m.rnd, pool, m.cfg.Variant.Catalog, func(e domain.Entity) string {
		return domain.AssetPath(m.cfg.Category, e.Rarity, e.ID)
	})
	if err != nil {
		return err
	}
	m.start(rounds)
	return nil
}

func (m *Machine) start(rounds []domain.Round) {
	m.rounds = rounds
	m.stage = 0
	m.enterStage()
}

func (m *Machine) enterStage() {
	idx := m.stage
	m.phase = domain.PhasePreFill
	m.lastPercent = -1
	m.mountImage()
	m.timer.Start(m.rounds[idx].Stage.TimeBudget, timer.Hooks{
		OnCounting: func() {
			if idx == m.stage && m.phase == domain.PhasePreFill {
				m.phase = domain.PhaseCounting
				m.emit()
			}
		},
		OnTick: func(float64) { m.emitProgress() },
		OnExpire: func() {
			if idx == m.stage {
				m.timeoutAutoSubmit()
			}
		},
	})
	m.log.Info("stage started", "stage", idx+1, "budget", m.rounds[idx].Stage.TimeBudget)
	m.emit()
}

// Submit picks an option for the current round. It is a no-op unless the
// countdown is live, the round is unsubmitted and optionID is one of its options.
func (m *Machine) Submit(optionID string) bool {
	if m.closed || m.phase != domain.PhaseCounting {
		return false
	}
	r := &m.rounds[m.stage]
	if r.Submitted || !r.HasOption(optionID) {
		return false
	}
	m.resolve(r, optionID, optionID == r.Answer.ID, false)
	return true
}

// timeoutAutoSubmit scores the round as wrong with no pick.
func (m *Machine) timeoutAutoSubmit() {
	if m.closed || m.phase != domain.PhaseCounting {
		return
	}
	r := &m.rounds[m.stage]
	if r.Submitted {
		return
	}
	m.resolve(r, "", false, true)
}

func (m *Machine) resolve(r *domain.Round, picked string, correct, timedOut bool) {
	m.timer.Cancel()
	r.PickedID = picked
	r.IsCorrect = correct
	r.TimedOut = timedOut
	r.RewardDelta = m.ledger.Record(*r, correct, timedOut)
	r.Submitted = true
	m.phase = domain.PhaseResolved
	m.log.Info("stage resolved",
		"stage", r.Stage.Index,
		"correct", correct,
		"timed_out", timedOut,
		"delta", r.RewardDelta,
		"total", m.ledger.Total(),
	)
	m.emit()
}

// Advance moves past a resolved round: to the next stage, or to Finished
// after the last one.
func (m *Machine) Advance() bool {
	if m.closed || m.phase != domain.PhaseResolved {
		return false
	}
	if m.stage == len(m.rounds)-1 {
		m.timer.Cancel()
		m.phase = domain.PhaseFinished
		m.log.Info("challenge finished",
			"total", m.ledger.Total(),
			"correct", m.ledger.CorrectCount(),
			"wrong", m.ledger.WrongCount(),
		)
		m.emit()
		return true
	}
	m.releaseImage()
	m.stage++
	m.enterStage()
	return true
}

// Close cancels the pending frame and any in-flight image load. Every later
// call is a no-op.
func (m *Machine) Close() {
	if m.closed {
		return
	}
	m.timer.Cancel()
	m.releaseImage()
	m.closed = true
}

func (m *Machine) Phase() domain.Phase { return m.phase }
func (m *Machine) Total() int          { return m.ledger.Total() }

// StageIndex is the zero-based current stage.
func (m *Machine) StageIndex() int { return m.stage }

// Round returns a copy of the current round.
func (m *Machine) Round() (domain.Round, bool) {
	if len(m.rounds) == 0 {
		return domain.Round{}, false
	}
	r := m.rounds[m.stage]
	r.Options = append([]domain.Entity(nil), r.Options...)
	return r, true
}

// Render draws the current view at size: the puzzle while the round is open,
// the original once it is resolved. A missing source yields the placeholder
// and, if the last attempt failed, an ErrImageLoad error; the load is retried.
func (m *Machine) Render(size render.Size) (*image.RGBA, error) {
	if len(m.rounds) == 0 || m.images == nil {
		return render.Placeholder(size), nil
	}
	r := m.rounds[m.stage]
	src, ok := m.images.Get(r.ImageRef)
	if !ok {
		err := m.img.err
		if !m.img.loading && !m.closed {
			m.mountImage()
		}
		return render.Placeholder(size), err
	}
	if m.phase == domain.PhaseResolved || m.phase == domain.PhaseFinished {
		return render.RevealView(src, size), nil
	}
	return render.Render(src, m.cfg.Variant.Mode, size), nil
}

func (m *Machine) mountImage() {
	m.releaseImage()
	ref := m.rounds[m.stage].ImageRef
	m.img = imageSlot{ref: ref}
	if m.images == nil {
		return
	}
	if _, ok := m.images.Get(ref); ok {
		m.img.ready = true
		return
	}
	gen := m.imgGen
	ctx, cancel := context.WithCancel(context.Background())
	m.img.loading = true
	m.img.cancel = cancel
	go func() {
		_, err := m.images.Load(ctx, ref)
		m.sched.Post(func() { m.imageLoaded(gen, err) })
	}()
}

// imageLoaded applies a finished load unless the round it was started for is
// no longer mounted.
func (m *Machine) imageLoaded(gen uint64, err error) {
	if m.closed || gen != m.imgGen {
		return
	}
	m.img.cancel()
	m.img.cancel = nil
	m.img.loading = false
	if err != nil {
		m.img.err = err
		m.log.Warn("image load failed", "stage", m.stage+1, "ref", m.img.ref, "error", err)
	} else {
		m.img.ready = true
		m.img.err = nil
	}
	m.emit()
}

func (m *Machine) releaseImage() {
	if m.img.cancel != nil {
		m.img.cancel()
	}
	m.imgGen++
	m.img = imageSlot{}
}

func (m *Machine) emitProgress() {
	p := int(math.Round(m.timer.Progress()))
	tier := m.timer.Tier()
	if p == m.lastPercent && tier == m.lastTier {
		return
	}
	m.emit()
}

func (m *Machine) emit() {
	m.lastPercent = int(math.Round(m.timer.Progress()))
	m.lastTier = m.timer.Tier()
	if m.onUpdate != nil {
		m.onUpdate(m.Snapshot())
	}
}

// Snapshot is the read-only view for presentation.
func (m *Machine) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:       m.id,
		Variant:         m.cfg.Variant.Name,
		Mode:            m.cfg.Variant.Mode,
		Phase:           m.phase,
		StageIndex:      m.stage,
		StageCount:      len(m.cfg.Variant.Catalog),
		ProgressPercent: m.timer.Progress(),
		DangerTier:      m.timer.Tier(),
		RunningTotal:    m.ledger.Total(),
		CorrectCount:    m.ledger.CorrectCount(),
		WrongCount:      m.ledger.WrongCount(),
		ImageReady:      m.img.ready,
		UpdatedAt:       m.sched.Now(),
	}
	if m.img.err != nil {
		snap.ImageError = m.img.err.Error()
	}
	if len(m.rounds) == 0 {
		return snap
	}

	snap.Strip = make([]domain.Mark, len(m.rounds))
	for i, r := range m.rounds {
		switch {
		case !r.Submitted:
			snap.Strip[i] = domain.MarkPending
		case r.IsCorrect:
			snap.Strip[i] = domain.MarkCorrect
		default:
			snap.Strip[i] = domain.MarkWrong
		}
	}

	r := m.rounds[m.stage]
	view := &domain.RoundView{
		Stage:     r.Stage,
		Options:   make([]domain.OptionView, len(r.Options)),
		Submitted: r.Submitted,
	}
	for i, o := range r.Options {
		view.Options[i] = domain.OptionView{ID: o.ID, DisplayName: o.DisplayName}
	}
	// the answer stays hidden until the round is submitted
	if r.Submitted {
		correct, delta := r.IsCorrect, r.RewardDelta
		view.PickedID = r.PickedID
		view.AnswerID = r.Answer.ID
		view.AnswerName = r.Answer.DisplayName
		view.IsCorrect = &correct
		view.TimedOut = r.TimedOut
		view.RewardDelta = &delta
	}
	snap.Round = view

	if m.phase == domain.PhaseFinished {
		snap.Results = m.ledger.Rows()
	}
	return snap
}

package timer

import (
	"math"
	"time"

	"reveal-challenge-service/internal/domain"
)

// DefaultPreFill is the cosmetic lead-in before the real countdown.
const DefaultPreFill = 600 * time.Millisecond

// Tier thresholds in percent of time remaining.
const (
	criticalPercent = 7
	warn2Percent    = 15
	warn1Percent    = 30
)

// TierFor buckets a progress percentage.
func TierFor(percent float64) domain.DangerTier {
	switch {
	case percent <= criticalPercent:
		return domain.TierCritical
	case percent <= warn2Percent:
		return domain.TierWarn2
	case percent <= warn1Percent:
		return domain.TierWarn1
	default:
		return domain.TierSafe
	}
}

// Countdown compares a clock reading to an absolute deadline.
type Countdown struct {
	Deadline time.Time
	Budget   time.Duration
}

// Progress is the remaining share of the budget in [0,100].
func (c Countdown) Progress(now time.Time) float64 {
	if c.Budget <= 0 {
		return 0
	}
	remaining := c.Deadline.Sub(now)
	return clampPercent(100 * float64(remaining) / float64(c.Budget))
}

func (c Countdown) Expired(now time.Time) bool {
	return !now.Before(c.Deadline)
}

// easeOutCubic maps linear [0,1] onto a decelerating curve.
func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// PreFillProgress interpolates 0 -> 100 over dur starting at start.
func PreFillProgress(start time.Time, dur time.Duration, now time.Time) float64 {
	if dur <= 0 {
		return 100
	}
	t := float64(now.Sub(start)) / float64(dur)
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 100
	}
	return clampPercent(100 * easeOutCubic(t))
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Mode is the state of a Timer.
type Mode int

const (
	Idle Mode = iota
	Filling
	Counting
	Stopped
)

// Hooks are invoked from frame callbacks on the scheduler thread.
type Hooks struct {
	// OnCounting fires once when the PreFill easing completes.
	OnCounting func()
	// OnTick fires after every evaluated frame.
	OnTick func(progress float64)
	// OnExpire fires once when the deadline passes.
	OnExpire func()
}

// Timer runs one stage: PreFill easing followed by the deadline countdown.
// It keeps at most one frame registration alive and every registration
// carries the run generation, so frames from a cancelled run do nothing.
type Timer struct {
	sched   Scheduler
	prefill time.Duration

	gen      uint64
	frame    FrameID
	mode     Mode
	started  time.Time
	count    Countdown
	progress float64
	hooks    Hooks
}

// New creates an idle timer. A non-positive prefill skips the easing phase.
func New(sched Scheduler, prefill time.Duration) *Timer {
	if prefill < 0 {
		prefill = 0
	}
	return &Timer{sched: sched, prefill: prefill}
}

// Start cancels any current run and begins PreFill for a stage with budget.
// The countdown deadline is anchored at the end of PreFill, so PreFill never
// consumes budget.
func (t *Timer) Start(budget time.Duration, hooks Hooks) {
	t.Cancel()
	t.gen++
	t.hooks = hooks
	t.started = t.sched.Now()
	t.count = Countdown{Deadline: t.started.Add(t.prefill).Add(budget), Budget: budget}
	t.progress = 0
	t.mode = Filling
	t.schedule()
}

// Cancel drops the pending frame and freezes progress where it is.
func (t *Timer) Cancel() {
	if t.frame != 0 {
		t.sched.CancelFrame(t.frame)
		t.frame = 0
	}
	t.gen++
	if t.mode == Filling || t.mode == Counting {
		t.mode = Stopped
	}
}

func (t *Timer) Mode() Mode        { return t.mode }
func (t *Timer) Progress() float64 { return t.progress }

// Tier buckets the countdown progress. The PreFill lead-in always reports
// TierSafe.
func (t *Timer) Tier() domain.DangerTier {
	if t.mode == Filling {
		return domain.TierSafe
	}
	return TierFor(t.progress)
}

// Active reports whether a frame registration is outstanding.
func (t *Timer) Active() bool { return t.frame != 0 }

func (t *Timer) schedule() {
	gen := t.gen
	t.frame = t.sched.RequestFrame(func(now time.Time) {
		if gen != t.gen {
			return
		}
		t.frame = 0
		t.tick(now)
	})
}

func (t *Timer) tick(now time.Time) {
	gen := t.gen
	if t.mode == Filling {
		fillEnd := t.started.Add(t.prefill)
		if now.Before(fillEnd) {
			t.progress = PreFillProgress(t.started, t.prefill, now)
			t.emitTick()
			t.schedule()
			return
		}
		t.mode = Counting
		t.progress = 100
		if t.hooks.OnCounting != nil {
			t.hooks.OnCounting()
		}
		if gen != t.gen {
			return
		}
	}
	if t.mode != Counting {
		return
	}

	t.progress = t.count.Progress(now)
	if t.count.Expired(now) {
		t.progress = 0
		t.mode = Stopped
		t.gen++
		t.emitTick()
		if t.hooks.OnExpire != nil {
			t.hooks.OnExpire()
		}
		return
	}
	t.emitTick()
	if gen == t.gen {
		t.schedule()
	}
}

func (t *Timer) emitTick() {
	if t.hooks.OnTick != nil {
		t.hooks.OnTick(t.progress)
	}
}

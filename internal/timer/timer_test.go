package timer

import (
	"testing"
	"time"

	"reveal-challenge-service/internal/domain"
)

var epoch = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func TestTierThresholds(t *testing.T) {
	cases := []struct {
		percent float64
		want    domain.DangerTier
	}{
		{100, domain.TierSafe},
		{30.5, domain.TierSafe},
		{30, domain.TierWarn1},
		{15, domain.TierWarn2},
		{7.01, domain.TierWarn2},
		{7, domain.TierCritical},
		{0, domain.TierCritical},
	}
	for _, tc := range cases {
		if got := TierFor(tc.percent); got != tc.want {
			t.Fatalf("TierFor(%v) = %v, want %v", tc.percent, got, tc.want)
		}
	}
}

func TestCountdownProgress(t *testing.T) {
	c := Countdown{Deadline: epoch.Add(10 * time.Second), Budget: 10 * time.Second}
	if p := c.Progress(epoch); p != 100 {
		t.Fatalf("expected 100 at start, got %v", p)
	}
	if p := c.Progress(epoch.Add(5 * time.Second)); p != 50 {
		t.Fatalf("expected 50 halfway, got %v", p)
	}
	if p := c.Progress(epoch.Add(time.Minute)); p != 0 {
		t.Fatalf("expected clamp to 0, got %v", p)
	}
	if c.Expired(epoch.Add(9 * time.Second)) {
		t.Fatalf("should not be expired before deadline")
	}
	if !c.Expired(epoch.Add(10 * time.Second)) {
		t.Fatalf("expected expiry at deadline")
	}
}

func TestPreFillProgressIsMonotonic(t *testing.T) {
	last := -1.0
	for ms := 0; ms <= 700; ms += 10 {
		p := PreFillProgress(epoch, DefaultPreFill, epoch.Add(time.Duration(ms)*time.Millisecond))
		if p < last {
			t.Fatalf("prefill went backwards at %dms: %v < %v", ms, p, last)
		}
		last = p
	}
	if last != 100 {
		t.Fatalf("expected prefill to end at 100, got %v", last)
	}
}

func TestTimerPreFillThenExpire(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	tm := New(sched, DefaultPreFill)

	var counting, expired int
	tm.Start(5*time.Second, Hooks{
		OnCounting: func() { counting++ },
		OnExpire:   func() { expired++ },
	})

	sched.RunFor(300 * time.Millisecond)
	if tm.Mode() != Filling || tm.Progress() <= 0 || tm.Progress() >= 100 {
		t.Fatalf("expected mid prefill, mode=%v progress=%v", tm.Mode(), tm.Progress())
	}

	sched.RunFor(400 * time.Millisecond)
	if counting != 1 || tm.Mode() != Counting {
		t.Fatalf("expected counting after prefill, counting=%d mode=%v", counting, tm.Mode())
	}

	sched.RunFor(4 * time.Second)
	if expired != 0 {
		t.Fatalf("expired too early")
	}

	sched.RunFor(2 * time.Second)
	if expired != 1 || tm.Progress() != 0 || tm.Tier() != domain.TierCritical {
		t.Fatalf("expected single expiry, expired=%d progress=%v", expired, tm.Progress())
	}
	if frames, _ := sched.Pending(); frames != 0 {
		t.Fatalf("expected no frames left after expiry, got %d", frames)
	}
}

func TestTierStaysSafeDuringPreFill(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	tm := New(sched, DefaultPreFill)
	tm.Start(5*time.Second, Hooks{})

	for i := 0; tm.Mode() == Filling; i++ {
		if i > 100 {
			t.Fatalf("prefill never finished")
		}
		if tier := tm.Tier(); tier != domain.TierSafe {
			t.Fatalf("expected safe tier during prefill at progress %v, got %v", tm.Progress(), tier)
		}
		sched.Step(10 * time.Millisecond)
	}
	if tm.Mode() != Counting || tm.Tier() != domain.TierSafe {
		t.Fatalf("expected a safe counting start, mode=%v tier=%v", tm.Mode(), tm.Tier())
	}
}

func TestTimerCancelPreventsGhostExpiry(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	tm := New(sched, 0)

	expired := 0
	tm.Start(time.Second, Hooks{OnExpire: func() { expired++ }})
	sched.RunFor(500 * time.Millisecond)
	frozen := tm.Progress()

	tm.Cancel()
	if tm.Active() {
		t.Fatalf("expected no outstanding frame after cancel")
	}
	sched.RunFor(5 * time.Second)
	if expired != 0 {
		t.Fatalf("cancelled timer fired expiry")
	}
	if tm.Progress() != frozen || tm.Mode() != Stopped {
		t.Fatalf("expected frozen progress %v, got %v mode %v", frozen, tm.Progress(), tm.Mode())
	}
}

func TestTimerRestartDropsPreviousRun(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	tm := New(sched, 0)

	first, second := 0, 0
	tm.Start(time.Second, Hooks{OnExpire: func() { first++ }})
	sched.RunFor(900 * time.Millisecond)
	tm.Start(3*time.Second, Hooks{OnExpire: func() { second++ }})
	sched.RunFor(2 * time.Second)
	if first != 0 || second != 0 {
		t.Fatalf("unexpected expiries first=%d second=%d", first, second)
	}
	sched.RunFor(2 * time.Second)
	if first != 0 || second != 1 {
		t.Fatalf("expected only the second run to expire, first=%d second=%d", first, second)
	}
}

func TestManualSchedulerCancelWithinFrame(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	ran := 0
	var second FrameID
	sched.RequestFrame(func(time.Time) { sched.CancelFrame(second) })
	second = sched.RequestFrame(func(time.Time) { ran++ })
	sched.Step(time.Millisecond)
	if ran != 0 {
		t.Fatalf("cancelled frame ran")
	}
}

func TestManualSchedulerRunsPostedBeforeFrames(t *testing.T) {
	sched := NewManualScheduler(epoch, nil)
	var order []string
	sched.RequestFrame(func(time.Time) { order = append(order, "frame") })
	sched.Post(func() { order = append(order, "post") })
	sched.Step(time.Millisecond)
	if len(order) != 2 || order[0] != "post" {
		t.Fatalf("unexpected order %v", order)
	}
}

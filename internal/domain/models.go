package domain

import (
	"fmt"
	"time"
)

// Phase is the lifecycle position of a challenge session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhasePreFill
	PhaseCounting
	PhaseResolved
	PhaseFinished
)

var phaseNames = [...]string{"loading", "prefill", "counting", "resolved", "finished"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// DangerTier buckets the remaining time for presentation emphasis only.
type DangerTier int

const (
	TierSafe DangerTier = iota
	TierWarn1
	TierWarn2
	TierCritical
)

var tierNames = [...]string{"safe", "warn1", "warn2", "critical"}

func (t DangerTier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "unknown"
}

func (t DangerTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DangerTier) UnmarshalText(text []byte) error {
	for i, name := range tierNames {
		if name == string(text) {
			*t = DangerTier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown danger tier %q", text)
}

// Round is the concrete puzzle bound to a stage for one session.
// Once Submitted is set, PickedID, IsCorrect and RewardDelta never change.
type Round struct {
	Stage       StageSpec
	Answer      Entity
	Options     []Entity
	ImageRef    string
	PickedID    string // empty when unset (timeout)
	Submitted   bool
	IsCorrect   bool
	TimedOut    bool
	RewardDelta int
}

// HasOption reports whether id is one of the round's options.
func (r *Round) HasOption(id string) bool {
	for _, o := range r.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Mark is one cell of the O/X progress strip.
type Mark string

const (
	MarkPending Mark = "pending"
	MarkCorrect Mark = "correct"
	MarkWrong   Mark = "wrong"
)

// StageResult is a finalized per-stage row.
type StageResult struct {
	Stage      int    `json:"stage"`
	AnswerID   string `json:"answerId"`
	AnswerName string `json:"answerName"`
	PickedID   string `json:"pickedId,omitempty"`
	Correct    bool   `json:"correct"`
	TimedOut   bool   `json:"timedOut"`
	Delta      int    `json:"delta"`
}

// OptionView is an option as shown to the player.
type OptionView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// RoundView is the read-only projection of the current round. Answer and
// outcome fields are only populated once the round is submitted.
type RoundView struct {
	Stage       StageSpec    `json:"stage"`
	Options     []OptionView `json:"options"`
	Submitted   bool         `json:"submitted"`
	PickedID    string       `json:"pickedId,omitempty"`
	AnswerID    string       `json:"answerId,omitempty"`
	AnswerName  string       `json:"answerName,omitempty"`
	IsCorrect   *bool        `json:"isCorrect,omitempty"`
	TimedOut    bool         `json:"timedOut,omitempty"`
	RewardDelta *int         `json:"rewardDelta,omitempty"`
}

// Snapshot is what a presentation layer renders.
type Snapshot struct {
	SessionID       string        `json:"sessionId"`
	Variant         string        `json:"variant"`
	Mode            RenderMode    `json:"mode"`
	Phase           Phase         `json:"phase"`
	StageIndex      int           `json:"stageIndex"`
	StageCount      int           `json:"stageCount"`
	Round           *RoundView    `json:"round,omitempty"`
	ProgressPercent float64       `json:"progressPercent"`
	DangerTier      DangerTier    `json:"dangerTier"`
	RunningTotal    int           `json:"runningTotal"`
	CorrectCount    int           `json:"correctCount"`
	WrongCount      int           `json:"wrongCount"`
	Strip           []Mark        `json:"strip"`
	ImageReady      bool          `json:"imageReady"`
	ImageError      string        `json:"imageError,omitempty"`
	Results         []StageResult `json:"results,omitempty"`
	Claimed         bool          `json:"claimed"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// SettlementResult reports the outcome of a claim.
type SettlementResult struct {
	SessionID      string `json:"sessionId"`
	Amount         int    `json:"amount"`
	Granted        bool   `json:"granted"`
	AlreadyClaimed bool   `json:"alreadyClaimed"`
}

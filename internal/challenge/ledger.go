package challenge

import "reveal-challenge-service/internal/domain"

// ApplyCorrect adds the stage reward.
func ApplyCorrect(acc int, stage domain.StageSpec) int {
	return acc + stage.RewardOnSuccess
}

// ApplyIncorrectOrTimeout subtracts penalty, clamped to what has been
// accumulated at this moment so the total never drops below zero.
func ApplyIncorrectOrTimeout(acc, penalty int) int {
	if penalty < 0 {
		penalty = 0
	}
	if penalty > acc {
		penalty = acc
	}
	return acc - penalty
}

// Ledger accumulates signed per-stage deltas.
type Ledger struct {
	penalty int
	total   int
	correct int
	wrong   int
	rows    []domain.StageResult
}

func NewLedger(penalty int) *Ledger {
	return &Ledger{penalty: penalty}
}

// Record scores a submitted round and returns the applied delta.
func (l *Ledger) Record(r domain.Round, correct, timedOut bool) int {
	before := l.total
	if correct {
		l.total = ApplyCorrect(l.total, r.Stage)
		l.correct++
	} else {
		l.total = ApplyIncorrectOrTimeout(l.total, l.penalty)
		l.wrong++
	}
	delta := l.total - before
	l.rows = append(l.rows, domain.StageResult{
		Stage:      r.Stage.Index,
		AnswerID:   r.Answer.ID,
		AnswerName: r.Answer.DisplayName,
		PickedID:   r.PickedID,
		Correct:    correct,
		TimedOut:   timedOut,
		Delta:      delta,
	})
	return delta
}

func (l *Ledger) Total() int        { return l.total }
func (l *Ledger) CorrectCount() int { return l.correct }
func (l *Ledger) WrongCount() int   { return l.wrong }

// Rows returns a copy of the finalized result rows.
func (l *Ledger) Rows() []domain.StageResult {
	out := make([]domain.StageResult, len(l.rows))
	copy(out, l.rows)
	return out
}

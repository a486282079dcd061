package challenge

type settleState int

const (
	settleOpen settleState = iota
	settleInFlight
	settleClaimed
)

// Settlement is the one-shot guard around the currency grant. Begin and
// Finish must be called from the thread that owns the session; the grant call
// itself may run in between without holding anything.
type Settlement struct {
	state  settleState
	amount int
}

// Begin checks and sets the guard. It returns false when a claim already
// succeeded or is in flight.
func (s *Settlement) Begin(amount int) bool {
	if s.state != settleOpen {
		return false
	}
	s.state = settleInFlight
	s.amount = amount
	return true
}

// Finish records the grant outcome. A failed grant leaves the guard open.
func (s *Settlement) Finish(err error) {
	if s.state != settleInFlight {
		return
	}
	if err != nil {
		s.state = settleOpen
		return
	}
	s.state = settleClaimed
}

func (s *Settlement) Claimed() bool { return s.state == settleClaimed }

// Amount is the total handed to the last Begin.
func (s *Settlement) Amount() int { return s.amount }

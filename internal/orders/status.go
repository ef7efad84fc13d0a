package orders

type State string

const (
	StateInit        State = "INIT"
	StateUnconfirmed State = "UNCONFIRMED"
	StateConfirmed   State = "CONFIRMED"
	StateCancelled   State = "CANCELLED"
	StatePaidFor     State = "PAID_FOR"
)

var validNext = map[State]map[State]bool{
	StateInit:        {StateUnconfirmed: true, StateCancelled: true},
	StateUnconfirmed: {StateConfirmed: true, StateCancelled: true, StatePaidFor: true},
	StateConfirmed:   {StateUnconfirmed: true, StateCancelled: true, StatePaidFor: true},
	StateCancelled:   {},
	StatePaidFor:     {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

func (s State) Terminal() bool {
	return s == StateCancelled || s == StatePaidFor
}

func (s State) Valid() bool {
	_, ok := validNext[s]
	return ok
}

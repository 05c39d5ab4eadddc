package domain

// State - состояние переговоров.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingAuthDecision
	StateQRHandshake
	StatePhoneHandshake
	StateAwaitingTwoFactor
	StateFinalizing
	StateDone
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateConnecting:           "connecting",
	StateAwaitingAuthDecision: "awaiting_auth_decision",
	StateQRHandshake:          "qr_handshake",
	StatePhoneHandshake:       "phone_handshake",
	StateAwaitingTwoFactor:    "awaiting_two_factor",
	StateFinalizing:           "finalizing",
	StateDone:                 "done",
	StateAborted:              "aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var transitions = map[State][]State{
	StateIdle:                 {StateConnecting},
	StateConnecting:           {StateAwaitingAuthDecision},
	StateAwaitingAuthDecision: {StateQRHandshake, StatePhoneHandshake, StateFinalizing},
	StateQRHandshake:          {StateAwaitingTwoFactor, StateFinalizing},
	StatePhoneHandshake:       {StateAwaitingTwoFactor, StateFinalizing},
	StateAwaitingTwoFactor:    {StateFinalizing},
	StateFinalizing:           {StateDone},
}

// CanTransition: Aborted достижим из любого нетерминального состояния.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateAborted {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

package divination

import "fmt"

// Phase is the ritual state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseShaking
	PhaseRising
	PhaseAwaitingConfirmation
	PhaseThrowing
	PhaseConfirmationResult
	PhaseFinalized
)

var phaseNames = [...]string{
	PhaseIdle:                 "idle",
	PhaseShaking:              "shaking",
	PhaseRising:               "rising",
	PhaseAwaitingConfirmation: "awaiting_confirmation",
	PhaseThrowing:             "throwing",
	PhaseConfirmationResult:   "confirmation_result",
	PhaseFinalized:            "finalized",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name; the browser keys its animations off it.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Busy reports whether a ritual is in progress. The start action is disabled
// while busy.
func (p Phase) Busy() bool {
	return p != PhaseIdle && p != PhaseFinalized
}

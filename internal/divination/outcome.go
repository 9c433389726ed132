package divination

import "fmt"

// Outcome is the result of the confirmation throw (擲筊).
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeAccept is 聖筊: the deity confirms the drawn stick.
	OutcomeAccept
	// OutcomeLaughing is 笑筊: rejected, the ritual restarts.
	OutcomeLaughing
	// OutcomeYin is 陰筊: rejected, the ritual restarts.
	OutcomeYin
)

var outcomeNames = [...]string{
	OutcomeNone:     "none",
	OutcomeAccept:   "accept",
	OutcomeLaughing: "laughing",
	OutcomeYin:      "yin",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// MarshalText encodes the outcome by name for JSON payloads.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name written by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Accepted reports whether the throw confirmed the stick.
func (o Outcome) Accepted() bool { return o == OutcomeAccept }

// Rejected reports whether the throw rejected the stick.
func (o Outcome) Rejected() bool { return o == OutcomeLaughing || o == OutcomeYin }

// Thresholds partitions [0, 1) into the three outcomes. Accept must be below
// Laughing; both lie in (0, 1].
type Thresholds struct {
	Accept   float64
	Laughing float64
}

// DefaultThresholds gives accept 50%, laughing 25%, yin 25%.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 0.50, Laughing: 0.75}
}

// Validate checks that the thresholds are ordered and in range.
func (t Thresholds) Validate() error {
	if t.Accept <= 0 || t.Accept > 1 {
		return fmt.Errorf("accept threshold %v out of range (0, 1]", t.Accept)
	}
	if t.Laughing < t.Accept || t.Laughing > 1 {
		return fmt.Errorf("laughing threshold %v must be in [%v, 1]", t.Laughing, t.Accept)
	}
	return nil
}

// Resolve maps a uniform sample u in [0, 1) to an outcome.
func Resolve(u float64, t Thresholds) Outcome {
	switch {
	case u < t.Accept:
		return OutcomeAccept
	case u < t.Laughing:
		return OutcomeLaughing
	default:
		return OutcomeYin
	}
}

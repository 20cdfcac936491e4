package flow

import "fmt"

// Type identifies which conversation vertical governs a session.
type Type string

const (
	Reservation Type = "reservation"
	Inquiry     Type = "inquiry"
)

// SlotType describes the data type a slot captures.
type SlotType string

const (
	SlotString  SlotType = "string"
	SlotDate    SlotType = "date"
	SlotTime    SlotType = "time"
	SlotInteger SlotType = "integer"
	SlotEnum    SlotType = "enum"
)

// Rejection reason codes. Prompts use these to name the specific problem
// instead of repeating a generic question.
const (
	ReasonEmpty        = "empty"
	ReasonMalformed    = "malformed"
	ReasonTooShort     = "too_short"
	ReasonOutOfRange   = "out_of_range"
	ReasonUnrecognized = "unrecognized"
)

// ValidationError reports why a raw value was rejected for a slot.
// Rejections are never fatal; they feed the fallback controller and the
// re-ask prompt.
type ValidationError struct {
	Slot   string
	Reason string
	Detail string // spoken fragment, e.g. "I need at least ten digits"
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("slot %q rejected (%s): %s", e.Slot, e.Reason, e.Detail)
}

// ValidateFunc checks a raw transcript fragment and returns the normalized
// value, or a *ValidationError describing the rejection. Validators are pure:
// no I/O, no clock access except what their constructor captured.
type ValidateFunc func(raw string) (string, error)

// Slot declares one piece of information a flow must collect.
type Slot struct {
	Name     string
	Type     SlotType
	Required bool
	Prompt   string // question asked when this slot is pending
	Validate ValidateFunc
}

// NextUnfilled returns the first required slot, in declared order, that has
// no captured value. Optional slots are captured opportunistically and never
// asked for while a required slot is open.
func NextUnfilled(slots []Slot, filled map[string]string) (Slot, bool) {
	for _, s := range slots {
		if !s.Required {
			continue
		}
		if _, ok := filled[s.Name]; !ok {
			return s, true
		}
	}
	return Slot{}, false
}

// AllRequiredFilled reports whether every required slot has a value.
func AllRequiredFilled(slots []Slot, filled map[string]string) bool {
	_, open := NextUnfilled(slots, filled)
	return !open
}

package flow

import (
	"fmt"
	"time"
)

// ReservationPolicy collects a table booking: who, when, and for how many.
// It never auto-escalates; repeated failure abandons the call instead (there
// is no human fallback channel on the reservation line).
type ReservationPolicy struct {
	restaurant string
	slots      []Slot
}

// NewReservationPolicy builds the reservation flow for the named restaurant.
// The clock anchors relative-date normalization.
func NewReservationPolicy(restaurant string, now func() time.Time) *ReservationPolicy {
	if now == nil {
		now = time.Now
	}
	return &ReservationPolicy{
		restaurant: restaurant,
		slots: []Slot{
			{
				Name: "date", Type: SlotDate, Required: true,
				Prompt:   "What date would you like to dine with us?",
				Validate: DateValidator(now),
			},
			{
				Name: "time", Type: SlotTime, Required: true,
				Prompt:   "And what time works best for you?",
				Validate: ValidateTime,
			},
			{
				Name: "party_size", Type: SlotInteger, Required: true,
				Prompt:   "How many guests will be joining?",
				Validate: PartySizeValidator(1, 20),
			},
			{
				Name: "name", Type: SlotString, Required: true,
				Prompt:   "Could I get a name for the reservation?",
				Validate: ValidateName,
			},
			{
				Name: "phone", Type: SlotString, Required: true,
				Prompt:   "What's the best phone number to reach you at?",
				Validate: ValidatePhone,
			},
			{
				Name: "special_requests", Type: SlotString, Required: false,
				Prompt:   "Any special requests for your visit?",
				Validate: FreeTextValidator("special_requests", 3),
			},
		},
	}
}

func (p *ReservationPolicy) Flow() Type    { return Reservation }
func (p *ReservationPolicy) Slots() []Slot { return p.slots }

func (p *ReservationPolicy) Slot(name string) (Slot, bool) { return slotByName(p.slots, name) }

func (p *ReservationPolicy) Greeting() string {
	return fmt.Sprintf("Hello! Welcome to %s. I'd love to help you book a table. What date and time would you like, and how many guests?", p.restaurant)
}

func (p *ReservationPolicy) Summary(filled map[string]string) string {
	s := fmt.Sprintf("Let me confirm: a table for %s on %s at %s under the name %s, phone %s.",
		filled["party_size"], filled["date"], filled["time"], filled["name"], filled["phone"])
	if req := filled["special_requests"]; req != "" {
		s += fmt.Sprintf(" Special requests: %s.", req)
	}
	return s + " Is that all correct?"
}

func (p *ReservationPolicy) CompletionPrompt(filled map[string]string) string {
	return fmt.Sprintf("Wonderful, %s! Your table for %s is booked for %s at %s. We look forward to seeing you at %s!",
		filled["name"], filled["party_size"], filled["date"], filled["time"], p.restaurant)
}

func (p *ReservationPolicy) EscalationPrompt() string {
	return "Let me connect you with our host who can help you right away."
}

func (p *ReservationPolicy) AbandonPrompt() string {
	return fmt.Sprintf("I'm sorry we couldn't finish your booking over the phone. Please call %s back anytime and we'll be happy to help. Goodbye!", p.restaurant)
}

// AssessPriority is a no-op: reservations carry no urgency ladder.
func (p *ReservationPolicy) AssessPriority(utterance string, current Priority) Priority {
	return current
}

// Escalates always reports false: a confirmed reservation is a reservation.
func (p *ReservationPolicy) Escalates(Priority) bool { return false }

func (p *ReservationPolicy) Validate() error { return ValidatePolicy(p) }

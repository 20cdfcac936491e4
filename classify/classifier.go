package classify

import (
	"context"
	"errors"

	"github.com/room4-2/OpenDialog/flow"
)

// Intent labels the caller's conversational move. The engine only ever
// branches on these; everything provider-specific stays behind Classifier.
type Intent string

const (
	IntentProvideInfo Intent = "provide_info" // caller is answering questions
	IntentAffirm      Intent = "affirm"       // explicit yes
	IntentDeny        Intent = "deny"         // explicit no
	IntentCorrection  Intent = "correction"   // caller wants to change a filled slot
	IntentCancel      Intent = "cancel"       // caller is disengaging
	IntentUnknown     Intent = "unknown"
)

// ErrUnavailable means the understanding provider failed or timed out. The
// engine apologizes generically and retries; repeated occurrences escalate.
var ErrUnavailable = errors.New("classifier unavailable")

// ErrLowConfidence means the provider answered but below the configured
// confidence threshold. The engine re-asks the pending slot specifically.
var ErrLowConfidence = errors.New("classification below confidence threshold")

// Result is the structured guess for one utterance. Fields maps slot names
// to raw candidate values; validation is the caller's job, never the
// classifier's.
type Result struct {
	Intent     Intent            `json:"intent"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Classifier turns a noisy transcript into a structured guess. pendingSlot
// biases interpretation toward the field currently being collected ("treat
// this as a date"); it may be empty.
//
// Implementations return ErrUnavailable on provider failure and
// ErrLowConfidence when the guess is too weak to act on. They perform no
// business interpretation.
type Classifier interface {
	Classify(ctx context.Context, utterance string, flowType flow.Type, pendingSlot string) (*Result, error)
}

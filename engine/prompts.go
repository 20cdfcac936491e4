package engine

import (
	"github.com/room4-2/OpenDialog/flow"
)

const (
	// Spoken when the understanding provider failed: a generic apology,
	// never a hint that a backend is down.
	promptUnavailable = "I'm sorry, I'm having a little trouble right now. Could you say that once more?"

	// Spoken when nothing at all was heard.
	promptSilencePrefix = "I'm sorry, I didn't hear anything. "

	// Spoken when the guess was too weak to act on.
	promptLowConfidencePrefix = "I want to make sure I get this right. "

	// Spoken when a value was heard but rejected, before naming the problem.
	promptRejectedPrefix = "I'm sorry, "
)

// askFor builds the question for the next pending slot, optionally phrased
// around the specific rejection from this turn rather than a generic repeat.
func askFor(slot flow.Slot, rejection *flow.ValidationError) string {
	if rejection != nil {
		return promptRejectedPrefix + rejection.Detail + ". " + slot.Prompt
	}
	return slot.Prompt
}

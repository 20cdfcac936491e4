package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/room4-2/OpenDialog/flow"
)

// Pattern matching for the offline classifier. Raw candidates only; the
// slot validators do the real parsing.
var (
	kwPhoneRe = regexp.MustCompile(`(\+?1[\s\-.]?)?\(?[0-9]{3}\)?[\s\-.]?[0-9]{3}[\s\-.]?[0-9]{4}`)
	kwEmailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	kwTimeRe  = regexp.MustCompile(`(?i)\b[0-9]{1,2}(?::[0-5][0-9])?\s*(?:am|pm|a\.m\.|p\.m\.|o'?clock)\b|\bnoon\b|\bmidnight\b`)
	kwPartyRe = regexp.MustCompile(`(?i)\b(?:for|party of|table for|group of)\s+([a-z0-9]+)\b|\b([0-9]{1,2})\s+(?:people|persons|guests|of us)\b`)
	kwDateRe  = regexp.MustCompile(`(?i)\btoday\b|\btonight\b|\btomorrow\b|\bmonday\b|\btuesday\b|\bwednesday\b|\bthursday\b|\bfriday\b|\bsaturday\b|\bsunday\b|\bjanuary\b|\bfebruary\b|\bmarch\b|\bapril\b|\bmay\b|\bjune\b|\bjuly\b|\baugust\b|\bseptember\b|\boctober\b|\bnovember\b|\bdecember\b|\b[0-9]{1,2}/[0-9]{1,2}\b|\b[0-9]{4}-[0-9]{2}-[0-9]{2}\b`)
	kwNameRe  = regexp.MustCompile(`(?i)\b(?:my name is|my name's|this is|i am|i'm|the name is)\b`)
)

var (
	affirmWords     = []string{"yes", "yeah", "yep", "correct", "that's right", "that is right", "sounds good", "sure", "exactly", "perfect"}
	denyWords       = []string{"no", "nope", "wrong", "that's not right", "incorrect", "not quite"}
	cancelWords     = []string{"cancel", "never mind", "nevermind", "goodbye", "bye", "hang up", "forget it", "stop"}
	correctionWords = []string{"actually", "change", "instead", "i meant", "make that", "not "}
)

// KeywordClassifier is the deterministic, provider-free classifier: keyword
// intent detection plus regex field extraction. It backs the engine when no
// API key is configured and drives tests and the CLI.
type KeywordClassifier struct {
	// ConfidenceThreshold below which Classify returns ErrLowConfidence.
	ConfidenceThreshold float64
}

// NewKeywordClassifier returns the offline classifier with the given
// confidence threshold (0 means a 0.4 default).
func NewKeywordClassifier(threshold float64) *KeywordClassifier {
	if threshold <= 0 {
		threshold = 0.4
	}
	return &KeywordClassifier{ConfidenceThreshold: threshold}
}

// Classify implements Classifier without any external provider.
func (k *KeywordClassifier) Classify(_ context.Context, utterance string, flowType flow.Type, pendingSlot string) (*Result, error) {
	text := strings.ToLower(strings.TrimSpace(utterance))
	result := &Result{Intent: IntentProvideInfo, Fields: map[string]string{}}

	switch {
	case containsAny(text, cancelWords):
		result.Intent = IntentCancel
		result.Confidence = 0.9
		return k.finish(result)
	case containsAny(text, correctionWords):
		result.Intent = IntentCorrection
	case matchesShort(text, affirmWords):
		result.Intent = IntentAffirm
		result.Confidence = 0.9
		return k.finish(result)
	case matchesShort(text, denyWords):
		result.Intent = IntentDeny
		result.Confidence = 0.9
		return k.finish(result)
	}

	if m := kwPhoneRe.FindString(utterance); m != "" {
		result.Fields["phone"] = m
	}
	if m := kwEmailRe.FindString(utterance); m != "" {
		result.Fields["email"] = m
	}
	if flowType == flow.Reservation {
		if kwDateRe.MatchString(utterance) {
			result.Fields["date"] = utterance
		}
		if m := kwTimeRe.FindString(utterance); m != "" {
			result.Fields["time"] = m
		}
		if m := kwPartyRe.FindStringSubmatch(utterance); m != nil {
			if m[1] != "" {
				result.Fields["party_size"] = m[1]
			} else {
				result.Fields["party_size"] = m[2]
			}
		}
	}
	if kwNameRe.MatchString(utterance) {
		result.Fields["name"] = utterance
	}

	// Nothing pattern-matched: attribute the whole utterance to whatever
	// slot the engine is currently asking for.
	if len(result.Fields) == 0 && pendingSlot != "" && text != "" {
		result.Fields[pendingSlot] = utterance
		result.Confidence = 0.6
		return k.finish(result)
	}

	if len(result.Fields) > 0 {
		result.Confidence = 0.8
	} else {
		result.Intent = IntentUnknown
		result.Confidence = 0.3
	}
	return k.finish(result)
}

func (k *KeywordClassifier) finish(r *Result) (*Result, error) {
	if r.Confidence < k.ConfidenceThreshold {
		return r, fmt.Errorf("%w: %.2f", ErrLowConfidence, r.Confidence)
	}
	return r, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// matchesShort checks affirmation/denial words only on short utterances so
// "no problem, tomorrow works" is not read as a denial.
func matchesShort(text string, words []string) bool {
	if len(strings.Fields(text)) > 4 {
		return false
	}
	for _, w := range words {
		if text == w || strings.HasPrefix(text, w+" ") || strings.HasPrefix(text, w+",") || strings.HasSuffix(text, " "+w) {
			return true
		}
	}
	return false
}

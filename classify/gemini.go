package classify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"github.com/room4-2/OpenDialog/flow"
)

const geminiModel = "models/gemini-2.0-flash"

const systemInstruction = `You classify one utterance from a phone caller talking to an automated assistant.
Respond with JSON only: an intent, any field values you can extract, and your confidence in [0,1].
Intents: provide_info (caller is answering questions), affirm (explicit yes), deny (explicit no),
correction (caller wants to change something already given), cancel (caller is done or hanging up), unknown.
Only extract fields named in the prompt. Report raw spoken values; do not reformat them.`

// GeminiConfig tunes the Gemini-backed classifier.
type GeminiConfig struct {
	APIKey              string
	Timeout             time.Duration // per-call deadline; expiry becomes ErrUnavailable
	ConfidenceThreshold float64       // below this the result is ErrLowConfidence
	// SlotNames lists the extractable field names per flow so the prompt
	// can name them. The adapter never validates values against them.
	SlotNames map[flow.Type][]string
}

// GeminiClassifier asks Gemini for a structured guess about one utterance.
// It is a pure translation boundary: provider errors surface as
// ErrUnavailable, weak answers as ErrLowConfidence, and nothing here ever
// interprets the conversation.
type GeminiClassifier struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClassifier creates and connects the GenAI client.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.4
	}
	return &GeminiClassifier{client: client, cfg: cfg}, nil
}

var resultSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent": {
			Type: genai.TypeString,
			Enum: []string{"provide_info", "affirm", "deny", "correction", "cancel", "unknown"},
		},
		"fields": {
			Type:        genai.TypeObject,
			Description: "slot name to raw extracted value",
		},
		"confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"intent", "confidence"},
}

// Classify implements Classifier. The call is bounded by the configured
// timeout; a slow or failing provider never blocks the turn.
func (g *GeminiClassifier) Classify(ctx context.Context, utterance string, flowType flow.Type, pendingSlot string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt := g.buildPrompt(utterance, flowType, pendingSlot)

	resp, err := g.client.Models.GenerateContent(ctx, geminiModel, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		Temperature:       genai.Ptr[float32](0.1),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    resultSchema,
	})
	if err != nil {
		log.Printf("❌ Gemini classify error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var result Result
	if err := sonic.Unmarshal([]byte(resp.Text()), &result); err != nil {
		log.Printf("❌ Gemini returned unparseable JSON: %v", err)
		return nil, fmt.Errorf("%w: bad response payload: %v", ErrUnavailable, err)
	}
	if result.Intent == "" {
		result.Intent = IntentUnknown
	}

	if result.Confidence < g.cfg.ConfidenceThreshold {
		return &result, fmt.Errorf("%w: %.2f", ErrLowConfidence, result.Confidence)
	}
	return &result, nil
}

func (g *GeminiClassifier) buildPrompt(utterance string, flowType flow.Type, pendingSlot string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation type: %s.\n", flowType)
	if names := g.cfg.SlotNames[flowType]; len(names) > 0 {
		fmt.Fprintf(&b, "Extractable fields: %s.\n", strings.Join(names, ", "))
	}
	if pendingSlot != "" {
		fmt.Fprintf(&b, "The assistant just asked for the %q field; interpret the utterance as that field when plausible.\n", pendingSlot)
	}
	fmt.Fprintf(&b, "Caller said: %q", utterance)
	return b.String()
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/OpenDialog/classify"
	"github.com/room4-2/OpenDialog/engine"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/session"
)

// dialog-cli runs one conversation against the engine on stdin, with the
// in-memory session store and the keyword classifier. It is the fastest way
// to exercise a flow without Twilio or Redis.
func main() {
	flowName := flag.String("flow", "reservation", "flow to run: reservation or inquiry")
	flag.Parse()

	var f flow.Type
	switch *flowName {
	case "reservation":
		f = flow.Reservation
	case "inquiry":
		f = flow.Inquiry
	default:
		log.Fatalf("Unknown flow %q, expected reservation or inquiry", *flowName)
	}

	policies := []flow.Policy{
		flow.NewReservationPolicy("Bella Vista", time.Now),
		flow.NewInquiryPolicy("Horizon Credit Union", flow.PriorityUrgent),
	}

	eng, err := engine.New(
		session.NewMemoryStore(),
		classify.NewKeywordClassifier(0),
		policies,
		engine.DefaultFallbackConfig(),
	)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	callID := uuid.New().String()

	// Greeting turn: a fresh call carries no speech.
	resp, err := eng.HandleTurn(ctx, callID, f, "", "")
	if err != nil {
		log.Fatalf("Failed to start conversation: %v", err)
	}
	fmt.Printf("🤖 %s\n", resp.Prompt)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("🗣️ ")
		if !scanner.Scan() {
			break
		}
		utterance := strings.TrimSpace(scanner.Text())

		resp, err = eng.HandleTurn(ctx, callID, f, utterance, "")
		if err != nil {
			log.Fatalf("Turn failed: %v", err)
		}
		fmt.Printf("🤖 %s\n", resp.Prompt)

		if resp.Done {
			fmt.Printf("✅ %s", resp.Action.Kind)
			if resp.Action.TicketID != "" {
				fmt.Printf(" (ticket %s)", resp.Action.TicketID)
			}
			fmt.Println()
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Input error: %v", err)
	}
}

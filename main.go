package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/OpenDialog/classify"
	"github.com/room4-2/OpenDialog/config"
	"github.com/room4-2/OpenDialog/engine"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/notify"
	"github.com/room4-2/OpenDialog/server"
	"github.com/room4-2/OpenDialog/session"
	"github.com/room4-2/OpenDialog/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Flow policies
	reservation := flow.NewReservationPolicy(cfg.RestaurantName, time.Now)
	inquiry := flow.NewInquiryPolicy(cfg.CreditUnionName, flow.PriorityUrgent)

	// Session store: Redis when reachable, in-memory otherwise
	var sessions session.Store
	redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.RedisPassword, cfg.SessionTTL)
	if err != nil {
		log.Printf("⚠️ Redis unavailable (%v), continuing with in-memory sessions", err)
		memStore := session.NewMemoryStore()
		go memStore.StartCleanupRoutine(ctx, cfg.CleanupInterval, cfg.SessionTTL)
		sessions = memStore
	} else {
		defer redisStore.Close()
		sessions = redisStore
	}

	// Classifier: Gemini when an API key is configured, keyword demo mode otherwise
	var classifier classify.Classifier
	if cfg.GeminiAPIKey != "" {
		gemini, err := classify.NewGeminiClassifier(ctx, classify.GeminiConfig{
			APIKey:              cfg.GeminiAPIKey,
			Timeout:             cfg.ClassifyTimeout,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			SlotNames: map[flow.Type][]string{
				flow.Reservation: slotNames(reservation.Slots()),
				flow.Inquiry:     slotNames(inquiry.Slots()),
			},
		})
		if err != nil {
			log.Fatalf("Failed to create Gemini classifier: %v", err)
		}
		classifier = gemini
		log.Println("🤖 Using Gemini classifier")
	} else {
		classifier = classify.NewKeywordClassifier(cfg.ConfidenceThreshold)
		log.Println("🔤 No GEMINI_API_KEY set, using keyword classifier (demo mode)")
	}

	// Record storage: PostgreSQL when configured, in-memory otherwise
	var records storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		records = pg
	} else {
		records = storage.NewMemoryStore()
		log.Println("🗃️ No DATABASE_URL set, keeping records in memory")
	}
	defer records.Close()

	fallback := engine.DefaultFallbackConfig()
	fallback.FailureThreshold = cfg.FailureThreshold
	fallback.UnavailableLimit = cfg.UnavailableLimit
	fallback.TurnCeiling = cfg.TurnCeiling

	eng, err := engine.New(sessions, classifier, []flow.Policy{reservation, inquiry}, fallback)
	if err != nil {
		log.Fatalf("Failed to create dialogue engine: %v", err)
	}

	notifier := notify.NewLogNotifier(flow.PriorityHigh)
	srv := server.NewWebhookServer(cfg, eng, records, notifier)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}

func slotNames(slots []flow.Slot) []string {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.Name
	}
	return names
}

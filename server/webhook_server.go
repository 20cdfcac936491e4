package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/room4-2/OpenDialog/config"
	"github.com/room4-2/OpenDialog/engine"
	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/notify"
	"github.com/room4-2/OpenDialog/storage"
)

// idempotencyHeader carries Twilio's retry token. Retried webhook deliveries
// reuse it, which lets the engine replay instead of reprocess.
const idempotencyHeader = "I-Twilio-Idempotency-Token"

const adminListLimit = 100

// WebhookServer terminates Twilio voice webhooks and serves the admin API.
// Each caller turn arrives as one POST carrying the transcribed speech; the
// reply is TwiML that speaks the next prompt and gathers the next utterance.
type WebhookServer struct {
	httpServer *http.Server
	engine     *engine.Engine
	records    storage.Store
	notifier   notify.Notifier
	config     *config.Config
	now        func() time.Time
}

func NewWebhookServer(cfg *config.Config, eng *engine.Engine, records storage.Store, notifier notify.Notifier) *WebhookServer {
	s := &WebhookServer{
		engine:   eng,
		records:  records,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/voice/reservation", s.handleReservationCall).Methods(http.MethodPost)
	r.HandleFunc("/voice/reservation/process", s.turnHandler(flow.Reservation, "/voice/reservation/process")).Methods(http.MethodPost)
	r.HandleFunc("/voice/inquiry", s.handleInquiryCall).Methods(http.MethodPost)
	r.HandleFunc("/voice/inquiry/process", s.turnHandler(flow.Inquiry, "/voice/inquiry/process")).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/reservations", s.handleAdminReservations).Methods(http.MethodGet)
	admin.HandleFunc("/inquiries", s.handleAdminInquiries).Methods(http.MethodGet)
	admin.HandleFunc("/stats", s.handleAdminStats).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start begins listening for connections
func (s *WebhookServer) Start() error {
	log.Printf("📞 Voice webhook server starting on %s", s.httpServer.Addr)
	log.Printf("📡 Reservation endpoint: http://localhost%s/voice/reservation", s.httpServer.Addr)
	log.Printf("📡 Inquiry endpoint: http://localhost%s/voice/inquiry", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *WebhookServer) Shutdown(ctx context.Context) error {
	log.Println("Shutting down webhook server...")
	return s.httpServer.Shutdown(ctx)
}

// GetAddr returns the server's listen address (for logging in main)
func (s *WebhookServer) GetAddr() string {
	return s.httpServer.Addr
}

// handleReservationCall answers a new reservation call with the greeting
// turn (no utterance yet) and starts gathering speech.
func (s *WebhookServer) handleReservationCall(w http.ResponseWriter, r *http.Request) {
	s.openCall(w, r, flow.Reservation, "/voice/reservation/process")
}

// handleInquiryCall answers a new inquiry call. During business hours the
// call goes straight to staff; the intake bot covers the rest of the day.
func (s *WebhookServer) handleInquiryCall(w http.ResponseWriter, r *http.Request) {
	hour := s.now().Hour()
	if hour >= s.config.BusinessHoursStart && hour < s.config.BusinessHoursEnd && s.config.StaffPhone != "" {
		log.Printf("☎️ Business hours, transferring call to staff")
		writeTwiML(w, sayDialResponse("Connecting you with our team now.", s.config.StaffPhone))
		return
	}
	s.openCall(w, r, flow.Inquiry, "/voice/inquiry/process")
}

func (s *WebhookServer) openCall(w http.ResponseWriter, r *http.Request, f flow.Type, action string) {
	callID := r.FormValue("CallSid")
	if callID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	resp, err := s.engine.HandleTurn(r.Context(), callID, f, "", r.Header.Get(idempotencyHeader))
	if err != nil {
		log.Printf("❌ Failed to open %s call: %v", f, err)
		writeTwiML(w, sayHangupResponse("Sorry, we are unable to take your call right now. Please try again later."))
		return
	}
	writeTwiML(w, gatherResponse(resp.Prompt, action))
}

// turnHandler processes one gathered utterance for the given flow.
func (s *WebhookServer) turnHandler(f flow.Type, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := r.FormValue("CallSid")
		if callID == "" {
			http.Error(w, "missing CallSid", http.StatusBadRequest)
			return
		}
		utterance := r.FormValue("SpeechResult")

		resp, err := s.engine.HandleTurn(r.Context(), callID, f, utterance, r.Header.Get(idempotencyHeader))
		if err != nil {
			log.Printf("❌ Turn failed for call %s: %v", callID, err)
			writeTwiML(w, sayHangupResponse("Sorry, something went wrong on our end. Please call back."))
			return
		}

		if !resp.Done {
			writeTwiML(w, gatherResponse(resp.Prompt, action))
			return
		}

		s.finalize(r.Context(), callID, resp)
		if resp.Action.Kind == engine.ActionEscalated {
			writeTwiML(w, sayDialResponse(resp.Prompt, s.config.StaffPhone))
			return
		}
		writeTwiML(w, sayHangupResponse(resp.Prompt))
	}
}

// finalize forwards a terminal action to storage and notifications. Replayed
// deliveries resubmit the same ticket ID, which the stores ignore.
func (s *WebhookServer) finalize(ctx context.Context, callID string, resp *engine.TurnResponse) {
	a := resp.Action
	switch a.Kind {
	case engine.ActionReservationCreated:
		rec := &storage.Reservation{
			ID:              a.TicketID,
			CallID:          callID,
			Name:            a.Details["name"],
			Phone:           a.Details["phone"],
			Date:            a.Details["date"],
			Time:            a.Details["time"],
			PartySize:       a.Details["party_size"],
			SpecialRequests: a.Details["special_requests"],
			CreatedAt:       s.now(),
		}
		if err := s.records.SaveReservation(ctx, rec); err != nil {
			log.Printf("❌ Failed to save reservation %s: %v", rec.ID, err)
			return
		}
		s.notifier.ReservationCreated(ctx, rec)

	case engine.ActionInquiryCreated, engine.ActionEscalated:
		rec := &storage.Inquiry{
			ID:           a.TicketID,
			CallID:       callID,
			Name:         a.Details["name"],
			Phone:        a.Details["phone"],
			Reason:       a.Details["reason"],
			Email:        a.Details["email"],
			MemberNumber: a.Details["member_number"],
			Priority:     string(a.Priority),
			Escalated:    a.Kind == engine.ActionEscalated,
			CreatedAt:    s.now(),
		}
		if err := s.records.SaveInquiry(ctx, rec); err != nil {
			log.Printf("❌ Failed to save inquiry %s: %v", rec.ID, err)
			return
		}
		s.notifier.InquiryCreated(ctx, rec)
		if a.Kind == engine.ActionEscalated {
			s.notifier.CallEscalated(ctx, callID, a.Reason)
		}

	case engine.ActionAbandoned:
		log.Printf("🏳️ Call %s abandoned: %s", callID, a.Reason)
	}
}

func (s *WebhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","server":"dialog"}`)
}

func (s *WebhookServer) handleAdminReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.ListReservations(r.Context(), adminListLimit)
	if err != nil {
		http.Error(w, "failed to list reservations", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"reservations": list})
}

func (s *WebhookServer) handleAdminInquiries(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.ListInquiries(r.Context(), adminListLimit)
	if err != nil {
		http.Error(w, "failed to list inquiries", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"inquiries": list})
}

func (s *WebhookServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

func (s *WebhookServer) writeJSON(w http.ResponseWriter, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

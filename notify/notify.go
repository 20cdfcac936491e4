package notify

import (
	"context"
	"log"

	"github.com/room4-2/OpenDialog/flow"
	"github.com/room4-2/OpenDialog/storage"
)

// Notifier is told about finalized conversation outcomes so staff can act
// on them.
type Notifier interface {
	ReservationCreated(ctx context.Context, r *storage.Reservation)
	InquiryCreated(ctx context.Context, q *storage.Inquiry)
	CallEscalated(ctx context.Context, callID, reason string)
}

// LogNotifier writes notifications to the process log. It stands in for
// SMS or email delivery in demo deployments.
type LogNotifier struct {
	alertAt flow.Priority
}

// NewLogNotifier alerts on-call staff for inquiries at or above alertAt.
func NewLogNotifier(alertAt flow.Priority) *LogNotifier {
	return &LogNotifier{alertAt: alertAt}
}

func (n *LogNotifier) ReservationCreated(ctx context.Context, r *storage.Reservation) {
	log.Printf("📅 Reservation %s: %s on %s at %s, party of %s", r.ID, r.Name, r.Date, r.Time, r.PartySize)
}

func (n *LogNotifier) InquiryCreated(ctx context.Context, q *storage.Inquiry) {
	log.Printf("📋 Inquiry %s: %s (%s priority)", q.ID, q.Reason, q.Priority)
	if flow.Priority(q.Priority).AtLeast(n.alertAt) {
		log.Printf("🚨 Paging on-call staff for inquiry %s (%s)", q.ID, q.Priority)
	}
}

func (n *LogNotifier) CallEscalated(ctx context.Context, callID, reason string) {
	log.Printf("🚨 Call %s escalated to staff: %s", callID, reason)
}

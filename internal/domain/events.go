package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAllocationReserved  EventType = "allocation.reserved"
	EventAllocationReleased  EventType = "allocation.released"
	EventAllocationRenewed   EventType = "allocation.renewed"
	EventAllocationExpired   EventType = "allocation.expired"
	EventAllocationCancelled EventType = "allocation.cancelled"
	EventPenaltyAssessed     EventType = "penalty.assessed"
	EventObligationAssessed  EventType = "billing.obligation_assessed"
	EventPaymentApplied      EventType = "billing.payment_applied"
	EventDiscountApplied     EventType = "billing.discount_applied"
	EventScholarshipApplied  EventType = "billing.scholarship_applied"
)

// Event is an outbox record written in the same transaction as the mutation
// it reports. The notification collaborator pages through undelivered rows;
// delivery itself happens outside this core.
type Event struct {
	ID          string          `json:"id"` // uuid
	Type        EventType       `json:"type"`
	OwnerID     int64           `json:"owner_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

// NewEvent marshals payload and stamps a fresh uuid. Marshal errors are
// impossible for the plain structs used as payloads here, so they panic
// rather than complicate every call site.
func NewEvent(typ EventType, ownerID int64, payload any) *Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OwnerID:    ownerID,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}
}

package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
)

const EventTicketCreated = "ticket.created"

// TicketEvent is one link of a ticket's append-only history. Hash covers the
// previous hash, so editing any stored row breaks every later link.
type TicketEvent struct {
	TicketID  string          `json:"ticket_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	TicketID string             `json:"ticket_id"`
	Code     string             `json:"code"`
	State    models.TicketState `json:"state"`
	ModuleID *string            `json:"module_id,omitempty"`
	CalledAt *time.Time         `json:"called_at,omitempty"`
	ServedAt *time.Time         `json:"served_at,omitempty"`
}

// TransitionEventType names the history entry written when a ticket enters state.
func TransitionEventType(state models.TicketState) string {
	return "ticket." + string(state)
}

func TicketEventPayload(ticket models.Ticket) ([]byte, error) {
	return json.Marshal(eventPayload{
		TicketID: ticket.TicketID,
		Code:     ticket.Code,
		State:    ticket.State,
		ModuleID: ticket.ModuleID,
		CalledAt: ticket.CalledAt,
		ServedAt: ticket.ServedAt,
	})
}

func ComputeTicketEventHash(prevHash, ticketID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// NextTicketEvent builds the event that follows prev (nil for the first one).
func NextTicketEvent(prev *TicketEvent, ticketID, eventType string, payload []byte, createdAt time.Time) TicketEvent {
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.Seq + 1
		prevHash = prev.Hash
	}
	return TicketEvent{
		TicketID:  ticketID,
		Seq:       seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prevHash,
		Hash:      ComputeTicketEventHash(prevHash, ticketID, eventType, payload, createdAt, seq),
	}
}

// VerifyTicketEvents checks sequence continuity and the hash chain.
func VerifyTicketEvents(events []TicketEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("event %d: unexpected seq %d", i+1, event.Seq)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("event %d: prev_hash mismatch", event.Seq)
		}
		want := ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want {
			return fmt.Errorf("event %d: hash mismatch", event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

package models

import (
	"fmt"
	"strings"
	"time"
)

type TicketState string

const (
	StateWaiting    TicketState = "waiting"
	StateCalled     TicketState = "called"
	StateServed     TicketState = "served"
	StateCancelled  TicketState = "cancelled"
	StateRedirected TicketState = "redirected"
)

var ticketStates = []TicketState{StateWaiting, StateCalled, StateServed, StateCancelled, StateRedirected}

// TicketStates returns every lifecycle state in declaration order.
func TicketStates() []TicketState {
	out := make([]TicketState, len(ticketStates))
	copy(out, ticketStates)
	return out
}

func (s TicketState) Valid() bool {
	for _, state := range ticketStates {
		if state == s {
			return true
		}
	}
	return false
}

func (s TicketState) String() string {
	return string(s)
}

func ParseTicketState(raw string) (TicketState, error) {
	state := TicketState(strings.ToLower(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", fmt.Errorf("unknown ticket state %q", raw)
	}
	return state, nil
}

type Ticket struct {
	TicketID     string      `json:"ticket_id"`
	SiteID       string      `json:"site_id"`
	ReasonID     string      `json:"reason_id"`
	ReasonName   string      `json:"reason_name,omitempty"`
	Code         string      `json:"code"`
	Sequence     int         `json:"sequence"`
	CitizenID    string      `json:"citizen_id"`
	State        TicketState `json:"state"`
	ModuleID     *string     `json:"module_id,omitempty"`
	ModuleName   string      `json:"module_name,omitempty"`
	ModuleNumber *int        `json:"module_number,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	CalledAt     *time.Time  `json:"called_at,omitempty"`
	ServedAt     *time.Time  `json:"served_at,omitempty"`
}

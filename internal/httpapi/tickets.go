package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
)

const dateLayout = "2006-01-02"

type createTicketRequest struct {
	SiteID    string `json:"site_id"`
	ReasonID  string `json:"reason_id"`
	CitizenID string `json:"citizen_id"`
}

type transitionRequest struct {
	State    string `json:"state"`
	ModuleID string `json:"module_id"`
}

type ticketEventsResponse struct {
	TicketID string              `json:"ticket_id"`
	Verified bool                `json:"verified"`
	Events   []store.TicketEvent `json:"events"`
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.SiteID = strings.TrimSpace(req.SiteID)
	req.ReasonID = strings.TrimSpace(req.ReasonID)
	if req.SiteID == "" || req.ReasonID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site_id and reason_id are required")
		return
	}
	if !isValidUUID(req.SiteID) || !isValidUUID(req.ReasonID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site_id and reason_id must be UUIDs")
		return
	}
	ticket, err := h.tickets.CreateTicket(r.Context(), req.SiteID, req.ReasonID, req.CitizenID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleActiveTickets(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	tickets, err := h.tickets.ListActiveTickets(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleTicketsByDate(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	if !requireSiteAccess(w, r, siteID) {
		return
	}
	loc := h.tickets.Location()
	date := time.Now().In(loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	tickets, err := h.tickets.ListTicketsByDate(r.Context(), siteID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// ticketInSite loads the ticket named in the path and checks the caller may
// act on its site.
func (h *Handler) ticketInSite(w http.ResponseWriter, r *http.Request) (models.Ticket, bool) {
	ticketID, ok := pathID(w, r, "ticketID")
	if !ok {
		return models.Ticket{}, false
	}
	ticket, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.fail(w, r, err)
		return models.Ticket{}, false
	}
	if !requireSiteAccess(w, r, ticket.SiteID) {
		return models.Ticket{}, false
	}
	return ticket, true
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketInSite(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketEvents(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketInSite(w, r)
	if !ok {
		return
	}
	events, verified, err := h.tickets.TicketHistory(r.Context(), ticket.TicketID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketEventsResponse{TicketID: ticket.TicketID, Verified: verified, Events: events})
}

func (h *Handler) handleTransitionTicket(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.ticketInSite(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ModuleID = strings.TrimSpace(req.ModuleID)
	if req.ModuleID != "" && !isValidUUID(req.ModuleID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "module_id must be a UUID")
		return
	}
	target, err := models.ParseTicketState(req.State)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", err, store.ErrValidation))
		return
	}
	updated, err := h.tickets.TransitionTicket(r.Context(), ticket.TicketID, target, req.ModuleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Package ticketing is the ticket lifecycle engine: it issues numbered
// tickets, moves them through the transition table and announces every
// change to the ticket's site scope.
package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/fanout"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/sequence"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventTicketCreated = "ticket-created"
	EventTicketUpdated = "ticket-updated"

	MaxCitizenIDLength = 20
	createAttempts     = 2
)

var (
	ErrCitizenIDRequired = fmt.Errorf("citizen_id is required: %w", store.ErrValidation)
	ErrCitizenIDTooLong  = fmt.Errorf("citizen_id exceeds %d characters: %w", MaxCitizenIDLength, store.ErrValidation)
	ErrUnknownState      = fmt.Errorf("unknown ticket state: %w", store.ErrValidation)
)

type Options struct {
	// Location decides where calendar days start. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	catalog  store.CatalogStore
	tickets  store.TicketStore
	notifier fanout.Notifier
	loc      *time.Location
	now      func() time.Time
	tracer   trace.Tracer
}

type ActiveTicket struct {
	models.Ticket
	WaitMinutes int `json:"wait_minutes"`
}

type TicketCreated struct {
	SiteID   string `json:"site_id"`
	TicketID string `json:"ticket_id"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
}

type TicketUpdated struct {
	TicketID     string             `json:"ticket_id"`
	Code         string             `json:"code"`
	Module       string             `json:"module"`
	ModuleNumber *int               `json:"module_number"`
	State        models.TicketState `json:"state"`
}

func NewService(catalog store.CatalogStore, tickets store.TicketStore, notifier fanout.Notifier, options Options) *Service {
	if notifier == nil {
		notifier = fanout.Noop{}
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:  catalog,
		tickets:  tickets,
		notifier: notifier,
		loc:      loc,
		now:      now,
		tracer:   otel.Tracer("digiturno/ticketing"),
	}
}

// Location is where the service draws calendar day boundaries.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) CreateTicket(ctx context.Context, siteID, reasonID, citizenID string) (ticket models.Ticket, err error) {
	ctx, span := s.tracer.Start(ctx, "ticketing.CreateTicket", trace.WithAttributes(
		attribute.String("site.id", siteID),
		attribute.String("reason.id", reasonID),
	))
	defer func() { endSpan(span, err) }()

	citizenID = strings.TrimSpace(citizenID)
	if citizenID == "" {
		return models.Ticket{}, ErrCitizenIDRequired
	}
	if len([]rune(citizenID)) > MaxCitizenIDLength {
		return models.Ticket{}, ErrCitizenIDTooLong
	}

	site, err := s.catalog.GetSite(ctx, siteID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !site.Active {
		return models.Ticket{}, store.ErrSiteInactive
	}
	reason, err := s.catalog.GetReason(ctx, reasonID)
	if err != nil {
		return models.Ticket{}, err
	}
	if reason.SiteID != site.SiteID {
		return models.Ticket{}, store.ErrReasonNotFound
	}
	if !reason.Active {
		return models.Ticket{}, store.ErrReasonInactive
	}

	input := store.CreateTicketInput{
		SiteID:    site.SiteID,
		ReasonID:  reason.ReasonID,
		Prefix:    reason.Prefix,
		CitizenID: citizenID,
		CreatedAt: s.now().In(s.loc),
	}
	for attempt := 1; attempt <= createAttempts; attempt++ {
		ticket, err = s.tickets.CreateTicket(ctx, input)
		if !errors.Is(err, store.ErrSequenceConflict) || attempt == createAttempts {
			break
		}
		log.Printf("ticket sequence conflict site=%s reason=%s attempt=%d, retrying", site.SiteID, reason.ReasonID, attempt)
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	span.SetAttributes(attribute.String("ticket.code", ticket.Code))

	s.notifier.Notify(ctx, fanout.SiteScope(site.SiteID), EventTicketCreated, TicketCreated{
		SiteID:   site.SiteID,
		TicketID: ticket.TicketID,
		Code:     ticket.Code,
		Reason:   reason.Name,
	})
	return ticket, nil
}

// TransitionTicket moves a ticket to target. moduleID may be empty when the
// ticket already has a module or target does not need one.
func (s *Service) TransitionTicket(ctx context.Context, ticketID string, target models.TicketState, moduleID string) (ticket models.Ticket, err error) {
	ctx, span := s.tracer.Start(ctx, "ticketing.TransitionTicket", trace.WithAttributes(
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.target_state", string(target)),
	))
	defer func() { endSpan(span, err) }()

	if !target.Valid() {
		return models.Ticket{}, ErrUnknownState
	}
	current, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !ValidTransition(current.State, target) {
		return models.Ticket{}, fmt.Errorf("%s to %s: %w", current.State, target, store.ErrInvalidTransition)
	}

	moduleID = strings.TrimSpace(moduleID)
	if RequiresModule(target) && moduleID == "" && current.ModuleID == nil {
		return models.Ticket{}, store.ErrModuleRequired
	}

	var module *models.Module
	if moduleID != "" {
		found, err := s.catalog.GetModule(ctx, moduleID)
		if err != nil {
			return models.Ticket{}, err
		}
		if found.SiteID != current.SiteID {
			return models.Ticket{}, store.ErrModuleNotFound
		}
		if !found.Active {
			return models.Ticket{}, store.ErrModuleInactive
		}
		module = &found
	}

	now := s.now().In(s.loc)
	input := store.UpdateTicketStateInput{
		TicketID: current.TicketID,
		From:     current.State,
		To:       target,
	}
	if module != nil {
		input.ModuleID = &module.ModuleID
	}
	if target == models.StateCalled && current.State != models.StateCalled {
		input.CalledAt = &now
	}
	if target == models.StateServed && current.State != models.StateServed {
		input.ServedAt = &now
	}

	ticket, err = s.tickets.UpdateTicketState(ctx, input)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("update ticket state: %w", err)
	}

	event := TicketUpdated{TicketID: ticket.TicketID, Code: ticket.Code, State: ticket.State}
	switch {
	case module != nil:
		event.Module = module.Name
		event.ModuleNumber = &module.Number
	case ticket.ModuleID != nil:
		event.Module = ticket.ModuleName
		event.ModuleNumber = ticket.ModuleNumber
	}
	s.notifier.Notify(ctx, fanout.SiteScope(ticket.SiteID), EventTicketUpdated, event)
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return s.tickets.GetTicket(ctx, ticketID)
}

// ListActiveTickets returns the site's waiting and called tickets, oldest
// first, each with whole minutes waited so far.
func (s *Service) ListActiveTickets(ctx context.Context, siteID string) ([]ActiveTicket, error) {
	if _, err := s.catalog.GetSite(ctx, siteID); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListTicketsByState(ctx, siteID, ActiveStates())
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]ActiveTicket, 0, len(tickets))
	for _, ticket := range tickets {
		active = append(active, ActiveTicket{Ticket: ticket, WaitMinutes: WaitMinutes(ticket.CreatedAt, now)})
	}
	return active, nil
}

// ListTicketsByDate returns every ticket created on date's calendar day, read
// in the service location, oldest first.
func (s *Service) ListTicketsByDate(ctx context.Context, siteID string, date time.Time) ([]models.Ticket, error) {
	if _, err := s.catalog.GetSite(ctx, siteID); err != nil {
		return nil, err
	}
	y, m, d := date.Date()
	from, until := sequence.Window(time.Date(y, m, d, 0, 0, 0, 0, s.loc))
	return s.tickets.ListTicketsByRange(ctx, siteID, from, until)
}

// TicketHistory returns the ticket's stored events and whether their hash
// chain is intact.
func (s *Service) TicketHistory(ctx context.Context, ticketID string) ([]store.TicketEvent, bool, error) {
	events, err := s.tickets.ListTicketEvents(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if err := store.VerifyTicketEvents(events); err != nil {
		log.Printf("ticket history verification failed ticket=%s err=%v", ticketID, err)
		return events, false, nil
	}
	return events, true, nil
}

// WaitMinutes is floor((now-created)/1m), never negative.
func WaitMinutes(created, now time.Time) int {
	elapsed := now.Sub(created)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

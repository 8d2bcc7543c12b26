package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/fanout"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Scope   string
	Event   string
	Payload json.RawMessage
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, env fanout.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Scope: env.Scope, Event: env.Event, Payload: env.Payload})
	return nil
}

func (r *recorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

type fixture struct {
	svc    *Service
	st     *memory.Store
	rec    *recorder
	site   models.Site
	reason models.Reason
	module models.Module
	now    *time.Time
}

func newFixture(t *testing.T, publishers ...fanout.Publisher) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()
	site, err := st.CreateSite(ctx, models.Site{Name: "Sede Principal", Code: "PRINCIPAL", Active: true})
	require.NoError(t, err)
	reason, err := st.CreateReason(ctx, models.Reason{SiteID: site.SiteID, Name: "General", Prefix: "GEN", Active: true})
	require.NoError(t, err)
	module, err := st.CreateModule(ctx, models.Module{SiteID: site.SiteID, Name: "Modulo 1", Number: 1, Active: true})
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	rec := &recorder{}
	f := &fixture{st: st, rec: rec, site: site, reason: reason, module: module, now: &now}
	f.svc = NewService(st, st, fanout.New(time.Second, append(publishers, rec)...), Options{
		Location: time.UTC,
		Now:      func() time.Time { return *f.now },
	})
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1234567890")
	require.NoError(t, err)
	assert.Equal(t, "GEN001", ticket.Code)
	assert.Equal(t, models.StateWaiting, ticket.State)
	assert.Nil(t, ticket.ModuleID)

	f.advance(3 * time.Minute)
	called, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, f.module.ModuleID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCalled, called.State)
	require.NotNil(t, called.ModuleID)
	assert.Equal(t, f.module.ModuleID, *called.ModuleID)
	require.NotNil(t, called.CalledAt)
	assert.True(t, called.CalledAt.Equal(*f.now))

	f.advance(5 * time.Minute)
	served, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateServed, "")
	require.NoError(t, err)
	assert.Equal(t, models.StateServed, served.State)
	require.NotNil(t, served.ServedAt)
	assert.True(t, served.CalledAt.Before(*served.ServedAt))

	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, f.module.ModuleID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	events := f.rec.snapshot()
	require.Len(t, events, 3)
	scope := fanout.SiteScope(f.site.SiteID)
	assert.Equal(t, EventTicketCreated, events[0].Event)
	assert.Equal(t, scope, events[0].Scope)
	assert.JSONEq(t, fmt.Sprintf(`{"site_id":%q,"ticket_id":%q,"code":"GEN001","reason":"General"}`, f.site.SiteID, ticket.TicketID), string(events[0].Payload))
	assert.Equal(t, EventTicketUpdated, events[1].Event)
	assert.JSONEq(t, fmt.Sprintf(`{"ticket_id":%q,"code":"GEN001","module":"Modulo 1","module_number":1,"state":"called"}`, ticket.TicketID), string(events[1].Payload))
	assert.Equal(t, EventTicketUpdated, events[2].Event)
	assert.JSONEq(t, fmt.Sprintf(`{"ticket_id":%q,"code":"GEN001","module":"Modulo 1","module_number":1,"state":"served"}`, ticket.TicketID), string(events[2].Payload))

	history, verified, err := f.svc.TicketHistory(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.True(t, verified)
	require.Len(t, history, 3)
	assert.Equal(t, store.EventTicketCreated, history[0].Type)
	assert.Equal(t, "ticket.served", history[2].Type)
}

func TestCreateTicketValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other, err := f.st.CreateSite(ctx, models.Site{Name: "Sede Norte", Code: "NORTE", Active: true})
	require.NoError(t, err)
	closed, err := f.st.CreateSite(ctx, models.Site{Name: "Sede Cerrada", Code: "CERRADA"})
	require.NoError(t, err)
	inactiveReason, err := f.st.CreateReason(ctx, models.Reason{SiteID: f.site.SiteID, Name: "Pausado", Prefix: "PAU"})
	require.NoError(t, err)

	cases := []struct {
		name      string
		siteID    string
		reasonID  string
		citizenID string
		want      error
	}{
		{"empty citizen", f.site.SiteID, f.reason.ReasonID, "   ", store.ErrValidation},
		{"long citizen", f.site.SiteID, f.reason.ReasonID, "123456789012345678901", store.ErrValidation},
		{"unknown site", "missing", f.reason.ReasonID, "1", store.ErrSiteNotFound},
		{"inactive site", closed.SiteID, f.reason.ReasonID, "1", store.ErrSiteInactive},
		{"unknown reason", f.site.SiteID, "missing", "1", store.ErrReasonNotFound},
		{"reason of other site", other.SiteID, f.reason.ReasonID, "1", store.ErrReasonNotFound},
		{"inactive reason", f.site.SiteID, inactiveReason.ReasonID, "1", store.ErrInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(ctx, tc.siteID, tc.reasonID, tc.citizenID)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.rec.snapshot(), "rejected requests emit nothing")

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "12345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "GEN001", ticket.Code)
}

func TestTransitionChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)

	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.TicketState("paused"), f.module.ModuleID)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = f.svc.TransitionTicket(ctx, "missing", models.StateCalled, f.module.ModuleID)
	assert.ErrorIs(t, err, store.ErrTicketNotFound)

	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, "")
	assert.ErrorIs(t, err, store.ErrModuleRequired)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateServed, f.module.ModuleID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	other, err := f.st.CreateSite(ctx, models.Site{Name: "Sede Norte", Code: "NORTE", Active: true})
	require.NoError(t, err)
	foreign, err := f.st.CreateModule(ctx, models.Module{SiteID: other.SiteID, Name: "Modulo N", Number: 1, Active: true})
	require.NoError(t, err)
	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, foreign.ModuleID)
	assert.ErrorIs(t, err, store.ErrModuleNotFound)

	idle, err := f.st.CreateModule(ctx, models.Module{SiteID: f.site.SiteID, Name: "Modulo 2", Number: 2})
	require.NoError(t, err)
	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, idle.ModuleID)
	assert.ErrorIs(t, err, store.ErrModuleInactive)

	current, err := f.svc.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaiting, current.State, "failed transitions leave the ticket untouched")

	cancelled, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.State)
	assert.Nil(t, cancelled.ModuleID)
	assert.Nil(t, cancelled.CalledAt)
}

func TestRedirectKeepsFirstCalledAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	second, err := f.st.CreateModule(ctx, models.Module{SiteID: f.site.SiteID, Name: "Modulo 2", Number: 2, Active: true})
	require.NoError(t, err)

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)
	called, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, f.module.ModuleID)
	require.NoError(t, err)

	f.advance(time.Minute)
	redirected, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateRedirected, second.ModuleID)
	require.NoError(t, err)
	assert.Equal(t, second.ModuleID, *redirected.ModuleID)
	assert.Equal(t, 2, *redirected.ModuleNumber)
	assert.True(t, redirected.CalledAt.Equal(*called.CalledAt))
	assert.Nil(t, redirected.ServedAt)
}

func TestRedirectWithoutModuleKeepsCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)
	called, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, f.module.ModuleID)
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	redirected, err := f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateRedirected, "")
	require.NoError(t, err)
	assert.Equal(t, models.StateRedirected, redirected.State)
	require.NotNil(t, redirected.ModuleID)
	assert.Equal(t, f.module.ModuleID, *redirected.ModuleID)
	require.NotNil(t, redirected.CalledAt)
	assert.True(t, redirected.CalledAt.Equal(*called.CalledAt))

	events := f.rec.snapshot()
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, EventTicketUpdated, last.Event)
	assert.JSONEq(t, fmt.Sprintf(`{"ticket_id":%q,"code":"GEN001","module":"Modulo 1","module_number":1,"state":"redirected"}`, ticket.TicketID), string(last.Payload))
}

func TestConcurrentCreateGivesDistinctCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 50
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, fmt.Sprintf("%d", i))
			if assert.NoError(t, err) {
				codes[i] = ticket.Code
			}
		}(i)
	}
	wg.Wait()

	sort.Strings(codes)
	for i, code := range codes {
		assert.Equal(t, fmt.Sprintf("GEN%03d", i+1), code)
	}
}

func TestSequenceRestartsEachDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)
	second, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "2")
	require.NoError(t, err)
	f.advance(24 * time.Hour)
	nextDay, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "3")
	require.NoError(t, err)

	assert.Equal(t, "GEN001", first.Code)
	assert.Equal(t, "GEN002", second.Code)
	assert.Equal(t, "GEN001", nextDay.Code)

	day1, err := f.svc.ListTicketsByDate(ctx, f.site.SiteID, first.CreatedAt)
	require.NoError(t, err)
	assert.Len(t, day1, 2)
	day2, err := f.svc.ListTicketsByDate(ctx, f.site.SiteID, nextDay.CreatedAt)
	require.NoError(t, err)
	require.Len(t, day2, 1)
	assert.Equal(t, nextDay.TicketID, day2[0].TicketID)
}

func TestListActiveTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)
	f.advance(2 * time.Minute)
	second, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "2")
	require.NoError(t, err)
	f.advance(30 * time.Second)
	done, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "3")
	require.NoError(t, err)
	_, err = f.svc.TransitionTicket(ctx, done.TicketID, models.StateCancelled, "")
	require.NoError(t, err)
	_, err = f.svc.TransitionTicket(ctx, first.TicketID, models.StateCalled, f.module.ModuleID)
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	active, err := f.svc.ListActiveTickets(ctx, f.site.SiteID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.TicketID, active[0].TicketID)
	assert.Equal(t, models.StateCalled, active[0].State)
	assert.Equal(t, 12, active[0].WaitMinutes)
	assert.Equal(t, second.TicketID, active[1].TicketID)
	assert.Equal(t, 10, active[1].WaitMinutes)

	_, err = f.svc.ListActiveTickets(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSiteNotFound)
}

func TestFailingPublisherDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	broken := fanout.PublisherFunc(func(context.Context, fanout.Envelope) error {
		return errors.New("broker unavailable")
	})
	f := newFixture(t, broken)

	ticket, err := f.svc.CreateTicket(ctx, f.site.SiteID, f.reason.ReasonID, "1")
	require.NoError(t, err)
	_, err = f.svc.TransitionTicket(ctx, ticket.TicketID, models.StateCalled, f.module.ModuleID)
	require.NoError(t, err)
	assert.Len(t, f.rec.snapshot(), 2, "healthy publishers still receive every event")
}

func TestWaitMinutes(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, WaitMinutes(base, base.Add(59*time.Second)))
	assert.Equal(t, 1, WaitMinutes(base, base.Add(time.Minute)))
	assert.Equal(t, 0, WaitMinutes(base, base.Add(-5*time.Minute)))
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
	"github.com/Gabrielda2002/Back-end-digiturno/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestCreateTicketConcurrency(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	site, reason := seedCatalog(t, ctx, st)
	createdAt := time.Now()

	const n = 20
	codes := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{
				SiteID: site.SiteID, ReasonID: reason.ReasonID, Prefix: reason.Prefix,
				CitizenID: fmt.Sprintf("%d", i), CreatedAt: createdAt,
			})
			codes[i], errs[i] = ticket.Code, err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("create ticket %d: %v", i, err)
		}
	}
	sort.Strings(codes)
	for i, code := range codes {
		if want := fmt.Sprintf("GEN%03d", i+1); code != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, code)
		}
	}
}

func TestSequenceRestartsNextDay(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	site, reason := seedCatalog(t, ctx, st)
	day := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	first := createTicket(t, ctx, st, site, reason, day)
	next := createTicket(t, ctx, st, site, reason, day.Add(2*time.Minute))
	if first.Code != "GEN001" || next.Code != "GEN001" {
		t.Fatalf("expected GEN001 on both days, got %s and %s", first.Code, next.Code)
	}

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tickets, err := st.ListTicketsByRange(ctx, site.SiteID, from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list by range: %v", err)
	}
	if len(tickets) != 1 || tickets[0].TicketID != first.TicketID {
		t.Fatalf("expected only the first day's ticket, got %+v", tickets)
	}
}

func TestUpdateTicketStateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	site, reason := seedCatalog(t, ctx, st)
	module, err := st.CreateModule(ctx, models.Module{SiteID: site.SiteID, Name: "Modulo 1", Number: 1, Active: true})
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	ticket := createTicket(t, ctx, st, site, reason, time.Now())

	calledAt := time.Now()
	called, err := st.UpdateTicketState(ctx, store.UpdateTicketStateInput{
		TicketID: ticket.TicketID, From: models.StateWaiting, To: models.StateCalled,
		ModuleID: &module.ModuleID, CalledAt: &calledAt,
	})
	if err != nil {
		t.Fatalf("call ticket: %v", err)
	}
	if called.ModuleNumber == nil || *called.ModuleNumber != 1 || called.ModuleName != "Modulo 1" {
		t.Fatalf("expected module enrichment, got %+v", called)
	}
	if called.CalledAt == nil {
		t.Fatalf("expected called_at to be set")
	}

	_, err = st.UpdateTicketState(ctx, store.UpdateTicketStateInput{
		TicketID: ticket.TicketID, From: models.StateWaiting, To: models.StateCancelled,
	})
	if !errors.Is(err, store.ErrStateChanged) {
		t.Fatalf("expected ErrStateChanged, got %v", err)
	}

	if err := st.DeleteModule(ctx, module.ModuleID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	events, err := st.ListTicketEvents(ctx, ticket.TicketID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if err := store.VerifyTicketEvents(events); err != nil {
		t.Fatalf("verify events: %v", err)
	}
}

func TestCatalogConstraints(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	site, _ := seedCatalog(t, ctx, st)
	if _, err := st.CreateSite(ctx, models.Site{Name: "Otra", Code: site.Code}); !errors.Is(err, store.ErrDuplicateSiteCode) {
		t.Fatalf("expected ErrDuplicateSiteCode, got %v", err)
	}
	if _, err := st.CreateReason(ctx, models.Reason{SiteID: site.SiteID, Name: "Otro", Prefix: "GEN"}); !errors.Is(err, store.ErrDuplicateReasonPrefix) {
		t.Fatalf("expected ErrDuplicateReasonPrefix, got %v", err)
	}
	if _, err := st.CreateReason(ctx, models.Reason{SiteID: uuid.NewString(), Name: "Otro", Prefix: "OT"}); !errors.Is(err, store.ErrSiteNotFound) {
		t.Fatalf("expected ErrSiteNotFound, got %v", err)
	}
	if _, err := st.GetSite(ctx, "not-a-uuid"); !errors.Is(err, store.ErrSiteNotFound) {
		t.Fatalf("expected ErrSiteNotFound for malformed id, got %v", err)
	}
	if err := st.DeleteSite(ctx, site.SiteID); !errors.Is(err, store.ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	account, err := st.CreateAccount(ctx, models.Account{Name: "Ana", Email: "ana@example.com", Role: models.RoleOperator, SiteID: &site.SiteID, Active: true})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := st.CreateAccount(ctx, models.Account{Name: "Ana", Email: "ANA@example.com", Role: models.RoleOperator}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	found, err := st.GetAccountByEmail(ctx, "Ana@Example.com")
	if err != nil || found.AccountID != account.AccountID {
		t.Fatalf("expected case-insensitive email lookup, got %v %+v", err, found)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), pool, cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func seedCatalog(t *testing.T, ctx context.Context, st *Store) (models.Site, models.Reason) {
	t.Helper()
	site, err := st.CreateSite(ctx, models.Site{Name: "Sede Principal", Code: "PRINCIPAL-" + uuid.NewString()[:8], Active: true})
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	reason, err := st.CreateReason(ctx, models.Reason{SiteID: site.SiteID, Name: "General", Prefix: "GEN", Active: true})
	if err != nil {
		t.Fatalf("create reason: %v", err)
	}
	return site, reason
}

func createTicket(t *testing.T, ctx context.Context, st *Store, site models.Site, reason models.Reason, at time.Time) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{
		SiteID: site.SiteID, ReasonID: reason.ReasonID, Prefix: reason.Prefix, CitizenID: "1020304050", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/sequence"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// constraintErrors maps schema constraint names to the store error a
// violation of them means on insert or update.
var constraintErrors = map[string]error{
	"sites_code_key":           store.ErrDuplicateSiteCode,
	"reasons_site_prefix_key":  store.ErrDuplicateReasonPrefix,
	"modules_site_number_key":  store.ErrDuplicateModuleNumber,
	"accounts_email_key":       store.ErrDuplicateEmail,
	"tickets_sequence_key":     store.ErrSequenceConflict,
	"reasons_site_id_fkey":     store.ErrSiteNotFound,
	"modules_site_id_fkey":     store.ErrSiteNotFound,
	"modules_operator_id_fkey": store.ErrAccountNotFound,
	"accounts_site_id_fkey":    store.ErrSiteNotFound,
	"tickets_site_id_fkey":     store.ErrSiteNotFound,
	"tickets_reason_id_fkey":   store.ErrReasonNotFound,
	"tickets_module_id_fkey":   store.ErrModuleNotFound,
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and checks it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const ticketSelect = `
	SELECT t.ticket_id, t.site_id, t.reason_id, r.name, t.code, t.sequence, t.citizen_id, t.state,
		t.module_id, m.name, m.number, t.created_at, t.called_at, t.served_at
	FROM tickets t
	JOIN reasons r ON r.reason_id = t.reason_id
	LEFT JOIN modules m ON m.module_id = t.module_id
`

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	// timestamptz keeps microseconds; the returned ticket must match what is stored.
	createdAt = createdAt.Truncate(time.Microsecond)
	day := sequence.Day(createdAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockKey := fmt.Sprintf("ticket-sequence:%s:%s:%s", input.SiteID, input.ReasonID, day)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return models.Ticket{}, err
	}

	seq, err := sequence.NewAllocator(sequence.SourceFunc(func(ctx context.Context, siteID, reasonID string, from, until time.Time) (int, error) {
		return maxSequence(ctx, tx, siteID, reasonID, from, until)
	})).Next(ctx, input.SiteID, input.ReasonID, createdAt)
	if err != nil {
		return models.Ticket{}, lookupError(err, store.ErrSiteNotFound)
	}

	ticket := models.Ticket{
		TicketID:  uuid.NewString(),
		SiteID:    input.SiteID,
		ReasonID:  input.ReasonID,
		Code:      sequence.Format(input.Prefix, seq),
		Sequence:  seq,
		CitizenID: input.CitizenID,
		State:     models.StateWaiting,
		CreatedAt: createdAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (ticket_id, site_id, reason_id, code, sequence, service_day, citizen_id, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.TicketID, ticket.SiteID, ticket.ReasonID, ticket.Code, ticket.Sequence, day, ticket.CitizenID, ticket.State, ticket.CreatedAt)
	if err != nil {
		return models.Ticket{}, translate(err)
	}
	if err := insertTicketEvent(ctx, tx, ticket, store.EventTicketCreated); err != nil {
		return models.Ticket{}, err
	}

	created, err := getTicket(ctx, tx, ticket.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, translate(err)
	}
	return created, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	return getTicket(ctx, s.pool, ticketID)
}

func (s *Store) UpdateTicketState(ctx context.Context, input store.UpdateTicketStateInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tickets
		SET state = $3,
			module_id = COALESCE($4::uuid, module_id),
			called_at = COALESCE(called_at, $5::timestamptz),
			served_at = COALESCE(served_at, $6::timestamptz)
		WHERE ticket_id = $1 AND state = $2
	`, input.TicketID, input.From, input.To, input.ModuleID, truncatePtr(input.CalledAt), truncatePtr(input.ServedAt))
	if err != nil {
		return models.Ticket{}, lookupError(translate(err), store.ErrTicketNotFound)
	}
	if tag.RowsAffected() == 0 {
		if _, err := getTicket(ctx, tx, input.TicketID); err != nil {
			return models.Ticket{}, err
		}
		return models.Ticket{}, store.ErrStateChanged
	}

	ticket, err := getTicket(ctx, tx, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := insertTicketEvent(ctx, tx, ticket, store.TransitionEventType(input.To)); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListTicketsByState(ctx context.Context, siteID string, states []models.TicketState) ([]models.Ticket, error) {
	raw := make([]string, 0, len(states))
	for _, state := range states {
		raw = append(raw, string(state))
	}
	rows, err := s.pool.Query(ctx, ticketSelect+`
		WHERE t.site_id = $1 AND t.state = ANY($2)
		ORDER BY t.created_at ASC, t.code ASC
	`, siteID, raw)
	if err != nil {
		return nil, lookupError(err, store.ErrSiteNotFound)
	}
	return collectTickets(rows)
}

func (s *Store) ListTicketsByRange(ctx context.Context, siteID string, from, to time.Time) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, ticketSelect+`
		WHERE t.site_id = $1 AND t.created_at >= $2 AND t.created_at < $3
		ORDER BY t.created_at ASC, t.code ASC
	`, siteID, from, to)
	if err != nil {
		return nil, lookupError(err, store.ErrSiteNotFound)
	}
	return collectTickets(rows)
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	if _, err := getTicket(ctx, s.pool, ticketID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]store.TicketEvent, 0)
	for rows.Next() {
		var event store.TicketEvent
		var payload []byte
		if err := rows.Scan(&event.TicketID, &event.Seq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func maxSequence(ctx context.Context, q querier, siteID, reasonID string, from, until time.Time) (int, error) {
	var max int
	row := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0)
		FROM tickets
		WHERE site_id = $1 AND reason_id = $2 AND created_at >= $3 AND created_at < $4
	`, siteID, reasonID, from, until)
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func getTicket(ctx context.Context, q querier, ticketID string) (models.Ticket, error) {
	ticket, err := scanTicket(q.QueryRow(ctx, ticketSelect+` WHERE t.ticket_id = $1`, ticketID))
	if err != nil {
		return models.Ticket{}, lookupError(err, store.ErrTicketNotFound)
	}
	return ticket, nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	tickets := make([]models.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var moduleIDNull, moduleNameNull sql.NullString
	var moduleNumberNull sql.NullInt32
	var calledAtNull, servedAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.SiteID, &ticket.ReasonID, &ticket.ReasonName, &ticket.Code, &ticket.Sequence,
		&ticket.CitizenID, &ticket.State, &moduleIDNull, &moduleNameNull, &moduleNumberNull,
		&ticket.CreatedAt, &calledAtNull, &servedAtNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.ModuleID = nullStringPtr(moduleIDNull)
	if moduleNameNull.Valid {
		ticket.ModuleName = moduleNameNull.String
	}
	if moduleNumberNull.Valid {
		number := int(moduleNumberNull.Int32)
		ticket.ModuleNumber = &number
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.ServedAt = nullTimePtr(servedAtNull)
	return ticket, nil
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, ticket models.Ticket, eventType string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticket.TicketID); err != nil {
		return err
	}

	var prev *store.TicketEvent
	var last store.TicketEvent
	row := tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
	`, ticket.TicketID)
	switch err := row.Scan(&last.Seq, &last.Hash); {
	case err == nil:
		prev = &last
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	payload, err := store.TicketEventPayload(ticket)
	if err != nil {
		return err
	}
	event := store.NextTicketEvent(prev, ticket.TicketID, eventType, payload, time.Now().UTC().Truncate(time.Microsecond))
	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.TicketID, event.Seq, event.Type, string(event.Payload), event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

// translate turns a constraint violation into the matching store error.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeUniqueViolation || pgErr.Code == codeForeignKeyViolation) {
		if mapped, ok := constraintErrors[pgErr.ConstraintName]; ok {
			return mapped
		}
	}
	return err
}

// lookupError reports notFound for a missing row or an id that is not a UUID.
func lookupError(err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) || hasCode(err, codeInvalidText) {
		return notFound
	}
	return err
}

// deleteError reports rows still referenced as store.ErrInUse.
func deleteError(err error, notFound error) error {
	if hasCode(err, codeForeignKeyViolation) {
		return store.ErrInUse
	}
	return lookupError(err, notFound)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func truncatePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	truncated := value.Truncate(time.Microsecond)
	return &truncated
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

package store

import (
	"context"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
)

type CreateTicketInput struct {
	SiteID    string
	ReasonID  string
	Prefix    string
	CitizenID string
	// CreatedAt carries the local location whose calendar day scopes the
	// sequence.
	CreatedAt time.Time
}

type UpdateTicketStateInput struct {
	TicketID string
	From     models.TicketState
	To       models.TicketState
	ModuleID *string
	CalledAt *time.Time
	ServedAt *time.Time
}

type CatalogStore interface {
	CreateSite(ctx context.Context, site models.Site) (models.Site, error)
	UpdateSite(ctx context.Context, site models.Site) (models.Site, error)
	DeleteSite(ctx context.Context, siteID string) error
	GetSite(ctx context.Context, siteID string) (models.Site, error)
	ListSites(ctx context.Context) ([]models.Site, error)

	CreateReason(ctx context.Context, reason models.Reason) (models.Reason, error)
	UpdateReason(ctx context.Context, reason models.Reason) (models.Reason, error)
	DeleteReason(ctx context.Context, reasonID string) error
	GetReason(ctx context.Context, reasonID string) (models.Reason, error)
	ListReasons(ctx context.Context, siteID string) ([]models.Reason, error)

	CreateModule(ctx context.Context, module models.Module) (models.Module, error)
	UpdateModule(ctx context.Context, module models.Module) (models.Module, error)
	DeleteModule(ctx context.Context, moduleID string) error
	GetModule(ctx context.Context, moduleID string) (models.Module, error)
	ListModules(ctx context.Context, siteID string) ([]models.Module, error)
	AssignModuleOperator(ctx context.Context, moduleID string, operatorID *string) (models.Module, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	UpdateAccount(ctx context.Context, account models.Account) (models.Account, error)
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	SetAccountPassword(ctx context.Context, accountID, passwordHash string) error
}

type TicketStore interface {
	// CreateTicket allocates the next sequence of the (site, reason, local
	// day) scope and inserts the ticket atomically.
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	// UpdateTicketState applies the change only while the ticket is still in
	// input.From. Timestamps already set are kept.
	UpdateTicketState(ctx context.Context, input UpdateTicketStateInput) (models.Ticket, error)
	ListTicketsByState(ctx context.Context, siteID string, states []models.TicketState) ([]models.Ticket, error)
	ListTicketsByRange(ctx context.Context, siteID string, from, to time.Time) ([]models.Ticket, error)
	ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error)
}

type Store interface {
	CatalogStore
	AccountStore
	TicketStore
}

// Package memory keeps every record in process memory. It backs tests and
// STORE_DRIVER=memory runs; it enforces the same uniqueness and reference
// rules as the Postgres schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/sequence"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	sites     map[string]models.Site
	reasons   map[string]models.Reason
	modules   map[string]models.Module
	accounts  map[string]models.Account
	tickets   map[string]models.Ticket
	sequences map[string]string
	events    map[string][]store.TicketEvent
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		sites:     make(map[string]models.Site),
		reasons:   make(map[string]models.Reason),
		modules:   make(map[string]models.Module),
		accounts:  make(map[string]models.Account),
		tickets:   make(map[string]models.Ticket),
		sequences: make(map[string]string),
		events:    make(map[string][]store.TicketEvent),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateSite(ctx context.Context, site models.Site) (models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sites {
		if existing.Code == site.Code {
			return models.Site{}, store.ErrDuplicateSiteCode
		}
	}
	if site.SiteID == "" {
		site.SiteID = uuid.NewString()
	}
	site.CreatedAt = s.now()
	site.UpdatedAt = site.CreatedAt
	s.sites[site.SiteID] = site
	return site, nil
}

func (s *Store) UpdateSite(ctx context.Context, site models.Site) (models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sites[site.SiteID]
	if !ok {
		return models.Site{}, store.ErrSiteNotFound
	}
	for _, existing := range s.sites {
		if existing.SiteID != site.SiteID && existing.Code == site.Code {
			return models.Site{}, store.ErrDuplicateSiteCode
		}
	}
	site.CreatedAt = current.CreatedAt
	site.UpdatedAt = s.now()
	s.sites[site.SiteID] = site
	return site, nil
}

func (s *Store) DeleteSite(ctx context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[siteID]; !ok {
		return store.ErrSiteNotFound
	}
	for _, reason := range s.reasons {
		if reason.SiteID == siteID {
			return store.ErrInUse
		}
	}
	for _, module := range s.modules {
		if module.SiteID == siteID {
			return store.ErrInUse
		}
	}
	for _, ticket := range s.tickets {
		if ticket.SiteID == siteID {
			return store.ErrInUse
		}
	}
	for _, account := range s.accounts {
		if account.SiteID != nil && *account.SiteID == siteID {
			return store.ErrInUse
		}
	}
	delete(s.sites, siteID)
	return nil
}

func (s *Store) GetSite(ctx context.Context, siteID string) (models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	site, ok := s.sites[siteID]
	if !ok {
		return models.Site{}, store.ErrSiteNotFound
	}
	return site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sites := make([]models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

func (s *Store) CreateReason(ctx context.Context, reason models.Reason) (models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[reason.SiteID]; !ok {
		return models.Reason{}, store.ErrSiteNotFound
	}
	if s.prefixTakenLocked(reason) {
		return models.Reason{}, store.ErrDuplicateReasonPrefix
	}
	if reason.ReasonID == "" {
		reason.ReasonID = uuid.NewString()
	}
	reason.CreatedAt = s.now()
	reason.UpdatedAt = reason.CreatedAt
	s.reasons[reason.ReasonID] = reason
	return reason, nil
}

func (s *Store) UpdateReason(ctx context.Context, reason models.Reason) (models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reasons[reason.ReasonID]
	if !ok {
		return models.Reason{}, store.ErrReasonNotFound
	}
	reason.SiteID = current.SiteID
	if s.prefixTakenLocked(reason) {
		return models.Reason{}, store.ErrDuplicateReasonPrefix
	}
	reason.CreatedAt = current.CreatedAt
	reason.UpdatedAt = s.now()
	s.reasons[reason.ReasonID] = reason
	return reason, nil
}

func (s *Store) prefixTakenLocked(reason models.Reason) bool {
	for _, existing := range s.reasons {
		if existing.ReasonID != reason.ReasonID && existing.SiteID == reason.SiteID && existing.Prefix == reason.Prefix {
			return true
		}
	}
	return false
}

func (s *Store) DeleteReason(ctx context.Context, reasonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reasons[reasonID]; !ok {
		return store.ErrReasonNotFound
	}
	for _, ticket := range s.tickets {
		if ticket.ReasonID == reasonID {
			return store.ErrInUse
		}
	}
	delete(s.reasons, reasonID)
	return nil
}

func (s *Store) GetReason(ctx context.Context, reasonID string) (models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason, ok := s.reasons[reasonID]
	if !ok {
		return models.Reason{}, store.ErrReasonNotFound
	}
	return reason, nil
}

func (s *Store) ListReasons(ctx context.Context, siteID string) ([]models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make([]models.Reason, 0)
	for _, reason := range s.reasons {
		if reason.SiteID == siteID {
			reasons = append(reasons, reason)
		}
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i].Name < reasons[j].Name })
	return reasons, nil
}

func (s *Store) CreateModule(ctx context.Context, module models.Module) (models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[module.SiteID]; !ok {
		return models.Module{}, store.ErrSiteNotFound
	}
	if s.numberTakenLocked(module) {
		return models.Module{}, store.ErrDuplicateModuleNumber
	}
	if module.OperatorID != nil {
		if _, ok := s.accounts[*module.OperatorID]; !ok {
			return models.Module{}, store.ErrAccountNotFound
		}
	}
	if module.ModuleID == "" {
		module.ModuleID = uuid.NewString()
	}
	module.CreatedAt = s.now()
	module.UpdatedAt = module.CreatedAt
	s.modules[module.ModuleID] = module
	return module, nil
}

func (s *Store) UpdateModule(ctx context.Context, module models.Module) (models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.modules[module.ModuleID]
	if !ok {
		return models.Module{}, store.ErrModuleNotFound
	}
	module.SiteID = current.SiteID
	if s.numberTakenLocked(module) {
		return models.Module{}, store.ErrDuplicateModuleNumber
	}
	if module.OperatorID != nil {
		if _, ok := s.accounts[*module.OperatorID]; !ok {
			return models.Module{}, store.ErrAccountNotFound
		}
	}
	module.CreatedAt = current.CreatedAt
	module.UpdatedAt = s.now()
	s.modules[module.ModuleID] = module
	return module, nil
}

func (s *Store) numberTakenLocked(module models.Module) bool {
	for _, existing := range s.modules {
		if existing.ModuleID != module.ModuleID && existing.SiteID == module.SiteID && existing.Number == module.Number {
			return true
		}
	}
	return false
}

func (s *Store) DeleteModule(ctx context.Context, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[moduleID]; !ok {
		return store.ErrModuleNotFound
	}
	for _, ticket := range s.tickets {
		if ticket.ModuleID != nil && *ticket.ModuleID == moduleID {
			return store.ErrInUse
		}
	}
	delete(s.modules, moduleID)
	return nil
}

func (s *Store) GetModule(ctx context.Context, moduleID string) (models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	module, ok := s.modules[moduleID]
	if !ok {
		return models.Module{}, store.ErrModuleNotFound
	}
	return module, nil
}

func (s *Store) ListModules(ctx context.Context, siteID string) ([]models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	modules := make([]models.Module, 0)
	for _, module := range s.modules {
		if module.SiteID == siteID {
			modules = append(modules, module)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Number < modules[j].Number })
	return modules, nil
}

func (s *Store) AssignModuleOperator(ctx context.Context, moduleID string, operatorID *string) (models.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	module, ok := s.modules[moduleID]
	if !ok {
		return models.Module{}, store.ErrModuleNotFound
	}
	if operatorID != nil {
		if _, ok := s.accounts[*operatorID]; !ok {
			return models.Module{}, store.ErrAccountNotFound
		}
	}
	module.OperatorID = operatorID
	module.UpdatedAt = s.now()
	s.modules[moduleID] = module
	return module, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(account) {
		return models.Account{}, store.ErrDuplicateEmail
	}
	if account.SiteID != nil {
		if _, ok := s.sites[*account.SiteID]; !ok {
			return models.Account{}, store.ErrSiteNotFound
		}
	}
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	account.CreatedAt = s.now()
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.AccountID] = account
	return account, nil
}

func (s *Store) UpdateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.AccountID]
	if !ok {
		return models.Account{}, store.ErrAccountNotFound
	}
	if s.emailTakenLocked(account) {
		return models.Account{}, store.ErrDuplicateEmail
	}
	if account.SiteID != nil {
		if _, ok := s.sites[*account.SiteID]; !ok {
			return models.Account{}, store.ErrSiteNotFound
		}
	}
	account.PasswordHash = current.PasswordHash
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = s.now()
	s.accounts[account.AccountID] = account
	return account, nil
}

func (s *Store) emailTakenLocked(account models.Account) bool {
	for _, existing := range s.accounts {
		if existing.AccountID != account.AccountID && strings.EqualFold(existing.Email, account.Email) {
			return true
		}
	}
	return false
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return models.Account{}, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return models.Account{}, store.ErrAccountNotFound
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (s *Store) SetAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	account.UpdatedAt = s.now()
	s.accounts[accountID] = account
	return nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[input.SiteID]; !ok {
		return models.Ticket{}, store.ErrSiteNotFound
	}
	if _, ok := s.reasons[input.ReasonID]; !ok {
		return models.Ticket{}, store.ErrReasonNotFound
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	seq, err := sequence.NewAllocator(s.codeSourceLocked(input.Prefix)).Next(ctx, input.SiteID, input.ReasonID, createdAt)
	if err != nil {
		return models.Ticket{}, err
	}
	code := sequence.Format(input.Prefix, seq)
	key := sequenceKey(input.SiteID, input.ReasonID, sequence.Day(createdAt), code)
	if _, taken := s.sequences[key]; taken {
		return models.Ticket{}, store.ErrSequenceConflict
	}

	ticket := models.Ticket{
		TicketID:  uuid.NewString(),
		SiteID:    input.SiteID,
		ReasonID:  input.ReasonID,
		Code:      code,
		Sequence:  seq,
		CitizenID: input.CitizenID,
		State:     models.StateWaiting,
		CreatedAt: createdAt,
	}
	if err := s.appendEventLocked(ticket, store.EventTicketCreated); err != nil {
		return models.Ticket{}, err
	}
	s.sequences[key] = ticket.TicketID
	s.tickets[ticket.TicketID] = ticket
	return s.enrichLocked(ticket), nil
}

// codeSourceLocked reads the scope's highest suffix from the issued codes
// that carry prefix. Codes issued under an earlier prefix of the reason do
// not count, so a renamed prefix starts again at 1.
func (s *Store) codeSourceLocked(prefix string) sequence.Source {
	return sequence.SourceFunc(func(ctx context.Context, siteID, reasonID string, from, until time.Time) (int, error) {
		var codes []string
		for _, ticket := range s.tickets {
			if ticket.SiteID != siteID || ticket.ReasonID != reasonID {
				continue
			}
			if ticket.CreatedAt.Before(from) || !ticket.CreatedAt.Before(until) {
				continue
			}
			codes = append(codes, ticket.Code)
		}
		return sequence.MaxSuffix(prefix, codes), nil
	})
}

func sequenceKey(siteID, reasonID, day, code string) string {
	return fmt.Sprintf("%s|%s|%s|%s", siteID, reasonID, day, code)
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return s.enrichLocked(ticket), nil
}

func (s *Store) UpdateTicketState(ctx context.Context, input store.UpdateTicketStateInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if ticket.State != input.From {
		return models.Ticket{}, store.ErrStateChanged
	}
	if input.ModuleID != nil {
		if _, ok := s.modules[*input.ModuleID]; !ok {
			return models.Ticket{}, store.ErrModuleNotFound
		}
		moduleID := *input.ModuleID
		ticket.ModuleID = &moduleID
	}
	if ticket.CalledAt == nil && input.CalledAt != nil {
		calledAt := *input.CalledAt
		ticket.CalledAt = &calledAt
	}
	if ticket.ServedAt == nil && input.ServedAt != nil {
		servedAt := *input.ServedAt
		ticket.ServedAt = &servedAt
	}
	ticket.State = input.To

	if err := s.appendEventLocked(ticket, store.TransitionEventType(input.To)); err != nil {
		return models.Ticket{}, err
	}
	s.tickets[ticket.TicketID] = ticket
	return s.enrichLocked(ticket), nil
}

func (s *Store) ListTicketsByState(ctx context.Context, siteID string, states []models.TicketState) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[models.TicketState]bool, len(states))
	for _, state := range states {
		wanted[state] = true
	}
	return s.collectLocked(func(ticket models.Ticket) bool {
		return ticket.SiteID == siteID && wanted[ticket.State]
	}), nil
}

func (s *Store) ListTicketsByRange(ctx context.Context, siteID string, from, to time.Time) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(func(ticket models.Ticket) bool {
		return ticket.SiteID == siteID && !ticket.CreatedAt.Before(from) && ticket.CreatedAt.Before(to)
	}), nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, store.ErrTicketNotFound
	}
	events := s.events[ticketID]
	out := make([]store.TicketEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) collectLocked(match func(models.Ticket) bool) []models.Ticket {
	tickets := make([]models.Ticket, 0)
	for _, ticket := range s.tickets {
		if match(ticket) {
			tickets = append(tickets, s.enrichLocked(ticket))
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].Code < tickets[j].Code
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets
}

func (s *Store) appendEventLocked(ticket models.Ticket, eventType string) error {
	payload, err := store.TicketEventPayload(ticket)
	if err != nil {
		return err
	}
	var prev *store.TicketEvent
	if events := s.events[ticket.TicketID]; len(events) > 0 {
		prev = &events[len(events)-1]
	}
	event := store.NextTicketEvent(prev, ticket.TicketID, eventType, payload, s.now())
	s.events[ticket.TicketID] = append(s.events[ticket.TicketID], event)
	return nil
}

func (s *Store) enrichLocked(ticket models.Ticket) models.Ticket {
	if reason, ok := s.reasons[ticket.ReasonID]; ok {
		ticket.ReasonName = reason.Name
	}
	if ticket.ModuleID != nil {
		if module, ok := s.modules[*ticket.ModuleID]; ok {
			number := module.Number
			ticket.ModuleName = module.Name
			ticket.ModuleNumber = &number
		}
	}
	return ticket
}

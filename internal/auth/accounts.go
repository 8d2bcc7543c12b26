package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
)

var (
	ErrNotPermitted    = fmt.Errorf("not permitted: %w", store.ErrForbidden)
	ErrAccountDisabled = fmt.Errorf("account disabled: %w", store.ErrForbidden)
	ErrInvalidAccount  = fmt.Errorf("name, a valid email and role are required: %w", store.ErrValidation)
)

type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Account   models.Account `json:"account"`
}

type CreateAccountInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	SiteID   *string
	Active   *bool
}

// UpdateAccountInput changes only the fields that are set. ClearSite moves the
// account to global scope and wins over SiteID.
type UpdateAccountInput struct {
	Name      string
	Email     string
	Role      models.Role
	SiteID    *string
	ClearSite bool
	Active    *bool
}

// Accounts owns login and the rules of who may manage which account.
type Accounts struct {
	store  store.AccountStore
	issuer *Issuer
}

func NewAccounts(accounts store.AccountStore, issuer *Issuer) *Accounts {
	return &Accounts{store: accounts, issuer: issuer}
}

func (a *Accounts) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := a.store.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, store.ErrBadCredentials
		}
		return LoginResult{}, err
	}
	if !CheckPassword(account.PasswordHash, password) {
		return LoginResult{}, store.ErrBadCredentials
	}
	if !account.Active {
		return LoginResult{}, ErrAccountDisabled
	}
	token, expiresAt, err := a.issuer.Issue(PrincipalFor(account))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (a *Accounts) Verify(token string) (Principal, error) {
	return a.issuer.Verify(token)
}

func (a *Accounts) Create(ctx context.Context, actor Principal, input CreateAccountInput) (models.Account, error) {
	account := models.Account{
		Name:   strings.TrimSpace(input.Name),
		Email:  strings.ToLower(strings.TrimSpace(input.Email)),
		Role:   input.Role,
		SiteID: input.SiteID,
		Active: true,
	}
	if input.Active != nil {
		account.Active = *input.Active
	}
	if err := validateAccount(account); err != nil {
		return models.Account{}, err
	}
	if err := CanCreateAccount(actor, account.Role, account.SiteID); err != nil {
		return models.Account{}, err
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		return models.Account{}, err
	}
	account.PasswordHash = hash
	return a.store.CreateAccount(ctx, account)
}

func (a *Accounts) Update(ctx context.Context, actor Principal, accountID string, input UpdateAccountInput) (models.Account, error) {
	current, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, err
	}

	next := current
	if name := strings.TrimSpace(input.Name); name != "" {
		next.Name = name
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		next.Email = strings.ToLower(email)
	}
	if input.Role != "" {
		next.Role = input.Role
	}
	switch {
	case input.ClearSite:
		next.SiteID = nil
	case input.SiteID != nil:
		next.SiteID = input.SiteID
	}
	if input.Active != nil {
		next.Active = *input.Active
	}
	if err := validateAccount(next); err != nil {
		return models.Account{}, err
	}
	if err := CanUpdateAccount(actor, current, next); err != nil {
		return models.Account{}, err
	}
	return a.store.UpdateAccount(ctx, next)
}

func (a *Accounts) Get(ctx context.Context, actor Principal, accountID string) (models.Account, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, err
	}
	if !CanViewAccount(actor, account) {
		return models.Account{}, ErrNotPermitted
	}
	return account, nil
}

// List returns every account the actor may see.
func (a *Accounts) List(ctx context.Context, actor Principal) ([]models.Account, error) {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]models.Account, 0, len(accounts))
	for _, account := range accounts {
		if CanViewAccount(actor, account) {
			visible = append(visible, account)
		}
	}
	return visible, nil
}

// ChangePassword lets a user replace their own password after proving the
// current one. Admins may reset anyone's without it.
func (a *Accounts) ChangePassword(ctx context.Context, actor Principal, accountID, currentPassword, newPassword string) error {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	switch {
	case actor.Role == models.RoleAdmin:
	case actor.AccountID == account.AccountID:
		if !CheckPassword(account.PasswordHash, currentPassword) {
			return store.ErrPasswordInvalid
		}
	default:
		return ErrNotPermitted
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return a.store.SetAccountPassword(ctx, account.AccountID, hash)
}

// CanCreateAccount checks who may open an account with role and home site.
// A supervisor bound to a site only creates accounts in that site; a global
// supervisor creates them anywhere, global ones included.
func CanCreateAccount(actor Principal, role models.Role, siteID *string) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleSupervisor:
		if role == models.RoleAdmin || !actor.covers(siteID) {
			return ErrNotPermitted
		}
		return nil
	default:
		return ErrNotPermitted
	}
}

// CanUpdateAccount checks an update from current to next. Supervisors manage
// the accounts in their scope and never change role or site.
func CanUpdateAccount(actor Principal, current, next models.Account) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleSupervisor:
		if current.Role == models.RoleAdmin || !actor.covers(current.SiteID) {
			return ErrNotPermitted
		}
		if next.Role != current.Role || !sameSite(next.SiteID, current.SiteID) {
			return ErrNotPermitted
		}
		return nil
	default:
		return ErrNotPermitted
	}
}

func CanViewAccount(actor Principal, account models.Account) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSupervisor:
		return account.Role != models.RoleAdmin && actor.covers(account.SiteID)
	default:
		return actor.AccountID == account.AccountID
	}
}

func validateAccount(account models.Account) error {
	if account.Name == "" || !strings.Contains(account.Email, "@") || !account.Role.Valid() {
		return ErrInvalidAccount
	}
	return nil
}

// covers reports whether an account homed at siteID falls inside the actor's
// scope. Only a global actor covers a global account.
func (p Principal) covers(siteID *string) bool {
	if siteID == nil {
		return p.SiteID == nil
	}
	return p.InSite(*siteID)
}

func sameSite(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

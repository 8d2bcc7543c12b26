package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, store.ErrValidation)

	hash, err := HashPassword("secreto")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secreto"))
	assert.False(t, CheckPassword(hash, "otro"))
	assert.False(t, CheckPassword("", "secreto"))
}

func TestIssuerRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	site := "site-1"
	principal := Principal{AccountID: "acc-1", Name: "Ana", Email: "ana@example.com", Role: models.RoleOperator, SiteID: &site}
	token, expiresAt, err := issuer.Issue(principal)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, principal, got)
	assert.True(t, got.InSite("site-1"))
	assert.False(t, got.InSite("site-2"))

	global := Principal{AccountID: "acc-2", Role: models.RoleSupervisor}
	assert.True(t, global.InSite("site-1"))
	assert.True(t, global.InSite("some-site"))
}

func TestIssuerRejects(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.Issue(Principal{AccountID: "acc-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = issuer.Verify(foreign)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	expired, err := NewIssuer("test-secret", time.Minute)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.Issue(Principal{AccountID: "acc-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = issuer.Verify(stale)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{AccountID: "acc-1", Role: models.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = issuer.Verify("garbage")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = NewIssuer("", time.Hour)
	assert.Error(t, err)
}

type accountsFixture struct {
	accounts   *Accounts
	st         *memory.Store
	siteA      string
	siteB      string
	admin      Principal
	supervisor Principal
	operator   models.Account
}

func newAccountsFixture(t *testing.T) *accountsFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()
	a, err := st.CreateSite(ctx, models.Site{Name: "A", Code: "A", Active: true})
	require.NoError(t, err)
	b, err := st.CreateSite(ctx, models.Site{Name: "B", Code: "B", Active: true})
	require.NoError(t, err)
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	f := &accountsFixture{accounts: NewAccounts(st, issuer), st: st, siteA: a.SiteID, siteB: b.SiteID}
	admin, err := f.accounts.Create(ctx, Principal{Role: models.RoleAdmin}, CreateAccountInput{
		Name: "Admin", Email: "Admin@Example.com", Password: "admin123", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	f.admin = PrincipalFor(admin)
	supervisor, err := f.accounts.Create(ctx, f.admin, CreateAccountInput{
		Name: "Sara", Email: "sara@example.com", Password: "sara123", Role: models.RoleSupervisor, SiteID: &f.siteA,
	})
	require.NoError(t, err)
	f.supervisor = PrincipalFor(supervisor)
	f.operator, err = f.accounts.Create(ctx, f.supervisor, CreateAccountInput{
		Name: "Oscar", Email: "oscar@example.com", Password: "oscar123", Role: models.RoleOperator, SiteID: &f.siteA,
	})
	require.NoError(t, err)
	return f
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	result, err := f.accounts.Login(ctx, "admin@example.com", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", result.Account.Email)
	principal, err := f.accounts.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, f.admin.AccountID, principal.AccountID)
	assert.Equal(t, models.RoleAdmin, principal.Role)

	_, err = f.accounts.Login(ctx, "admin@example.com", "wrong-pass")
	assert.ErrorIs(t, err, store.ErrBadCredentials)
	_, err = f.accounts.Login(ctx, "nobody@example.com", "admin123")
	assert.ErrorIs(t, err, store.ErrBadCredentials)

	inactive := false
	_, err = f.accounts.Update(ctx, f.admin, f.operator.AccountID, UpdateAccountInput{Active: &inactive})
	require.NoError(t, err)
	_, err = f.accounts.Login(ctx, "oscar@example.com", "oscar123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestCreateAccountRules(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	operator := PrincipalFor(f.operator)

	cases := []struct {
		name  string
		actor Principal
		input CreateAccountInput
		want  error
	}{
		{"supervisor creates admin", f.supervisor, CreateAccountInput{Name: "X", Email: "x1@example.com", Password: "123456", Role: models.RoleAdmin}, store.ErrForbidden},
		{"supervisor other site", f.supervisor, CreateAccountInput{Name: "X", Email: "x2@example.com", Password: "123456", Role: models.RoleOperator, SiteID: &f.siteB}, store.ErrForbidden},
		{"operator creates", operator, CreateAccountInput{Name: "X", Email: "x3@example.com", Password: "123456", Role: models.RoleOperator, SiteID: &f.siteA}, store.ErrForbidden},
		{"supervisor creates global account", f.supervisor, CreateAccountInput{Name: "X", Email: "x4@example.com", Password: "123456", Role: models.RoleOperator}, store.ErrForbidden},
		{"short password", f.admin, CreateAccountInput{Name: "X", Email: "x5@example.com", Password: "123", Role: models.RoleAdmin}, store.ErrValidation},
		{"long password", f.admin, CreateAccountInput{Name: "X", Email: "x6@example.com", Password: strings.Repeat("a", MaxPasswordLength+1), Role: models.RoleAdmin}, ErrPasswordTooLong},
		{"bad email", f.admin, CreateAccountInput{Name: "X", Email: "nope", Password: "123456", Role: models.RoleAdmin}, store.ErrValidation},
		{"duplicate email", f.admin, CreateAccountInput{Name: "X", Email: "OSCAR@example.com", Password: "123456", Role: models.RoleOperator, SiteID: &f.siteA}, store.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.accounts.Create(ctx, tc.actor, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	created, err := f.accounts.Create(ctx, f.supervisor, CreateAccountInput{
		Name: "Sofia", Email: "sofia@example.com", Password: "123456", Role: models.RoleSupervisor, SiteID: &f.siteA,
	})
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.NotEmpty(t, created.PasswordHash)
}

func TestUpdateAccountRules(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	renamed, err := f.accounts.Update(ctx, f.supervisor, f.operator.AccountID, UpdateAccountInput{Name: "Oscar P"})
	require.NoError(t, err)
	assert.Equal(t, "Oscar P", renamed.Name)

	_, err = f.accounts.Update(ctx, f.supervisor, f.operator.AccountID, UpdateAccountInput{Role: models.RoleSupervisor})
	assert.ErrorIs(t, err, store.ErrForbidden)
	_, err = f.accounts.Update(ctx, f.supervisor, f.operator.AccountID, UpdateAccountInput{SiteID: &f.siteB})
	assert.ErrorIs(t, err, store.ErrForbidden)
	_, err = f.accounts.Update(ctx, f.supervisor, f.admin.AccountID, UpdateAccountInput{Name: "Root"})
	assert.ErrorIs(t, err, store.ErrForbidden)

	moved, err := f.accounts.Update(ctx, f.admin, f.operator.AccountID, UpdateAccountInput{SiteID: &f.siteB})
	require.NoError(t, err)
	assert.Equal(t, f.siteB, *moved.SiteID)

	visible, err := f.accounts.List(ctx, f.supervisor)
	require.NoError(t, err)
	require.Len(t, visible, 1, "the operator moved away, only the supervisor remains")
	assert.Equal(t, f.supervisor.AccountID, visible[0].AccountID)

	_, err = f.accounts.Get(ctx, f.supervisor, f.operator.AccountID)
	assert.ErrorIs(t, err, store.ErrForbidden)
}

func TestGlobalScopeAccounts(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	globalOperator, err := f.accounts.Create(ctx, f.admin, CreateAccountInput{
		Name: "Gil", Email: "gil@example.com", Password: "gil12345", Role: models.RoleOperator,
	})
	require.NoError(t, err)
	assert.Nil(t, globalOperator.SiteID)
	globalSupervisor, err := f.accounts.Create(ctx, f.admin, CreateAccountInput{
		Name: "Gala", Email: "gala@example.com", Password: "gala1234", Role: models.RoleSupervisor,
	})
	require.NoError(t, err)
	assert.Nil(t, globalSupervisor.SiteID)
	global := PrincipalFor(globalSupervisor)
	assert.True(t, global.InSite(f.siteA))
	assert.True(t, global.InSite(f.siteB))

	inB, err := f.accounts.Create(ctx, global, CreateAccountInput{
		Name: "Bea", Email: "bea@example.com", Password: "bea12345", Role: models.RoleOperator, SiteID: &f.siteB,
	})
	require.NoError(t, err)
	_, err = f.accounts.Create(ctx, global, CreateAccountInput{
		Name: "Gus", Email: "gus@example.com", Password: "gus12345", Role: models.RoleOperator,
	})
	require.NoError(t, err)
	_, err = f.accounts.Create(ctx, global, CreateAccountInput{
		Name: "Ada", Email: "ada@example.com", Password: "ada12345", Role: models.RoleAdmin,
	})
	assert.ErrorIs(t, err, store.ErrForbidden)

	_, err = f.accounts.Update(ctx, global, inB.AccountID, UpdateAccountInput{Name: "Beatriz"})
	require.NoError(t, err)
	_, err = f.accounts.Update(ctx, global, f.admin.AccountID, UpdateAccountInput{Name: "Root"})
	assert.ErrorIs(t, err, store.ErrForbidden)
	_, err = f.accounts.Get(ctx, f.supervisor, globalOperator.AccountID)
	assert.ErrorIs(t, err, store.ErrForbidden, "a site supervisor does not manage global accounts")

	visible, err := f.accounts.List(ctx, global)
	require.NoError(t, err)
	assert.Len(t, visible, 6, "every account except the admin")

	_, err = f.accounts.Update(ctx, f.supervisor, f.operator.AccountID, UpdateAccountInput{ClearSite: true})
	assert.ErrorIs(t, err, store.ErrForbidden)
	cleared, err := f.accounts.Update(ctx, f.admin, f.operator.AccountID, UpdateAccountInput{ClearSite: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.SiteID)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	operator := PrincipalFor(f.operator)

	err := f.accounts.ChangePassword(ctx, operator, f.operator.AccountID, "wrong", "nuevo123")
	assert.ErrorIs(t, err, store.ErrPasswordInvalid)
	require.NoError(t, f.accounts.ChangePassword(ctx, operator, f.operator.AccountID, "oscar123", "nuevo123"))
	_, err = f.accounts.Login(ctx, "oscar@example.com", "nuevo123")
	require.NoError(t, err)

	err = f.accounts.ChangePassword(ctx, f.supervisor, f.operator.AccountID, "", "otro1234")
	assert.ErrorIs(t, err, store.ErrForbidden)

	require.NoError(t, f.accounts.ChangePassword(ctx, f.admin, f.operator.AccountID, "", "reset123"))
	_, err = f.accounts.Login(ctx, "oscar@example.com", "reset123")
	require.NoError(t, err)
}

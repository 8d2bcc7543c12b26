package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	issuerName      = "digiturno"
)

var ErrInvalidToken = fmt.Errorf("invalid token: %w", store.ErrUnauthorized)

// Principal is the authenticated caller carried by a bearer token.
type Principal struct {
	AccountID string      `json:"account_id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	SiteID    *string     `json:"site_id"`
}

func PrincipalFor(account models.Account) Principal {
	return Principal{
		AccountID: account.AccountID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		SiteID:    account.SiteID,
	}
}

// InSite reports whether the principal may act on siteID. A principal without
// a home site has global scope.
func (p Principal) InSite(siteID string) bool {
	return p.SiteID == nil || *p.SiteID == siteID
}

type claims struct {
	AccountID string      `json:"account_id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	SiteID    *string     `json:"site_id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) Issue(principal Principal) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		AccountID: principal.AccountID,
		Name:      principal.Name,
		Email:     principal.Email,
		Role:      principal.Role,
		SiteID:    principal.SiteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.AccountID,
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (i *Issuer) Verify(raw string) (Principal, error) {
	parsed := &claims{}
	token, err := jwt.ParseWithClaims(raw, parsed, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if parsed.AccountID == "" || !parsed.Role.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		AccountID: parsed.AccountID,
		Name:      parsed.Name,
		Email:     parsed.Email,
		Role:      parsed.Role,
		SiteID:    parsed.SiteID,
	}, nil
}

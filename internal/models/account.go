package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOperator   Role = "operator"
	RoleSupervisor Role = "supervisor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleSupervisor:
		return true
	default:
		return false
	}
}

func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

type Account struct {
	AccountID    string    `json:"account_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	SiteID       *string   `json:"site_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package models

import "time"

type Site struct {
	SiteID    string    `json:"site_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reason is a visit reason offered by a site's kiosk. Its prefix starts every
// ticket code issued for it.
type Reason struct {
	ReasonID    string    `json:"reason_id"`
	SiteID      string    `json:"site_id"`
	Name        string    `json:"name"`
	Prefix      string    `json:"prefix"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Module is a numbered service counter inside a site.
type Module struct {
	ModuleID   string    `json:"module_id"`
	SiteID     string    `json:"site_id"`
	Name       string    `json:"name"`
	Number     int       `json:"number"`
	Active     bool      `json:"active"`
	OperatorID *string   `json:"operator_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

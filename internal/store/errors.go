package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one of them so
// callers can branch with errors.Is on either level.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInactive          = errors.New("inactive")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

var (
	ErrSiteNotFound    = fmt.Errorf("site %w", ErrNotFound)
	ErrReasonNotFound  = fmt.Errorf("reason %w", ErrNotFound)
	ErrModuleNotFound  = fmt.Errorf("module %w", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
	ErrTicketNotFound  = fmt.Errorf("ticket %w", ErrNotFound)

	ErrSiteInactive   = fmt.Errorf("site %w", ErrInactive)
	ErrReasonInactive = fmt.Errorf("reason %w", ErrInactive)
	ErrModuleInactive = fmt.Errorf("module %w", ErrInactive)

	ErrDuplicateSiteCode     = fmt.Errorf("site code %w", ErrConflict)
	ErrDuplicateModuleNumber = fmt.Errorf("module number %w", ErrConflict)
	ErrDuplicateReasonPrefix = fmt.Errorf("reason prefix %w", ErrConflict)
	ErrDuplicateEmail        = fmt.Errorf("account email %w", ErrConflict)
	ErrSequenceConflict      = fmt.Errorf("ticket sequence %w", ErrConflict)
	ErrInUse                 = fmt.Errorf("record in use: %w", ErrConflict)

	ErrModuleRequired  = fmt.Errorf("module_id is required: %w", ErrValidation)
	ErrStateChanged    = fmt.Errorf("ticket state changed concurrently: %w", ErrInvalidTransition)
	ErrBadCredentials  = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrPasswordInvalid = fmt.Errorf("current password mismatch: %w", ErrValidation)
)

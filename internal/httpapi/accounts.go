package httpapi

import (
	"net/http"
	"strings"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/auth"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
)

type createAccountRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	SiteID   *string `json:"site_id"`
	Active   *bool   `json:"active"`
}

type updateAccountRequest struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	SiteID *string `json:"site_id"`
	Active *bool   `json:"active"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// parseSiteRef trims an optional site reference. An empty string yields nil,
// which on update means global scope (see clearsSite).
func parseSiteRef(w http.ResponseWriter, r *http.Request, raw *string) (*string, bool) {
	if raw == nil {
		return nil, true
	}
	id := strings.TrimSpace(*raw)
	if id == "" {
		return nil, true
	}
	if !isValidUUID(id) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site_id must be a UUID")
		return nil, false
	}
	return &id, true
}

// clearsSite reports whether the request sent site_id as an empty string.
func clearsSite(raw *string) bool {
	return raw != nil && strings.TrimSpace(*raw) == ""
}

func parseRoleField(w http.ResponseWriter, r *http.Request, raw string) (models.Role, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	role, err := models.ParseRole(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "role must be admin, operator or supervisor")
		return "", false
	}
	return role, true
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	accounts, err := h.accounts.List(r.Context(), principal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	principal, _ := principalFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), principal, accountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	role, ok := parseRoleField(w, r, req.Role)
	if !ok {
		return
	}
	if role == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "role is required")
		return
	}
	siteID, ok := parseSiteRef(w, r, req.SiteID)
	if !ok {
		return
	}
	principal, _ := principalFromContext(r.Context())
	account, err := h.accounts.Create(r.Context(), principal, auth.CreateAccountInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
		SiteID:   siteID,
		Active:   req.Active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req updateAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	role, ok := parseRoleField(w, r, req.Role)
	if !ok {
		return
	}
	siteID, ok := parseSiteRef(w, r, req.SiteID)
	if !ok {
		return
	}
	principal, _ := principalFromContext(r.Context())
	account, err := h.accounts.Update(r.Context(), principal, accountID, auth.UpdateAccountInput{
		Name:      req.Name,
		Email:     req.Email,
		Role:      role,
		SiteID:    siteID,
		ClearSite: clearsSite(req.SiteID),
		Active:    req.Active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	principal, _ := principalFromContext(r.Context())
	if err := h.accounts.ChangePassword(r.Context(), principal, accountID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

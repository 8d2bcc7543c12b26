package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
)

const maxPrefixLength = 10

var (
	errSiteFields   = fmt.Errorf("name and code are required: %w", store.ErrValidation)
	errReasonFields = fmt.Errorf("name and a prefix of 1-10 characters are required: %w", store.ErrValidation)
	errModuleFields = fmt.Errorf("name and a number of at least 1 are required: %w", store.ErrValidation)
)

type siteRequest struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Active  *bool  `json:"active"`
}

type reasonRequest struct {
	SiteID      string `json:"site_id"`
	Name        string `json:"name"`
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type moduleRequest struct {
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
	Number *int   `json:"number"`
	Active *bool  `json:"active"`
}

type operatorRequest struct {
	OperatorID *string `json:"operator_id"`
}

func (req siteRequest) apply(site models.Site) models.Site {
	if name := strings.TrimSpace(req.Name); name != "" {
		site.Name = name
	}
	if code := strings.TrimSpace(req.Code); code != "" {
		site.Code = strings.ToUpper(code)
	}
	if req.Address != "" {
		site.Address = strings.TrimSpace(req.Address)
	}
	if req.Phone != "" {
		site.Phone = strings.TrimSpace(req.Phone)
	}
	if req.Active != nil {
		site.Active = *req.Active
	}
	return site
}

func validateSite(site models.Site) error {
	if site.Name == "" || site.Code == "" {
		return errSiteFields
	}
	return nil
}

func (req reasonRequest) apply(reason models.Reason) models.Reason {
	if name := strings.TrimSpace(req.Name); name != "" {
		reason.Name = name
	}
	if prefix := strings.TrimSpace(req.Prefix); prefix != "" {
		reason.Prefix = strings.ToUpper(prefix)
	}
	if req.Description != "" {
		reason.Description = strings.TrimSpace(req.Description)
	}
	if req.Active != nil {
		reason.Active = *req.Active
	}
	return reason
}

func validateReason(reason models.Reason) error {
	n := utf8.RuneCountInString(reason.Prefix)
	if reason.Name == "" || n == 0 || n > maxPrefixLength || strings.ContainsAny(reason.Prefix, " \t") {
		return errReasonFields
	}
	return nil
}

func (req moduleRequest) apply(module models.Module) models.Module {
	if name := strings.TrimSpace(req.Name); name != "" {
		module.Name = name
	}
	if req.Number != nil {
		module.Number = *req.Number
	}
	if req.Active != nil {
		module.Active = *req.Active
	}
	return module
}

func validateModule(module models.Module) error {
	if module.Name == "" || module.Number < 1 {
		return errModuleFields
	}
	return nil
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.catalog.ListSites(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (h *Handler) handleGetSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	site, err := h.catalog.GetSite(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *Handler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	site := req.apply(models.Site{Active: true})
	if err := validateSite(site); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.catalog.CreateSite(r.Context(), site)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req siteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	current, err := h.catalog.GetSite(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.catalog.UpdateSite(r.Context(), req.apply(current))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	if err := h.catalog.DeleteSite(r.Context(), siteID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListModules(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	if _, err := h.catalog.GetSite(r.Context(), siteID); err != nil {
		h.fail(w, r, err)
		return
	}
	modules, err := h.catalog.ListModules(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modules)
}

func (h *Handler) handleGetModule(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := pathID(w, r, "moduleID")
	if !ok {
		return
	}
	module, err := h.catalog.GetModule(r.Context(), moduleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, module)
}

func (h *Handler) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.SiteID = strings.TrimSpace(req.SiteID)
	if !isValidUUID(req.SiteID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site_id must be a UUID")
		return
	}
	if !requireSiteAccess(w, r, req.SiteID) {
		return
	}
	module := req.apply(models.Module{SiteID: req.SiteID, Active: true})
	if err := validateModule(module); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.catalog.CreateModule(r.Context(), module)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusCreated, created)
}

// moduleInSite loads the module named in the path and checks the caller may
// manage its site.
func (h *Handler) moduleInSite(w http.ResponseWriter, r *http.Request) (models.Module, bool) {
	moduleID, ok := pathID(w, r, "moduleID")
	if !ok {
		return models.Module{}, false
	}
	module, err := h.catalog.GetModule(r.Context(), moduleID)
	if err != nil {
		h.fail(w, r, err)
		return models.Module{}, false
	}
	if !requireSiteAccess(w, r, module.SiteID) {
		return models.Module{}, false
	}
	return module, true
}

func (h *Handler) handleUpdateModule(w http.ResponseWriter, r *http.Request) {
	current, ok := h.moduleInSite(w, r)
	if !ok {
		return
	}
	var req moduleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	module := req.apply(current)
	if err := validateModule(module); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.catalog.UpdateModule(r.Context(), module)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	module, ok := h.moduleInSite(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteModule(r.Context(), module.ModuleID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignOperator claims, releases or reassigns a module. Operators only
// claim for themselves and only release their own claim.
func (h *Handler) handleAssignOperator(w http.ResponseWriter, r *http.Request) {
	module, ok := h.moduleInSite(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	principal, _ := principalFromContext(r.Context())

	var operatorID *string
	if req.OperatorID != nil {
		id := strings.TrimSpace(*req.OperatorID)
		if !isValidUUID(id) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "operator_id must be a UUID")
			return
		}
		operatorID = &id
	}

	if principal.Role == models.RoleOperator {
		if operatorID != nil && *operatorID != principal.AccountID {
			writeError(w, r, http.StatusForbidden, "access_denied", "operators can only claim modules for themselves")
			return
		}
		if operatorID == nil && module.OperatorID != nil && *module.OperatorID != principal.AccountID {
			writeError(w, r, http.StatusForbidden, "access_denied", "module is claimed by another operator")
			return
		}
	}

	if operatorID != nil {
		account, err := h.accounts.Get(r.Context(), principal, *operatorID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !account.Active {
			h.fail(w, r, fmt.Errorf("account %w", store.ErrInactive))
			return
		}
		if principal.Role != models.RoleAdmin && account.SiteID != nil && *account.SiteID != module.SiteID {
			writeError(w, r, http.StatusForbidden, "access_denied", "operator belongs to another site")
			return
		}
	}

	updated, err := h.catalog.AssignModuleOperator(r.Context(), module.ModuleID, operatorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleListReasons(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	if _, err := h.catalog.GetSite(r.Context(), siteID); err != nil {
		h.fail(w, r, err)
		return
	}
	reasons, err := h.catalog.ListReasons(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reasons)
}

func (h *Handler) handleGetReason(w http.ResponseWriter, r *http.Request) {
	reasonID, ok := pathID(w, r, "reasonID")
	if !ok {
		return
	}
	reason, err := h.catalog.GetReason(r.Context(), reasonID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reason)
}

func (h *Handler) handleCreateReason(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.SiteID = strings.TrimSpace(req.SiteID)
	if !isValidUUID(req.SiteID) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site_id must be a UUID")
		return
	}
	if !requireSiteAccess(w, r, req.SiteID) {
		return
	}
	reason := req.apply(models.Reason{SiteID: req.SiteID, Active: true})
	if err := validateReason(reason); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.catalog.CreateReason(r.Context(), reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) reasonInSite(w http.ResponseWriter, r *http.Request) (models.Reason, bool) {
	reasonID, ok := pathID(w, r, "reasonID")
	if !ok {
		return models.Reason{}, false
	}
	reason, err := h.catalog.GetReason(r.Context(), reasonID)
	if err != nil {
		h.fail(w, r, err)
		return models.Reason{}, false
	}
	if !requireSiteAccess(w, r, reason.SiteID) {
		return models.Reason{}, false
	}
	return reason, true
}

func (h *Handler) handleUpdateReason(w http.ResponseWriter, r *http.Request) {
	current, ok := h.reasonInSite(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reason := req.apply(current)
	if err := validateReason(reason); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.catalog.UpdateReason(r.Context(), reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteReason(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.reasonInSite(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteReason(r.Context(), reason.ReasonID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.flushCatalog()
	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/auth"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/hub"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/ticketing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type Handler struct {
	tickets  *ticketing.Service
	catalog  store.CatalogStore
	accounts *auth.Accounts
	hub      *hub.Hub
	limiter  *RateLimiter

	catalogCache *cache.Cache
	cacheTTL     time.Duration
}

type Options struct {
	RateLimit       RateLimitConfig
	CatalogCacheTTL time.Duration
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(tickets *ticketing.Service, catalog store.CatalogStore, accounts *auth.Accounts, realtime *hub.Hub, options Options) *Handler {
	return &Handler{
		tickets:      tickets,
		catalog:      catalog,
		accounts:     accounts,
		hub:          realtime,
		limiter:      NewRateLimiter(options.RateLimit),
		catalogCache: cache.New(options.CatalogCacheTTL, 2*options.CatalogCacheTTL+time.Minute),
		cacheTTL:     options.CatalogCacheTTL,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", expvar.Handler())
	r.Handle("/realtime/*", h.realtimeHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.limiter.Middleware)
		r.Use(h.authenticate)

		r.Post("/auth/login", h.handleLogin)
		r.With(requireAuth).Get("/auth/verify", h.handleVerify)

		r.Route("/sites", func(r chi.Router) {
			r.With(h.cached).Get("/", h.handleListSites)
			r.With(h.require(permissionSitesWrite)).Post("/", h.handleCreateSite)
			r.Route("/{siteID}", func(r chi.Router) {
				r.With(h.cached).Get("/", h.handleGetSite)
				r.With(h.cached).Get("/modules", h.handleListModules)
				r.With(h.cached).Get("/reasons", h.handleListReasons)
				r.With(h.require(permissionSitesWrite)).Put("/", h.handleUpdateSite)
				r.With(h.require(permissionSitesWrite)).Delete("/", h.handleDeleteSite)
			})
		})

		r.Route("/modules", func(r chi.Router) {
			r.With(h.require(permissionCatalogWrite)).Post("/", h.handleCreateModule)
			r.Get("/{moduleID}", h.handleGetModule)
			r.With(h.require(permissionCatalogWrite)).Put("/{moduleID}", h.handleUpdateModule)
			r.With(h.require(permissionCatalogWrite)).Delete("/{moduleID}", h.handleDeleteModule)
			r.With(h.require(permissionModulesClaim)).Put("/{moduleID}/operator", h.handleAssignOperator)
		})

		r.Route("/reasons", func(r chi.Router) {
			r.With(h.require(permissionCatalogWrite)).Post("/", h.handleCreateReason)
			r.Get("/{reasonID}", h.handleGetReason)
			r.With(h.require(permissionCatalogWrite)).Put("/{reasonID}", h.handleUpdateReason)
			r.With(h.require(permissionCatalogWrite)).Delete("/{reasonID}", h.handleDeleteReason)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.With(h.require(permissionAccountsManage)).Get("/", h.handleListAccounts)
			r.With(h.require(permissionAccountsManage)).Post("/", h.handleCreateAccount)
			r.With(h.require(permissionAccountsManage)).Get("/{accountID}", h.handleGetAccount)
			r.With(h.require(permissionAccountsManage)).Put("/{accountID}", h.handleUpdateAccount)
			r.With(requireAuth).Put("/{accountID}/password", h.handleChangePassword)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.With(h.limiter.SiteMiddleware).Post("/", h.handleCreateTicket)
			r.With(h.limiter.SiteMiddleware).Get("/active/site/{siteID}", h.handleActiveTickets)
			r.With(h.require(permissionTicketsOperate)).Get("/site/{siteID}", h.handleTicketsByDate)
			r.With(h.require(permissionTicketsOperate)).Get("/{ticketID}", h.handleGetTicket)
			r.With(h.require(permissionTicketsOperate)).Get("/{ticketID}/events", h.handleTicketEvents)
			r.With(h.require(permissionTicketsOperate)).Put("/{ticketID}/state", h.handleTransitionTicket)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// fail writes err through mapError. Unmapped errors are logged since the
// client only sees internal_error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("internal error method=%s path=%s request_id=%s err=%v", r.Method, r.URL.Path, requestIDFromRequest(r), err)
	}
	writeError(w, r, status, code, msg)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrSiteNotFound):
		return http.StatusNotFound, "site_not_found", "site not found"
	case errors.Is(err, store.ErrReasonNotFound):
		return http.StatusNotFound, "reason_not_found", "reason not found"
	case errors.Is(err, store.ErrModuleNotFound):
		return http.StatusNotFound, "module_not_found", "module not found"
	case errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found", "account not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, store.ErrSiteInactive):
		return http.StatusConflict, "site_inactive", "site is inactive"
	case errors.Is(err, store.ErrReasonInactive):
		return http.StatusConflict, "reason_inactive", "reason is inactive"
	case errors.Is(err, store.ErrModuleInactive):
		return http.StatusConflict, "module_inactive", "module is inactive"
	case errors.Is(err, store.ErrInactive):
		return http.StatusConflict, "inactive", "record is inactive"
	case errors.Is(err, store.ErrModuleRequired):
		return http.StatusBadRequest, "module_required", "module_id is required for this state"
	case errors.Is(err, store.ErrPasswordInvalid):
		return http.StatusBadRequest, "invalid_password", "current password is incorrect"
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrStateChanged):
		return http.StatusConflict, "state_changed", "ticket state changed, reload and retry"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, store.ErrDuplicateSiteCode):
		return http.StatusConflict, "duplicate_site_code", "site code already exists"
	case errors.Is(err, store.ErrDuplicateReasonPrefix):
		return http.StatusConflict, "duplicate_prefix", "reason prefix already exists in this site"
	case errors.Is(err, store.ErrDuplicateModuleNumber):
		return http.StatusConflict, "duplicate_module_number", "module number already exists in this site"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrInUse):
		return http.StatusConflict, "in_use", "record is still referenced"
	case errors.Is(err, store.ErrSequenceConflict):
		return http.StatusConflict, "sequence_conflict", "ticket number taken, retry"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "conflict"
	case errors.Is(err, store.ErrBadCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, auth.ErrAccountDisabled):
		return http.StatusForbidden, "account_disabled", "account is disabled"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// pathID reads a chi URL param and writes 400 when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, name))
	if !isValidUUID(id) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", name+" must be a UUID")
		return "", false
	}
	return id, true
}

// echoRequestID returns the request id to the caller so logs and client
// reports can be matched.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, requestIDFromRequest(r))
		next.ServeHTTP(w, r)
	})
}

func requestIDFromRequest(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestIDFromRequest(r),
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/auth"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/models"
)

type authContextKey struct{}

type permission string

const (
	permissionSitesWrite     permission = "sites.write"
	permissionCatalogWrite   permission = "catalog.write"
	permissionModulesClaim   permission = "modules.claim"
	permissionTicketsOperate permission = "tickets.operate"
	permissionAccountsManage permission = "accounts.manage"
)

// authenticate attaches the principal of a bearer token when one is sent.
// Requests without a token pass through so public routes keep working; a
// token that fails verification is rejected outright.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := h.accounts.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return auth.Principal{}, false
	}
	principal, ok := value.(auth.Principal)
	return principal, ok
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := principalFromContext(r.Context()); !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) require(perm permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing token")
				return
			}
			if !hasPermission(principal.Role, perm) {
				writeError(w, r, http.StatusForbidden, "access_denied", "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasPermission(role models.Role, perm permission) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleSupervisor:
		switch perm {
		case permissionCatalogWrite, permissionModulesClaim, permissionTicketsOperate, permissionAccountsManage:
			return true
		}
	case models.RoleOperator:
		switch perm {
		case permissionModulesClaim, permissionTicketsOperate:
			return true
		}
	}
	return false
}

// requireSiteAccess lets admins through and binds everyone else to the site
// on their account.
func requireSiteAccess(w http.ResponseWriter, r *http.Request, siteID string) bool {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing token")
		return false
	}
	if principal.Role == models.RoleAdmin {
		return true
	}
	if !principal.InSite(siteID) {
		writeError(w, r, http.StatusForbidden, "access_denied", "site access denied")
		return false
	}
	return true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyResponse struct {
	Valid     bool           `json:"valid"`
	Principal auth.Principal `json:"principal"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		h.fail(w, r, errors.New("principal missing after requireAuth"))
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, Principal: principal})
}

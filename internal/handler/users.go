package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/middleware"
	"github.com/notarydesk/authcore/internal/service"
)

// UsersHandler serves account lookups and admin user management
type UsersHandler struct {
	authService *service.AuthService
	access      *security.AccessService
	logger      *slog.Logger
}

func NewUsersHandler(authService *service.AuthService, access *security.AccessService, logger *slog.Logger) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{authService: authService, access: access, logger: logger}
}

// UsersResponse wraps a user listing
type UsersResponse struct {
	Users []*domain.User `json:"users"`
	Count int            `json:"count"`
}

// Get handles GET /api/users/{id}. Callers that may not see the account get
// 403 whether or not it exists.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	principal := security.Principal{UserID: claims.UserID, Role: claims.Role, PartnerID: claims.PartnerID}

	user, err := h.authService.Me(r.Context(), id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.access.ValidateAccountAccess(principal, user); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if user == nil {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// List handles GET /api/admin/users?role=
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		middleware.WriteError(w, http.StatusBadRequest, "role query parameter is required")
		return
	}

	users, err := h.authService.ListByRole(r.Context(), domain.Role(role))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UsersResponse{Users: users, Count: len(users)})
}

// Update handles PATCH /api/admin/users/{id}
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var upd service.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}

	var actor security.Principal
	if claims != nil {
		actor = security.Principal{UserID: claims.UserID, Role: claims.Role, PartnerID: claims.PartnerID}
	}
	user, err := h.authService.UpdateProfile(r.Context(), actor, id, upd)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Deactivate handles POST /api/admin/users/{id}/deactivate
func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var actor int64
	if claims != nil {
		actor = claims.UserID
	}
	if err := h.authService.Deactivate(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

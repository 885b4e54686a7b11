package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/http/middleware"
	"github.com/finsight/identity-service/internal/http/response"
	"github.com/finsight/identity-service/internal/observability"
	"github.com/finsight/identity-service/internal/repository"
)

type UserHandler struct {
	users repository.UserRepository
}

func NewUserHandler(users repository.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Me returns the profile of the authenticated caller. The gate attaches the
// identity; policy middleware guarantees it is present.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	observability.RecordUserProfileEvent(r.Context(), "read", "success")
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "update_profile", status, time.Since(start))
	}()

	user, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "failure"
		observability.RecordUserProfileEvent(r.Context(), "update", "rejected")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	patch, err := buildProfilePatch(req)
	if err != nil {
		status = "failure"
		observability.RecordUserProfileEvent(r.Context(), "update", "rejected")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if patch.Empty() {
		observability.RecordUserProfileEvent(r.Context(), "update", "noop")
		response.JSON(w, r, http.StatusOK, user)
		return
	}

	if err := h.users.Patch(user.ID, patch); err != nil {
		status = "failure"
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			observability.RecordUserProfileEvent(r.Context(), "update", "duplicate")
			response.Error(w, r, http.StatusConflict, "CONFLICT", "email already registered", nil)
		case errors.Is(err, repository.ErrUserNotFound):
			observability.RecordUserProfileEvent(r.Context(), "update", "missing")
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
		default:
			observability.RecordUserProfileEvent(r.Context(), "update", "failure")
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "update failed", nil)
		}
		return
	}

	updated, err := h.users.FindByID(user.ID)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "update failed", nil)
		return
	}

	observability.Audit(r, "user.profile.updated", "user_id", user.ID)
	observability.RecordUserProfileEvent(r.Context(), "update", "success")
	response.JSON(w, r, http.StatusOK, updated)
}

// GetUser returns any user's profile by id. Role enforcement happens in the
// route policy, not here.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.users.FindByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "lookup failed", nil)
		return
	}
	observability.RecordUserProfileEvent(r.Context(), "admin_read", "success")
	response.JSON(w, r, http.StatusOK, user)
}

func buildProfilePatch(req updateProfileRequest) (domain.UserPatch, error) {
	var patch domain.UserPatch
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return patch, errors.New("name cannot be empty")
		}
		patch.Name = &name
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return patch, errors.New("invalid email address")
		}
		patch.Email = &email
	}
	return patch, nil
}

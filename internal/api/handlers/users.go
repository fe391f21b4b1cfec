// users.go — обработчики /api/v1/users.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/service"
)

type createUserRequest struct {
	Email          string  `json:"email" validate:"required,email,max=255"`
	Password       string  `json:"password" validate:"required,min=8,max=128"`
	FirstName      string  `json:"firstName" validate:"required,min=1,max=100"`
	LastName       string  `json:"lastName" validate:"omitempty,max=100"`
	Role           string  `json:"role" validate:"required,oneof=super_admin organization_admin manager creator viewer"`
	AvatarURL      *string `json:"avatarUrl" validate:"omitempty,url,max=500"`
	OrganizationID string  `json:"organizationId" validate:"omitempty,uuid"`
}

type updateUserRequest struct {
	Email           *string `json:"email" validate:"omitempty,email,max=255"`
	Password        *string `json:"password" validate:"omitempty,min=8,max=128"`
	FirstName       *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName        *string `json:"lastName" validate:"omitempty,max=100"`
	AvatarURL       *string `json:"avatarUrl" validate:"omitempty,url,max=500"`
	Role            *string `json:"role" validate:"omitempty,oneof=super_admin organization_admin manager creator viewer"`
	IsActive        *bool   `json:"isActive"`
	IsEmailVerified *bool   `json:"isEmailVerified"`
}

// CreateUser — POST /api/v1/users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.svc.Users.Create(r.Context(), actor, clientContext(r), service.CreateUserInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           req.Role,
		AvatarURL:      req.AvatarURL,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapUser(user))
}

// ListUsers — GET /api/v1/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var filter service.UserListFilter
	if err := bindQueries(r, map[string]any{
		"organizationId": &filter.OrganizationID,
		"role":           &filter.Role,
		"isActive":       &filter.IsActive,
	}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.svc.Users.List(r.Context(), actor, filter, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapUser))
}

// GetUser — GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	user, err := h.svc.Users.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// UpdateUser — PATCH /api/v1/users/{id}.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.svc.Users.Update(r.Context(), actor, clientContext(r), pathParam(r, "id"), service.UpdateUserInput{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		AvatarURL:       req.AvatarURL,
		Role:            req.Role,
		IsActive:        req.IsActive,
		IsEmailVerified: req.IsEmailVerified,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// DeleteUser — DELETE /api/v1/users/{id}.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Users.Delete(r.Context(), actor, clientContext(r), pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

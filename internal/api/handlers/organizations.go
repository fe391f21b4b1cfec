// organizations.go — обработчики /api/v1/organizations.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/service"
)

type createOrganizationRequest struct {
	Name        string         `json:"name" validate:"required,min=1,max=255"`
	Slug        string         `json:"slug" validate:"required,min=1,max=100"`
	Description *string        `json:"description" validate:"omitempty,max=2000"`
	LogoURL     *string        `json:"logoUrl" validate:"omitempty,url,max=500"`
	Website     *string        `json:"website" validate:"omitempty,url,max=500"`
	Settings    map[string]any `json:"settings"`
}

type updateOrganizationRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	LogoURL     *string `json:"logoUrl" validate:"omitempty,url,max=500"`
	Website     *string `json:"website" validate:"omitempty,url,max=500"`
	IsActive    *bool   `json:"isActive"`
}

type updateSettingsRequest struct {
	Settings map[string]any `json:"settings" validate:"required"`
}

// CreateOrganization — POST /api/v1/organizations.
func (h *APIHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.svc.Organizations.Create(r.Context(), actor, clientContext(r), service.CreateOrganizationInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		LogoURL:     req.LogoURL,
		Website:     req.Website,
		Settings:    req.Settings,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrganization(org))
}

// ListOrganizations — GET /api/v1/organizations.
func (h *APIHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var includeInactive *bool
	if err := bindQuery(r, "includeInactive", &includeInactive); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.svc.Organizations.List(r.Context(), actor, includeInactive != nil && *includeInactive, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapOrganization))
}

// GetOrganization — GET /api/v1/organizations/{id}.
func (h *APIHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	org, err := h.svc.Organizations.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrganization(org))
}

// GetOrganizationBySlug — GET /api/v1/organizations/slug/{slug}.
func (h *APIHandler) GetOrganizationBySlug(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	org, err := h.svc.Organizations.GetBySlug(r.Context(), actor, pathParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrganization(org))
}

// GetOrganizationStatistics — GET /api/v1/organizations/{id}/statistics.
func (h *APIHandler) GetOrganizationStatistics(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Organizations.Statistics(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapStatistics(stats))
}

// UpdateOrganization — PATCH /api/v1/organizations/{id}.
func (h *APIHandler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updateOrganizationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.svc.Organizations.Update(r.Context(), actor, clientContext(r), pathParam(r, "id"), service.UpdateOrganizationInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		LogoURL:     req.LogoURL,
		Website:     req.Website,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrganization(org))
}

// UpdateOrganizationSettings — PATCH /api/v1/organizations/{id}/settings.
// Переданные ключи сливаются с текущими настройками.
func (h *APIHandler) UpdateOrganizationSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updateSettingsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	org, err := h.svc.Organizations.UpdateSettings(r.Context(), actor, clientContext(r), pathParam(r, "id"), req.Settings)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrganization(org))
}

// DeleteOrganization — DELETE /api/v1/organizations/{id}.
func (h *APIHandler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Organizations.Delete(r.Context(), actor, clientContext(r), pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// posts.go — обработчики /api/v1/posts: жизненный цикл поста.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/service"
)

type createPostRequest struct {
	Title       string         `json:"title" validate:"required,min=1,max=255"`
	Content     string         `json:"content" validate:"required,min=1"`
	Platform    string         `json:"platform" validate:"required,oneof=facebook instagram twitter linkedin tiktok youtube other"`
	ScheduledAt *time.Time     `json:"scheduledAt"`
	Metadata    map[string]any `json:"metadata"`
}

type updatePostRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=1,max=255"`
	Content     *string        `json:"content" validate:"omitempty,min=1"`
	Platform    *string        `json:"platform" validate:"omitempty,oneof=facebook instagram twitter linkedin tiktok youtube other"`
	ScheduledAt *time.Time     `json:"scheduledAt"`
	Metadata    map[string]any `json:"metadata"`
	Status      *string        `json:"status" validate:"omitempty,oneof=draft pending_approval approved rejected published archived"`
}

// CreatePost — POST /api/v1/posts.
func (h *APIHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createPostRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	post, err := h.svc.Posts.Create(r.Context(), actor, clientContext(r), service.CreatePostInput{
		Title:       req.Title,
		Content:     req.Content,
		Platform:    req.Platform,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPost(post))
}

// ListPosts — GET /api/v1/posts.
func (h *APIHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var filter service.PostListFilter
	if err := bindQueries(r, map[string]any{
		"organizationId": &filter.OrganizationID,
		"status":         &filter.Status,
		"createdBy":      &filter.CreatedBy,
		"platform":       &filter.Platform,
	}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.svc.Posts.List(r.Context(), actor, filter, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapPost))
}

// GetPost — GET /api/v1/posts/{id}.
func (h *APIHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	post, err := h.svc.Posts.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPost(post))
}

// UpdatePost — PATCH /api/v1/posts/{id}.
// Смена статуса проверяется таблицей переходов.
func (h *APIHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updatePostRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	post, err := h.svc.Posts.Update(r.Context(), actor, clientContext(r), pathParam(r, "id"), service.UpdatePostInput{
		Title:       req.Title,
		Content:     req.Content,
		Platform:    req.Platform,
		ScheduledAt: req.ScheduledAt,
		Metadata:    req.Metadata,
		Status:      req.Status,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPost(post))
}

// DeletePost — DELETE /api/v1/posts/{id}.
func (h *APIHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Posts.Delete(r.Context(), actor, clientContext(r), pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishPost — POST /api/v1/posts/{id}/publish.
func (h *APIHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	post, err := h.svc.Posts.Publish(r.Context(), actor, clientContext(r), pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPost(post))
}

// audit.go — обработчики /api/v1/audit-logs: чтение журнала и очистка по сроку хранения.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/domain/model"
)

type sweepResponse struct {
	Removed int64 `json:"removed"`
}

// ListAuditLogs — GET /api/v1/audit-logs.
// Диапазон startDate/endDate применяется, только если заданы обе границы.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var (
		filter model.AuditFilter
		action *string
	)
	if err := bindQueries(r, map[string]any{
		"organizationId": &filter.OrganizationID,
		"userId":         &filter.UserID,
		"action":         &action,
		"entityType":     &filter.EntityType,
		"entityId":       &filter.EntityID,
		"startDate":      &filter.StartDate,
		"endDate":        &filter.EndDate,
	}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if action != nil {
		a := model.AuditAction(*action)
		filter.Action = &a
	}

	res, err := h.svc.Audit.Query(r.Context(), actor, filter, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapAuditLog))
}

// GetAuditLog — GET /api/v1/audit-logs/{id}.
func (h *APIHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Audit.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAuditLog(entry))
}

// ListEntityAuditLogs — GET /api/v1/audit-logs/entity/{entityType}/{entityId}.
func (h *APIHandler) ListEntityAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.svc.Audit.ByEntity(r.Context(), actor, pathParam(r, "entityType"), pathParam(r, "entityId"), page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapAuditLog))
}

// RecentAuditLogs — GET /api/v1/audit-logs/recent.
func (h *APIHandler) RecentAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var (
		limit          *int
		organizationID *string
	)
	if err := bindQueries(r, map[string]any{"limit": &limit, "organizationId": &organizationID}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	items, err := h.svc.Audit.Recent(r.Context(), actor, organizationID, n)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]auditLogResponse, len(items))
	for i, it := range items {
		out[i] = mapAuditLog(it)
	}
	writeJSON(w, http.StatusOK, listResponse[auditLogResponse]{Items: out})
}

// AuditSummary — GET /api/v1/audit-logs/summary.
func (h *APIHandler) AuditSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var (
		organizationID *string
		start, end     *time.Time
	)
	if err := bindQueries(r, map[string]any{
		"organizationId": &organizationID,
		"startDate":      &start,
		"endDate":        &end,
	}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	counts, err := h.svc.Audit.Summary(r.Context(), actor, organizationID, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]auditSummaryItem, len(counts))
	for i, c := range counts {
		out[i] = auditSummaryItem{Action: string(c.Action), Count: c.Count}
	}
	writeJSON(w, http.StatusOK, listResponse[auditSummaryItem]{Items: out})
}

// SweepAuditLogs — POST /api/v1/audit-logs/retention/sweep.
// Удаляет записи старше срока хранения; доступ ограничен маршрутом.
func (h *APIHandler) SweepAuditLogs(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Audit.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Removed: removed})
}

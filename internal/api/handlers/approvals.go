// approvals.go — обработчики /api/v1/approvals: workflow согласования постов.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/domain/model"
)

type createWorkflowRequest struct {
	PostID      string   `json:"postId" validate:"required,uuid"`
	ApproverIDs []string `json:"approverIds" validate:"required,min=1,max=20,dive,uuid"`
}

type decisionRequest struct {
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// CreateWorkflow — POST /api/v1/approvals/workflows.
// Порядок approverIds задаёт порядок шагов.
func (h *APIHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createWorkflowRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.svc.Approvals.CreateWorkflow(r.Context(), actor, clientContext(r), req.PostID, req.ApproverIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapWorkflow(view))
}

// ListWorkflows — GET /api/v1/approvals.
func (h *APIHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var status, organizationID *string
	if err := bindQueries(r, map[string]any{"status": &status, "organizationId": &organizationID}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	views, err := h.svc.Approvals.ListWorkflows(r.Context(), actor, status, organizationID, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapWorkflowList(views))
}

// ListMyApprovals — GET /api/v1/approvals/my-approvals.
// stepStatus фильтрует по статусу шага текущего пользователя.
func (h *APIHandler) ListMyApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var stepStatus *string
	if err := bindQuery(r, "stepStatus", &stepStatus); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	views, err := h.svc.Approvals.ListWorkflowsForApprover(r.Context(), actor, stepStatus, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapWorkflowList(views))
}

// GetWorkflow — GET /api/v1/approvals/{id}.
func (h *APIHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Approvals.GetWorkflowStatus(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapWorkflow(view))
}

// ApproveStep — POST /api/v1/approvals/{id}/approve.
func (h *APIHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// RejectStep — POST /api/v1/approvals/{id}/reject.
func (h *APIHandler) RejectStep(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

// decide выполняет решение по текущему шагу. Тело запроса необязательно.
func (h *APIHandler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if r.ContentLength != 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	var (
		view *model.WorkflowView
		err  error
	)
	if approve {
		view, err = h.svc.Approvals.Approve(r.Context(), actor, clientContext(r), pathParam(r, "id"), req.Comment)
	} else {
		view, err = h.svc.Approvals.Reject(r.Context(), actor, clientContext(r), pathParam(r, "id"), req.Comment)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapWorkflow(view))
}

// CancelWorkflow — POST /api/v1/approvals/{id}/cancel.
func (h *APIHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Approvals.Cancel(r.Context(), actor, clientContext(r), pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapWorkflow(view))
}

func mapWorkflowList(views []model.WorkflowView) listResponse[workflowResponse] {
	items := make([]workflowResponse, len(views))
	for i := range views {
		items[i] = mapWorkflow(&views[i])
	}
	return listResponse[workflowResponse]{Items: items}
}

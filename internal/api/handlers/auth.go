// auth.go — обработчики /api/v1/auth: вход, выход, профиль текущего пользователя.
package handlers

import (
	"net/http"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// Login — POST /api/v1/auth/login (публичный).
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.svc.Auth.Login(r.Context(), clientContext(r), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        mapUser(res.User),
	})
}

// Logout — POST /api/v1/auth/logout.
// Токены не отзываются, событие только фиксируется в журнале.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	h.svc.Auth.Logout(r.Context(), actor, clientContext(r))
	w.WriteHeader(http.StatusNoContent)
}

// Me — GET /api/v1/auth/me.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	user, err := h.svc.Auth.Me(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

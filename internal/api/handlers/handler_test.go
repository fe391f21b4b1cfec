package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/service"
)

func testHandler() *APIHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAPIHandler(NewHealthHandler(nil, nil), Services{}, 1<<20, logger)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v (%s)", err, w.Body.String())
	}
	return body.Error.Code
}

func TestWriteServiceError(t *testing.T) {
	h := testHandler()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"валидация", fmt.Errorf("%w: title пуст", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"нет аутентификации", service.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"нет прав", fmt.Errorf("%w: чужой workflow", service.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{"не найдено", fmt.Errorf("пост: %w", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"конфликт", service.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"недопустимый переход", service.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{"недопустимое состояние", service.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{"хранилище", service.ErrStorageUnavailable, http.StatusBadGateway, "STORAGE_UNAVAILABLE"},
		{"таймаут сервиса", service.ErrTimeout, http.StatusServiceUnavailable, "TIMEOUT"},
		{"дедлайн контекста", fmt.Errorf("запрос: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "TIMEOUT"},
		{"неизвестная ошибка", errors.New("pgx: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.writeServiceError(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидалось %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("code = %q, ожидалось %q", code, tt.wantCode)
			}
		})
	}
}

func TestWriteServiceError_InternalMessageHidden(t *testing.T) {
	h := testHandler()
	w := httptest.NewRecorder()
	h.writeServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("password=secret"))

	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("внутренняя ошибка попала в ответ: %s", w.Body.String())
	}
}

func TestDecodeAndValidate(t *testing.T) {
	h := testHandler()

	tests := []struct {
		name    string
		body    string
		wantOK  bool
		wantMsg string
	}{
		{"корректный запрос", `{"title":"Анонс","content":"Текст","platform":"instagram"}`, true, ""},
		{"пустое тело", ``, false, "Пустое тело"},
		{"битый JSON", `{"title":`, false, "Некорректный JSON"},
		{"неизвестное поле", `{"title":"a","content":"b","platform":"other","extra":1}`, false, "Некорректный JSON"},
		{"неизвестная платформа", `{"title":"a","content":"b","platform":"myspace"}`, false, "platform"},
		{"нет заголовка", `{"content":"b","platform":"other"}`, false, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req createPostRequest
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(tt.body))

			ok := h.decodeAndValidate(w, r, &req)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, ожидалось %v (тело: %s)", ok, tt.wantOK, w.Body.String())
			}
			if tt.wantOK {
				return
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantMsg) {
				t.Errorf("сообщение %q не содержит %q", w.Body.String(), tt.wantMsg)
			}
		})
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query   string
		want    model.Page
		wantErr bool
	}{
		{"", model.Page{}, false},
		{"page=3&limit=50", model.Page{Page: 3, Limit: 50}, false},
		{"limit=500", model.Page{Limit: 500}, false},
		{"page=0", model.Page{}, true},
		{"limit=-1", model.Page{}, true},
		{"page=abc", model.Page{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/posts?"+tt.query, nil)
			got, err := pageParams(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("page = %+v, ожидалось %+v", got, tt.want)
			}
		})
	}
}

func TestBindQueries(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/api/v1/audit-logs?entityType=Post&startDate=2026-01-01T00:00:00Z&isActive=false", nil)

	var (
		entityType, missing *string
		start               *time.Time
		isActive            *bool
	)
	err := bindQueries(r, map[string]any{
		"entityType": &entityType,
		"missing":    &missing,
		"startDate":  &start,
		"isActive":   &isActive,
	})
	if err != nil {
		t.Fatalf("bindQueries: %v", err)
	}
	if entityType == nil || *entityType != "Post" {
		t.Errorf("entityType = %v", entityType)
	}
	if missing != nil {
		t.Errorf("отсутствующий параметр должен остаться nil, получено %q", *missing)
	}
	if start == nil || !start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startDate = %v", start)
	}
	if isActive == nil || *isActive {
		t.Errorf("isActive = %v", isActive)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/users?isActive=maybe", nil)
	if err := bindQuery(bad, "isActive", &isActive); err == nil {
		t.Error("ожидалась ошибка для isActive=maybe")
	}
}

func TestClientContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	got := clientContext(r)
	if got.IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q", got.IPAddress)
	}
	if got.UserAgent != "Unknown" {
		t.Errorf("UserAgent = %q, ожидалось Unknown", got.UserAgent)
	}

	r.Header.Set("User-Agent", strings.Repeat("a", 600))
	if ua := clientContext(r).UserAgent; len(ua) != 500 {
		t.Errorf("длина UserAgent = %d, ожидалось 500", len(ua))
	}
}

func TestActorFrom_NoActor(t *testing.T) {
	w := httptest.NewRecorder()
	_, ok := actorFrom(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if ok {
		t.Fatal("ожидалось отсутствие субъекта")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestLicenseRequestToInput(t *testing.T) {
	str := func(s string) *string { return &s }

	in, err := licenseRequest{
		Type:           "royalty_free",
		StartDate:      str("2026-01-01"),
		ExpirationDate: str("2026-12-31"),
		Cost:           str("99.90"),
	}.toInput()
	if err != nil {
		t.Fatalf("toInput: %v", err)
	}
	if in.StartDate == nil || in.StartDate.Format(dateLayout) != "2026-01-01" {
		t.Errorf("StartDate = %v", in.StartDate)
	}
	if in.ExpirationDate == nil || in.ExpirationDate.Month() != time.December {
		t.Errorf("ExpirationDate = %v", in.ExpirationDate)
	}

	if _, err := (licenseRequest{
		Type:           "licensed",
		StartDate:      str("2026-06-01"),
		ExpirationDate: str("2026-05-01"),
	}).toInput(); err == nil {
		t.Error("ожидалась ошибка: срок действия раньше начала")
	}

	if _, err := (licenseRequest{Type: "owned", StartDate: str("01.06.2026")}).toInput(); err == nil {
		t.Error("ожидалась ошибка формата даты")
	}
}

func TestMapWorkflow(t *testing.T) {
	approverA := "aaaaaaaa-0000-0000-0000-000000000001"
	approverB := "aaaaaaaa-0000-0000-0000-000000000002"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	view := &model.WorkflowView{
		Workflow: model.ApprovalWorkflow{
			ID:          "wf-1",
			PostID:      "post-1",
			Status:      model.WorkflowStatusInProgress,
			CurrentStep: 1,
			TotalSteps:  2,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Steps: []model.ApprovalStep{
			{ID: "s1", StepNumber: 1, ApproverID: &approverA, Status: model.StepStatusApproved, CompletedAt: &now},
			{ID: "s2", StepNumber: 2, ApproverID: &approverB, Status: model.StepStatusPending},
			{ID: "s3", StepNumber: 3, Status: model.StepStatusSkipped},
		},
		Approvers: map[string]model.UserSummary{
			approverA: {ID: approverA, DisplayName: "Анна Петрова", Email: "anna@example.com"},
		},
		Post: model.PostRef{ID: "post-1", Title: "Анонс", Status: model.PostStatusPendingApproval, Platform: model.PlatformLinkedIn},
	}

	got := mapWorkflow(view)

	if got.CurrentStep != 1 || got.TotalSteps != 2 {
		t.Errorf("шаги = %d/%d", got.CurrentStep, got.TotalSteps)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("len(steps) = %d", len(got.Steps))
	}
	if got.Steps[0].Approver == nil || got.Steps[0].Approver.DisplayName != "Анна Петрова" {
		t.Errorf("approver шага 1 = %+v", got.Steps[0].Approver)
	}
	if got.Steps[1].Approver != nil {
		t.Errorf("сведений о согласующем шага 2 нет, получено %+v", got.Steps[1].Approver)
	}
	if got.Steps[2].ApproverID != nil {
		t.Errorf("ApproverID шага 3 = %v", got.Steps[2].ApproverID)
	}
	if got.Post.Title != "Анонс" || got.Post.Platform != model.PlatformLinkedIn {
		t.Errorf("post = %+v", got.Post)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	for _, key := range []string{`"currentStep":1`, `"totalSteps":2`, `"displayName":"Анна Петрова"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("JSON не содержит %s: %s", key, raw)
		}
	}
}

type stubChecker struct{ status, msg string }

func (c stubChecker) CheckReady() (string, string) { return c.status, c.msg }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg, store  ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"всё доступно", stubChecker{"ok", ""}, stubChecker{"ok", ""}, http.StatusOK, `"status":"ok"`},
		{"хранилище деградировало", stubChecker{"ok", ""}, stubChecker{"degraded", "медленно"}, http.StatusOK, `"status":"degraded"`},
		{"БД недоступна", stubChecker{"fail", "connection refused"}, stubChecker{"ok", ""}, http.StatusServiceUnavailable, `"status":"fail"`},
		{"checker не задан", nil, stubChecker{"ok", ""}, http.StatusServiceUnavailable, "не инициализирован"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.store)
			w := httptest.NewRecorder()
			h.HealthReady(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидалось %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("тело %s не содержит %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"service":"contentguard"`) {
		t.Errorf("тело: %s", w.Body.String())
	}
}

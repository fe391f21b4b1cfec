// dto.go — модели запросов и ответов HTTP API и их отображение из доменных моделей.
package handlers

import (
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/service"
)

// pageResponse — постраничный ответ.
type pageResponse[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func mapPage[S, T any](p *service.Paginated[S], mapFn func(S) T) pageResponse[T] {
	items := make([]T, len(p.Items))
	for i, it := range p.Items {
		items[i] = mapFn(it)
	}
	return pageResponse[T]{
		Items:      items,
		Total:      p.Total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages,
	}
}

// listResponse — список без общего количества.
type listResponse[T any] struct {
	Items []T `json:"items"`
}

// --- Организации ---

type organizationResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description *string        `json:"description"`
	LogoURL     *string        `json:"logoUrl"`
	Website     *string        `json:"website"`
	IsActive    bool           `json:"isActive"`
	Settings    map[string]any `json:"settings"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func mapOrganization(o *model.Organization) organizationResponse {
	settings := o.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return organizationResponse{
		ID:          o.ID,
		Name:        o.Name,
		Slug:        o.Slug,
		Description: o.Description,
		LogoURL:     o.LogoURL,
		Website:     o.Website,
		IsActive:    o.IsActive,
		Settings:    settings,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

type organizationStatisticsResponse struct {
	OrganizationID    string         `json:"organizationId"`
	Users             int            `json:"users"`
	Assets            int            `json:"assets"`
	PostsByStatus     map[string]int `json:"postsByStatus"`
	WorkflowsByStatus map[string]int `json:"workflowsByStatus"`
}

func mapStatistics(s *model.OrganizationStatistics) organizationStatisticsResponse {
	return organizationStatisticsResponse{
		OrganizationID:    s.OrganizationID,
		Users:             s.Users,
		Assets:            s.Assets,
		PostsByStatus:     s.PostsByStatus,
		WorkflowsByStatus: s.WorkflowsByStatus,
	}
}

// --- Пользователи ---

// userResponse — профиль пользователя; хэш пароля никогда не отдаётся.
type userResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	DisplayName     string     `json:"displayName"`
	Role            string     `json:"role"`
	AvatarURL       *string    `json:"avatarUrl"`
	OrganizationID  string     `json:"organizationId"`
	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		DisplayName:     u.DisplayName(),
		Role:            u.Role,
		AvatarURL:       u.AvatarURL,
		OrganizationID:  u.OrganizationID,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        userResponse `json:"user"`
}

// --- Посты ---

type postResponse struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Platform       string         `json:"platform"`
	Status         string         `json:"status"`
	ScheduledAt    *time.Time     `json:"scheduledAt"`
	PublishedAt    *time.Time     `json:"publishedAt"`
	Metadata       map[string]any `json:"metadata"`
	OrganizationID string         `json:"organizationId"`
	CreatedBy      string         `json:"createdBy"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func mapPost(p *model.Post) postResponse {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return postResponse{
		ID:             p.ID,
		Title:          p.Title,
		Content:        p.Content,
		Platform:       p.Platform,
		Status:         p.Status,
		ScheduledAt:    p.ScheduledAt,
		PublishedAt:    p.PublishedAt,
		Metadata:       metadata,
		OrganizationID: p.OrganizationID,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// --- Согласование ---

type approverResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type stepResponse struct {
	ID          string            `json:"id"`
	StepNumber  int               `json:"stepNumber"`
	ApproverID  *string           `json:"approverId"`
	Approver    *approverResponse `json:"approver"`
	Status      string            `json:"status"`
	Comment     *string           `json:"comment"`
	CompletedAt *time.Time        `json:"completedAt"`
}

type postRefResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

type workflowResponse struct {
	ID             string          `json:"id"`
	PostID         string          `json:"postId"`
	OrganizationID string          `json:"organizationId"`
	Status         string          `json:"status"`
	CurrentStep    int             `json:"currentStep"`
	TotalSteps     int             `json:"totalSteps"`
	StartedAt      *time.Time      `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Steps          []stepResponse  `json:"steps"`
	Post           postRefResponse `json:"post"`
}

func mapWorkflow(v *model.WorkflowView) workflowResponse {
	wf := v.Workflow
	steps := make([]stepResponse, len(v.Steps))
	for i, s := range v.Steps {
		steps[i] = stepResponse{
			ID:          s.ID,
			StepNumber:  s.StepNumber,
			ApproverID:  s.ApproverID,
			Status:      s.Status,
			Comment:     s.Comment,
			CompletedAt: s.CompletedAt,
		}
		if s.ApproverID != nil {
			if u, ok := v.Approvers[*s.ApproverID]; ok {
				steps[i].Approver = &approverResponse{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}
			}
		}
	}
	return workflowResponse{
		ID:             wf.ID,
		PostID:         wf.PostID,
		OrganizationID: wf.OrganizationID,
		Status:         wf.Status,
		CurrentStep:    wf.CurrentStep,
		TotalSteps:     wf.TotalSteps,
		StartedAt:      wf.StartedAt,
		CompletedAt:    wf.CompletedAt,
		CreatedBy:      wf.CreatedBy,
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      wf.UpdatedAt,
		Steps:          steps,
		Post: postRefResponse{
			ID:       v.Post.ID,
			Title:    v.Post.Title,
			Status:   v.Post.Status,
			Platform: v.Post.Platform,
		},
	}
}

// --- Вложения ---

type assetResponse struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OriginalName   string    `json:"originalName"`
	FileName       string    `json:"fileName"`
	URL            string    `json:"url"`
	MimeType       string    `json:"mimeType"`
	Size           int64     `json:"size"`
	Checksum       string    `json:"checksum"`
	Description    *string   `json:"description"`
	OrganizationID string    `json:"organizationId"`
	PostID         *string   `json:"postId"`
	UploadedBy     string    `json:"uploadedBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func mapAsset(a *model.Asset) assetResponse {
	return assetResponse{
		ID:             a.ID,
		Type:           a.Type,
		OriginalName:   a.OriginalName,
		FileName:       a.FileName,
		URL:            a.URL,
		MimeType:       a.MimeType,
		Size:           a.Size,
		Checksum:       a.Checksum,
		Description:    a.Description,
		OrganizationID: a.OrganizationID,
		PostID:         a.PostID,
		UploadedBy:     a.UploadedBy,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// dateLayout — формат дат лицензии.
const dateLayout = time.DateOnly

type licenseResponse struct {
	ID             string    `json:"id"`
	AssetID        string    `json:"assetId"`
	Type           string    `json:"type"`
	Holder         *string   `json:"holder"`
	Provider       *string   `json:"provider"`
	LicenseNumber  *string   `json:"licenseNumber"`
	StartDate      *string   `json:"startDate"`
	ExpirationDate *string   `json:"expirationDate"`
	UsageRights    *string   `json:"usageRights"`
	Restrictions   *string   `json:"restrictions"`
	Terms          *string   `json:"terms"`
	DocumentURL    *string   `json:"documentUrl"`
	Cost           *string   `json:"cost"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func mapLicense(l *model.License) licenseResponse {
	return licenseResponse{
		ID:             l.ID,
		AssetID:        l.AssetID,
		Type:           l.Type,
		Holder:         l.Holder,
		Provider:       l.Provider,
		LicenseNumber:  l.LicenseNumber,
		StartDate:      formatDate(l.StartDate),
		ExpirationDate: formatDate(l.ExpirationDate),
		UsageRights:    l.UsageRights,
		Restrictions:   l.Restrictions,
		Terms:          l.Terms,
		DocumentURL:    l.DocumentURL,
		Cost:           l.Cost,
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

// --- Аудит ---

type auditLogResponse struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	EntityType     string         `json:"entityType"`
	EntityID       *string        `json:"entityId"`
	UserID         *string        `json:"userId"`
	OrganizationID *string        `json:"organizationId"`
	IPAddress      *string        `json:"ipAddress"`
	UserAgent      *string        `json:"userAgent"`
	Metadata       map[string]any `json:"metadata"`
	OldValues      map[string]any `json:"oldValues"`
	NewValues      map[string]any `json:"newValues"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func mapAuditLog(l *model.AuditLog) auditLogResponse {
	return auditLogResponse{
		ID:             l.ID,
		Action:         string(l.Action),
		EntityType:     l.EntityType,
		EntityID:       l.EntityID,
		UserID:         l.UserID,
		OrganizationID: l.OrganizationID,
		IPAddress:      l.IPAddress,
		UserAgent:      l.UserAgent,
		Metadata:       l.Metadata,
		OldValues:      l.OldValues,
		NewValues:      l.NewValues,
		CreatedAt:      l.CreatedAt,
	}
}

type auditSummaryItem struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

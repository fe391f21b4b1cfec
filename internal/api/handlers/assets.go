// assets.go — обработчики /api/v1/assets: загрузка вложений и лицензии.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/service"
)

// multipartMemory — объём multipart-формы, удерживаемый в памяти;
// остальное net/http сбрасывает во временные файлы.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и текстовые поля формы.
const multipartOverhead = 1 << 20

type licenseRequest struct {
	Type           string  `json:"type" validate:"required,oneof=owned licensed creative_commons public_domain royalty_free rights_managed other"`
	Holder         *string `json:"holder" validate:"omitempty,max=255"`
	Provider       *string `json:"provider" validate:"omitempty,max=255"`
	LicenseNumber  *string `json:"licenseNumber" validate:"omitempty,max=255"`
	StartDate      *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	ExpirationDate *string `json:"expirationDate" validate:"omitempty,datetime=2006-01-02"`
	UsageRights    *string `json:"usageRights"`
	Restrictions   *string `json:"restrictions"`
	Terms          *string `json:"terms"`
	DocumentURL    *string `json:"documentUrl" validate:"omitempty,url,max=500"`
	Cost           *string `json:"cost" validate:"omitempty,numeric"`
	Notes          *string `json:"notes"`
}

// UploadAsset — POST /api/v1/assets/upload (multipart/form-data).
// Поля: file (обязательно), type, description, postId.
func (h *APIHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ValidationError(w, fmt.Sprintf("Размер файла превышает %d байт", h.uploadMaxSize))
			return
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	in := service.UploadInput{
		Reader:       file,
		Size:         header.Size,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Type:         strings.TrimSpace(r.FormValue("type")),
	}
	if d := strings.TrimSpace(r.FormValue("description")); d != "" {
		in.Description = &d
	}
	if p := strings.TrimSpace(r.FormValue("postId")); p != "" {
		in.PostID = &p
	}

	asset, err := h.svc.Assets.Upload(r.Context(), actor, clientContext(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapAsset(asset))
}

// ListAssets — GET /api/v1/assets.
func (h *APIHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	page, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var filter service.AssetListFilter
	if err := bindQueries(r, map[string]any{
		"organizationId": &filter.OrganizationID,
		"type":           &filter.Type,
		"postId":         &filter.PostID,
	}); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.svc.Assets.List(r.Context(), actor, filter, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(res, mapAsset))
}

// GetAsset — GET /api/v1/assets/{id}.
func (h *APIHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	asset, err := h.svc.Assets.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAsset(asset))
}

// AttachAsset — PATCH /api/v1/assets/{id}/attach/{postId}.
func (h *APIHandler) AttachAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	asset, err := h.svc.Assets.AttachToPost(r.Context(), actor, clientContext(r), pathParam(r, "id"), pathParam(r, "postId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAsset(asset))
}

// DeleteAsset — DELETE /api/v1/assets/{id}.
func (h *APIHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Assets.Remove(r.Context(), actor, clientContext(r), pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAssetURL — POST /api/v1/assets/{id}/refresh-url.
func (h *APIHandler) RefreshAssetURL(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	asset, err := h.svc.Assets.RefreshURL(r.Context(), actor, clientContext(r), pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAsset(asset))
}

// GetLicense — GET /api/v1/assets/{id}/license.
func (h *APIHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	l, err := h.svc.Assets.GetLicense(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapLicense(l))
}

// PutLicense — PUT /api/v1/assets/{id}/license.
// 201 при добавлении лицензии, 200 при замене существующей.
func (h *APIHandler) PutLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req licenseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	l, created, err := h.svc.Assets.PutLicense(r.Context(), actor, clientContext(r), pathParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, mapLicense(l))
}

// DeleteLicense — DELETE /api/v1/assets/{id}/license.
func (h *APIHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.svc.Assets.DeleteLicense(r.Context(), actor, clientContext(r), pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req licenseRequest) toInput() (service.LicenseInput, error) {
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return service.LicenseInput{}, err
	}
	expiration, err := parseDate("expirationDate", req.ExpirationDate)
	if err != nil {
		return service.LicenseInput{}, err
	}
	if start != nil && expiration != nil && expiration.Before(*start) {
		return service.LicenseInput{}, errors.New("expirationDate не может быть раньше startDate")
	}
	return service.LicenseInput{
		Type:           req.Type,
		Holder:         req.Holder,
		Provider:       req.Provider,
		LicenseNumber:  req.LicenseNumber,
		StartDate:      start,
		ExpirationDate: expiration,
		UsageRights:    req.UsageRights,
		Restrictions:   req.Restrictions,
		Terms:          req.Terms,
		DocumentURL:    req.DocumentURL,
		Cost:           req.Cost,
		Notes:          req.Notes,
	}, nil
}

func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("%s: ожидается дата в формате YYYY-MM-DD", field)
	}
	return &t, nil
}

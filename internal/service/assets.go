// assets.go — вложения и сведения о лицензиях.
// Байты хранятся в объектном хранилище, запись вложения — в PostgreSQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/repository"
	"github.com/bigkaa/contentguard/internal/storage/objectstore"
)

// ObjectStore — объектное хранилище байтов вложений.
// Реализуется objectstore.Store.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*objectstore.PutResult, error)
	PresignedURL(ctx context.Context, objectName string) (string, error)
	Remove(ctx context.Context, objectName string) error
}

var costPattern = regexp.MustCompile(`^\d{1,10}(\.\d{1,2})?$`)

var assetTypes = map[string]bool{
	model.AssetTypeImage:    true,
	model.AssetTypeVideo:    true,
	model.AssetTypeAudio:    true,
	model.AssetTypeText:     true,
	model.AssetTypeDocument: true,
}

var licenseTypes = map[string]bool{
	model.LicenseTypeOwned:           true,
	model.LicenseTypeLicensed:        true,
	model.LicenseTypeCreativeCommons: true,
	model.LicenseTypePublicDomain:    true,
	model.LicenseTypeRoyaltyFree:     true,
	model.LicenseTypeRightsManaged:   true,
	model.LicenseTypeOther:           true,
}

// DetectAssetType определяет тип вложения по MIME-типу.
func DetectAssetType(mimeType string) string {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image":
		return model.AssetTypeImage
	case "video":
		return model.AssetTypeVideo
	case "audio":
		return model.AssetTypeAudio
	case "text":
		return model.AssetTypeText
	}
	return model.AssetTypeDocument
}

// UploadInput — загружаемый файл и его описание.
type UploadInput struct {
	Reader       io.Reader
	Size         int64
	OriginalName string
	MimeType     string
	// Type — тип вложения; пустой — определяется по MIME-типу
	Type        string
	Description *string
	PostID      *string
}

// AssetListFilter — фильтры списка вложений.
type AssetListFilter struct {
	OrganizationID *string
	Type           *string
	PostID         *string
}

// LicenseInput — сведения о лицензии.
type LicenseInput struct {
	Type           string
	Holder         *string
	Provider       *string
	LicenseNumber  *string
	StartDate      *time.Time
	ExpirationDate *time.Time
	UsageRights    *string
	Restrictions   *string
	Terms          *string
	DocumentURL    *string
	Cost           *string
	Notes          *string
}

// AssetService — сервис вложений и лицензий.
type AssetService struct {
	uow     UnitOfWork
	store   ObjectStore
	audit   *AuditService
	maxSize int64
	deps    deps
	logger  *slog.Logger
}

// NewAssetService создаёт сервис вложений. maxSize — предельный размер файла в байтах.
func NewAssetService(uow UnitOfWork, store ObjectStore, audit *AuditService, maxSize int64, logger *slog.Logger) *AssetService {
	return &AssetService{
		uow:     uow,
		store:   store,
		audit:   audit,
		maxSize: maxSize,
		deps:    defaultDeps(),
		logger:  logger.With(slog.String("component", "asset_service")),
	}
}

// Upload сохраняет файл в объектном хранилище и создаёт запись вложения
// в организации субъекта. Контрольная сумма считается по переданным байтам.
func (s *AssetService) Upload(ctx context.Context, actor rbac.Actor, client ClientContext, in UploadInput) (*model.Asset, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}
	if in.Reader == nil || in.OriginalName == "" {
		return nil, validationErr("файл не передан")
	}
	if in.Size > s.maxSize {
		return nil, validationErr("размер файла превышает %d байт", s.maxSize)
	}
	if in.Type == "" {
		in.Type = DetectAssetType(in.MimeType)
	}
	if !assetTypes[in.Type] {
		return nil, validationErr("недопустимый тип вложения: %q", in.Type)
	}
	if in.MimeType == "" {
		in.MimeType = "application/octet-stream"
	}

	repos := s.uow.Repos()
	if in.PostID != nil {
		post, err := repos.Posts.GetByID(ctx, *in.PostID)
		if err != nil {
			return nil, translateRepoErr(err)
		}
		if post.OrganizationID != actor.OrganizationID {
			return nil, ErrNotFound
		}
	}

	id := s.deps.newID()
	objectName := objectstore.ObjectName(actor.OrganizationID, id, in.OriginalName)

	res, err := s.store.Put(ctx, objectName, in.Reader, in.Size, in.MimeType)
	if err != nil {
		if errors.Is(err, objectstore.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	asset := &model.Asset{
		ID:             id,
		Type:           in.Type,
		OriginalName:   in.OriginalName,
		FileName:       path.Base(res.StoragePath),
		StoragePath:    res.StoragePath,
		URL:            res.URL,
		MimeType:       in.MimeType,
		Size:           res.Size,
		Checksum:       res.Checksum,
		Description:    in.Description,
		OrganizationID: actor.OrganizationID,
		PostID:         in.PostID,
		UploadedBy:     actor.UserID,
	}
	if err := repos.Assets.Create(ctx, asset); err != nil {
		s.removeObject(ctx, res.StoragePath)
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditAssetUploaded,
		EntityType:     model.EntityAsset,
		EntityID:       asset.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata: map[string]any{
			"fileName": asset.OriginalName,
			"fileSize": asset.Size,
			"mimeType": asset.MimeType,
		},
		NewValues: assetSnapshot(asset),
	})
	return asset, nil
}

// removeObject удаляет объект; ошибка только логируется.
func (s *AssetService) removeObject(ctx context.Context, objectName string) {
	if err := s.store.Remove(context.WithoutCancel(ctx), objectName); err != nil {
		s.logger.Warn("Не удалось удалить объект из хранилища",
			slog.String("object", objectName),
			slog.String("error", err.Error()),
		)
	}
}

// getAsset загружает вложение и проверяет организацию.
// Вложение другой организации — ErrNotFound.
func (s *AssetService) getAsset(ctx context.Context, actor rbac.Actor, id string) (*model.Asset, error) {
	asset, err := s.uow.Repos().Assets.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, asset.OrganizationID) != nil {
		return nil, ErrNotFound
	}
	return asset, nil
}

// Get возвращает вложение.
func (s *AssetService) Get(ctx context.Context, actor rbac.Actor, id string) (*model.Asset, error) {
	return s.getAsset(ctx, actor, id)
}

// List возвращает страницу вложений, новые первыми.
func (s *AssetService) List(ctx context.Context, actor rbac.Actor, filter AssetListFilter, page model.Page) (*Paginated[*model.Asset], error) {
	if filter.Type != nil && !assetTypes[*filter.Type] {
		return nil, validationErr("недопустимый тип вложения: %q", *filter.Type)
	}
	page = normalizePage(page, DefaultPageLimit)
	filters := repository.AssetFilters{
		OrganizationID: rbac.ScopeOrganization(actor, filter.OrganizationID),
		Type:           filter.Type,
		PostID:         filter.PostID,
	}

	repo := s.uow.Repos().Assets
	items, err := repo.List(ctx, filters, page.Limit, page.Offset())
	if err != nil {
		return nil, translateRepoErr(err)
	}
	total, err := repo.Count(ctx, filters)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return newPaginated(items, total, page), nil
}

// Remove удаляет объект из хранилища (ошибка только логируется)
// и мягко удаляет запись вложения. Удаление записи обязательно.
func (s *AssetService) Remove(ctx context.Context, actor rbac.Actor, client ClientContext, id string) error {
	if err := canWritePosts(actor); err != nil {
		return err
	}
	asset, err := s.getAsset(ctx, actor, id)
	if err != nil {
		return err
	}

	s.removeObject(ctx, asset.StoragePath)

	if err := s.uow.Repos().Assets.SoftDelete(ctx, asset.ID); err != nil {
		return translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditAssetDeleted,
		EntityType:     model.EntityAsset,
		EntityID:       asset.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"fileName": asset.OriginalName},
		OldValues:      assetSnapshot(asset),
	})
	return nil
}

// AttachToPost прикрепляет вложение к посту той же организации.
func (s *AssetService) AttachToPost(ctx context.Context, actor rbac.Actor, client ClientContext, assetID, postID string) (*model.Asset, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}
	asset, err := s.getAsset(ctx, actor, assetID)
	if err != nil {
		return nil, err
	}
	post, err := s.uow.Repos().Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, post.OrganizationID) != nil {
		return nil, ErrNotFound
	}
	if post.OrganizationID != asset.OrganizationID {
		return nil, validationErr("вложение и пост принадлежат разным организациям")
	}

	if err := s.uow.Repos().Assets.AttachToPost(ctx, asset.ID, post.ID); err != nil {
		return nil, translateRepoErr(err)
	}
	asset.PostID = &post.ID
	asset.UpdatedAt = s.deps.now()

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditAssetUploaded,
		EntityType:     model.EntityAsset,
		EntityID:       asset.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"action": "attached_to_post", "postId": post.ID},
	})
	return asset, nil
}

// RefreshURL формирует новую ссылку доступа по сохранённому пути объекта.
func (s *AssetService) RefreshURL(ctx context.Context, actor rbac.Actor, client ClientContext, id string) (*model.Asset, error) {
	asset, err := s.getAsset(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	url, err := s.store.PresignedURL(ctx, asset.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := s.uow.Repos().Assets.UpdateURL(ctx, asset.ID, url); err != nil {
		return nil, translateRepoErr(err)
	}
	asset.URL = url
	asset.UpdatedAt = s.deps.now()

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditAssetAccessed,
		EntityType:     model.EntityAsset,
		EntityID:       asset.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"action": "refresh_url"},
	})
	return asset, nil
}

// GetLicense возвращает лицензию вложения.
func (s *AssetService) GetLicense(ctx context.Context, actor rbac.Actor, assetID string) (*model.License, error) {
	asset, err := s.getAsset(ctx, actor, assetID)
	if err != nil {
		return nil, err
	}
	l, err := s.uow.Repos().Licenses.GetByAssetID(ctx, asset.ID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return l, nil
}

// PutLicense создаёт или заменяет лицензию вложения.
// created = true, если лицензия добавлена впервые.
func (s *AssetService) PutLicense(ctx context.Context, actor rbac.Actor, client ClientContext, assetID string, in LicenseInput) (*model.License, bool, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, false, err
	}
	if err := validateLicense(in); err != nil {
		return nil, false, err
	}
	asset, err := s.getAsset(ctx, actor, assetID)
	if err != nil {
		return nil, false, err
	}

	l := &model.License{
		ID:             s.deps.newID(),
		AssetID:        asset.ID,
		Type:           in.Type,
		Holder:         in.Holder,
		Provider:       in.Provider,
		LicenseNumber:  in.LicenseNumber,
		StartDate:      in.StartDate,
		ExpirationDate: in.ExpirationDate,
		UsageRights:    in.UsageRights,
		Restrictions:   in.Restrictions,
		Terms:          in.Terms,
		DocumentURL:    in.DocumentURL,
		Cost:           in.Cost,
		Notes:          in.Notes,
	}
	created, err := s.uow.Repos().Licenses.Upsert(ctx, l)
	if err != nil {
		return nil, false, translateRepoErr(err)
	}

	action := model.AuditLicenseUpdated
	if created {
		action = model.AuditLicenseAdded
	}
	s.audit.Record(ctx, AuditEvent{
		Action:         action,
		EntityType:     model.EntityLicense,
		EntityID:       l.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"assetId": asset.ID, "type": l.Type},
	})
	return l, created, nil
}

// DeleteLicense удаляет лицензию вложения.
func (s *AssetService) DeleteLicense(ctx context.Context, actor rbac.Actor, client ClientContext, assetID string) error {
	if err := canWritePosts(actor); err != nil {
		return err
	}
	asset, err := s.getAsset(ctx, actor, assetID)
	if err != nil {
		return err
	}
	if err := s.uow.Repos().Licenses.DeleteByAssetID(ctx, asset.ID); err != nil {
		return translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditLicenseUpdated,
		EntityType:     model.EntityLicense,
		EntityID:       asset.ID,
		Actor:          &actor,
		OrganizationID: &asset.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"assetId": asset.ID, "action": "deleted"},
	})
	return nil
}

func validateLicense(in LicenseInput) error {
	if !licenseTypes[in.Type] {
		return validationErr("недопустимый тип лицензии: %q", in.Type)
	}
	if in.Cost != nil && !costPattern.MatchString(*in.Cost) {
		return validationErr("cost должен быть десятичным числом с не более чем двумя знаками после точки")
	}
	if in.StartDate != nil && in.ExpirationDate != nil && in.ExpirationDate.Before(*in.StartDate) {
		return validationErr("expirationDate раньше startDate")
	}
	return nil
}

func assetSnapshot(a *model.Asset) map[string]any {
	snap := map[string]any{
		"id":           a.ID,
		"type":         a.Type,
		"originalName": a.OriginalName,
		"storagePath":  a.StoragePath,
		"mimeType":     a.MimeType,
		"size":         a.Size,
		"checksum":     a.Checksum,
	}
	if a.PostID != nil {
		snap["postId"] = *a.PostID
	}
	return snap
}

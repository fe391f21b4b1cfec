// auth.go — вход по email и паролю, выпуск токена, выход.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/contentguard/internal/auth"
	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/repository"
)

// TokenIssuer — выпуск access-токенов. Реализуется auth.Issuer.
type TokenIssuer interface {
	Issue(sub auth.Subject) (string, time.Time, error)
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *model.User
}

// AuthService — сервис аутентификации.
type AuthService struct {
	uow    UnitOfWork
	tokens TokenIssuer
	audit  *AuditService
	deps   deps
	logger *slog.Logger

	// dummyHash выравнивает время ответа для неизвестного email
	dummyHash []byte
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(uow UnitOfWork, tokens TokenIssuer, audit *AuditService, logger *slog.Logger) (*AuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("contentguard-dummy-password"), BcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		uow:       uow,
		tokens:    tokens,
		audit:     audit,
		deps:      defaultDeps(),
		logger:    logger.With(slog.String("component", "auth_service")),
		dummyHash: dummy,
	}, nil
}

// Login проверяет учётные данные и выпускает токен.
// Неизвестный email, неверный пароль, неактивный пользователь или
// неактивная организация неразличимы для клиента (ErrUnauthorized).
func (s *AuthService) Login(ctx context.Context, client ClientContext, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	repos := s.uow.Repos()

	u, err := repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, translateRepoErr(err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.loginFailed(ctx, client, email, "unknown_email")
		return nil, ErrUnauthorized
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.loginFailed(ctx, client, email, "invalid_password")
		return nil, ErrUnauthorized
	}
	if !u.IsActive {
		s.loginFailed(ctx, client, email, "user_inactive")
		return nil, ErrUnauthorized
	}

	org, err := repos.Organizations.GetByID(ctx, u.OrganizationID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, translateRepoErr(err)
	}
	if org == nil || !org.IsActive {
		s.loginFailed(ctx, client, email, "organization_inactive")
		return nil, ErrUnauthorized
	}

	now := s.deps.now()
	if err := repos.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("Не удалось обновить время входа",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	} else {
		u.LastLoginAt = &now
	}

	token, expiresAt, err := s.tokens.Issue(auth.Subject{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	})
	if err != nil {
		return nil, err
	}

	actor := rbac.Actor{UserID: u.ID, OrganizationID: u.OrganizationID, Role: u.Role}
	s.audit.Record(ctx, AuditEvent{
		Action:     model.AuditLogin,
		EntityType: model.EntityUser,
		EntityID:   u.ID,
		Actor:      &actor,
		Client:     client,
		Metadata:   map[string]any{"email": u.Email},
	})

	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: u}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, client ClientContext, email, reason string) {
	s.audit.Record(ctx, AuditEvent{
		Action:     model.AuditLoginFailed,
		EntityType: model.EntityUser,
		Client:     client,
		Metadata:   map[string]any{"email": email, "reason": reason},
	})
}

// Me возвращает профиль субъекта.
func (s *AuthService) Me(ctx context.Context, actor rbac.Actor) (*model.User, error) {
	u, err := s.uow.Repos().Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return u, nil
}

// Logout записывает событие выхода. Токены не отзываются.
func (s *AuthService) Logout(ctx context.Context, actor rbac.Actor, client ClientContext) {
	s.audit.Record(ctx, AuditEvent{
		Action:     model.AuditLogout,
		EntityType: model.EntityUser,
		EntityID:   actor.UserID,
		Actor:      &actor,
		Client:     client,
	})
}

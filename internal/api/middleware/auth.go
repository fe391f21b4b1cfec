// auth.go — JWT middleware аутентификации и авторизации ContentGuard.
// Проверяет подпись access token по набору ключей (локальному или внешнему JWKS),
// превращает claims в rbac.Actor и помещает его в контекст запроса.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/auth"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
)

// Параметры загрузки внешнего JWKS.
const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 5 * time.Minute
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyActor — субъект запроса (rbac.Actor).
	ContextKeyActor contextKey = "actor"
	// ContextKeyEmail — email из токена.
	ContextKeyEmail contextKey = "email"
)

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	logger *slog.Logger
	issuer string
	leeway time.Duration
}

// NewJWTAuth создаёт middleware, проверяющий токены по локальному
// хранилищу ключей (ключи, которыми подписывает auth.Issuer).
func NewJWTAuth(storage jwkset.Storage, issuer string, leeway time.Duration, logger *slog.Logger) (*JWTAuth, error) {
	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, issuer, leeway, logger), nil
}

// NewRemoteJWTAuth создаёт middleware с JWKS, загружаемым по URL
// с периодическим обновлением.
func NewRemoteJWTAuth(jwksURL, issuer string, leeway time.Duration, logger *slog.Logger) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq — стартуем даже если JWKS ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}
	return NewJWTAuth(storage, issuer, leeway, logger)
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:   kf,
		logger: logger.With(slog.String("component", "jwt_auth")),
		issuer: issuer,
		leeway: leeway,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256) и срок действия,
// формирует rbac.Actor и помещает его в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims := &auth.Claims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				j.logger.Debug("Некорректные claims", slog.String("error", err.Error()))
				apierrors.Unauthorized(w, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
			ctx = context.WithValue(ctx, ContextKeyEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// actorFromClaims проверяет обязательные claims и формирует субъекта.
func actorFromClaims(c *auth.Claims) (rbac.Actor, error) {
	if c.Subject == "" {
		return rbac.Actor{}, fmt.Errorf("отсутствует sub в токене")
	}
	if !rbac.IsValidRole(c.Role) {
		return rbac.Actor{}, fmt.Errorf("неизвестная роль в токене: %q", c.Role)
	}
	if c.OrganizationID == "" {
		return rbac.Actor{}, fmt.Errorf("отсутствует organization_id в токене")
	}
	return rbac.Actor{
		UserID:         c.Subject,
		OrganizationID: c.OrganizationID,
		Role:           c.Role,
	}, nil
}

// --- RBAC middleware helpers ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Отсутствует субъект в контексте")
				return
			}

			if !actor.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAtLeast возвращает middleware, требующий роль не ниже minRole.
func RequireAtLeast(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Отсутствует субъект в контексте")
				return
			}

			if !rbac.AtLeast(actor.Role, minRole) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль не ниже %s", minRole))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ActorFromContext извлекает субъекта из контекста запроса.
func ActorFromContext(ctx context.Context) (rbac.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(rbac.Actor)
	return actor, ok
}

// WithActor помещает субъекта в контекст.
func WithActor(ctx context.Context, actor rbac.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// EmailFromContext возвращает email из токена или пустую строку.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(ContextKeyEmail).(string)
	return email
}

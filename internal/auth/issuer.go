// Пакет auth — выпуск access token (RS256) и публикация набора ключей (JWKS).
// Проверка токенов выполняется в middleware.JWTAuth через keyfunc
// поверх того же хранилища ключей.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
)

// rsaKeyBits — размер генерируемого ключа.
const rsaKeyBits = 2048

// Claims — claims access token ContentGuard.
type Claims struct {
	jwt.RegisteredClaims
	// Email — адрес пользователя
	Email string `json:"email"`
	// Role — роль пользователя
	Role string `json:"role"`
	// OrganizationID — UUID организации пользователя
	OrganizationID string `json:"organization_id"`
}

// Subject — данные пользователя, на которого выпускается токен.
type Subject struct {
	UserID         string
	Email          string
	Role           string
	OrganizationID string
}

// Issuer подписывает токены приватным RSA-ключом и хранит
// публичную часть в jwkset.Storage.
type Issuer struct {
	key     *rsa.PrivateKey
	kid     string
	issuer  string
	ttl     time.Duration
	storage jwkset.Storage
	now     func() time.Time
}

// NewIssuer создаёт Issuer и регистрирует публичный ключ в хранилище JWKS.
func NewIssuer(ctx context.Context, key *rsa.PrivateKey, issuer string, ttl time.Duration) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("ключ подписи не задан")
	}

	kid := KeyID(&key.PublicKey)
	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования JWK: %w", err)
	}

	storage := jwkset.NewMemoryStorage()
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("ошибка записи JWK: %w", err)
	}

	return &Issuer{
		key:     key,
		kid:     kid,
		issuer:  issuer,
		ttl:     ttl,
		storage: storage,
		now:     time.Now,
	}, nil
}

// Issue выпускает подписанный токен и возвращает его вместе со временем истечения.
func (i *Issuer) Issue(sub Subject) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:          sub.Email,
		Role:           sub.Role,
		OrganizationID: sub.OrganizationID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Storage возвращает хранилище публичных ключей для проверки токенов.
func (i *Issuer) Storage() jwkset.Storage {
	return i.storage
}

// Issuer возвращает значение claim iss.
func (i *Issuer) Issuer() string {
	return i.issuer
}

// JWKSHandler отдаёт публичный набор ключей (GET /.well-known/jwks.json).
func (i *Issuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := i.storage.JSONPublic(r.Context())
		if err != nil {
			http.Error(w, "ошибка формирования JWKS", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

// KeyID вычисляет идентификатор ключа: первые 16 hex-символов SHA-256
// от DER-представления публичного ключа.
func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(x509.MarshalPKCS1PublicKey(pub))
	return hex.EncodeToString(sum[:8])
}

// LoadOrGenerateKey читает PEM-файл с приватным RSA-ключом (PKCS#1 или PKCS#8).
// При пустом path генерирует временный ключ: токены перестанут проходить
// проверку после перезапуска.
func LoadOrGenerateKey(path string, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("CG_JWT_SIGNING_KEY_PATH не задан, используется временный ключ подписи")
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключа %s: %w", path, err)
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM разбирает приватный RSA-ключ в формате PEM.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("PEM-блок не найден")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора PKCS#1: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора PKCS#8: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("ключ не является RSA")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("неподдерживаемый тип PEM-блока: %s", block.Type)
	}
}

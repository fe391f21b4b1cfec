package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestIssue_VerifiableWithOwnJWKS(t *testing.T) {
	ctx := context.Background()
	issuer, err := NewIssuer(ctx, testKey(t), "contentguard", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() ошибка: %v", err)
	}

	token, expiresAt, err := issuer.Issue(Subject{
		UserID:         "user-1",
		Email:          "alice@example.com",
		Role:           "manager",
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt = %v, ожидалось время в будущем", expiresAt)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: issuer.Storage()})
	if err != nil {
		t.Fatalf("keyfunc.New() ошибка: %v", err)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, kf.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer("contentguard"),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		t.Fatalf("ParseWithClaims() ошибка: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "manager" || claims.OrganizationID != "org-1" {
		t.Errorf("claims = %+v", claims)
	}
	if parsed.Header["kid"] != KeyID(&issuer.key.PublicKey) {
		t.Errorf("kid = %v, хотели %q", parsed.Header["kid"], KeyID(&issuer.key.PublicKey))
	}
}

func TestIssue_ForeignKeyRejected(t *testing.T) {
	ctx := context.Background()
	own, _ := NewIssuer(ctx, testKey(t), "contentguard", time.Hour)
	foreign, _ := NewIssuer(ctx, testKey(t), "contentguard", time.Hour)

	token, _, err := foreign.Issue(Subject{UserID: "u"})
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}

	kf, _ := keyfunc.New(keyfunc.Options{Storage: own.Storage()})
	if _, err := jwt.Parse(token, kf.Keyfunc); err == nil {
		t.Error("токен, подписанный чужим ключом, прошёл проверку")
	}
}

func TestJWKSHandler(t *testing.T) {
	issuer, err := NewIssuer(context.Background(), testKey(t), "contentguard", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() ошибка: %v", err)
	}

	rec := httptest.NewRecorder()
	issuer.JWKSHandler()(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, хотели 200", rec.Code)
	}
	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if len(body.Keys) != 1 {
		t.Fatalf("ключей = %d, хотели 1", len(body.Keys))
	}
	if _, hasPrivate := body.Keys[0]["d"]; hasPrivate {
		t.Error("JWKS содержит приватную часть ключа")
	}
	if body.Keys[0]["kid"] != KeyID(&issuer.key.PublicKey) {
		t.Errorf("kid = %v", body.Keys[0]["kid"])
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	t.Run("временный ключ", func(t *testing.T) {
		key, err := LoadOrGenerateKey("", logger)
		if err != nil || key == nil {
			t.Fatalf("LoadOrGenerateKey(\"\") = %v, %v", key, err)
		}
	})

	t.Run("PKCS#1 из файла", func(t *testing.T) {
		key := testKey(t)
		path := filepath.Join(t.TempDir(), "key.pem")
		data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		loaded, err := LoadOrGenerateKey(path, logger)
		if err != nil {
			t.Fatalf("LoadOrGenerateKey() ошибка: %v", err)
		}
		if !loaded.Equal(key) {
			t.Error("загруженный ключ отличается от записанного")
		}
	})

	t.Run("PKCS#8", func(t *testing.T) {
		key := testKey(t)
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
		if err != nil {
			t.Fatalf("ParsePrivateKeyPEM() ошибка: %v", err)
		}
		if !parsed.Equal(key) {
			t.Error("разобранный ключ отличается")
		}
	})

	t.Run("мусор", func(t *testing.T) {
		if _, err := ParsePrivateKeyPEM([]byte("not a pem")); err == nil {
			t.Error("ожидалась ошибка")
		}
	})

	t.Run("файл отсутствует", func(t *testing.T) {
		if _, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "missing.pem"), logger); err == nil {
			t.Error("ожидалась ошибка")
		}
	})
}

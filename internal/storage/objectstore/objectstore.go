// Пакет objectstore — хранение содержимого вложений в S3-совместимом
// объектном хранилище (MinIO).
// Запись выполняется потоково с подсчётом SHA-256 на лету,
// доступ к объектам выдаётся через presigned URL с ограниченным сроком жизни.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrTooLarge — объём данных превысил допустимый размер.
var ErrTooLarge = errors.New("размер файла превышает допустимый")

// Config — параметры подключения к хранилищу.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PresignExpiry time.Duration
	// MaxSize — предел размера одного объекта в байтах
	MaxSize int64
}

// PutResult — результат сохранения объекта.
type PutResult struct {
	// StoragePath — имя объекта в бакете
	StoragePath string
	// URL — presigned URL для чтения
	URL string
	// Size — количество записанных байтов
	Size int64
	// Checksum — SHA-256 (hex) записанных байтов
	Checksum string
}

// Store — клиент объектного хранилища.
type Store struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
}

// New создаёт клиент MinIO. Подключение не проверяется до первого запроса.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента объектного хранилища: %w", err)
	}

	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "objectstore")),
	}, nil
}

// EnsureBucket создаёт бакет, если он не существует.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки бакета %s: %w", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("ошибка создания бакета %s: %w", s.cfg.Bucket, err)
	}
	s.logger.Info("Бакет создан", slog.String("bucket", s.cfg.Bucket))
	return nil
}

// Put сохраняет данные из reader под именем objectName.
// size — ожидаемый размер (-1, если неизвестен). SHA-256 считается по
// фактически переданным байтам. При превышении MaxSize объект удаляется
// и возвращается ErrTooLarge.
func (s *Store) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*PutResult, error) {
	if size > s.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d байт, максимум %d", ErrTooLarge, size, s.cfg.MaxSize)
	}

	hasher := sha256.New()
	counter := &countingReader{r: io.LimitReader(reader, s.cfg.MaxSize+1)}
	tee := io.TeeReader(counter, hasher)

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName, tee, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка записи объекта %s: %w", objectName, err)
	}

	if counter.n > s.cfg.MaxSize {
		if rmErr := s.Remove(ctx, objectName); rmErr != nil {
			s.logger.Warn("Не удалось удалить объект сверх лимита",
				slog.String("object", objectName),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("%w: максимум %d байт", ErrTooLarge, s.cfg.MaxSize)
	}

	url, err := s.PresignedURL(ctx, objectName)
	if err != nil {
		return nil, err
	}

	return &PutResult{
		StoragePath: objectName,
		URL:         url,
		Size:        counter.n,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// PresignedURL формирует ссылку для чтения объекта со сроком жизни PresignExpiry.
func (s *Store) PresignedURL(ctx context.Context, objectName string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, objectName, s.cfg.PresignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка формирования ссылки на %s: %w", objectName, err)
	}
	return u.String(), nil
}

// Remove удаляет объект.
func (s *Store) Remove(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("ошибка удаления объекта %s: %w", objectName, err)
	}
	return nil
}

// CheckReady проверяет доступность бакета.
// Возвращает статус ("ok", "fail") и сообщение.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return "fail", fmt.Sprintf("объектное хранилище недоступно: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("бакет %s не найден", s.cfg.Bucket)
	}
	return "ok", "бакет доступен"
}

// ObjectName формирует имя объекта вложения: {organizationID}/assets/{id}{ext}.
// Расширение берётся из исходного имени файла в нижнем регистре.
func ObjectName(organizationID, id, originalName string) string {
	ext := strings.ToLower(filepath.Ext(path.Base(strings.ReplaceAll(originalName, "\\", "/"))))
	if len(ext) > 16 || strings.ContainsAny(ext, " /?#") {
		ext = ""
	}
	return organizationID + "/assets/" + id + ext
}

// countingReader считает прочитанные байты.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

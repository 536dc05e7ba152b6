package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ysocial/internal/config"
	"ysocial/internal/models"
)

// Archive keeps a snapshot of content removed by moderation or account deletion.
type Archive interface {
	ArchivePost(ctx context.Context, post *models.Post, reason string) (string, error)
	ArchiveAccount(ctx context.Context, user *models.UserAccount, posts []*models.Post, reason string) (string, error)
}

// Snapshot is the JSON document written for every archived entity.
type Snapshot struct {
	Kind       string              `json:"kind"`
	Reason     string              `json:"reason"`
	ArchivedAt time.Time           `json:"archivedAt"`
	Post       *models.Post        `json:"post,omitempty"`
	Account    *models.UserAccount `json:"account,omitempty"`
	Posts      []*models.Post      `json:"posts,omitempty"`
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinIOClient struct {
	client objectPutter
	bucket string
	log    *slog.Logger
}

func NewMinIOClient(ctx context.Context, cfg config.MinIO, log *slog.Logger) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки бакета %s: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.BucketName, err)
		}
		log.Info("создан бакет архива", slog.String("bucket", cfg.BucketName))
	}

	return &MinIOClient{client: client, bucket: cfg.BucketName, log: log}, nil
}

func (m *MinIOClient) ArchivePost(ctx context.Context, post *models.Post, reason string) (string, error) {
	name := objectName("posts", post.ID, time.Now())
	return name, m.put(ctx, name, Snapshot{
		Kind:       "post",
		Reason:     reason,
		ArchivedAt: time.Now().UTC(),
		Post:       post,
	})
}

func (m *MinIOClient) ArchiveAccount(ctx context.Context, user *models.UserAccount, posts []*models.Post, reason string) (string, error) {
	name := objectName("accounts", user.ID, time.Now())
	return name, m.put(ctx, name, Snapshot{
		Kind:       "account",
		Reason:     reason,
		ArchivedAt: time.Now().UTC(),
		Account:    user,
		Posts:      posts,
	})
}

func objectName(prefix string, id int64, now time.Time) string {
	return fmt.Sprintf("%s/%d/%d/%02d/%s.json", prefix, id, now.Year(), now.Month(), uuid.New().String())
}

func (m *MinIOClient) put(ctx context.Context, name string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"kind":        snapshot.Kind,
				"archived-at": snapshot.ArchivedAt.Format(time.RFC3339),
			},
		})
	if err != nil {
		return fmt.Errorf("ошибка загрузки в MinIO: %w", err)
	}

	m.log.Debug("снимок сохранён в архив", slog.String("object", name))
	return nil
}

// NopArchive discards snapshots; used when ARCHIVE_ENABLED is off.
type NopArchive struct{}

func (NopArchive) ArchivePost(context.Context, *models.Post, string) (string, error) {
	return "", nil
}

func (NopArchive) ArchiveAccount(context.Context, *models.UserAccount, []*models.Post, string) (string, error) {
	return "", nil
}

package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"ysocial/internal/config"
	"ysocial/internal/metrics"
	"ysocial/internal/models"
	"ysocial/internal/repository"
	"ysocial/internal/storage"
	"ysocial/internal/worker"
)

type testEnv struct {
	svc     *Service
	gw      *repository.MemoryGateway
	repo    *repository.Repository
	pool    *worker.Pool
	metrics *metrics.Metrics
}

func newTestEnvWith(t *testing.T, gw *repository.MemoryGateway, archive storage.Archive) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	pool := worker.NewPool(4, 64, log, m)
	t.Cleanup(func() { _ = pool.Close() })

	repo := repository.NewRepository(gw)
	cfg := &config.Config{PasswordScheme: config.SchemePlain}

	svc, err := NewService(context.Background(), repo, cfg, pool, archive, log, m)
	require.NoError(t, err)

	return &testEnv{svc: svc, gw: gw, repo: repo, pool: pool, metrics: m}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, repository.NewMemoryGateway(), storage.NopArchive{})
}

func (e *testEnv) register(t *testing.T, role models.Role, username string) models.Account {
	t.Helper()

	account, err := e.svc.Auth.Register(context.Background(), RegisterRequest{
		Role:     role,
		Name:     username,
		Email:    username + "@example.com",
		Username: username,
		Password: "secret",
	})
	require.NoError(t, err)
	return account
}

func (e *testEnv) user(t *testing.T, username string) *models.UserAccount {
	t.Helper()
	return e.register(t, models.RoleUser, username).(*models.UserAccount)
}

func (e *testEnv) admin(t *testing.T, username string) *models.AdminAccount {
	t.Helper()
	return e.register(t, models.RoleAdmin, username).(*models.AdminAccount)
}

func (e *testEnv) post(t *testing.T, authorID int64, text string) *models.Post {
	t.Helper()

	post, err := e.svc.Post.CreatePost(context.Background(), CreatePostRequest{AuthorID: authorID, Text: text})
	require.NoError(t, err)
	return post
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, e.pool.Flush(context.Background()))
	require.NoError(t, e.pool.Err())
}

// row returns the stored row with the given id, or nil.
func (e *testEnv) row(t *testing.T, kind repository.Kind, id int64) repository.Record {
	t.Helper()

	rows, err := e.gw.SelectWhere(context.Background(), kind, repository.F("id", id))
	require.NoError(t, err)
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func (e *testEnv) count(t *testing.T, kind repository.Kind, where ...repository.Field) int {
	t.Helper()

	var rows []repository.Record
	var err error
	if len(where) == 0 {
		rows, err = e.gw.SelectAll(context.Background(), kind)
	} else {
		rows, err = e.gw.SelectWhere(context.Background(), kind, where...)
	}
	require.NoError(t, err)
	return len(rows)
}

func int64Col(t *testing.T, rec repository.Record, col string) int64 {
	t.Helper()
	require.NotNil(t, rec)
	v, err := rec.Int64(col)
	require.NoError(t, err)
	return v
}

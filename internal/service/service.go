package service

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"ysocial/internal/config"
	"ysocial/internal/metrics"
	"ysocial/internal/repository"
	"ysocial/internal/storage"
	"ysocial/internal/worker"
)

type Service struct {
	Registry   *Registry
	Auth       AuthService
	User       UserService
	Post       PostService
	Moderation ModerationService
	Export     ExportService
	Tables     TablesService
}

// NewService wires the services over one registry and loads it from the store.
func NewService(ctx context.Context, rep *repository.Repository, cfg *config.Config, pool *worker.Pool,
	archive storage.Archive, log *slog.Logger, m *metrics.Metrics) (*Service, error) {
	hasher, err := NewPasswordHasher(cfg.PasswordScheme)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(rep, pool, archive, log, m)
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}

	validate := validator.New()
	return &Service{
		Registry:   reg,
		Auth:       NewAuthService(reg, hasher, validate),
		User:       NewUserService(reg),
		Post:       NewPostService(reg, validate),
		Moderation: NewModerationService(reg, validate),
		Export:     NewExportService(reg),
		Tables:     NewTablesService(reg, rep.Tables),
	}, nil
}

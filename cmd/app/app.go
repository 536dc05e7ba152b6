package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ysocial/internal/config"
	"ysocial/internal/database"
	"ysocial/internal/metrics"
	"ysocial/internal/repository"
	"ysocial/internal/service"
	"ysocial/internal/storage"
	"ysocial/internal/worker"
)

// App owns everything one process needs: the store connection, the write
// pool and the services loaded over them.
type App struct {
	Config  *config.Config
	Log     *slog.Logger
	Metrics *metrics.Metrics
	Service *service.Service
	Repo    *repository.Repository
	pool    *worker.Pool
	db      *database.DB
	closed  bool
}

func NewLogger(cfg config.Log, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	m := metrics.New()
	a := &App{Config: cfg, Log: log, Metrics: m}

	// connection DB
	var gw repository.Gateway
	if cfg.DB.Driver == config.DriverMemory {
		log.Warn("используется хранилище в памяти, данные не сохранятся после выхода")
		gw = repository.NewMemoryGateway()
	} else {
		db, err := database.ConnectDB(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
		}
		a.db = db
		gw = repository.NewSQLGateway(db.DB)
	}

	// connection MinIO
	var archive storage.Archive = storage.NopArchive{}
	if cfg.MinIO.Enabled {
		client, err := storage.NewMinIOClient(ctx, cfg.MinIO, log)
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("не удалось инициализировать MinIO: %w", err)
		}
		archive = client
	}

	// enabling dependencies
	a.Repo = repository.NewRepository(gw)
	a.pool = worker.NewPool(cfg.Workers.Count, cfg.Workers.QueueSize, log, m)

	services, err := service.NewService(ctx, a.Repo, cfg, a.pool, archive, log, m)
	if err != nil {
		a.pool.Close()
		a.closeDB()
		return nil, err
	}
	a.Service = services

	return a, nil
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	return database.MethodsDB.CloseDB(a.db)
}

// Close waits for queued writes, dumps the metrics and closes the store.
// Errors of writes that failed during the run are returned as well.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	if a.Config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := a.pool.Flush(ctx); err != nil && !errors.Is(err, worker.ErrClosed) {
		a.Log.Warn("не все задачи записи завершены до остановки", slog.Any("error", err))
	}
	if err := a.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Metrics.WriteTextfile(a.Config.MetricsTextfile); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("ошибка при закрытии БД: %w", err))
	}
	return errors.Join(errs...)
}

package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ysocial/internal/config"
)

type MethodsDB interface {
	CloseDB() error
	RunMigrations(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	GetDB() *DB
}

type DB struct {
	*sqlx.DB
	Driver string
	log    *slog.Logger
}

// DSN builds the driver name and connection string for the configured store.
func DSN(cfg config.DB) (string, string, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.Path), nil
	case config.DriverPostgres:
		return "postgres", fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DbHOST,
			cfg.DbPORT,
			cfg.DbUSER,
			cfg.DbPASSWORD,
			cfg.DbNAME,
			cfg.DbSSLMODE,
		), nil
	}
	return "", "", fmt.Errorf("неподдерживаемый драйвер БД: %q", cfg.Driver)
}

func ConnectDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*DB, error) {
	driver, connStr, err := DSN(cfg.DB)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite3" {
		if dir := filepath.Dir(cfg.DB.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("не удалось создать каталог БД %s: %w", dir, err)
			}
		}
		log.Info("подключаемся к БД", slog.String("driver", driver), slog.String("path", cfg.DB.Path))
	} else {
		log.Info("подключаемся к БД", slog.String("driver", driver),
			slog.String("host", cfg.DB.DbHOST), slog.String("dbname", cfg.DB.DbNAME))
	}

	db, err := sqlx.ConnectContext(ctx, driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	if driver == "sqlite3" {
		// a single writer connection avoids SQLITE_BUSY between pool workers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	dbStruct := &DB{DB: db, Driver: driver, log: log}

	if err := dbStruct.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := dbStruct.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("проверка БД не пройдена: %w", err)
	}

	log.Info("успешное подключение к БД", slog.String("driver", driver))
	return dbStruct, nil
}

func (db *DB) CloseDB() error {
	return db.DB.Close()
}

// RunMigrations creates the tables that do not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	for _, stmt := range Schema(db.Driver) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка при выполнении миграций: %w", err)
		}
	}

	db.log.Debug("миграции успешно применены", slog.Int("statements", len(Schema(db.Driver))))
	return nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("подключение к БД не инициализировано")
	}

	return db.PingContext(ctx)
}

func (db *DB) GetDB() *DB {
	return db
}

// Schema returns the CREATE statements for the driver's dialect.
func Schema(driver string) []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS "admins" (
			"id" {{serial}},
			"name" TEXT NOT NULL,
			"email" TEXT NOT NULL UNIQUE,
			"username" TEXT NOT NULL UNIQUE,
			"password" TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" {{serial}},
			"name" TEXT NOT NULL,
			"email" TEXT NOT NULL UNIQUE,
			"username" TEXT NOT NULL UNIQUE,
			"password" TEXT NOT NULL,
			"numFollowers" INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS "posts" (
			"id" {{serial}},
			"userId" INTEGER NOT NULL REFERENCES "users"("id"),
			"content" TEXT NOT NULL,
			"numLikes" INTEGER DEFAULT 0,
			"datePosted" BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS "follows" (
			"followerId" INTEGER NOT NULL REFERENCES "users"("id"),
			"followeeId" INTEGER NOT NULL REFERENCES "users"("id"),
			PRIMARY KEY ("followerId", "followeeId")
		)`,
		`CREATE TABLE IF NOT EXISTS "likes" (
			"userId" INTEGER NOT NULL REFERENCES "users"("id"),
			"postId" INTEGER NOT NULL REFERENCES "posts"("id"),
			PRIMARY KEY ("userId", "postId")
		)`,
		// report targets are weak references: no foreign key, the target may be deleted
		`CREATE TABLE IF NOT EXISTS "user_reports" (
			"id" {{serial}},
			"reason" TEXT NOT NULL,
			"status" TEXT NOT NULL,
			"date" BIGINT NOT NULL,
			"reporterId" INTEGER NOT NULL,
			"reporteeId" INTEGER NOT NULL,
			"adminId" INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS "post_reports" (
			"id" {{serial}},
			"reason" TEXT NOT NULL,
			"status" TEXT NOT NULL,
			"date" BIGINT NOT NULL,
			"reporterId" INTEGER NOT NULL,
			"postId" INTEGER NOT NULL,
			"adminId" INTEGER
		)`,
	}

	for i, s := range stmts {
		stmts[i] = strings.ReplaceAll(s, "{{serial}}", serial)
	}
	return stmts
}

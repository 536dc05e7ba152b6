package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrNotFound        = errors.New("запись не найдена")
	ErrInvalidArgument = errors.New("неверные аргументы запроса")
	ErrPersistence     = errors.New("ошибка хранилища")
)

// Gateway is the key-based CRUD contract over the relational store.
// It owns no business logic.
type Gateway interface {
	// Insert returns the store-assigned id for AutoID tables, 0 otherwise.
	// Inserting an existing relation row is a no-op.
	Insert(ctx context.Context, kind Kind, fields ...Field) (int64, error)
	// Update and Delete return the number of affected rows.
	Update(ctx context.Context, kind Kind, set []Field, where ...Field) (int64, error)
	Delete(ctx context.Context, kind Kind, where ...Field) (int64, error)
	SelectAll(ctx context.Context, kind Kind) ([]Record, error)
	SelectWhere(ctx context.Context, kind Kind, where ...Field) ([]Record, error)
}

// Record is one row keyed by column name.
type Record map[string]any

func (r Record) Int64(column string) (int64, error) {
	switch v := r[column].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	case time.Time:
		return v.Unix(), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("колонка %q: неожиданный тип %T", column, v)
	}
}

func (r Record) String(column string) (string, error) {
	switch v := r[column].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("колонка %q: неожиданный тип %T", column, v)
	}
}

// Time reads an epoch-seconds column.
func (r Record) Time(column string) (time.Time, error) {
	secs, err := r.Int64(column)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

func (r Record) clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

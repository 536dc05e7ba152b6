package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// SQLGateway translates gateway calls into statements over sqlx.
// Statement execution is guarded by a read/write lock: many readers, one writer.
type SQLGateway struct {
	DB   *sqlx.DB
	lock sync.RWMutex
}

func NewSQLGateway(db *sqlx.DB) *SQLGateway {
	return &SQLGateway{DB: db}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func whereClause(where []Field) (string, []any) {
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, w := range where {
		parts = append(parts, quote(w.Column)+" = ?")
		args = append(args, w.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func orderClause(t Table) string {
	cols := make([]string, 0, len(t.Key))
	for _, k := range t.Key {
		cols = append(cols, quote(k))
	}
	return " ORDER BY " + strings.Join(cols, ", ")
}

func buildInsert(t Table, fields []Field) (string, []any) {
	cols := make([]string, 0, len(fields))
	marks := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, quote(f.Column))
		marks = append(marks, "?")
		args = append(args, f.Value)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(string(t.Kind)), strings.Join(cols, ", "), strings.Join(marks, ", "))

	if t.AutoID {
		query += ` RETURNING "id"`
	} else {
		query += " ON CONFLICT DO NOTHING"
	}
	return query, args
}

func buildUpdate(t Table, set []Field, where []Field) (string, []any) {
	parts := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+len(where))
	for _, f := range set {
		parts = append(parts, quote(f.Column)+" = ?")
		args = append(args, f.Value)
	}
	clause, whereArgs := whereClause(where)
	args = append(args, whereArgs...)

	return fmt.Sprintf("UPDATE %s SET %s%s", quote(string(t.Kind)), strings.Join(parts, ", "), clause), args
}

func buildDelete(t Table, where []Field) (string, []any) {
	clause, args := whereClause(where)
	return fmt.Sprintf("DELETE FROM %s%s", quote(string(t.Kind)), clause), args
}

func buildSelect(t Table, where []Field) (string, []any) {
	query := "SELECT * FROM " + quote(string(t.Kind))
	var args []any
	if len(where) > 0 {
		var clause string
		clause, args = whereClause(where)
		query += clause
	}
	return query + orderClause(t), args
}

func (g *SQLGateway) Insert(ctx context.Context, kind Kind, fields ...Field) (int64, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	if err := t.checkInsert(fields); err != nil {
		return 0, err
	}

	query, args := buildInsert(t, fields)
	query = g.DB.Rebind(query)

	g.lock.Lock()
	defer g.lock.Unlock()

	if !t.AutoID {
		if _, err := g.DB.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("ошибка при вставке в %s: %w: %w", kind, ErrPersistence, err)
		}
		return 0, nil
	}

	var id int64
	if err := g.DB.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("ошибка при вставке в %s: %w: %w", kind, ErrPersistence, err)
	}
	return id, nil
}

func (g *SQLGateway) Update(ctx context.Context, kind Kind, set []Field, where ...Field) (int64, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	if err := t.checkFields("update", set); err != nil {
		return 0, err
	}
	if err := t.checkFields("update where", where); err != nil {
		return 0, err
	}

	query, args := buildUpdate(t, set, where)

	g.lock.Lock()
	defer g.lock.Unlock()

	result, err := g.DB.ExecContext(ctx, g.DB.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка при обновлении %s: %w: %w", kind, ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка при проверке обновленных строк: %w: %w", ErrPersistence, err)
	}
	return rowsAffected, nil
}

func (g *SQLGateway) Delete(ctx context.Context, kind Kind, where ...Field) (int64, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	if err := t.checkFields("delete where", where); err != nil {
		return 0, err
	}

	query, args := buildDelete(t, where)

	g.lock.Lock()
	defer g.lock.Unlock()

	result, err := g.DB.ExecContext(ctx, g.DB.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка при удалении из %s: %w: %w", kind, ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка при проверке удаленных строк: %w: %w", ErrPersistence, err)
	}
	return rowsAffected, nil
}

func (g *SQLGateway) SelectAll(ctx context.Context, kind Kind) ([]Record, error) {
	return g.SelectWhere(ctx, kind)
}

func (g *SQLGateway) SelectWhere(ctx context.Context, kind Kind, where ...Field) ([]Record, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		if err := t.checkFields("select where", where); err != nil {
			return nil, err
		}
	}

	query, args := buildSelect(t, where)

	g.lock.RLock()
	defer g.lock.RUnlock()

	rows, err := g.DB.QueryxContext(ctx, g.DB.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении %s: %w: %w", kind, ErrPersistence, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := make(map[string]any)
		if err := rows.MapScan(rec); err != nil {
			return nil, fmt.Errorf("ошибка при чтении строки %s: %w: %w", kind, ErrPersistence, err)
		}
		records = append(records, Record(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка при чтении %s: %w: %w", kind, ErrPersistence, err)
	}

	return records, nil
}

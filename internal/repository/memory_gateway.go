package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryGateway keeps every table in process memory. It follows the same
// contract as SQLGateway and backs ephemeral runs (DB_DRIVER=memory) and tests.
type MemoryGateway struct {
	mu     sync.RWMutex
	rows   map[Kind][]Record
	nextID map[Kind]int64

	// FailOn, when set, is consulted before every operation; a non-nil
	// result is returned as a persistence failure.
	FailOn func(op string, kind Kind) error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		rows:   make(map[Kind][]Record),
		nextID: make(map[Kind]int64),
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case []byte:
		return string(x)
	}
	return v
}

func matches(rec Record, where []Field) bool {
	for _, w := range where {
		if rec[w.Column] != normalize(w.Value) {
			return false
		}
	}
	return true
}

func (g *MemoryGateway) fail(op string, kind Kind) error {
	if g.FailOn == nil {
		return nil
	}
	if err := g.FailOn(op, kind); err != nil {
		return fmt.Errorf("ошибка при выполнении %s %s: %w: %w", op, kind, ErrPersistence, err)
	}
	return nil
}

func (g *MemoryGateway) Insert(_ context.Context, kind Kind, fields ...Field) (int64, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	if err := t.checkInsert(fields); err != nil {
		return 0, err
	}
	if err := g.fail("insert", kind); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec := make(Record, len(t.Columns))
	for _, c := range t.Columns {
		rec[c] = nil
	}
	for _, f := range fields {
		rec[f.Column] = normalize(f.Value)
	}

	if !t.AutoID {
		key := make([]Field, 0, len(t.Key))
		for _, k := range t.Key {
			key = append(key, Field{Column: k, Value: rec[k]})
		}
		for _, existing := range g.rows[kind] {
			if matches(existing, key) {
				return 0, nil
			}
		}
		g.rows[kind] = append(g.rows[kind], rec)
		return 0, nil
	}

	id, _ := rec.Int64("id")
	if id == 0 {
		g.nextID[kind]++
		id = g.nextID[kind]
	} else {
		for _, existing := range g.rows[kind] {
			if existing["id"] == id {
				return 0, fmt.Errorf("ошибка при вставке в %s: %w: дубликат id %d", kind, ErrPersistence, id)
			}
		}
		if id > g.nextID[kind] {
			g.nextID[kind] = id
		}
	}
	rec["id"] = id

	if kind == KindUsers && rec["numFollowers"] == nil {
		rec["numFollowers"] = int64(0)
	}
	if kind == KindPosts && rec["numLikes"] == nil {
		rec["numLikes"] = int64(0)
	}
	if err := g.checkUnique(t, rec); err != nil {
		return 0, err
	}

	g.rows[kind] = append(g.rows[kind], rec)
	return id, nil
}

// checkUnique mirrors the UNIQUE constraints on email and username. Values
// compare exactly, as the SQL stores do.
func (g *MemoryGateway) checkUnique(t Table, rec Record) error {
	if t.Kind != KindUsers && t.Kind != KindAdmins {
		return nil
	}
	for _, existing := range g.rows[t.Kind] {
		for _, col := range []string{"email", "username"} {
			if existing[col] == rec[col] {
				return fmt.Errorf("ошибка при вставке в %s: %w: нарушено ограничение уникальности %s", t.Kind, ErrPersistence, col)
			}
		}
	}
	return nil
}

func (g *MemoryGateway) Update(_ context.Context, kind Kind, set []Field, where ...Field) (int64, error) {
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
	if err := g.fail("update", kind); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var affected int64
	for _, rec := range g.rows[kind] {
		if !matches(rec, where) {
			continue
		}
		for _, f := range set {
			rec[f.Column] = normalize(f.Value)
		}
		affected++
	}
	return affected, nil
}

func (g *MemoryGateway) Delete(_ context.Context, kind Kind, where ...Field) (int64, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	if err := t.checkFields("delete where", where); err != nil {
		return 0, err
	}
	if err := g.fail("delete", kind); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.rows[kind][:0]
	var affected int64
	for _, rec := range g.rows[kind] {
		if matches(rec, where) {
			affected++
			continue
		}
		kept = append(kept, rec)
	}
	g.rows[kind] = kept
	return affected, nil
}

func (g *MemoryGateway) SelectAll(ctx context.Context, kind Kind) ([]Record, error) {
	return g.SelectWhere(ctx, kind)
}

func (g *MemoryGateway) SelectWhere(_ context.Context, kind Kind, where ...Field) ([]Record, error) {
	t, err := lookupTable(kind)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		if err := t.checkFields("select where", where); err != nil {
			return nil, err
		}
	}
	if err := g.fail("select", kind); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Record
	for _, rec := range g.rows[kind] {
		if matches(rec, where) {
			out = append(out, rec.clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range t.Key {
			a, _ := out[i].Int64(k)
			b, _ := out[j].Int64(k)
			if a != b {
				return a < b
			}
		}
		return false
	})
	return out, nil
}

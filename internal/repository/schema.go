package repository

import (
	"fmt"
)

// Kind names an entity table of the store.
type Kind string

const (
	KindAdmins      Kind = "admins"
	KindUsers       Kind = "users"
	KindPosts       Kind = "posts"
	KindFollows     Kind = "follows"
	KindLikes       Kind = "likes"
	KindUserReports Kind = "user_reports"
	KindPostReports Kind = "post_reports"
)

// Table describes the columns the gateway is allowed to touch.
type Table struct {
	Kind     Kind
	Columns  []string
	Required []string
	// AutoID tables get their "id" from the store on insert.
	AutoID bool
	// Key is the primary key, composite for relation tables.
	Key []string
}

var Tables = map[Kind]Table{
	KindAdmins: {
		Kind:     KindAdmins,
		Columns:  []string{"id", "name", "email", "username", "password"},
		Required: []string{"name", "email", "username", "password"},
		AutoID:   true,
		Key:      []string{"id"},
	},
	KindUsers: {
		Kind:     KindUsers,
		Columns:  []string{"id", "name", "email", "username", "password", "numFollowers"},
		Required: []string{"name", "email", "username", "password"},
		AutoID:   true,
		Key:      []string{"id"},
	},
	KindPosts: {
		Kind:     KindPosts,
		Columns:  []string{"id", "userId", "content", "numLikes", "datePosted"},
		Required: []string{"userId", "content", "datePosted"},
		AutoID:   true,
		Key:      []string{"id"},
	},
	KindFollows: {
		Kind:     KindFollows,
		Columns:  []string{"followerId", "followeeId"},
		Required: []string{"followerId", "followeeId"},
		Key:      []string{"followerId", "followeeId"},
	},
	KindLikes: {
		Kind:     KindLikes,
		Columns:  []string{"userId", "postId"},
		Required: []string{"userId", "postId"},
		Key:      []string{"userId", "postId"},
	},
	KindUserReports: {
		Kind:     KindUserReports,
		Columns:  []string{"id", "reason", "status", "date", "reporterId", "reporteeId", "adminId"},
		Required: []string{"reason", "status", "date", "reporterId", "reporteeId"},
		AutoID:   true,
		Key:      []string{"id"},
	},
	KindPostReports: {
		Kind:     KindPostReports,
		Columns:  []string{"id", "reason", "status", "date", "reporterId", "postId", "adminId"},
		Required: []string{"reason", "status", "date", "reporterId", "postId"},
		AutoID:   true,
		Key:      []string{"id"},
	},
}

// Field is one column/value pair of an insert, update or where clause.
type Field struct {
	Column string
	Value  any
}

func F(column string, value any) Field {
	return Field{Column: column, Value: value}
}

func lookupTable(kind Kind) (Table, error) {
	t, ok := Tables[kind]
	if !ok {
		return Table{}, fmt.Errorf("%w: неизвестная таблица %q", ErrInvalidArgument, kind)
	}
	return t, nil
}

func (t Table) hasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

func (t Table) checkFields(op string, fields []Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s %s без колонок", ErrInvalidArgument, op, t.Kind)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !t.hasColumn(f.Column) {
			return fmt.Errorf("%w: колонка %q отсутствует в таблице %s", ErrInvalidArgument, f.Column, t.Kind)
		}
		if seen[f.Column] {
			return fmt.Errorf("%w: колонка %q указана дважды (%s %s)", ErrInvalidArgument, f.Column, op, t.Kind)
		}
		seen[f.Column] = true
	}
	return nil
}

func (t Table) checkInsert(fields []Field) error {
	if err := t.checkFields("insert", fields); err != nil {
		return err
	}
	for _, req := range t.Required {
		found := false
		for _, f := range fields {
			if f.Column == req {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: не задана обязательная колонка %q таблицы %s", ErrInvalidArgument, req, t.Kind)
		}
	}
	return nil
}

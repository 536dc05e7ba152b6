package repository

import (
	"context"
	"fmt"
)

type tablesRepository struct {
	gw Gateway
}

func NewTablesRepository(gw Gateway) TablesRepository {
	return &tablesRepository{gw: gw}
}

// CountRows returns the number of rows in every table of the store.
func (r *tablesRepository) CountRows(ctx context.Context) (map[Kind]int, error) {
	counts := make(map[Kind]int, len(Tables))
	for kind := range Tables {
		records, err := r.gw.SelectAll(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("ошибка при подсчёте строк таблицы %s: %w", kind, err)
		}
		counts[kind] = len(records)
	}
	return counts, nil
}

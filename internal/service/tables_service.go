package service

import (
	"context"

	"ysocial/internal/repository"
)

type TablesService interface {
	// CountRows waits for queued writes, then counts the rows of every table.
	CountRows(ctx context.Context) (map[repository.Kind]int, error)
}

type tablesService struct {
	reg        *Registry
	tablesRepo repository.TablesRepository
}

func NewTablesService(reg *Registry, tablesRepo repository.TablesRepository) TablesService {
	return &tablesService{reg: reg, tablesRepo: tablesRepo}
}

func (t *tablesService) CountRows(ctx context.Context) (map[repository.Kind]int, error) {
	if err := t.reg.Flush(ctx); err != nil {
		return nil, err
	}

	counts, err := t.tablesRepo.CountRows(ctx)
	if err != nil {
		return nil, err
	}

	return counts, nil
}

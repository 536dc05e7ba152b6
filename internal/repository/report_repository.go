package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ysocial/internal/models"
)

type reportRepository struct {
	gw Gateway
}

func NewReportRepository(gw Gateway) ReportRepository {
	return &reportRepository{gw: gw}
}

// reportTable returns the table and target column for a report kind.
func reportTable(kind models.ReportKind) (Kind, string, error) {
	switch kind {
	case models.ReportKindPost:
		return KindPostReports, "postId", nil
	case models.ReportKindUser:
		return KindUserReports, "reporteeId", nil
	}
	return "", "", fmt.Errorf("%w: неизвестный тип жалобы %q", ErrInvalidArgument, kind)
}

func ReportFromRecord(kind models.ReportKind, rec Record) (*models.Report, error) {
	_, targetCol, err := reportTable(kind)
	if err != nil {
		return nil, err
	}

	report := &models.Report{Target: models.Target{Kind: kind}}
	if report.ID, err = rec.Int64("id"); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы: %w", err)
	}
	if report.Reason, err = rec.String("reason"); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	status, err := rec.String("status")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	if report.Status, err = models.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("жалоба %d: %w", report.ID, err)
	}
	if report.DateReported, err = rec.Time("date"); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	if report.ReporterID, err = rec.Int64("reporterId"); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	if report.Target.ID, err = rec.Int64(targetCol); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	if report.AdminID, err = rec.Int64("adminId"); err != nil {
		return nil, fmt.Errorf("ошибка при разборе жалобы %d: %w", report.ID, err)
	}
	return report, nil
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	table, targetCol, err := reportTable(report.Target.Kind)
	if err != nil {
		return err
	}
	if report.DateReported.IsZero() {
		report.DateReported = time.Now().UTC()
	}

	fields := []Field{
		F("reason", report.Reason),
		F("status", string(report.Status)),
		F("date", report.DateReported.Unix()),
		F("reporterId", report.ReporterID),
		F(targetCol, report.Target.ID),
	}
	if report.AdminID != 0 {
		fields = append(fields, F("adminId", report.AdminID))
	}
	if report.ID != 0 {
		fields = append(fields, F("id", report.ID))
	}

	id, err := r.gw.Insert(ctx, table, fields...)
	if err != nil {
		return fmt.Errorf("ошибка при создании жалобы: %w", err)
	}

	report.ID = id
	return nil
}

// GetAll returns post and user reports ordered by date, then key.
func (r *reportRepository) GetAll(ctx context.Context) ([]*models.Report, error) {
	var reports []*models.Report
	for _, kind := range []models.ReportKind{models.ReportKindPost, models.ReportKindUser} {
		table, _, _ := reportTable(kind)

		records, err := r.gw.SelectAll(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("ошибка при получении жалоб: %w", err)
		}
		for _, rec := range records {
			report, err := ReportFromRecord(kind, rec)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].DateReported.Equal(reports[j].DateReported) {
			return reports[i].DateReported.Before(reports[j].DateReported)
		}
		if reports[i].Target.Kind != reports[j].Target.Kind {
			return reports[i].Target.Kind < reports[j].Target.Kind
		}
		return reports[i].ID < reports[j].ID
	})
	return reports, nil
}

func (r *reportRepository) update(ctx context.Context, key models.ReportKey, set Field) error {
	table, _, err := reportTable(key.Kind)
	if err != nil {
		return err
	}

	rowsAffected, err := r.gw.Update(ctx, table, []Field{set}, F("id", key.ID))
	if err != nil {
		return fmt.Errorf("ошибка при обновлении жалобы %s: %w", key, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("жалоба %s: %w", key, ErrNotFound)
	}
	return nil
}

func (r *reportRepository) UpdateStatus(ctx context.Context, key models.ReportKey, status models.Status) error {
	return r.update(ctx, key, F("status", string(status)))
}

// UpdateAdmin stores the assignee; 0 clears it.
func (r *reportRepository) UpdateAdmin(ctx context.Context, key models.ReportKey, adminID int64) error {
	var value any
	if adminID != 0 {
		value = adminID
	}
	return r.update(ctx, key, F("adminId", value))
}

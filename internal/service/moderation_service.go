package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"ysocial/internal/models"
)

// Removed is shown in place of a reporter or target that no longer exists.
const Removed = "REMOVED"

var errAlreadyAssigned = fmt.Errorf("%w: жалоба уже назначена", ErrInvalidArgument)

type SubmitReportRequest struct {
	ReporterID int64 `validate:"required,gt=0"`
	Target     models.Target
	Reason     string `validate:"required,max=500"`
}

// ReportDetail is a report with its reporter and target resolved. Missing
// entities are rendered as Removed instead of failing the view.
type ReportDetail struct {
	Report        *models.Report
	Reporter      string
	Target        string
	TargetRemoved bool
	Post          *models.Post
	User          *models.UserAccount
	Admin         string
}

type ModerationService interface {
	Submit(ctx context.Context, req SubmitReportRequest) (*models.Report, error)
	// Claim moves the oldest unassigned open report into the admin's queue.
	Claim(ctx context.Context, adminID int64) (*models.Report, error)
	// Assign moves the report from fromAdminID's queue (0 for the
	// unassigned pool) to toAdminID's queue.
	Assign(ctx context.Context, key models.ReportKey, fromAdminID, toAdminID int64) (*models.Report, error)
	ChangeStatus(ctx context.Context, key models.ReportKey, status models.Status) (*models.Report, error)
	// Close is idempotent and waits for the store write.
	Close(ctx context.Context, key models.ReportKey) (*models.Report, error)
	// CloseAndDelete removes the reported post or account, then closes the report.
	CloseAndDelete(ctx context.Context, adminID int64, key models.ReportKey) (*models.Report, error)
	GetReport(ctx context.Context, key models.ReportKey) (*models.Report, error)
	Detail(ctx context.Context, key models.ReportKey) (*ReportDetail, error)
	// OpenReports and ClosedReports list reports in submission order; an
	// empty kind lists both kinds.
	OpenReports(ctx context.Context, kind models.ReportKind) ([]*models.Report, error)
	ClosedReports(ctx context.Context, kind models.ReportKind) ([]*models.Report, error)
	AssignedQueue(ctx context.Context, adminID int64) ([]*models.Report, error)
}

type moderationService struct {
	reg      *Registry
	validate *validator.Validate
}

func NewModerationService(reg *Registry, validate *validator.Validate) ModerationService {
	return &moderationService{
		reg:      reg,
		validate: validate,
	}
}

func (s *moderationService) event(rep *models.Report, event string, attrs ...any) {
	s.reg.metrics.ReportEvents.WithLabelValues(string(rep.Target.Kind), event).Inc()
	attrs = append([]any{
		slog.String("report", rep.Key().String()),
		slog.String("status", string(rep.Status)),
	}, attrs...)
	s.reg.log.Info("жалоба: "+event, attrs...)
}

func (s *moderationService) Submit(ctx context.Context, req SubmitReportRequest) (*models.Report, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	kind, err := models.ParseReportKind(string(req.Target.Kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	req.Target.Kind = kind
	if req.Target.ID <= 0 {
		return nil, fmt.Errorf("%w: не указан объект жалобы", ErrInvalidArgument)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.user(req.ReporterID); err != nil {
		return nil, fmt.Errorf("автор жалобы: %w", err)
	}
	switch req.Target.Kind {
	case models.ReportKindPost:
		if _, err := s.reg.post(req.Target.ID); err != nil {
			return nil, err
		}
	case models.ReportKindUser:
		if _, err := s.reg.user(req.Target.ID); err != nil {
			return nil, err
		}
	}

	rep := &models.Report{
		ReporterID:   req.ReporterID,
		Reason:       req.Reason,
		Status:       models.StatusCreated,
		DateReported: s.reg.now(),
		Target:       req.Target,
	}
	err = s.reg.pool.Do(ctx, models.UserKey(req.ReporterID), "create report", func(ctx context.Context) error {
		return s.reg.repo.Report.Create(ctx, rep)
	})
	if err != nil {
		return nil, storeErr("ошибка при создании жалобы", err)
	}

	s.reg.mu.Lock()
	s.reg.reports[rep.Key()] = rep
	s.reg.mu.Unlock()

	s.event(rep, "submitted",
		slog.Int64("reporter_id", rep.ReporterID),
		slog.String("target", rep.Target.EntityKey()),
	)
	return rep.Clone(), nil
}

func (s *moderationService) Claim(ctx context.Context, adminID int64) (*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.admin(adminID); err != nil {
		return nil, err
	}

	for _, key := range s.reg.reportKeys() {
		rep, err := s.assign(key, 0, adminID)
		switch {
		case err == nil:
			return rep, nil
		case errors.Is(err, errAlreadyAssigned), errors.Is(err, ErrReportClosed), errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("нет свободных жалоб: %w", ErrNotFound)
}

func (s *moderationService) Assign(ctx context.Context, key models.ReportKey, fromAdminID, toAdminID int64) (*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.assign(key, fromAdminID, toAdminID)
}

// assign expects graph to be held.
func (s *moderationService) assign(key models.ReportKey, fromAdminID, toAdminID int64) (*models.Report, error) {
	if toAdminID == 0 {
		return nil, fmt.Errorf("%w: не указан администратор", ErrInvalidArgument)
	}

	unlock := s.reg.locks.lock(key.String())
	defer unlock()

	rep, err := s.reg.report(key)
	if err != nil {
		return nil, err
	}
	if rep.Closed() {
		return nil, fmt.Errorf("жалоба %s: %w", key, ErrReportClosed)
	}

	to, err := s.reg.admin(toAdminID)
	if err != nil {
		return nil, err
	}
	var from *models.AdminAccount
	if fromAdminID != 0 {
		if from, err = s.reg.admin(fromAdminID); err != nil {
			return nil, err
		}
	}

	s.reg.queues.Lock()
	defer s.reg.queues.Unlock()

	if from == nil && rep.AdminID != 0 {
		return nil, fmt.Errorf("жалоба %s у администратора %d: %w", key, rep.AdminID, errAlreadyAssigned)
	}
	if from != nil && !from.Holds(key) {
		return nil, fmt.Errorf("%w: жалоба %s не в очереди администратора %d", ErrInvalidArgument, key, fromAdminID)
	}

	err = s.reg.submit(key.String(), "assign report", func(ctx context.Context) error {
		if err := s.reg.repo.Report.UpdateAdmin(ctx, key, toAdminID); err != nil {
			return err
		}
		return s.reg.repo.Report.UpdateStatus(ctx, key, models.StatusAssigned)
	})
	if err != nil {
		return nil, err
	}

	if from != nil {
		from.Dequeue(key)
	}
	to.Enqueue(key)
	rep.AdminID = toAdminID
	rep.Status = models.StatusAssigned

	s.event(rep, "assigned", slog.Int64("from_admin_id", fromAdminID), slog.Int64("to_admin_id", toAdminID))
	return rep.Clone(), nil
}

func (s *moderationService) ChangeStatus(ctx context.Context, key models.ReportKey, status models.Status) (*models.Report, error) {
	status, err := models.ParseStatus(string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if status.Terminal() {
		return s.Close(ctx, key)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	unlock := s.reg.locks.lock(key.String())
	defer unlock()

	rep, err := s.reg.report(key)
	if err != nil {
		return nil, err
	}
	if rep.Closed() {
		return nil, fmt.Errorf("жалоба %s: %w", key, ErrReportClosed)
	}
	if rep.Status == status {
		return rep.Clone(), nil
	}

	err = s.reg.submit(key.String(), "change report status", func(ctx context.Context) error {
		return s.reg.repo.Report.UpdateStatus(ctx, key, status)
	})
	if err != nil {
		return nil, err
	}

	previous := rep.Status
	rep.Status = status
	s.event(rep, "status changed", slog.String("previous", string(previous)))
	return rep.Clone(), nil
}

func (s *moderationService) Close(ctx context.Context, key models.ReportKey) (*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	unlock := s.reg.locks.lock(key.String())
	defer unlock()

	rep, err := s.reg.report(key)
	if err != nil {
		return nil, err
	}
	if rep.Closed() {
		return rep.Clone(), nil
	}

	// the report list is read back right after closing
	err = s.reg.pool.Do(ctx, key.String(), "close report", func(ctx context.Context) error {
		return s.reg.repo.Report.UpdateStatus(ctx, key, models.StatusClosed)
	})
	if err != nil {
		return nil, storeErr("ошибка при закрытии жалобы", err)
	}

	s.reg.queues.Lock()
	rep.Status = models.StatusClosed
	if rep.AdminID != 0 {
		if admin, err := s.reg.admin(rep.AdminID); err == nil {
			admin.Dequeue(key)
		}
	}
	s.reg.queues.Unlock()

	s.event(rep, "closed", slog.Int64("admin_id", rep.AdminID))
	return rep.Clone(), nil
}

func (s *moderationService) CloseAndDelete(ctx context.Context, adminID int64, key models.ReportKey) (*models.Report, error) {
	rep, err := s.GetReport(ctx, key)
	if err != nil {
		return nil, err
	}
	if rep.Closed() {
		return nil, fmt.Errorf("жалоба %s: %w", key, ErrReportClosed)
	}

	switch rep.Target.Kind {
	case models.ReportKindPost:
		err = s.deletePost(ctx, adminID, rep.Target.ID, key.String())
	case models.ReportKindUser:
		if _, err = s.adminExists(adminID); err == nil {
			err = s.reg.deleteAccount(ctx, rep.Target.ID, key.String())
		}
	}
	if err = ignoreNotFound(err); err != nil {
		return nil, err
	}

	s.reg.log.Info("содержимое по жалобе удалено",
		slog.String("report", key.String()),
		slog.String("target", rep.Target.EntityKey()),
		slog.Int64("admin_id", adminID),
	)
	return s.Close(ctx, key)
}

// adminExists distinguishes a missing admin from a missing target.
func (s *moderationService) adminExists(adminID int64) (*models.AdminAccount, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	admin, err := s.reg.admin(adminID)
	if err != nil {
		return nil, fmt.Errorf("%w: администратор %d не найден", ErrForbidden, adminID)
	}
	return admin, nil
}

func (s *moderationService) deletePost(ctx context.Context, adminID, postID int64, reason string) error {
	admin, err := s.adminExists(adminID)
	if err != nil {
		return err
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	unlock := s.reg.locks.lock(models.PostKey(postID))
	defer unlock()

	post, err := s.reg.post(postID)
	if err != nil {
		return err
	}
	if !admin.CanRemovePost(post) {
		return fmt.Errorf("%w: администратор %d не может удалить пост %d", ErrForbidden, adminID, postID)
	}
	return s.reg.removePost(ctx, post, reason, true)
}

func (s *moderationService) GetReport(ctx context.Context, key models.ReportKey) (*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.cloneReport(key)
}

// cloneReport expects graph to be held.
func (s *moderationService) cloneReport(key models.ReportKey) (*models.Report, error) {
	unlock := s.reg.locks.lock(key.String())
	defer unlock()

	rep, err := s.reg.report(key)
	if err != nil {
		return nil, err
	}
	return rep.Clone(), nil
}

func (s *moderationService) Detail(ctx context.Context, key models.ReportKey) (*ReportDetail, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	rep, err := s.cloneReport(key)
	if err != nil {
		return nil, err
	}
	return s.detail(rep), nil
}

// detail expects graph to be held.
func (s *moderationService) detail(rep *models.Report) *ReportDetail {
	d := &ReportDetail{Report: rep, Reporter: Removed, Target: Removed, TargetRemoved: true}

	users := &userService{reg: s.reg}
	if reporter, err := users.cloneUser(rep.ReporterID); err == nil {
		d.Reporter = reporter.Username
	}

	switch rep.Target.Kind {
	case models.ReportKindPost:
		posts := &postService{reg: s.reg}
		if post, err := posts.clonePost(rep.Target.ID); err == nil {
			d.Post, d.Target, d.TargetRemoved = post, post.Text, false
		}
	case models.ReportKindUser:
		if user, err := users.cloneUser(rep.Target.ID); err == nil {
			d.User, d.Target, d.TargetRemoved = user, user.Username, false
		}
	}

	if rep.AdminID != 0 {
		if admin, err := s.reg.admin(rep.AdminID); err == nil {
			d.Admin = admin.Username
		} else {
			d.Admin = Removed
		}
	}
	return d
}

func (s *moderationService) filter(kind models.ReportKind, keep func(*models.Report) bool) []*models.Report {
	var out []*models.Report
	for _, key := range s.reg.reportKeys() {
		if kind != "" && key.Kind != kind {
			continue
		}
		rep, err := s.cloneReport(key)
		if err != nil {
			continue
		}
		if keep(rep) {
			out = append(out, rep)
		}
	}
	return out
}

func (s *moderationService) OpenReports(ctx context.Context, kind models.ReportKind) ([]*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.filter(kind, func(rep *models.Report) bool { return !rep.Closed() }), nil
}

func (s *moderationService) ClosedReports(ctx context.Context, kind models.ReportKind) ([]*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.filter(kind, func(rep *models.Report) bool { return rep.Closed() }), nil
}

func (s *moderationService) AssignedQueue(ctx context.Context, adminID int64) ([]*models.Report, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	admin, err := s.reg.admin(adminID)
	if err != nil {
		return nil, err
	}

	s.reg.queues.Lock()
	keys := append([]models.ReportKey(nil), admin.AssignedReports...)
	s.reg.queues.Unlock()

	reports := make([]*models.Report, 0, len(keys))
	for _, key := range keys {
		rep, err := s.cloneReport(key)
		if err != nil {
			continue
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"ysocial/internal/models"
)

type ExportedReport struct {
	Key      string        `yaml:"key"`
	Kind     string        `yaml:"kind"`
	ID       int64         `yaml:"id"`
	Status   models.Status `yaml:"status"`
	Reason   string        `yaml:"reason"`
	Reported time.Time     `yaml:"reported"`
	Reporter string        `yaml:"reporter"`
	Target   string        `yaml:"target"`
	Removed  bool          `yaml:"removed"`
	Admin    string        `yaml:"admin,omitempty"`
}

type ExportService interface {
	// ExportReports writes every report, open and closed, as a YAML document.
	ExportReports(ctx context.Context, w io.Writer) (int, error)
}

type exportService struct {
	moderation *moderationService
}

func NewExportService(reg *Registry) ExportService {
	return &exportService{moderation: &moderationService{reg: reg}}
}

func (s *exportService) ExportReports(ctx context.Context, w io.Writer) (int, error) {
	reg := s.moderation.reg

	reg.graph.RLock()
	reports := s.moderation.filter("", func(*models.Report) bool { return true })
	exported := make([]ExportedReport, 0, len(reports))
	for _, rep := range reports {
		d := s.moderation.detail(rep)
		exported = append(exported, ExportedReport{
			Key:      rep.Key().String(),
			Kind:     string(rep.Target.Kind),
			ID:       rep.ID,
			Status:   rep.Status,
			Reason:   rep.Reason,
			Reported: rep.DateReported,
			Reporter: d.Reporter,
			Target:   d.Target,
			Removed:  d.TargetRemoved,
			Admin:    d.Admin,
		})
	}
	reg.graph.RUnlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"reports": exported}); err != nil {
		return 0, fmt.Errorf("ошибка при экспорте жалоб: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("ошибка при экспорте жалоб: %w", err)
	}
	return len(exported), nil
}

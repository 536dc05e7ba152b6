package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ysocial/internal/models"
	"ysocial/internal/repository"
	"ysocial/internal/service"
)

func newAdminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Модерация жалоб (требуется вход администратора)",
	}
	cmd.AddCommand(
		newReportsCmd(c),
		newClaimCmd(c),
		newAssignCmd(c),
		newStatusCmd(c),
		newCloseCmd(c),
		newShowCmd(c),
		newQueueCmd(c),
		newExportCmd(c),
		newStatsCmd(c),
	)
	return cmd
}

// adminRun logs in and requires the admin role.
func (c *cli) adminRun(fn func(e *env, adminID int64, args []string) error) func(*cobra.Command, []string) error {
	return c.run(true, func(e *env, args []string) error {
		adminID, err := e.adminID()
		if err != nil {
			return err
		}
		return fn(e, adminID, args)
	})
}

func parseKey(arg string) (models.ReportKey, error) {
	key, err := models.ParseReportKey(arg)
	if err != nil {
		return models.ReportKey{}, fmt.Errorf("%w: %w", service.ErrInvalidArgument, err)
	}
	return key, nil
}

func writeReport(w io.Writer, rep *models.Report) {
	admin := "-"
	if rep.AdminID != 0 {
		admin = fmt.Sprint(rep.AdminID)
	}
	fmt.Fprintf(w, "%-16s %-10s %s  от %d на %s:%d  админ %s  %q\n",
		rep.Key(), rep.Status, humanize.Time(rep.DateReported),
		rep.ReporterID, rep.Target.Kind, rep.Target.ID, admin, rep.Reason)
}

func writeReports(w io.Writer, reports []*models.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "жалоб нет")
		return
	}
	for _, rep := range reports {
		writeReport(w, rep)
	}
}

func newReportsCmd(c *cli) *cobra.Command {
	var closed bool
	var kind string
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Список открытых (или закрытых) жалоб в порядке поступления",
		Args:  cobra.NoArgs,
		RunE: c.adminRun(func(e *env, _ int64, _ []string) error {
			var k models.ReportKind
			if kind != "" {
				var err error
				if k, err = models.ParseReportKind(kind); err != nil {
					return fmt.Errorf("%w: %w", service.ErrInvalidArgument, err)
				}
			}

			list := e.svc.Moderation.OpenReports
			if closed {
				list = e.svc.Moderation.ClosedReports
			}
			reports, err := list(e.ctx, k)
			if err != nil {
				return err
			}
			writeReports(e.out, reports)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "показать закрытые жалобы")
	cmd.Flags().StringVar(&kind, "kind", "", "тип жалоб: post или user")
	return cmd
}

func newClaimCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Взять самую старую неназначенную жалобу",
		Args:  cobra.NoArgs,
		RunE: c.adminRun(func(e *env, adminID int64, _ []string) error {
			rep, err := e.svc.Moderation.Claim(e.ctx, adminID)
			if err != nil {
				return err
			}
			writeReport(e.out, rep)
			return nil
		}),
	}
}

func newAssignCmd(c *cli) *cobra.Command {
	var from, to int64
	cmd := &cobra.Command{
		Use:   "assign <kind:id>",
		Short: "Передать жалобу другому администратору",
		Args:  cobra.ExactArgs(1),
		RunE: c.adminRun(func(e *env, adminID int64, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			if to == 0 {
				to = adminID
			}
			rep, err := e.svc.Moderation.Assign(e.ctx, key, from, to)
			if err != nil {
				return err
			}
			writeReport(e.out, rep)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&from, "from", 0, "текущий администратор, 0 для общей очереди")
	cmd.Flags().Int64Var(&to, "to", 0, "новый администратор, по умолчанию вы")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <kind:id> <CREATED|ASSIGNED|PROCESSING|BLOCKED|CLOSED>",
		Short: "Сменить статус жалобы",
		Args:  cobra.ExactArgs(2),
		RunE: c.adminRun(func(e *env, _ int64, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			status, err := models.ParseStatus(args[1])
			if err != nil {
				return fmt.Errorf("%w: %w", service.ErrInvalidArgument, err)
			}
			rep, err := e.svc.Moderation.ChangeStatus(e.ctx, key, status)
			if err != nil {
				return err
			}
			writeReport(e.out, rep)
			return nil
		}),
	}
}

func newCloseCmd(c *cli) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "close <kind:id>",
		Short: "Закрыть жалобу, с --delete удалив пост или аккаунт",
		Args:  cobra.ExactArgs(1),
		RunE: c.adminRun(func(e *env, adminID int64, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}

			var rep *models.Report
			if del {
				rep, err = e.svc.Moderation.CloseAndDelete(e.ctx, adminID, key)
			} else {
				rep, err = e.svc.Moderation.Close(e.ctx, key)
			}
			if err != nil {
				return err
			}
			writeReport(e.out, rep)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&del, "delete", false, "удалить цель жалобы")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind:id>",
		Short: "Подробности жалобы",
		Args:  cobra.ExactArgs(1),
		RunE: c.adminRun(func(e *env, _ int64, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			d, err := e.svc.Moderation.Detail(e.ctx, key)
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "жалоба:   %s\n", d.Report.Key())
			fmt.Fprintf(e.out, "статус:   %s\n", d.Report.Status)
			fmt.Fprintf(e.out, "дата:     %s (%s)\n", d.Report.DateReported.Format("2006-01-02 15:04"), humanize.Time(d.Report.DateReported))
			fmt.Fprintf(e.out, "причина:  %s\n", d.Report.Reason)
			fmt.Fprintf(e.out, "автор:    %s\n", d.Reporter)
			fmt.Fprintf(e.out, "цель:     %s\n", d.Target)
			if d.Post != nil {
				fmt.Fprintf(e.out, "лайков:   %d\n", d.Post.LikeCount)
			}
			if d.User != nil {
				fmt.Fprintf(e.out, "подписчиков: %d\n", d.User.FollowerCount)
			}
			if d.Admin != "" {
				fmt.Fprintf(e.out, "админ:    %s\n", d.Admin)
			}
			return nil
		}),
	}
}

func newQueueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Жалобы в вашей очереди",
		Args:  cobra.NoArgs,
		RunE: c.adminRun(func(e *env, adminID int64, _ []string) error {
			reports, err := e.svc.Moderation.AssignedQueue(e.ctx, adminID)
			if err != nil {
				return err
			}
			writeReports(e.out, reports)
			return nil
		}),
	}
}

func newExportCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Выгрузить все жалобы в YAML",
		Args:  cobra.NoArgs,
		RunE: c.adminRun(func(e *env, _ int64, _ []string) (err error) {
			w := e.out
			if output != "" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return fmt.Errorf("не удалось создать файл %s: %w", output, ferr)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()
				w = f
			}

			n, err := e.svc.Export.ExportReports(e.ctx, w)
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(e.out, "выгружено жалоб: %d в %s\n", n, output)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "файл для выгрузки, по умолчанию stdout")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Число строк в таблицах хранилища",
		Args:  cobra.NoArgs,
		RunE: c.adminRun(func(e *env, _ int64, _ []string) error {
			counts, err := e.svc.Tables.CountRows(e.ctx)
			if err != nil {
				return err
			}

			kinds := make([]repository.Kind, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

			for _, k := range kinds {
				fmt.Fprintf(e.out, "%-14s %s\n", k, humanize.Comma(int64(counts[k])))
			}
			return nil
		}),
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"ysocial/cmd/app"
	"ysocial/internal/config"
	"ysocial/internal/models"
	"ysocial/internal/service"
)

var errLoginRequired = errors.New("требуется вход: укажите --username и --password")

type cli struct {
	cfg      *config.Config
	username string
	password string
	role     string
	logLevel string

	// shared replaces the per-command app; it is never closed by a command
	shared *app.App
}

// env is what a command body sees: the loaded app and the session of the
// account given by the login flags.
type env struct {
	ctx     context.Context
	app     *app.App
	svc     *service.Service
	session *service.Session
	out     io.Writer
}

func (e *env) userID() (int64, error) {
	id, ok := e.session.CurrentUserID()
	if !ok {
		return 0, fmt.Errorf("%w: команда доступна только пользователю", service.ErrForbidden)
	}
	return id, nil
}

func (e *env) adminID() (int64, error) {
	id, ok := e.session.CurrentAdminID()
	if !ok {
		return 0, fmt.Errorf("%w: команда доступна только администратору", service.ErrForbidden)
	}
	return id, nil
}

func (e *env) actor() (models.Account, error) {
	return e.svc.Auth.Current(e.session)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "y",
		Short:        "Y: микроблог с модерацией жалоб",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfg.DB.Driver, "db-driver", c.cfg.DB.Driver, "драйвер хранилища: sqlite3, postgres или memory")
	pf.StringVar(&c.cfg.DB.Path, "db-path", c.cfg.DB.Path, "путь к файлу SQLite")
	pf.StringVar(&c.logLevel, "log-level", "", "уровень логирования: debug, info, warn, error")
	pf.StringVarP(&c.username, "username", "u", "", "имя пользователя для входа")
	pf.StringVarP(&c.password, "password", "p", "", "пароль")
	pf.StringVar(&c.role, "role", "", "роль для входа: user или admin (по умолчанию любая)")

	root.AddCommand(
		newRegisterCmd(c),
		newWhoamiCmd(c),
		newPostCmd(c),
		newRemovePostCmd(c),
		newFeedCmd(c),
		newPostsCmd(c),
		newLikeCmd(c, true),
		newLikeCmd(c, false),
		newFollowCmd(c, true),
		newFollowCmd(c, false),
		newFollowersCmd(c),
		newSearchCmd(c),
		newReportCmd(c),
		newDeleteAccountCmd(c),
		newAdminCmd(c),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) (*app.App, func() error, error) {
	if c.shared != nil {
		return c.shared, func() error { return nil }, nil
	}

	if c.logLevel != "" {
		c.cfg.Log.Level = config.ParseLevel(c.logLevel)
	}
	log := app.NewLogger(c.cfg.Log, cmd.ErrOrStderr())

	a, err := app.New(cmd.Context(), c.cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, func() error { return a.Close(context.Background()) }, nil
}

// run loads the app, logs in when login is set and closes the app after fn,
// so queued writes reach the store before the process exits.
func (c *cli) run(login bool, fn func(e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, closeApp, err := c.open(cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, closeApp())
		}()

		e := &env{
			ctx:     cmd.Context(),
			app:     a,
			svc:     a.Service,
			session: service.NewSession(),
			out:     cmd.OutOrStdout(),
		}
		if e.ctx == nil {
			e.ctx = context.Background()
		}

		if login {
			if c.username == "" {
				return errLoginRequired
			}
			if _, err := e.svc.Auth.Authenticate(e.ctx, e.session, c.username, c.password, models.Role(c.role)); err != nil {
				return err
			}
			defer e.session.Logout()
		}

		return fn(e, args)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: неверный id %q", service.ErrInvalidArgument, arg)
	}
	return id, nil
}

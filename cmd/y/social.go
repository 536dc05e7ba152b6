package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ysocial/internal/models"
	"ysocial/internal/service"
)

func newRegisterCmd(c *cli) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Зарегистрировать пользователя или администратора (-u, -p, --role)",
		Args:  cobra.NoArgs,
		RunE: c.run(false, func(e *env, _ []string) error {
			role := models.Role(c.role)
			if role == "" {
				role = models.RoleUser
			}
			account, err := e.svc.Auth.Register(e.ctx, service.RegisterRequest{
				Role:     role,
				Name:     name,
				Email:    email,
				Username: c.username,
				Password: c.password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "зарегистрирован %s %s, id %d\n", account.AccountRole(), account.AccountUsername(), account.AccountID())
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "отображаемое имя")
	cmd.Flags().StringVar(&email, "email", "", "email")
	return cmd
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Показать текущий аккаунт",
		Args:  cobra.NoArgs,
		RunE: c.run(true, func(e *env, _ []string) error {
			account, err := e.actor()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s %s (id %d)\n", account.AccountRole(), account.AccountUsername(), account.AccountID())
			if user, ok := account.(*models.UserAccount); ok {
				fmt.Fprintf(e.out, "подписчиков: %d\n", user.FollowerCount)
			}
			return nil
		}),
	}
}

func newPostCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "post <текст>",
		Short: "Опубликовать пост",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.run(true, func(e *env, args []string) error {
			userID, err := e.userID()
			if err != nil {
				return err
			}
			post, err := e.svc.Post.CreatePost(e.ctx, service.CreatePostRequest{
				AuthorID: userID,
				Text:     strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "опубликован пост #%d\n", post.ID)
			return nil
		}),
	}
}

func newRemovePostCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-post <id>",
		Short: "Удалить свой пост (администратор: любой)",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(true, func(e *env, args []string) error {
			postID, err := parseID(args[0])
			if err != nil {
				return err
			}
			actor, err := e.actor()
			if err != nil {
				return err
			}
			if err := e.svc.Post.RemovePost(e.ctx, actor, postID); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "пост #%d удален\n", postID)
			return nil
		}),
	}
}

func writePosts(e *env, posts []*models.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(e.out, "постов нет")
		return
	}
	for _, post := range posts {
		author := service.Removed
		if user, err := e.svc.User.GetUser(e.ctx, post.AuthorID); err == nil {
			author = user.Username
		}
		fmt.Fprintf(e.out, "#%d @%s, %s, лайков: %s\n  %s\n",
			post.ID, author, humanize.Time(post.DatePosted), humanize.Comma(int64(post.LikeCount)), post.Text)
	}
}

func newFeedCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Лента: новые посты сверху",
		Args:  cobra.NoArgs,
		RunE: c.run(false, func(e *env, _ []string) error {
			posts, err := e.svc.Post.Feed(e.ctx, limit)
			if err != nil {
				return err
			}
			writePosts(e, posts)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "сколько постов показать, 0 для всех")
	return cmd
}

func newPostsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "posts <user-id>",
		Short: "Посты пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(false, func(e *env, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			posts, err := e.svc.Post.PostsByUser(e.ctx, userID)
			if err != nil {
				return err
			}
			writePosts(e, posts)
			return nil
		}),
	}
}

func newLikeCmd(c *cli, like bool) *cobra.Command {
	use, short, done := "like <post-id>", "Поставить лайк", "лайк поставлен"
	if !like {
		use, short, done = "unlike <post-id>", "Снять лайк", "лайк снят"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.run(true, func(e *env, args []string) error {
			userID, err := e.userID()
			if err != nil {
				return err
			}
			postID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if like {
				err = e.svc.Post.Like(e.ctx, userID, postID)
			} else {
				err = e.svc.Post.Unlike(e.ctx, userID, postID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, done)
			return nil
		}),
	}
}

func newFollowCmd(c *cli, follow bool) *cobra.Command {
	use, short, done := "follow <user-id>", "Подписаться", "подписка оформлена"
	if !follow {
		use, short, done = "unfollow <user-id>", "Отписаться", "подписка отменена"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.run(true, func(e *env, args []string) error {
			userID, err := e.userID()
			if err != nil {
				return err
			}
			followeeID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if follow {
				err = e.svc.User.Follow(e.ctx, userID, followeeID)
			} else {
				err = e.svc.User.Unfollow(e.ctx, userID, followeeID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, done)
			return nil
		}),
	}
}

func writeUsers(w io.Writer, users []*models.UserAccount) {
	if len(users) == 0 {
		fmt.Fprintln(w, "никого нет")
		return
	}
	for _, u := range users {
		fmt.Fprintf(w, "%d\t@%s\t%s\tподписчиков: %s\n", u.ID, u.Username, u.Name, humanize.Comma(int64(u.FollowerCount)))
	}
}

func newFollowersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "followers <user-id>",
		Short: "Подписчики пользователя",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(false, func(e *env, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			users, err := e.svc.User.Followers(e.ctx, userID)
			if err != nil {
				return err
			}
			writeUsers(e.out, users)
			return nil
		}),
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "search <подстрока>",
		Short: "Поиск пользователей по имени",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(false, func(e *env, args []string) error {
			users, err := e.svc.User.SearchUsers(e.ctx, args[0])
			if err != nil {
				return err
			}
			writeUsers(e.out, users)
			return nil
		}),
	}
}

func newReportCmd(c *cli) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:       "report <post|user> <id>",
		Short:     "Пожаловаться на пост или пользователя",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.ReportKindPost), string(models.ReportKindUser)},
		RunE: c.run(true, func(e *env, args []string) error {
			userID, err := e.userID()
			if err != nil {
				return err
			}
			kind, err := models.ParseReportKind(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", service.ErrInvalidArgument, err)
			}
			targetID, err := parseID(args[1])
			if err != nil {
				return err
			}
			rep, err := e.svc.Moderation.Submit(e.ctx, service.SubmitReportRequest{
				ReporterID: userID,
				Target:     models.Target{Kind: kind, ID: targetID},
				Reason:     reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "жалоба %s принята\n", rep.Key())
			return nil
		}),
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "причина жалобы")
	return cmd
}

func newDeleteAccountCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-account [user-id]",
		Short: "Удалить свой аккаунт (администратор: любой) со всеми постами и связями",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.run(true, func(e *env, args []string) error {
			actor, err := e.actor()
			if err != nil {
				return err
			}
			userID := actor.AccountID()
			if len(args) == 0 && actor.AccountRole() == models.RoleAdmin {
				return fmt.Errorf("%w: администратор должен указать id пользователя", service.ErrInvalidArgument)
			}
			if len(args) == 1 {
				if userID, err = parseID(args[0]); err != nil {
					return err
				}
			}
			if err := e.svc.User.DeleteAccount(e.ctx, actor, userID); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "аккаунт %d удален\n", userID)
			return nil
		}),
	}
}

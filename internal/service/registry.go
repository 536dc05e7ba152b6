package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ysocial/internal/metrics"
	"ysocial/internal/models"
	"ysocial/internal/repository"
	"ysocial/internal/storage"
	"ysocial/internal/worker"
)

// Registry is the in-memory state of accounts, posts and reports, loaded
// from the store and kept in step with it through the worker pool.
//
// Lock order: graph, then entity locks (sorted), then queues, then mu.
// Every operation holds graph shared; account deletion holds it exclusively.
type Registry struct {
	repo    *repository.Repository
	pool    *worker.Pool
	archive storage.Archive
	log     *slog.Logger
	metrics *metrics.Metrics

	graph  sync.RWMutex
	locks  *entityLocks
	queues sync.Mutex

	mu      sync.RWMutex
	users   map[int64]*models.UserAccount
	admins  map[int64]*models.AdminAccount
	posts   map[int64]*models.Post
	reports map[models.ReportKey]*models.Report

	reloads singleflight.Group
	now     func() time.Time
}

func NewRegistry(repo *repository.Repository, pool *worker.Pool, archive storage.Archive,
	log *slog.Logger, m *metrics.Metrics) *Registry {
	if archive == nil {
		archive = storage.NopArchive{}
	}
	return &Registry{
		repo:    repo,
		pool:    pool,
		archive: archive,
		log:     log,
		metrics: m,
		locks:   newEntityLocks(),
		users:   make(map[int64]*models.UserAccount),
		admins:  make(map[int64]*models.AdminAccount),
		posts:   make(map[int64]*models.Post),
		reports: make(map[models.ReportKey]*models.Report),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type state struct {
	users   map[int64]*models.UserAccount
	admins  map[int64]*models.AdminAccount
	posts   map[int64]*models.Post
	reports map[models.ReportKey]*models.Report
}

// Load replaces the in-memory state with the content of the store.
func (r *Registry) Load(ctx context.Context) error {
	r.graph.Lock()
	defer r.graph.Unlock()

	return r.load(ctx)
}

// Reload waits for pending writes and loads the store again. Concurrent
// calls share one load.
func (r *Registry) Reload(ctx context.Context) error {
	_, err, shared := r.reloads.Do("reload", func() (any, error) {
		r.graph.Lock()
		defer r.graph.Unlock()

		if err := r.pool.Flush(ctx); err != nil {
			return nil, fmt.Errorf("ошибка при ожидании записи: %w", err)
		}
		return nil, r.load(ctx)
	})
	if shared {
		r.log.Debug("перезагрузка выполнена совместно")
	}
	return err
}

func (r *Registry) load(ctx context.Context) error {
	st, err := r.fetch(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.users, r.admins, r.posts, r.reports = st.users, st.admins, st.posts, st.reports
	r.mu.Unlock()

	r.log.Info("состояние загружено из БД",
		slog.Int("users", len(st.users)),
		slog.Int("admins", len(st.admins)),
		slog.Int("posts", len(st.posts)),
		slog.Int("reports", len(st.reports)),
	)
	return nil
}

func (r *Registry) fetch(ctx context.Context) (*state, error) {
	users, err := r.repo.User.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	admins, err := r.repo.Admin.GetAllAdmins(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := r.repo.Post.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	follows, err := r.repo.Relation.GetAllFollows(ctx)
	if err != nil {
		return nil, err
	}
	likes, err := r.repo.Relation.GetAllLikes(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := r.repo.Report.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	st := &state{
		users:   make(map[int64]*models.UserAccount, len(users)),
		admins:  make(map[int64]*models.AdminAccount, len(admins)),
		posts:   make(map[int64]*models.Post, len(posts)),
		reports: make(map[models.ReportKey]*models.Report, len(reports)),
	}

	for _, u := range users {
		stored := u.FollowerCount
		u.SetFollowers(follows[u.ID])
		if stored != u.FollowerCount {
			r.log.Warn("число подписчиков расходится с таблицей follows, пересчитано",
				slog.Int64("user_id", u.ID), slog.Int("stored", stored), slog.Int("actual", u.FollowerCount))
		}
		st.users[u.ID] = u
	}
	for _, a := range admins {
		st.admins[a.ID] = a
	}
	for _, p := range posts {
		stored := p.LikeCount
		p.SetLikers(likes[p.ID])
		if stored != p.LikeCount {
			r.log.Warn("число лайков расходится с таблицей likes, пересчитано",
				slog.Int64("post_id", p.ID), slog.Int("stored", stored), slog.Int("actual", p.LikeCount))
		}
		st.posts[p.ID] = p
	}

	// reports arrive ordered by date, so queues keep admission order
	for _, rep := range reports {
		st.reports[rep.Key()] = rep
		if rep.AdminID == 0 || rep.Closed() {
			continue
		}
		admin, ok := st.admins[rep.AdminID]
		if !ok {
			r.log.Warn("жалоба назначена несуществующему администратору, возвращена в общий пул",
				slog.String("report", rep.Key().String()), slog.Int64("admin_id", rep.AdminID))
			rep.AdminID = 0
			continue
		}
		admin.Enqueue(rep.Key())
	}
	return st, nil
}

func (r *Registry) user(id int64) (*models.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("пользователь %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (r *Registry) admin(id int64) (*models.AdminAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.admins[id]
	if !ok {
		return nil, fmt.Errorf("администратор %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (r *Registry) post(id int64) (*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, fmt.Errorf("пост %d: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r *Registry) report(key models.ReportKey) (*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.reports[key]
	if !ok {
		return nil, fmt.Errorf("жалоба %s: %w", key, ErrNotFound)
	}
	return rep, nil
}

// postIDs returns the ids of all posts, optionally only those of one author.
func (r *Registry) postIDs(authorID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.posts))
	for id, p := range r.posts {
		if authorID == 0 || p.AuthorID == authorID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) userIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reportKeys returns every report key in submission order.
func (r *Registry) reportKeys() []models.ReportKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reports := make([]*models.Report, 0, len(r.reports))
	for _, rep := range r.reports {
		reports = append(reports, rep)
	}
	sortReports(reports)

	keys := make([]models.ReportKey, len(reports))
	for i, rep := range reports {
		keys[i] = rep.Key()
	}
	return keys
}

func sortReports(reports []*models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].DateReported.Equal(reports[j].DateReported) {
			return reports[i].DateReported.Before(reports[j].DateReported)
		}
		if reports[i].Target.Kind != reports[j].Target.Kind {
			return reports[i].Target.Kind < reports[j].Target.Kind
		}
		return reports[i].ID < reports[j].ID
	})
}

// account finds an account by username, as the login screen did.
func (r *Registry) account(username string, role models.Role) models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if role == models.RoleAdmin {
		for _, a := range r.admins {
			if a.Username == username {
				return a
			}
		}
		return nil
	}
	for _, u := range r.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// taken reports which of username and email are already in use. Usernames
// are unique across both account kinds, emails within the kind.
func (r *Registry) taken(role models.Role, username, email string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var usernameTaken, emailTaken bool
	for _, a := range r.admins {
		usernameTaken = usernameTaken || a.Username == username
		if role == models.RoleAdmin {
			emailTaken = emailTaken || a.Email == email
		}
	}
	for _, u := range r.users {
		usernameTaken = usernameTaken || u.Username == username
		if role == models.RoleUser {
			emailTaken = emailTaken || u.Email == email
		}
	}
	return usernameTaken, emailTaken
}

// snapshot clones an account under the lock guarding its mutable part.
// The caller holds graph.
func (r *Registry) snapshot(account models.Account) models.Account {
	switch a := account.(type) {
	case *models.UserAccount:
		unlock := r.locks.lock(models.UserKey(a.ID))
		defer unlock()
		return a.Clone()
	case *models.AdminAccount:
		r.queues.Lock()
		defer r.queues.Unlock()
		return a.Clone()
	}
	return account
}

// submit queues a store write behind earlier writes for the same key.
func (r *Registry) submit(key, name string, fn func(ctx context.Context) error) error {
	if err := r.pool.Submit(key, name, fn); err != nil {
		return fmt.Errorf("не удалось поставить задачу %s в очередь: %w", name, err)
	}
	return nil
}

// Flush waits for every pending store write.
func (r *Registry) Flush(ctx context.Context) error {
	return r.pool.Flush(ctx)
}

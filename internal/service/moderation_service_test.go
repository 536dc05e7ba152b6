package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ysocial/internal/models"
	"ysocial/internal/repository"
	"ysocial/internal/storage"
)

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) ArchivePost(ctx context.Context, post *models.Post, reason string) (string, error) {
	args := m.Called(post.ID, reason)
	return args.String(0), args.Error(1)
}

func (m *MockArchive) ArchiveAccount(ctx context.Context, user *models.UserAccount, posts []*models.Post, reason string) (string, error) {
	args := m.Called(user.ID, len(posts), reason)
	return args.String(0), args.Error(1)
}

func postReport(reporterID, postID int64, reason string) SubmitReportRequest {
	return SubmitReportRequest{
		ReporterID: reporterID,
		Target:     models.Target{Kind: models.ReportKindPost, ID: postID},
		Reason:     reason,
	}
}

func userReport(reporterID, userID int64, reason string) SubmitReportRequest {
	return SubmitReportRequest{
		ReporterID: reporterID,
		Target:     models.Target{Kind: models.ReportKindUser, ID: userID},
		Reason:     reason,
	}
}

// seedGateway stores user 1 (alice), user 2 (bob), admin 1 (root) and
// post 7 by bob, the way an existing database would hold them.
func seedGateway(t *testing.T) *repository.MemoryGateway {
	t.Helper()
	ctx := context.Background()
	gw := repository.NewMemoryGateway()
	F := repository.F

	for _, u := range []struct {
		id   int64
		name string
	}{{1, "alice"}, {2, "bob"}} {
		_, err := gw.Insert(ctx, repository.KindUsers,
			F("id", u.id), F("name", u.name), F("email", u.name+"@example.com"),
			F("username", u.name), F("password", "secret"), F("numFollowers", 0))
		require.NoError(t, err)
	}
	_, err := gw.Insert(ctx, repository.KindAdmins,
		F("id", int64(1)), F("name", "Root"), F("email", "root@example.com"),
		F("username", "root"), F("password", "secret"))
	require.NoError(t, err)
	_, err = gw.Insert(ctx, repository.KindPosts,
		F("id", int64(7)), F("userId", int64(2)), F("content", "buy cheap pills"),
		F("numLikes", 0), F("datePosted", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()))
	require.NoError(t, err)
	return gw
}

func TestModerationService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, rep.Status)

	open, err := env.svc.Moderation.OpenReports(ctx, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, rep.Key(), open[0].Key())

	claimed, err := env.svc.Moderation.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, claimed.Status)

	closed, err := env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	_, err = env.svc.Post.GetPostByID(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, queue)

	open, err = env.svc.Moderation.OpenReports(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, open)

	// the close is written before CloseAndDelete returns
	rec := env.row(t, repository.KindPostReports, rep.ID)
	assert.Equal(t, "CLOSED", rec["status"])
	assert.Nil(t, env.row(t, repository.KindPosts, 7))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ReportEvents.WithLabelValues("post", "closed")))
}

func TestModerationService_Submit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	tests := []struct {
		name string
		req  SubmitReportRequest
		err  error
	}{
		{name: "Пустая причина", req: postReport(1, 7, "  "), err: ErrInvalidArgument},
		{name: "Несуществующий пост", req: postReport(1, 70, "spam"), err: ErrNotFound},
		{name: "Несуществующий пользователь", req: userReport(1, 20, "spam"), err: ErrNotFound},
		{name: "Несуществующий автор", req: postReport(10, 7, "spam"), err: ErrNotFound},
		{name: "Неизвестный тип", req: SubmitReportRequest{ReporterID: 1, Target: models.Target{Kind: "comment", ID: 1}, Reason: "x"}, err: ErrInvalidArgument},
		{name: "Жалоба на пользователя", req: userReport(1, 2, "rude")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := env.svc.Moderation.Submit(ctx, tt.req)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusCreated, rep.Status)
			rec := env.row(t, repository.KindUserReports, rep.ID)
			assert.Equal(t, int64(2), int64Col(t, rec, "reporteeId"))
			assert.Nil(t, rec["adminId"])
		})
	}
}

func TestModerationService_SubmitCancelled(t *testing.T) {
	ctx := context.Background()

	t.Run("Контекст отменен до записи", func(t *testing.T) {
		env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := env.svc.Moderation.Submit(cancelled, userReport(1, 2, "rude"))
		assert.ErrorIs(t, err, context.Canceled)

		env.flush(t)
		assert.Equal(t, 0, env.count(t, repository.KindUserReports))
		open, err := env.svc.Moderation.OpenReports(ctx, models.ReportKindUser)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("Контекст отменен во время записи", func(t *testing.T) {
		env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})
		writeCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		env.gw.FailOn = func(op string, kind repository.Kind) error {
			if op == "insert" && kind == repository.KindUserReports {
				cancel()
			}
			return nil
		}

		rep, err := env.svc.Moderation.Submit(writeCtx, userReport(1, 2, "rude"))
		require.NoError(t, err)
		env.gw.FailOn = nil

		assert.Equal(t, 1, env.count(t, repository.KindUserReports))
		got, err := env.svc.Moderation.GetReport(ctx, rep.Key())
		require.NoError(t, err)
		assert.Equal(t, models.StatusCreated, got.Status)

		require.NoError(t, env.svc.Registry.Reload(ctx))
		open, err := env.svc.Moderation.OpenReports(ctx, models.ReportKindUser)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, rep.Key(), open[0].Key())
	})
}

func TestModerationService_Close(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	_, err = env.svc.Moderation.Assign(ctx, rep.Key(), 0, 1)
	require.NoError(t, err)

	t.Run("Закрытие убирает из очереди", func(t *testing.T) {
		closed, err := env.svc.Moderation.Close(ctx, rep.Key())
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, closed.Status)

		queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, queue)

		_, err = env.svc.Post.GetPostByID(ctx, 7)
		assert.NoError(t, err, "простое закрытие не удаляет пост")
	})

	t.Run("Повторное закрытие", func(t *testing.T) {
		closed, err := env.svc.Moderation.Close(ctx, rep.Key())
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, closed.Status)
	})

	t.Run("Закрытая жалоба неизменна", func(t *testing.T) {
		_, err := env.svc.Moderation.ChangeStatus(ctx, rep.Key(), models.StatusProcessing)
		assert.ErrorIs(t, err, ErrReportClosed)
		_, err = env.svc.Moderation.Assign(ctx, rep.Key(), 0, 1)
		assert.ErrorIs(t, err, ErrReportClosed)
		_, err = env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
		assert.ErrorIs(t, err, ErrReportClosed)

		closed, err := env.svc.Moderation.ClosedReports(ctx, models.ReportKindPost)
		require.NoError(t, err)
		assert.Len(t, closed, 1)
	})

	t.Run("Несуществующая жалоба", func(t *testing.T) {
		_, err := env.svc.Moderation.Close(ctx, models.ReportKey{Kind: models.ReportKindUser, ID: rep.ID})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestModerationService_Assign(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})
	second := env.admin(t, "mod")

	r1, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	r2, err := env.svc.Moderation.Submit(ctx, userReport(1, 2, "rude"))
	require.NoError(t, err)

	_, err = env.svc.Moderation.Assign(ctx, r1.Key(), 0, 1)
	require.NoError(t, err)
	_, err = env.svc.Moderation.Assign(ctx, r2.Key(), 0, 1)
	require.NoError(t, err)

	t.Run("Уже назначена", func(t *testing.T) {
		_, err := env.svc.Moderation.Assign(ctx, r1.Key(), 0, second.ID)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Не у этого администратора", func(t *testing.T) {
		_, err := env.svc.Moderation.Assign(ctx, r1.Key(), second.ID, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Неизвестный администратор", func(t *testing.T) {
		_, err := env.svc.Moderation.Assign(ctx, r1.Key(), 1, 99)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = env.svc.Moderation.Assign(ctx, r1.Key(), 1, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Передача другому администратору", func(t *testing.T) {
		rep, err := env.svc.Moderation.Assign(ctx, r1.Key(), 1, second.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, rep.AdminID)
		assert.Equal(t, models.StatusAssigned, rep.Status)

		queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, r2.Key(), queue[0].Key())

		queue, err = env.svc.Moderation.AssignedQueue(ctx, second.ID)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, r1.Key(), queue[0].Key())

		env.flush(t)
		assert.Equal(t, second.ID, int64Col(t, env.row(t, repository.KindPostReports, r1.ID), "adminId"))
	})
}

func TestModerationService_Claim(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	tick := 0
	env.svc.Registry.now = func() time.Time {
		tick++
		return time.Date(2024, 2, 1, 0, tick, 0, 0, time.UTC)
	}

	first, err := env.svc.Moderation.Submit(ctx, userReport(1, 2, "first"))
	require.NoError(t, err)
	secondRep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "second"))
	require.NoError(t, err)

	rep, err := env.svc.Moderation.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Key(), rep.Key())

	rep, err = env.svc.Moderation.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, secondRep.Key(), rep.Key())

	_, err = env.svc.Moderation.Claim(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.Key(), queue[0].Key())

	_, err = env.svc.Moderation.Claim(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModerationService_ClaimConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	var admins []int64
	for i := 0; i < 5; i++ {
		admins = append(admins, env.admin(t, fmt.Sprintf("mod%d", i)).ID)
	}
	for i := 0; i < 20; i++ {
		_, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, fmt.Sprintf("spam %d", i)))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[models.ReportKey]int64)
	var wg sync.WaitGroup
	for _, id := range admins {
		wg.Add(1)
		go func(adminID int64) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				rep, err := env.svc.Moderation.Claim(ctx, adminID)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				_, dup := claimed[rep.Key()]
				claimed[rep.Key()] = adminID
				mu.Unlock()
				assert.False(t, dup, "жалоба %s выдана дважды", rep.Key())
			}
		}(id)
	}
	wg.Wait()

	assert.Len(t, claimed, 20)
	for _, id := range admins {
		queue, err := env.svc.Moderation.AssignedQueue(ctx, id)
		require.NoError(t, err)
		assert.Len(t, queue, 4)
	}
}

func TestModerationService_ChangeStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	_, err = env.svc.Moderation.Assign(ctx, rep.Key(), 0, 1)
	require.NoError(t, err)

	for _, status := range []models.Status{models.StatusProcessing, models.StatusBlocked, models.StatusCreated, models.StatusProcessing} {
		got, err := env.svc.Moderation.ChangeStatus(ctx, rep.Key(), status)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}

	_, err = env.svc.Moderation.ChangeStatus(ctx, rep.Key(), "DONE")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	env.flush(t)
	assert.Equal(t, "PROCESSING", env.row(t, repository.KindPostReports, rep.ID)["status"])

	got, err := env.svc.Moderation.ChangeStatus(ctx, rep.Key(), models.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)

	queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, queue, "закрытие через смену статуса убирает жалобу из очереди")
}

func TestModerationService_CloseAndDeleteAccount(t *testing.T) {
	ctx := context.Background()
	archive := new(MockArchive)
	env := newTestEnvWith(t, seedGateway(t), archive)

	rep, err := env.svc.Moderation.Submit(ctx, userReport(1, 2, "troll"))
	require.NoError(t, err)
	require.NoError(t, env.svc.User.Follow(ctx, 1, 2))
	require.NoError(t, env.svc.Post.Like(ctx, 1, 7))

	archive.On("ArchiveAccount", int64(2), 1, rep.Key().String()).Return("accounts/2/x.json", nil)

	closed, err := env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	_, err = env.svc.User.GetUser(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.Post.GetPostByID(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	detail, err := env.svc.Moderation.Detail(ctx, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, "alice", detail.Reporter)
	assert.Equal(t, Removed, detail.Target)
	assert.True(t, detail.TargetRemoved)

	env.flush(t)
	assert.Equal(t, 0, env.count(t, repository.KindLikes))
	assert.Equal(t, 0, env.count(t, repository.KindFollows))
	archive.AssertExpectations(t)

	t.Run("Пользователь без администратора", func(t *testing.T) {
		r, err := env.svc.Moderation.Submit(ctx, userReport(1, 1, "self"))
		require.NoError(t, err)
		_, err = env.svc.Moderation.CloseAndDelete(ctx, 42, r.Key())
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = env.svc.User.GetUser(ctx, 1)
		assert.NoError(t, err)
	})
}

func TestModerationService_CloseAndDeleteRemovedTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)

	bob, err := env.svc.User.GetUser(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, env.svc.Post.RemovePost(ctx, bob, 7))

	detail, err := env.svc.Moderation.Detail(ctx, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, Removed, detail.Target)
	assert.Nil(t, detail.Post)
	assert.Equal(t, models.StatusCreated, detail.Report.Status)

	closed, err := env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
	require.NoError(t, err, "удалённое содержимое не мешает закрытию")
	assert.Equal(t, models.StatusClosed, closed.Status)
}

func TestModerationService_ArchiveFailure(t *testing.T) {
	ctx := context.Background()
	archive := new(MockArchive)
	env := newTestEnvWith(t, seedGateway(t), archive)

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)

	archive.On("ArchivePost", int64(7), rep.Key().String()).Return("", fmt.Errorf("minio down"))

	_, err = env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
	require.NoError(t, err)

	_, err = env.svc.Post.GetPostByID(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ArchiveErrors))
	archive.AssertExpectations(t)
}

func TestModerationService_Detail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	_, err = env.svc.Moderation.Claim(ctx, 1)
	require.NoError(t, err)

	detail, err := env.svc.Moderation.Detail(ctx, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, "alice", detail.Reporter)
	assert.Equal(t, "buy cheap pills", detail.Target)
	assert.False(t, detail.TargetRemoved)
	assert.Equal(t, "root", detail.Admin)

	alice, err := env.svc.User.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, env.svc.User.DeleteAccount(ctx, alice, 1))

	detail, err = env.svc.Moderation.Detail(ctx, rep.Key())
	require.NoError(t, err)
	assert.Equal(t, Removed, detail.Reporter)

	_, err = env.svc.Moderation.Detail(ctx, models.ReportKey{Kind: models.ReportKindPost, ID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModerationService_Reload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	r1, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "one"))
	require.NoError(t, err)
	r2, err := env.svc.Moderation.Submit(ctx, userReport(1, 2, "two"))
	require.NoError(t, err)
	_, err = env.svc.Moderation.Assign(ctx, r1.Key(), 0, 1)
	require.NoError(t, err)
	_, err = env.svc.Moderation.Assign(ctx, r2.Key(), 0, 1)
	require.NoError(t, err)
	_, err = env.svc.Moderation.ChangeStatus(ctx, r2.Key(), models.StatusBlocked)
	require.NoError(t, err)

	require.NoError(t, env.svc.Registry.Reload(ctx))

	queue, err := env.svc.Moderation.AssignedQueue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, r1.Key(), queue[0].Key())
	assert.Equal(t, models.StatusBlocked, queue[1].Status)
}

func TestExportService_ExportReports(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWith(t, seedGateway(t), storage.NopArchive{})

	rep, err := env.svc.Moderation.Submit(ctx, postReport(1, 7, "spam"))
	require.NoError(t, err)
	_, err = env.svc.Moderation.CloseAndDelete(ctx, 1, rep.Key())
	require.NoError(t, err)
	_, err = env.svc.Moderation.Submit(ctx, userReport(2, 1, "rude"))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := env.svc.Export.ExportReports(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var doc struct {
		Reports []ExportedReport `yaml:"reports"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Reports, 2)
	assert.Equal(t, "post-report:1", doc.Reports[0].Key)
	assert.Equal(t, models.StatusClosed, doc.Reports[0].Status)
	assert.True(t, doc.Reports[0].Removed)
	assert.Equal(t, Removed, doc.Reports[0].Target)
	assert.Equal(t, "bob", doc.Reports[1].Reporter)
	assert.Equal(t, "alice", doc.Reports[1].Target)
}

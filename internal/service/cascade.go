package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ysocial/internal/models"
)

// syncLikeCount stores the like count recomputed from the likes rows.
func (r *Registry) syncLikeCount(ctx context.Context, postID int64) error {
	ids, err := r.repo.Relation.GetLikerIDs(ctx, postID)
	if err != nil {
		return err
	}
	return r.repo.Post.UpdateLikeCount(ctx, postID, len(ids))
}

// syncFollowerCount stores the follower count recomputed from the follows rows.
func (r *Registry) syncFollowerCount(ctx context.Context, userID int64) error {
	ids, err := r.repo.Relation.GetFollowerIDs(ctx, userID)
	if err != nil {
		return err
	}
	return r.repo.User.UpdateFollowerCount(ctx, userID, len(ids))
}

func (r *Registry) archivePost(ctx context.Context, post *models.Post, reason string) {
	object, err := r.archive.ArchivePost(ctx, post, reason)
	if err != nil {
		r.metrics.ArchiveErrors.Inc()
		r.log.Warn("не удалось сохранить снимок поста", slog.Int64("post_id", post.ID), slog.Any("error", err))
		return
	}
	if object != "" {
		r.log.Info("снимок поста сохранён", slog.Int64("post_id", post.ID), slog.String("object", object))
	}
}

func (r *Registry) archiveAccount(ctx context.Context, user *models.UserAccount, posts []*models.Post, reason string) {
	object, err := r.archive.ArchiveAccount(ctx, user, posts, reason)
	if err != nil {
		r.metrics.ArchiveErrors.Inc()
		r.log.Warn("не удалось сохранить снимок аккаунта", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return
	}
	if object != "" {
		r.log.Info("снимок аккаунта сохранён", slog.Int64("user_id", user.ID), slog.String("object", object))
	}
}

// removePost deletes the post and its like rows. The caller holds graph
// shared and the post lock. With wait the store write completes before the
// post leaves memory; otherwise it is queued and the post leaves at once.
// A non-empty reason archives a snapshot first.
func (r *Registry) removePost(ctx context.Context, post *models.Post, reason string, wait bool) error {
	snapshot := post.Clone()
	write := func(ctx context.Context) error {
		if reason != "" {
			r.archivePost(ctx, snapshot, reason)
		}
		if err := r.repo.Relation.DeleteLikesOnPost(ctx, snapshot.ID); err != nil {
			return err
		}
		return r.repo.Post.Delete(ctx, snapshot.ID)
	}

	key := models.PostKey(post.ID)
	if wait {
		if err := r.pool.Do(ctx, key, "delete post", write); err != nil {
			return storeErr("ошибка при удалении поста", err)
		}
	} else if err := r.submit(key, "delete post", write); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.posts, post.ID)
	r.mu.Unlock()

	r.metrics.CascadeDeletes.WithLabelValues("post").Inc()
	r.log.Info("пост удалён",
		slog.Int64("post_id", post.ID),
		slog.Int64("author_id", post.AuthorID),
		slog.Int("likes", post.LikeCount),
		slog.String("reason", reason),
	)
	return nil
}

// deleteAccount removes a user together with their posts, their likes and
// their follow rows on both sides, recomputing every count it touches.
// It takes graph exclusively; the caller must not hold it.
func (r *Registry) deleteAccount(ctx context.Context, userID int64, reason string) error {
	r.graph.Lock()
	defer r.graph.Unlock()

	user, err := r.user(userID)
	if err != nil {
		return err
	}

	// queued writes for other entities may still reference the account
	if err := r.pool.Flush(ctx); err != nil {
		return fmt.Errorf("ошибка при ожидании записи: %w", err)
	}

	r.mu.RLock()
	var own []*models.Post
	var liked []int64
	for _, p := range r.posts {
		switch {
		case p.AuthorID == userID:
			own = append(own, p.Clone())
		case p.LikerIDs[userID]:
			liked = append(liked, p.ID)
		}
	}
	var followees []int64
	for _, u := range r.users {
		if u.ID != userID && u.FollowerIDs[userID] {
			followees = append(followees, u.ID)
		}
	}
	r.mu.RUnlock()

	snapshot := user.Clone()
	write := func(ctx context.Context) error {
		if reason != "" {
			r.archiveAccount(ctx, snapshot, own, reason)
		}
		for _, p := range own {
			if err := r.repo.Relation.DeleteLikesOnPost(ctx, p.ID); err != nil {
				return err
			}
		}
		if err := r.repo.Post.DeleteByAuthor(ctx, userID); err != nil {
			return err
		}
		if err := r.repo.Relation.DeleteLikesBy(ctx, userID); err != nil {
			return err
		}
		for _, id := range liked {
			if err := r.syncLikeCount(ctx, id); err != nil {
				return err
			}
		}
		if err := r.repo.Relation.DeleteFollowsOf(ctx, userID); err != nil {
			return err
		}
		for _, id := range followees {
			if err := r.syncFollowerCount(ctx, id); err != nil {
				return err
			}
		}
		return r.repo.User.DeleteUser(ctx, userID)
	}
	if err := r.pool.Do(ctx, models.UserKey(userID), "delete account", write); err != nil {
		return storeErr("ошибка при удалении аккаунта", err)
	}

	r.mu.Lock()
	for _, p := range own {
		delete(r.posts, p.ID)
	}
	for _, id := range liked {
		r.posts[id].Unlike(userID)
	}
	for _, id := range followees {
		r.users[id].Unfollow(userID)
	}
	delete(r.users, userID)
	r.mu.Unlock()

	r.metrics.CascadeDeletes.WithLabelValues("account").Inc()
	r.metrics.CascadeDeletes.WithLabelValues("post").Add(float64(len(own)))
	r.log.Info("аккаунт удалён",
		slog.Int64("user_id", userID),
		slog.Int("posts", len(own)),
		slog.Int("likes", len(liked)),
		slog.Int("followees", len(followees)),
		slog.String("reason", reason),
	)
	return nil
}

// ignoreNotFound treats content that is already gone as removed.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

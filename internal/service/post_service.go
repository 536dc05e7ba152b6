package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"ysocial/internal/models"
)

type CreatePostRequest struct {
	AuthorID int64  `validate:"required,gt=0"`
	Text     string `validate:"required,max=1000"`
}

type PostService interface {
	CreatePost(ctx context.Context, req CreatePostRequest) (*models.Post, error)
	// RemovePost deletes the post if the actor may remove it. The store
	// write is queued.
	RemovePost(ctx context.Context, actor models.Account, postID int64) error
	GetPostByID(ctx context.Context, postID int64) (*models.Post, error)
	// Feed returns posts newest first; limit <= 0 returns all of them.
	Feed(ctx context.Context, limit int) ([]*models.Post, error)
	PostsByUser(ctx context.Context, userID int64) ([]*models.Post, error)
	Like(ctx context.Context, userID, postID int64) error
	Unlike(ctx context.Context, userID, postID int64) error
}

type postService struct {
	reg      *Registry
	validate *validator.Validate
}

func NewPostService(reg *Registry, validate *validator.Validate) PostService {
	return &postService{
		reg:      reg,
		validate: validate,
	}
}

func (s *postService) CreatePost(ctx context.Context, req CreatePostRequest) (*models.Post, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.user(req.AuthorID); err != nil {
		return nil, err
	}

	post := models.NewPost(0, req.AuthorID, req.Text, s.reg.now())
	err := s.reg.pool.Do(ctx, models.UserKey(req.AuthorID), "create post", func(ctx context.Context) error {
		return s.reg.repo.Post.Create(ctx, post)
	})
	if err != nil {
		return nil, storeErr("ошибка при создании поста", err)
	}

	s.reg.mu.Lock()
	s.reg.posts[post.ID] = post
	s.reg.mu.Unlock()

	s.reg.log.Info("создан пост", slog.Int64("post_id", post.ID), slog.Int64("author_id", post.AuthorID))
	return post.Clone(), nil
}

func (s *postService) RemovePost(ctx context.Context, actor models.Account, postID int64) error {
	if actor == nil {
		return fmt.Errorf("%w: вход не выполнен", ErrForbidden)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	unlock := s.reg.locks.lock(models.PostKey(postID))
	defer unlock()

	post, err := s.reg.post(postID)
	if err != nil {
		return err
	}

	// check access rights
	if !actor.CanRemovePost(post) {
		return fmt.Errorf("%w: %s %d не может удалить пост %d", ErrForbidden, actor.AccountRole(), actor.AccountID(), postID)
	}

	var reason string
	if actor.AccountRole() == models.RoleAdmin {
		reason = fmt.Sprintf("removed by admin %d", actor.AccountID())
	}
	return s.reg.removePost(ctx, post, reason, false)
}

func (s *postService) GetPostByID(ctx context.Context, postID int64) (*models.Post, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.clonePost(postID)
}

// clonePost copies the post under its lock. The caller holds graph.
func (s *postService) clonePost(postID int64) (*models.Post, error) {
	unlock := s.reg.locks.lock(models.PostKey(postID))
	defer unlock()

	post, err := s.reg.post(postID)
	if err != nil {
		return nil, err
	}
	return post.Clone(), nil
}

func (s *postService) list(authorID int64) []*models.Post {
	ids := s.reg.postIDs(authorID)
	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		post, err := s.clonePost(id)
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].DatePosted.Equal(posts[j].DatePosted) {
			return posts[i].DatePosted.After(posts[j].DatePosted)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts
}

func (s *postService) Feed(ctx context.Context, limit int) ([]*models.Post, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	posts := s.list(0)
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *postService) PostsByUser(ctx context.Context, userID int64) ([]*models.Post, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.user(userID); err != nil {
		return nil, err
	}
	return s.list(userID), nil
}

func (s *postService) Like(ctx context.Context, userID, postID int64) error {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.user(userID); err != nil {
		return err
	}

	key := models.PostKey(postID)
	unlock := s.reg.locks.lock(key)
	defer unlock()

	post, err := s.reg.post(postID)
	if err != nil {
		return err
	}
	if post.LikerIDs[userID] {
		return nil
	}

	err = s.reg.submit(key, "like", func(ctx context.Context) error {
		if err := s.reg.repo.Relation.Like(ctx, userID, postID); err != nil {
			return err
		}
		return s.reg.syncLikeCount(ctx, postID)
	})
	if err != nil {
		return err
	}

	post.Like(userID)
	s.reg.log.Debug("лайк", slog.Int64("user_id", userID), slog.Int64("post_id", postID), slog.Int("likes", post.LikeCount))
	return nil
}

func (s *postService) Unlike(ctx context.Context, userID, postID int64) error {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	key := models.PostKey(postID)
	unlock := s.reg.locks.lock(key)
	defer unlock()

	post, err := s.reg.post(postID)
	if err != nil {
		return err
	}
	if !post.LikerIDs[userID] {
		return nil
	}

	err = s.reg.submit(key, "unlike", func(ctx context.Context) error {
		if err := s.reg.repo.Relation.Unlike(ctx, userID, postID); err != nil {
			return err
		}
		return s.reg.syncLikeCount(ctx, postID)
	})
	if err != nil {
		return err
	}

	post.Unlike(userID)
	s.reg.log.Debug("лайк снят", slog.Int64("user_id", userID), slog.Int64("post_id", postID), slog.Int("likes", post.LikeCount))
	return nil
}

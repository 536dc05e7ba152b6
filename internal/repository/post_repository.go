package repository

import (
	"context"
	"fmt"
	"time"

	"ysocial/internal/models"
)

type PostRepositoryImpl struct {
	gw Gateway
}

func NewPostRepository(gw Gateway) *PostRepositoryImpl {
	return &PostRepositoryImpl{gw: gw}
}

func PostFromRecord(rec Record) (*models.Post, error) {
	id, err := rec.Int64("id")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе поста: %w", err)
	}
	authorID, err := rec.Int64("userId")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе поста %d: %w", id, err)
	}
	content, err := rec.String("content")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе поста %d: %w", id, err)
	}
	posted, err := rec.Time("datePosted")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе поста %d: %w", id, err)
	}
	likes, err := rec.Int64("numLikes")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе поста %d: %w", id, err)
	}

	post := models.NewPost(id, authorID, content, posted)
	post.LikeCount = int(likes)
	return post, nil
}

func (r *PostRepositoryImpl) Create(ctx context.Context, post *models.Post) error {
	if post.DatePosted.IsZero() {
		post.DatePosted = time.Now().UTC()
	}

	fields := []Field{
		F("userId", post.AuthorID),
		F("content", post.Text),
		F("numLikes", len(post.LikerIDs)),
		F("datePosted", post.DatePosted.Unix()),
	}
	if post.ID != 0 {
		fields = append(fields, F("id", post.ID))
	}

	id, err := r.gw.Insert(ctx, KindPosts, fields...)
	if err != nil {
		return fmt.Errorf("ошибка при создании поста: %w", err)
	}

	post.ID = id
	return nil
}

func (r *PostRepositoryImpl) GetAll(ctx context.Context) ([]*models.Post, error) {
	records, err := r.gw.SelectAll(ctx, KindPosts)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении постов: %w", err)
	}

	posts := make([]*models.Post, 0, len(records))
	for _, rec := range records {
		post, err := PostFromRecord(rec)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *PostRepositoryImpl) UpdateLikeCount(ctx context.Context, postID int64, count int) error {
	rowsAffected, err := r.gw.Update(ctx, KindPosts, []Field{F("numLikes", count)}, F("id", postID))
	if err != nil {
		return fmt.Errorf("ошибка при обновлении числа лайков: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("пост с ID %d: %w", postID, ErrNotFound)
	}
	return nil
}

func (r *PostRepositoryImpl) Delete(ctx context.Context, postID int64) error {
	rowsAffected, err := r.gw.Delete(ctx, KindPosts, F("id", postID))
	if err != nil {
		return fmt.Errorf("ошибка при удалении поста: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("пост с ID %d: %w", postID, ErrNotFound)
	}
	return nil
}

func (r *PostRepositoryImpl) DeleteByAuthor(ctx context.Context, authorID int64) error {
	if _, err := r.gw.Delete(ctx, KindPosts, F("userId", authorID)); err != nil {
		return fmt.Errorf("ошибка при удалении постов пользователя %d: %w", authorID, err)
	}
	return nil
}

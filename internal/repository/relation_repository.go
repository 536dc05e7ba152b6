package repository

import (
	"context"
	"fmt"
)

// RelationRepositoryImpl keeps the follows and likes rows. Counts are never
// stored here; callers recompute them from the id sets.
type RelationRepositoryImpl struct {
	gw Gateway
}

func NewRelationRepository(gw Gateway) *RelationRepositoryImpl {
	return &RelationRepositoryImpl{gw: gw}
}

func (r *RelationRepositoryImpl) Follow(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.gw.Insert(ctx, KindFollows, F("followerId", followerID), F("followeeId", followeeID))
	if err != nil {
		return fmt.Errorf("ошибка при создании подписки: %w", err)
	}
	return nil
}

func (r *RelationRepositoryImpl) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.gw.Delete(ctx, KindFollows, F("followerId", followerID), F("followeeId", followeeID))
	if err != nil {
		return fmt.Errorf("ошибка при удалении подписки: %w", err)
	}
	return nil
}

func (r *RelationRepositoryImpl) GetFollowerIDs(ctx context.Context, followeeID int64) ([]int64, error) {
	records, err := r.gw.SelectWhere(ctx, KindFollows, F("followeeId", followeeID))
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении подписчиков: %w", err)
	}
	return column(records, "followerId")
}

// GetAllFollows returns follower ids grouped by followee id.
func (r *RelationRepositoryImpl) GetAllFollows(ctx context.Context) (map[int64][]int64, error) {
	records, err := r.gw.SelectAll(ctx, KindFollows)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении подписок: %w", err)
	}
	return group(records, "followeeId", "followerId")
}

// DeleteFollowsOf removes every follow row the user takes part in, on either side.
func (r *RelationRepositoryImpl) DeleteFollowsOf(ctx context.Context, userID int64) error {
	if _, err := r.gw.Delete(ctx, KindFollows, F("followerId", userID)); err != nil {
		return fmt.Errorf("ошибка при удалении подписок пользователя %d: %w", userID, err)
	}
	if _, err := r.gw.Delete(ctx, KindFollows, F("followeeId", userID)); err != nil {
		return fmt.Errorf("ошибка при удалении подписчиков пользователя %d: %w", userID, err)
	}
	return nil
}

func (r *RelationRepositoryImpl) Like(ctx context.Context, userID, postID int64) error {
	_, err := r.gw.Insert(ctx, KindLikes, F("userId", userID), F("postId", postID))
	if err != nil {
		return fmt.Errorf("ошибка при создании лайка: %w", err)
	}
	return nil
}

func (r *RelationRepositoryImpl) Unlike(ctx context.Context, userID, postID int64) error {
	_, err := r.gw.Delete(ctx, KindLikes, F("userId", userID), F("postId", postID))
	if err != nil {
		return fmt.Errorf("ошибка при удалении лайка: %w", err)
	}
	return nil
}

func (r *RelationRepositoryImpl) GetLikerIDs(ctx context.Context, postID int64) ([]int64, error) {
	records, err := r.gw.SelectWhere(ctx, KindLikes, F("postId", postID))
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении лайков: %w", err)
	}
	return column(records, "userId")
}

// GetAllLikes returns liker ids grouped by post id.
func (r *RelationRepositoryImpl) GetAllLikes(ctx context.Context) (map[int64][]int64, error) {
	records, err := r.gw.SelectAll(ctx, KindLikes)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении лайков: %w", err)
	}
	return group(records, "postId", "userId")
}

func (r *RelationRepositoryImpl) DeleteLikesOnPost(ctx context.Context, postID int64) error {
	if _, err := r.gw.Delete(ctx, KindLikes, F("postId", postID)); err != nil {
		return fmt.Errorf("ошибка при удалении лайков поста %d: %w", postID, err)
	}
	return nil
}

func (r *RelationRepositoryImpl) DeleteLikesBy(ctx context.Context, userID int64) error {
	if _, err := r.gw.Delete(ctx, KindLikes, F("userId", userID)); err != nil {
		return fmt.Errorf("ошибка при удалении лайков пользователя %d: %w", userID, err)
	}
	return nil
}

func column(records []Record, col string) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		id, err := rec.Int64(col)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func group(records []Record, keyCol, valueCol string) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	for _, rec := range records {
		key, err := rec.Int64(keyCol)
		if err != nil {
			return nil, err
		}
		value, err := rec.Int64(valueCol)
		if err != nil {
			return nil, err
		}
		out[key] = append(out[key], value)
	}
	return out, nil
}

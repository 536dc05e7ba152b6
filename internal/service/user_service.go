package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ysocial/internal/models"
)

type UserService interface {
	GetUser(ctx context.Context, userID int64) (*models.UserAccount, error)
	// SearchUsers matches a case-insensitive substring of the username.
	SearchUsers(ctx context.Context, query string) ([]*models.UserAccount, error)
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
	Followers(ctx context.Context, userID int64) ([]*models.UserAccount, error)
	// DeleteAccount removes the account and everything it owns. Users may
	// delete only themselves; admins may delete any user.
	DeleteAccount(ctx context.Context, actor models.Account, userID int64) error
}

type userService struct {
	reg *Registry
}

func NewUserService(reg *Registry) UserService {
	return &userService{reg: reg}
}

// cloneUser copies the user under its lock. The caller holds graph.
func (s *userService) cloneUser(userID int64) (*models.UserAccount, error) {
	unlock := s.reg.locks.lock(models.UserKey(userID))
	defer unlock()

	user, err := s.reg.user(userID)
	if err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

func (s *userService) GetUser(ctx context.Context, userID int64) (*models.UserAccount, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	return s.cloneUser(userID)
}

func (s *userService) SearchUsers(ctx context.Context, query string) ([]*models.UserAccount, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	var found []*models.UserAccount
	for _, id := range s.reg.userIDs() {
		user, err := s.cloneUser(id)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), query) {
			found = append(found, user)
		}
	}
	return found, nil
}

func (s *userService) Follow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return fmt.Errorf("%w: нельзя подписаться на себя", ErrInvalidArgument)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if _, err := s.reg.user(followerID); err != nil {
		return err
	}

	key := models.UserKey(followeeID)
	unlock := s.reg.locks.lock(key)
	defer unlock()

	followee, err := s.reg.user(followeeID)
	if err != nil {
		return err
	}
	if followee.FollowerIDs[followerID] {
		return nil
	}

	err = s.reg.submit(key, "follow", func(ctx context.Context) error {
		if err := s.reg.repo.Relation.Follow(ctx, followerID, followeeID); err != nil {
			return err
		}
		return s.reg.syncFollowerCount(ctx, followeeID)
	})
	if err != nil {
		return err
	}

	followee.Follow(followerID)
	s.reg.log.Debug("подписка",
		slog.Int64("follower_id", followerID),
		slog.Int64("followee_id", followeeID),
		slog.Int("followers", followee.FollowerCount),
	)
	return nil
}

func (s *userService) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	key := models.UserKey(followeeID)
	unlock := s.reg.locks.lock(key)
	defer unlock()

	followee, err := s.reg.user(followeeID)
	if err != nil {
		return err
	}
	if !followee.FollowerIDs[followerID] {
		return nil
	}

	err = s.reg.submit(key, "unfollow", func(ctx context.Context) error {
		if err := s.reg.repo.Relation.Unfollow(ctx, followerID, followeeID); err != nil {
			return err
		}
		return s.reg.syncFollowerCount(ctx, followeeID)
	})
	if err != nil {
		return err
	}

	followee.Unfollow(followerID)
	s.reg.log.Debug("отписка",
		slog.Int64("follower_id", followerID),
		slog.Int64("followee_id", followeeID),
		slog.Int("followers", followee.FollowerCount),
	)
	return nil
}

func (s *userService) Followers(ctx context.Context, userID int64) ([]*models.UserAccount, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	user, err := s.cloneUser(userID)
	if err != nil {
		return nil, err
	}

	// resolved by id, a follower may have been deleted meanwhile
	followers := make([]*models.UserAccount, 0, user.FollowerCount)
	for _, id := range user.Followers() {
		follower, err := s.cloneUser(id)
		if err != nil {
			continue
		}
		followers = append(followers, follower)
	}
	return followers, nil
}

func (s *userService) DeleteAccount(ctx context.Context, actor models.Account, userID int64) error {
	if actor == nil {
		return fmt.Errorf("%w: вход не выполнен", ErrForbidden)
	}

	var reason string
	switch actor.AccountRole() {
	case models.RoleAdmin:
		reason = fmt.Sprintf("removed by admin %d", actor.AccountID())
	default:
		if actor.AccountID() != userID {
			return fmt.Errorf("%w: пользователь %d не может удалить аккаунт %d", ErrForbidden, actor.AccountID(), userID)
		}
	}

	return s.reg.deleteAccount(ctx, userID, reason)
}

package repository

import (
	"context"
	"fmt"

	"ysocial/internal/models"
)

type userRepository struct {
	gw Gateway
}

func NewUserRepository(gw Gateway) UserRepository {
	return &userRepository{gw: gw}
}

func profileFromRecord(rec Record) (models.Profile, error) {
	var p models.Profile
	var err error

	if p.ID, err = rec.Int64("id"); err != nil {
		return p, err
	}
	if p.Name, err = rec.String("name"); err != nil {
		return p, err
	}
	if p.Email, err = rec.String("email"); err != nil {
		return p, err
	}
	if p.Username, err = rec.String("username"); err != nil {
		return p, err
	}
	if p.Password, err = rec.String("password"); err != nil {
		return p, err
	}
	return p, nil
}

// UserFromRecord maps a users row. The follower set is filled separately
// from the follows table; until then the stored count is kept.
func UserFromRecord(rec Record) (*models.UserAccount, error) {
	profile, err := profileFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе пользователя: %w", err)
	}
	user := models.NewUserAccount(profile)

	count, err := rec.Int64("numFollowers")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе пользователя %d: %w", profile.ID, err)
	}
	user.FollowerCount = int(count)
	return user, nil
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.UserAccount) error {
	id, err := r.gw.Insert(ctx, KindUsers,
		F("name", user.Name),
		F("email", user.Email),
		F("username", user.Username),
		F("password", user.Password),
		F("numFollowers", user.FollowerCount),
	)
	if err != nil {
		return fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	user.ID = id
	return nil
}

func (r *userRepository) GetAllUsers(ctx context.Context) ([]*models.UserAccount, error) {
	records, err := r.gw.SelectAll(ctx, KindUsers)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователей: %w", err)
	}

	users := make([]*models.UserAccount, 0, len(records))
	for _, rec := range records {
		user, err := UserFromRecord(rec)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *userRepository) UpdateFollowerCount(ctx context.Context, userID int64, count int) error {
	rowsAffected, err := r.gw.Update(ctx, KindUsers, []Field{F("numFollowers", count)}, F("id", userID))
	if err != nil {
		return fmt.Errorf("ошибка при обновлении числа подписчиков: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("пользователь с ID %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (r *userRepository) DeleteUser(ctx context.Context, userID int64) error {
	rowsAffected, err := r.gw.Delete(ctx, KindUsers, F("id", userID))
	if err != nil {
		return fmt.Errorf("ошибка при удалении пользователя: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("пользователь с ID %d: %w", userID, ErrNotFound)
	}
	return nil
}

type adminRepository struct {
	gw Gateway
}

func NewAdminRepository(gw Gateway) AdminRepository {
	return &adminRepository{gw: gw}
}

func (r *adminRepository) CreateAdmin(ctx context.Context, admin *models.AdminAccount) error {
	id, err := r.gw.Insert(ctx, KindAdmins,
		F("name", admin.Name),
		F("email", admin.Email),
		F("username", admin.Username),
		F("password", admin.Password),
	)
	if err != nil {
		return fmt.Errorf("ошибка при создании администратора: %w", err)
	}

	admin.ID = id
	return nil
}

func (r *adminRepository) GetAllAdmins(ctx context.Context) ([]*models.AdminAccount, error) {
	records, err := r.gw.SelectAll(ctx, KindAdmins)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении администраторов: %w", err)
	}

	admins := make([]*models.AdminAccount, 0, len(records))
	for _, rec := range records {
		profile, err := profileFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("ошибка при разборе администратора: %w", err)
		}
		admins = append(admins, models.NewAdminAccount(profile))
	}
	return admins, nil
}

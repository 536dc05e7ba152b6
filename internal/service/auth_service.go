package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"ysocial/internal/models"
)

type RegisterRequest struct {
	Role     models.Role `validate:"required,oneof=user admin"`
	Name     string      `validate:"required,max=100"`
	Email    string      `validate:"required,email,max=254"`
	Username string      `validate:"required,max=64,excludesall= "`
	Password string      `validate:"required,max=72"`
}

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (models.Account, error)
	// Authenticate binds the account to the session on success. An empty
	// role tries the admins first, then the users.
	Authenticate(ctx context.Context, session *Session, username, password string, role models.Role) (models.Account, error)
	Current(session *Session) (models.Account, error)
}

type authService struct {
	reg      *Registry
	hasher   PasswordHasher
	validate *validator.Validate
}

func NewAuthService(reg *Registry, hasher PasswordHasher, validate *validator.Validate) AuthService {
	return &authService{
		reg:      reg,
		hasher:   hasher,
		validate: validate,
	}
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	unlock := s.reg.locks.lock("username:"+req.Username, "email:"+string(req.Role)+":"+req.Email)
	defer unlock()

	usernameTaken, emailTaken := s.reg.taken(req.Role, req.Username, req.Email)
	if usernameTaken {
		return nil, fmt.Errorf("имя пользователя %s: %w", req.Username, ErrConstraintViolation)
	}
	if emailTaken {
		return nil, fmt.Errorf("email %s: %w", req.Email, ErrConstraintViolation)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	profile := models.Profile{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: hashed,
	}

	var account models.Account
	switch req.Role {
	case models.RoleAdmin:
		admin := models.NewAdminAccount(profile)
		err = s.reg.pool.Do(ctx, "username:"+req.Username, "create admin", func(ctx context.Context) error {
			return s.reg.repo.Admin.CreateAdmin(ctx, admin)
		})
		if err != nil {
			return nil, storeErr("ошибка при регистрации администратора", err)
		}
		s.reg.mu.Lock()
		s.reg.admins[admin.ID] = admin
		s.reg.mu.Unlock()
		account = admin.Clone()
	default:
		user := models.NewUserAccount(profile)
		err = s.reg.pool.Do(ctx, "username:"+req.Username, "create user", func(ctx context.Context) error {
			return s.reg.repo.User.CreateUser(ctx, user)
		})
		if err != nil {
			return nil, storeErr("ошибка при регистрации пользователя", err)
		}
		s.reg.mu.Lock()
		s.reg.users[user.ID] = user
		s.reg.mu.Unlock()
		account = user.Clone()
	}

	s.reg.log.Info("зарегистрирован аккаунт",
		slog.String("role", string(req.Role)),
		slog.Int64("id", account.AccountID()),
		slog.String("username", req.Username),
	)
	return account, nil
}

func (s *authService) Authenticate(ctx context.Context, session *Session, username, password string, role models.Role) (models.Account, error) {
	roles := []models.Role{role}
	if role == "" {
		roles = []models.Role{models.RoleAdmin, models.RoleUser}
	}

	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	for _, r := range roles {
		account := s.reg.account(username, r)
		if account == nil {
			continue
		}
		if !s.hasher.Compare(storedPassword(account), password) {
			continue
		}

		session.bind(account)
		s.reg.metrics.LoginAttempts.WithLabelValues(string(r), "ok").Inc()
		s.reg.log.Info("вход выполнен",
			slog.String("session", session.ID.String()),
			slog.String("role", string(r)),
			slog.Int64("id", account.AccountID()),
		)
		return s.reg.snapshot(account), nil
	}

	s.reg.metrics.LoginAttempts.WithLabelValues(string(role), "failed").Inc()
	s.reg.log.Warn("неудачная попытка входа",
		slog.String("session", session.ID.String()),
		slog.String("username", username),
	)
	return nil, ErrAuthFailed
}

// Current returns the account bound to the session.
func (s *authService) Current(session *Session) (models.Account, error) {
	s.reg.graph.RLock()
	defer s.reg.graph.RUnlock()

	if id, ok := session.CurrentAdminID(); ok {
		admin, err := s.reg.admin(id)
		if err != nil {
			return nil, err
		}
		return s.reg.snapshot(admin), nil
	}
	if id, ok := session.CurrentUserID(); ok {
		user, err := s.reg.user(id)
		if err != nil {
			return nil, err
		}
		return s.reg.snapshot(user), nil
	}
	return nil, fmt.Errorf("%w: вход не выполнен", ErrForbidden)
}

func storedPassword(account models.Account) string {
	switch a := account.(type) {
	case *models.UserAccount:
		return a.Password
	case *models.AdminAccount:
		return a.Password
	}
	return ""
}

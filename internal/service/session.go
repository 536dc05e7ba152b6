package service

import (
	"sync"

	"github.com/google/uuid"

	"ysocial/internal/models"
)

// Session binds at most one principal: a user or an admin, never both.
type Session struct {
	ID uuid.UUID

	mu      sync.RWMutex
	userID  int64
	adminID int64
}

func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

func (s *Session) bind(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID, s.adminID = 0, 0
	switch account.AccountRole() {
	case models.RoleAdmin:
		s.adminID = account.AccountID()
	default:
		s.userID = account.AccountID()
	}
}

func (s *Session) CurrentUserID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != 0
}

func (s *Session) CurrentAdminID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminID, s.adminID != 0
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.adminID = 0, 0
}

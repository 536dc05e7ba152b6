package service

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"ysocial/internal/config"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(stored, password string) bool
}

func NewPasswordHasher(scheme string) (PasswordHasher, error) {
	switch scheme {
	case config.SchemeBcrypt, "":
		return bcryptHasher{cost: bcrypt.DefaultCost}, nil
	case config.SchemePlain:
		return plainHasher{}, nil
	}
	return nil, fmt.Errorf("неизвестная схема хранения паролей: %q", scheme)
}

type bcryptHasher struct {
	cost int
}

func (h bcryptHasher) Hash(password string) (string, error) {
	// create password hash
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	return string(hashed), nil
}

func (h bcryptHasher) Compare(stored, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// plainHasher keeps the legacy plaintext format of existing databases.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return password, nil
}

func (plainHasher) Compare(stored, password string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

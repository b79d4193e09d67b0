/**
 * @description
 * Account lifecycle operations: registration persistence and credential
 * verification. Password hashes never leave this layer in plaintext form.
 */

package app

import (
	"context"
	"errors"

	"github.com/pouchpay/wallet-service/internal/domain"
	"github.com/pouchpay/wallet-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both an unknown email and a wrong password so
// login responses cannot be used to discover which emails are registered.
var ErrInvalidCredentials = errors.New("invalid email or password")

// CreateAccount persists a new account and sends the welcome notification.
func (s *Service) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return err
	}
	s.notify(ctx, account.Email, "Welcome to your wallet",
		"Your wallet account has been created.")
	return nil
}

// Authenticate verifies an email/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
)

// maxAccountsPerUser bounds how many broker accounts one user can register
const maxAccountsPerUser = 50

// AccountService handles broker account operations
type AccountService struct {
	accountRepo *repository.AccountRepository
}

// NewAccountService creates a new AccountService
func NewAccountService(accountRepo *repository.AccountRepository) *AccountService {
	return &AccountService{accountRepo: accountRepo}
}

// CreateAccountRequest represents the create account request
type CreateAccountRequest struct {
	Name     string          `json:"name" binding:"required,max=100"`
	Platform models.Platform `json:"platform" binding:"required,oneof=tradovate topstepx ninjatrader metatrader other"`
	Currency string          `json:"currency" binding:"omitempty,len=3"`
}

// CreateAccount registers a broker account
func (s *AccountService) CreateAccount(ctx context.Context, userID uint, req *CreateAccountRequest) (*models.Account, error) {
	count, err := s.accountRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	if count >= maxAccountsPerUser {
		return nil, invalid("account", fmt.Sprintf("limit of %d accounts reached", maxAccountsPerUser))
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	account := &models.Account{
		UserID:   userID,
		Name:     strings.TrimSpace(req.Name),
		Platform: req.Platform,
		Currency: currency,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccount retrieves an account owned by userID
func (s *AccountService) GetAccount(ctx context.Context, id, userID uint) (*models.Account, error) {
	account, err := s.accountRepo.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListAccounts returns every account of a user
func (s *AccountService) ListAccounts(ctx context.Context, userID uint) ([]models.Account, error) {
	return s.accountRepo.GetByUserID(ctx, userID)
}

// DeleteAccount removes an account; its trades are kept and detached
func (s *AccountService) DeleteAccount(ctx context.Context, id, userID uint) error {
	if err := s.accountRepo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

package fund

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserService is the minimal member registry the fund needs. Full
// account management (auth, profiles) lives elsewhere.
type UserService struct {
	Store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{Store: store}
}

// Register creates an active member with zero balance at the front of
// the rotation queue.
func (us *UserService) Register(ctx context.Context, name string) (*User, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}

	u := User{
		ID:        uuid.New().String(),
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	err := us.Store.WithTx(ctx, func(tx Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Deactivate soft-deletes a member, excluding them from future
// rotation. History and balance are kept.
func (us *UserService) Deactivate(ctx context.Context, userID string) error {
	return us.Store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrNotFound
		}
		u.IsActive = false
		return tx.UpdateUser(ctx, *u)
	})
}

// Get returns a member.
func (us *UserService) Get(ctx context.Context, userID string) (*User, error) {
	u, err := us.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// Transactions returns a member's most recent ledger entries.
func (us *UserService) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return us.Store.ListTransactionsByUser(ctx, userID, limit)
}

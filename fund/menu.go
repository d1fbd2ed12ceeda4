/*
menu.go - Snack menus

PURPOSE:
  Ad-hoc group purchases outside the daily lunch: someone opens a menu,
  people place itemized orders, the creator locks and settles it. The
  settlement itself lives in settlement.go (itemized source).

  Status moves forward only: open -> locked -> settled. Locking exists
  so order edits cannot race the settlement.
*/
package fund

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MenuService manages snack menus and their orders.
type MenuService struct {
	Store Store
}

func NewMenuService(store Store) *MenuService {
	return &MenuService{Store: store}
}

// Create opens a new menu.
func (ms *MenuService) Create(ctx context.Context, creatorID, title string) (*Menu, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "required"}
	}

	var out *Menu
	err := ms.Store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, creatorID)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return ErrNotFound
		}

		m := Menu{
			ID:        uuid.New().String(),
			CreatorID: creatorID,
			Title:     title,
			Status:    MenuOpen,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateMenu(ctx, m); err != nil {
			return err
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder sets a user's itemized total on an open menu. Ordering
// again replaces the previous amount.
func (ms *MenuService) PlaceOrder(ctx context.Context, menuID, userID string, amount int64, note string) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}

	return ms.Store.WithTx(ctx, func(tx Tx) error {
		m, err := tx.GetMenu(ctx, menuID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound
		}
		if m.Status != MenuOpen {
			return &StateError{Entity: "menu", Status: string(m.Status), Want: string(MenuOpen)}
		}

		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return ErrNotFound
		}

		return tx.UpsertMenuOrder(ctx, MenuOrder{
			MenuID: menuID,
			UserID: userID,
			Amount: amount,
			Note:   note,
		})
	})
}

// Lock freezes orders ahead of settlement. Only the creator may lock.
func (ms *MenuService) Lock(ctx context.Context, menuID, userID string) error {
	return ms.Store.WithTx(ctx, func(tx Tx) error {
		m, err := tx.GetMenu(ctx, menuID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNotFound
		}
		if m.CreatorID != userID {
			return ErrForbidden
		}
		if m.Status != MenuOpen {
			return &StateError{Entity: "menu", Status: string(m.Status), Want: string(MenuOpen)}
		}
		m.Status = MenuLocked
		return tx.UpdateMenu(ctx, *m)
	})
}

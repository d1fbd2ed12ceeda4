/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes for the HTTP API, kept separate from the domain types so
  wire format and storage can evolve independently. Amounts are integers
  in the smallest currency unit.

SEE ALSO:
  - handlers.go: where these are produced and consumed
*/
package api

import (
	"time"

	"github.com/crewlunch/lunchfund/fund"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateUserRequest struct {
	Name string `json:"name"`
}

type JoinSessionRequest struct {
	UserID string `json:"user_id"`
}

type SettleSessionRequest struct {
	PayerID    string `json:"payer_id"`
	TotalBill  int64  `json:"total_bill"`
	ReceiptRef string `json:"receipt_ref,omitempty"`
}

type CreateMenuRequest struct {
	CreatorID string `json:"creator_id"`
	Title     string `json:"title"`
}

type PlaceOrderRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

type LockMenuRequest struct {
	UserID string `json:"user_id"`
}

type SettleMenuRequest struct {
	SettlerID  string `json:"settler_id"`
	ReceiptRef string `json:"receipt_ref,omitempty"`
}

type TransferRequest struct {
	AdminID string `json:"admin_id"`
	Note    string `json:"note,omitempty"`
}

type ConfirmRequest struct {
	UserID   string `json:"user_id"`
	Response string `json:"response"` // "received" or "not_received"
}

type CreateDepositRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

type DecideDepositRequest struct {
	AdminID string `json:"admin_id"`
	Reason  string `json:"reason,omitempty"`
}

type AdjustmentRequest struct {
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	AdminID string `json:"admin_id"`
	Note    string `json:"note"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type UserDTO struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Balance          int64   `json:"balance"`
	RotationIndex    int     `json:"rotation_index"`
	LastBoughtDate   *string `json:"last_bought_date,omitempty"`
	TotalBoughtTimes int     `json:"total_bought_times"`
	IsActive         bool    `json:"is_active"`
	CreatedAt        string  `json:"created_at"`
}

type SessionDTO struct {
	ID                string    `json:"id"`
	Date              string    `json:"date"`
	Status            string    `json:"status"`
	Buyers            []UserDTO `json:"buyers,omitempty"`
	Participants      []UserDTO `json:"participants,omitempty"`
	TotalParticipants int       `json:"total_participants"`
	PayerID           string    `json:"payer_id,omitempty"`
	TotalBill         int64     `json:"total_bill,omitempty"`
	AmountPerPerson   int64     `json:"amount_per_person,omitempty"`
	SettledAt         string    `json:"settled_at,omitempty"`
}

type SettlementDTO struct {
	ReimbursementID string `json:"reimbursement_id"`
	Participants    int    `json:"participants"`
	AmountPerPerson int64  `json:"amount_per_person"`
	TotalBill       int64  `json:"total_bill"`
}

type MenuDTO struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ReimbursementDTO struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	RefID         string `json:"ref_id"`
	SettlerID     string `json:"settler_id"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	AdminID       string `json:"admin_id,omitempty"`
	AdminNote     string `json:"admin_note,omitempty"`
	TransferredAt string `json:"transferred_at,omitempty"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type TransactionDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	RefID     string `json:"ref_id,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toUserDTO(u fund.User) UserDTO {
	return UserDTO{
		ID:               u.ID,
		Name:             u.Name,
		Balance:          u.Balance,
		RotationIndex:    u.RotationIndex,
		LastBoughtDate:   u.LastBoughtDate,
		TotalBoughtTimes: u.TotalBoughtTimes,
		IsActive:         u.IsActive,
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
	}
}

func toSessionDTO(s fund.Session, participants []fund.User) SessionDTO {
	dto := SessionDTO{
		ID:                s.ID,
		Date:              s.Date,
		Status:            string(s.Status),
		TotalParticipants: s.TotalParticipants,
		PayerID:           s.PayerID,
		TotalBill:         s.TotalBill,
		AmountPerPerson:   s.AmountPerPerson,
	}
	if s.SettledAt != nil {
		dto.SettledAt = s.SettledAt.Format(time.RFC3339)
	}
	for _, p := range participants {
		pdto := toUserDTO(p)
		dto.Participants = append(dto.Participants, pdto)
		if s.HasBuyer(p.ID) {
			dto.Buyers = append(dto.Buyers, pdto)
		}
	}
	return dto
}

func toMenuDTO(m fund.Menu) MenuDTO {
	return MenuDTO{
		ID:          m.ID,
		CreatorID:   m.CreatorID,
		Title:       m.Title,
		Status:      string(m.Status),
		TotalAmount: m.TotalAmount,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

func toReimbursementDTO(r fund.Reimbursement) ReimbursementDTO {
	dto := ReimbursementDTO{
		ID:          r.ID,
		Type:        string(r.Type),
		RefID:       r.RefID,
		SettlerID:   r.SettlerID,
		TotalAmount: r.TotalAmount,
		Status:      string(r.Status),
		AdminID:     r.AdminID,
		AdminNote:   r.AdminNote,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.TransferredAt != nil {
		dto.TransferredAt = r.TransferredAt.Format(time.RFC3339)
	}
	if r.ConfirmedAt != nil {
		dto.ConfirmedAt = r.ConfirmedAt.Format(time.RFC3339)
	}
	return dto
}

func toTransactionDTO(t fund.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        t.ID,
		UserID:    t.UserID,
		Amount:    t.Amount,
		Type:      string(t.Type),
		Status:    string(t.Status),
		RefID:     t.RefID,
		Note:      t.Note,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

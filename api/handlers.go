/*
handlers.go - HTTP API handlers for the lunch fund

PURPOSE:
  Exposes the fund services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates everything else to the fund package.

ENDPOINTS:
  Users:
    POST   /api/users                        Register member
    GET    /api/users/{id}                   Member details and balance
    GET    /api/users/{id}/transactions      Ledger history
    DELETE /api/users/{id}                   Deactivate member

  Sessions:
    GET    /api/sessions/{date}              Day's session with participants
    POST   /api/sessions/{date}/join         Confirm participation
    POST   /api/sessions/{date}/leave        Withdraw participation
    POST   /api/sessions/{id}/select-buyers  Run the rotation
    POST   /api/sessions/{id}/settle         Equal-split settlement

  Menus:
    POST   /api/menus                        Open a snack menu
    POST   /api/menus/{id}/orders            Place/replace an order
    POST   /api/menus/{id}/lock              Freeze orders
    POST   /api/menus/{id}/settle            Itemized settlement

  Reimbursements:
    GET    /api/reimbursements/pending       Admin queue
    GET    /api/reimbursements/{id}          Single request
    POST   /api/reimbursements/{id}/transfer Admin marks transferred
    POST   /api/reimbursements/{id}/confirm  Settler confirms/disputes

  Deposits and admin:
    POST   /api/deposits                     Request a deposit
    POST   /api/deposits/{id}/approve        Credit and approve
    POST   /api/deposits/{id}/reject         Reject without credit
    POST   /api/admin/adjustments            Signed manual correction

ERROR HANDLING:
  Domain errors map to HTTP status via their classification:
  - 400: validation errors
  - 403: forbidden (wrong user/creator)
  - 404: not found (including ineligible reimbursement states)
  - 409: state conflicts (already settled, already processed, ...)
  - 422: insufficient balance, with per-user shortfalls
  - 500: everything else

SECURITY NOTE:
  No authentication middleware. Caller identity arrives in request
  bodies; this runs on a trusted office network.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewlunch/lunchfund/fund"
)

// Handler holds all service dependencies for HTTP handlers.
type Handler struct {
	Users          *fund.UserService
	Sessions       *fund.SessionService
	Rotation       *fund.RotationSelector
	Settlement     *fund.SettlementEngine
	Reimbursements *fund.ReimbursementService
	Deposits       *fund.DepositService
	Menus          *fund.MenuService
}

// NewHandler wires all services over one store.
func NewHandler(store fund.Store, targetBuyers int) *Handler {
	return &Handler{
		Users:          fund.NewUserService(store),
		Sessions:       fund.NewSessionService(store),
		Rotation:       fund.NewRotationSelector(store, targetBuyers),
		Settlement:     fund.NewSettlementEngine(store),
		Reimbursements: fund.NewReimbursementService(store),
		Deposits:       fund.NewDepositService(store),
		Menus:          fund.NewMenuService(store),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	u, err := h.Users.Register(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Users.Transactions(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, participants, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*sess, participants))
}

func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := h.Sessions.Join(r.Context(), req.UserID, chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"status":     "joined",
	})
}

func (h *Handler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Sessions.Leave(r.Context(), req.UserID, chi.URLParam(r, "date")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *Handler) SelectBuyers(w http.ResponseWriter, r *http.Request) {
	buyers, err := h.Rotation.SelectBuyers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	selectionsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"buyers": buyers})
}

func (h *Handler) SettleSession(w http.ResponseWriter, r *http.Request) {
	var req SettleSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	summary, err := h.Settlement.SettleSession(r.Context(),
		chi.URLParam(r, "id"), req.PayerID, req.TotalBill, req.ReceiptRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues(string(fund.ReimburseLunch)).Inc()
	writeJSON(w, http.StatusOK, SettlementDTO{
		ReimbursementID: summary.ReimbursementID,
		Participants:    len(summary.Participants),
		AmountPerPerson: summary.AmountPerPerson,
		TotalBill:       summary.TotalBill,
	})
}

// =============================================================================
// MENU HANDLERS
// =============================================================================

func (h *Handler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	var req CreateMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Menus.Create(r.Context(), req.CreatorID, req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuDTO(*m))
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Menus.PlaceOrder(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Amount, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ordered"})
}

func (h *Handler) LockMenu(w http.ResponseWriter, r *http.Request) {
	var req LockMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Menus.Lock(r.Context(), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

func (h *Handler) SettleMenu(w http.ResponseWriter, r *http.Request) {
	var req SettleMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	summary, err := h.Settlement.SettleMenu(r.Context(),
		chi.URLParam(r, "id"), req.SettlerID, req.ReceiptRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsTotal.WithLabelValues(string(fund.ReimburseSnack)).Inc()
	writeJSON(w, http.StatusOK, SettlementDTO{
		ReimbursementID: summary.ReimbursementID,
		Participants:    len(summary.Participants),
		TotalBill:       summary.TotalBill,
	})
}

// =============================================================================
// REIMBURSEMENT HANDLERS
// =============================================================================

func (h *Handler) ListPendingReimbursements(w http.ResponseWriter, r *http.Request) {
	reimbs, err := h.Reimbursements.ListPending(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ReimbursementDTO, len(reimbs))
	for i, rb := range reimbs {
		dtos[i] = toReimbursementDTO(rb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetReimbursement(w http.ResponseWriter, r *http.Request) {
	rb, err := h.Reimbursements.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReimbursementDTO(*rb))
}

func (h *Handler) TransferReimbursement(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rb, err := h.Reimbursements.MarkTransferred(r.Context(),
		chi.URLParam(r, "id"), req.AdminID, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReimbursementDTO(*rb))
}

func (h *Handler) ConfirmReimbursement(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rb, err := h.Reimbursements.ConfirmReceipt(r.Context(),
		chi.URLParam(r, "id"), req.UserID, fund.ConfirmResponse(req.Response))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReimbursementDTO(*rb))
}

// =============================================================================
// DEPOSIT AND ADMIN HANDLERS
// =============================================================================

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Deposits.CreateDeposit(r.Context(), req.UserID, req.Amount, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	var req DecideDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Deposits.ApproveDeposit(r.Context(), chi.URLParam(r, "id"), req.AdminID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	depositDecisionsTotal.WithLabelValues("approved").Inc()
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req DecideDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Deposits.RejectDeposit(r.Context(), chi.URLParam(r, "id"), req.AdminID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	depositDecisionsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t, err := h.Deposits.AdjustBalance(r.Context(), req.UserID, req.Amount, req.AdminID, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *fund.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "insufficient balance",
			"shortfalls": insufficient.Shortfalls,
		})
		return
	}

	switch {
	case fund.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, fund.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case fund.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case fund.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

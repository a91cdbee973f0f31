/**
 * @description
 * This file contains the HTTP handlers for the settlement-service. Handlers
 * decode and validate the request, resolve the authenticated identity from
 * the context, call the engine, and translate engine errors to HTTP status
 * codes. All financial semantics live in the app layer; handlers never touch
 * balances or journal rows directly.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain: The settlement engine and its contracts.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trustvest/settlement-service/internal/app"
	"github.com/trustvest/settlement-service/internal/domain"
	"github.com/trustvest/settlement-service/internal/store"
)

// SettlementHandlers holds dependencies for the HTTP handlers.
type SettlementHandlers struct {
	Service *app.Service
}

func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{Service: service}
}

type intakeBody struct {
	ExternalRef    string         `json:"external_ref"`
	Amount         int64          `json:"amount"` // in cents
	Currency       string         `json:"currency"`
	Method         string         `json:"method"`
	Urgent         bool           `json:"urgent"`
	AccountDetails map[string]any `json:"account_details,omitempty"`
	Gateway        string         `json:"gateway,omitempty"`
	Device         string         `json:"device,omitempty"`
}

// SubmitDepositHandler accepts a deposit intent for the authenticated
// account.
func (h *SettlementHandlers) SubmitDepositHandler(w http.ResponseWriter, r *http.Request) {
	h.submitIntake(w, r, domain.KindDeposit)
}

// SubmitWithdrawalHandler accepts a withdrawal intent for the authenticated
// account.
func (h *SettlementHandlers) SubmitWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	h.submitIntake(w, r, domain.KindWithdrawal)
}

func (h *SettlementHandlers) submitIntake(w http.ResponseWriter, r *http.Request, kind domain.Kind) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body intakeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.SubmitIntake(r.Context(), domain.IntakeRequest{
		ExternalRef:    body.ExternalRef,
		AccountID:      accountID,
		Kind:           kind,
		Amount:         body.Amount,
		Currency:       body.Currency,
		Method:         body.Method,
		Urgent:         body.Urgent,
		AccountDetails: body.AccountDetails,
		Gateway:        body.Gateway,
		Device:         body.Device,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListTransactionsHandler returns the authenticated account's journal
// entries, newest first.
func (h *SettlementHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := h.Service.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

// GetTransactionHandler returns a single record. Owners see their own
// records; admins see any.
func (h *SettlementHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.GetTransaction(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	role, _ := GetActorRole(r.Context())
	if rec.AccountID != accountID && role != RoleAdmin {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// CancelWithdrawalHandler lets the owner cancel a pending withdrawal within
// the cancellation window.
func (h *SettlementHandlers) CancelWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	result, err := h.Service.CancelWithdrawal(r.Context(), accountID, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ClaimRewardHandler claims a reward for the authenticated account.
func (h *SettlementHandlers) ClaimRewardHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid reward id", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.ClaimReward(r.Context(), accountID, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// SwitchPlanHandler moves the authenticated account onto another plan.
func (h *SettlementHandlers) SwitchPlanHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		PlanID uuid.UUID `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlanID == uuid.Nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.SwitchPlan(r.Context(), accountID, body.PlanID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type decisionBody struct {
	Action         domain.DecisionAction `json:"action"`
	AdjustedAmount *int64                `json:"adjusted_amount,omitempty"` // in cents
	BonusAmount    int64                 `json:"bonus_amount,omitempty"`    // in cents
	Reason         string                `json:"reason,omitempty"`
}

// DecideTransactionHandler applies an admin decision to a single record.
func (h *SettlementHandlers) DecideTransactionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.Decide(r.Context(), actor, domain.DecisionRequest{
		TransactionID:  id,
		Action:         body.Action,
		AdjustedAmount: body.AdjustedAmount,
		BonusAmount:    body.BonusAmount,
		Reason:         body.Reason,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// BatchDecideHandler applies one decision to many records with per-item
// isolation. The response is always 200 with an itemized result.
func (h *SettlementHandlers) BatchDecideHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		TransactionIDs []uuid.UUID           `json:"transaction_ids"`
		Action         domain.DecisionAction `json:"action"`
		Reason         string                `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.BatchDecide(r.Context(), actor, body.TransactionIDs, body.Action, body.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// StartProcessingHandler marks a pending record as picked up by an admin.
func (h *SettlementHandlers) StartProcessingHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	if err := h.Service.StartProcessing(r.Context(), actor, id); err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusProcessing)})
}

func adminActor(r *http.Request) (string, bool) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		return "", false
	}
	return accountID.String(), true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeEngineError maps engine and store errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateTransaction),
		errors.Is(err, app.ErrAlreadyProcessed),
		errors.Is(err, app.ErrAlreadyClaimed),
		errors.Is(err, app.ErrCancellationClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrPlanNotFound),
		errors.Is(err, store.ErrRewardNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, app.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, app.ErrLimitExceeded),
		errors.Is(err, app.ErrBelowMinimumDeposit):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, app.ErrInvalidIntake),
		errors.Is(err, app.ErrInvalidAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		log.Printf("level=error component=api msg=\"unhandled engine error\" err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

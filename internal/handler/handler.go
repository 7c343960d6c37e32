// Package handler содержит HTTP-обработчики API кошелькового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/admarket/wallet-system/internal/middleware"
	"github.com/admarket/wallet-system/internal/model"
	"github.com/admarket/wallet-system/internal/repository"
	"github.com/admarket/wallet-system/internal/service"
	"github.com/admarket/wallet-system/internal/validation"
)

// Service определяет контракт операционного слоя, используемый HTTP-обработчиками.
type Service interface {
	CreateAdvertiserWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	CreateChannelOwnerWallet(ctx context.Context, telegramID uuid.UUID) (*model.Wallet, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (*model.Balance, error)
	History(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error)
	Credit(ctx context.Context, cmd service.CreditCommand) error
	Debit(ctx context.Context, cmd service.DebitCommand) error
	LockFunds(ctx context.Context, cmd service.LockCommand) error
	UnlockFunds(ctx context.Context, cmd service.UnlockCommand) error
	Transfer(ctx context.Context, cmd service.TransferCommand) error
	CreatePayment(ctx context.Context, cmd service.CreatePaymentCommand) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	CompletePayment(ctx context.Context, paymentID uuid.UUID) error
	RequestWithdrawal(ctx context.Context, cmd service.WithdrawCommand) (*model.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error
	CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error
	FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) error
	CancelWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error
	GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error)
	WithdrawalsByWallet(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error)
}

// Handler реализует HTTP-обработчики API кошелькового сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeServiceError преобразует ошибки операционного слоя в HTTP-статусы.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidCommand):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	case errors.Is(err, repository.ErrInsufficientFunds):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	case errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrPaymentNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidState):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func urlParamUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func parseUUID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	return id, err == nil
}

type walletResponse struct {
	ID              string `json:"id"`
	OwnerType       string `json:"owner_type"`
	OwnerUserID     string `json:"owner_user_id,omitempty"`
	OwnerTelegramID string `json:"owner_telegram_id,omitempty"`
	Balance         string `json:"balance"`
	LockedBalance   string `json:"locked_balance"`
	Currency        string `json:"currency"`
	CreatedAt       string `json:"created_at"`
}

func toWalletResponse(w *model.Wallet) walletResponse {
	resp := walletResponse{
		ID:            w.ID.String(),
		OwnerType:     string(w.OwnerType),
		Balance:       w.Balance.StringFixed(2),
		LockedBalance: w.LockedBalance.StringFixed(2),
		Currency:      w.Currency,
		CreatedAt:     w.CreatedAt.Format(time.RFC3339),
	}
	if w.OwnerUserID != nil {
		resp.OwnerUserID = w.OwnerUserID.String()
	}
	if w.OwnerTelegramID != nil {
		resp.OwnerTelegramID = w.OwnerTelegramID.String()
	}
	return resp
}

type createAdvertiserWalletRequest struct {
	UserID string `json:"user_id"`
}

// CreateAdvertiserWallet создаёт кошелёк рекламодателя. Повторный вызов для того же
// пользователя возвращает существующий кошелёк.
func (h *Handler) CreateAdvertiserWallet(w http.ResponseWriter, r *http.Request) {
	var req createAdvertiserWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, ok := parseUUID(req.UserID)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wallet, err := h.service.CreateAdvertiserWallet(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "create advertiser wallet error")
		return
	}

	h.writeJSON(w, http.StatusOK, toWalletResponse(wallet))
}

type createChannelOwnerWalletRequest struct {
	TelegramID string `json:"telegram_id"`
}

// CreateChannelOwnerWallet создаёт кошелёк владельца канала. Повторный вызов для
// той же telegram-идентичности возвращает существующий кошелёк.
func (h *Handler) CreateChannelOwnerWallet(w http.ResponseWriter, r *http.Request) {
	var req createChannelOwnerWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	telegramID, ok := parseUUID(req.TelegramID)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wallet, err := h.service.CreateChannelOwnerWallet(r.Context(), telegramID)
	if err != nil {
		h.writeServiceError(w, err, "create channel owner wallet error")
		return
	}

	h.writeJSON(w, http.StatusOK, toWalletResponse(wallet))
}

type balanceResponse struct {
	Balance          string `json:"balance"`
	LockedBalance    string `json:"locked_balance"`
	AvailableBalance string `json:"available_balance"`
}

// GetBalance возвращает баланс кошелька.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	walletID, ok := urlParamUUID(r, "walletID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, err, "get balance error")
		return
	}

	h.writeJSON(w, http.StatusOK, balanceResponse{
		Balance:          balance.Balance.StringFixed(2),
		LockedBalance:    balance.LockedBalance.StringFixed(2),
		AvailableBalance: balance.AvailableBalance.StringFixed(2),
	})
}

type transactionResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	CreatedAt     string `json:"created_at"`
}

// GetTransactions возвращает историю операций кошелька от новых к старым.
// Параметры limit, before и before_id задают страницу чтения.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	walletID, ok := urlParamUUID(r, "walletID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	var cursor *model.TransactionCursor
	if before := r.URL.Query().Get("before"); before != "" {
		ts, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		beforeID, ok := parseUUID(r.URL.Query().Get("before_id"))
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		cursor = &model.TransactionCursor{CreatedAt: ts, ID: beforeID}
	}

	transactions, err := h.service.History(r.Context(), walletID, limit, cursor)
	if err != nil {
		h.writeServiceError(w, err, "get transactions error")
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, transactionResponse{
			ID:            t.ID.String(),
			Type:          string(t.Type),
			Amount:        t.Amount.StringFixed(2),
			ReferenceType: t.ReferenceType,
			ReferenceID:   t.ReferenceID.String(),
			CreatedAt:     t.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetReconciliation возвращает результат сверки баланса кошелька с журналом операций.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	walletID, ok := urlParamUUID(r, "walletID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rec, err := h.service.Reconcile(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, err, "reconcile error")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

type ledgerRequest struct {
	WalletID      string `json:"wallet_id"`
	Amount        string `json:"amount"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

func (h *Handler) decodeLedgerRequest(w http.ResponseWriter, r *http.Request, withReference bool) (uuid.UUID, service.CreditCommand, bool) {
	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, service.CreditCommand{}, false
	}

	walletID, ok := parseUUID(req.WalletID)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, service.CreditCommand{}, false
	}

	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return uuid.Nil, service.CreditCommand{}, false
	}

	cmd := service.CreditCommand{WalletID: walletID, Amount: amount, ReferenceType: req.ReferenceType}
	if withReference {
		refID, ok := parseUUID(req.ReferenceID)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return uuid.Nil, service.CreditCommand{}, false
		}
		cmd.ReferenceID = refID
	}

	return walletID, cmd, true
}

// Credit зачисляет средства на кошелёк.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	_, cmd, ok := h.decodeLedgerRequest(w, r, true)
	if !ok {
		return
	}

	if err := h.service.Credit(r.Context(), cmd); err != nil {
		h.writeServiceError(w, err, "credit error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Debit списывает средства с кошелька.
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	_, cmd, ok := h.decodeLedgerRequest(w, r, true)
	if !ok {
		return
	}

	err := h.service.Debit(r.Context(), service.DebitCommand(cmd))
	if err != nil {
		h.writeServiceError(w, err, "debit error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// LockFunds блокирует средства на кошельке.
func (h *Handler) LockFunds(w http.ResponseWriter, r *http.Request) {
	walletID, cmd, ok := h.decodeLedgerRequest(w, r, false)
	if !ok {
		return
	}

	if err := h.service.LockFunds(r.Context(), service.LockCommand{WalletID: walletID, Amount: cmd.Amount}); err != nil {
		h.writeServiceError(w, err, "lock funds error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UnlockFunds снимает блокировку средств на кошельке.
func (h *Handler) UnlockFunds(w http.ResponseWriter, r *http.Request) {
	walletID, cmd, ok := h.decodeLedgerRequest(w, r, false)
	if !ok {
		return
	}

	if err := h.service.UnlockFunds(r.Context(), service.UnlockCommand{WalletID: walletID, Amount: cmd.Amount}); err != nil {
		h.writeServiceError(w, err, "unlock funds error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transferRequest struct {
	FromWalletID  string `json:"from_wallet_id"`
	ToWalletID    string `json:"to_wallet_id"`
	Amount        string `json:"amount"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

// Transfer переводит средства между кошельками.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	fromID, okFrom := parseUUID(req.FromWalletID)
	toID, okTo := parseUUID(req.ToWalletID)
	refID, okRef := parseUUID(req.ReferenceID)
	if !okFrom || !okTo || !okRef {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	err = h.service.Transfer(r.Context(), service.TransferCommand{
		FromWalletID:  fromID,
		ToWalletID:    toID,
		Amount:        amount,
		ReferenceType: req.ReferenceType,
		ReferenceID:   refID,
	})
	if err != nil {
		h.writeServiceError(w, err, "transfer error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type createPaymentRequest struct {
	PlacementID      string `json:"placement_id"`
	AdvertiserUserID string `json:"advertiser_user_id"`
	ChannelOwnerID   string `json:"channel_owner_id"`
	GrossAmount      string `json:"gross_amount"`
	PlatformFee      string `json:"platform_fee"`
}

type paymentResponse struct {
	ID               string `json:"id"`
	PlacementID      string `json:"placement_id"`
	AdvertiserUserID string `json:"advertiser_user_id"`
	ChannelOwnerID   string `json:"channel_owner_id"`
	GrossAmount      string `json:"gross_amount"`
	PlatformFee      string `json:"platform_fee"`
	NetAmount        string `json:"net_amount"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID.String(),
		PlacementID:      p.PlacementID.String(),
		AdvertiserUserID: p.AdvertiserUserID.String(),
		ChannelOwnerID:   p.ChannelOwnerID.String(),
		GrossAmount:      p.GrossAmount.StringFixed(2),
		PlatformFee:      p.PlatformFee.StringFixed(2),
		NetAmount:        p.NetAmount.StringFixed(2),
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
}

// CreatePayment регистрирует платёж за размещение в статусе PENDING.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	placementID, okPlacement := parseUUID(req.PlacementID)
	advertiserID, okAdvertiser := parseUUID(req.AdvertiserUserID)
	channelOwnerID, okChannel := parseUUID(req.ChannelOwnerID)
	if !okPlacement || !okAdvertiser || !okChannel {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	gross, err := validation.ParseAmount(req.GrossAmount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	cmd := service.CreatePaymentCommand{
		PlacementID:      placementID,
		AdvertiserUserID: advertiserID,
		ChannelOwnerID:   channelOwnerID,
		GrossAmount:      gross,
	}
	if req.PlatformFee != "" {
		fee, err := validation.ParseAmount(req.PlatformFee)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		cmd.PlatformFee = fee
	}

	payment, err := h.service.CreatePayment(r.Context(), cmd)
	if err != nil {
		h.writeServiceError(w, err, "create payment error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

// GetPayment возвращает платёж по идентификатору.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlParamUUID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, err := h.service.GetPayment(r.Context(), paymentID)
	if err != nil {
		h.writeServiceError(w, err, "get payment error")
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// CompletePayment завершает платёж по подтверждению платёжного шлюза.
// Повторный вызов для завершённого платежа возвращает 409 без побочных эффектов.
func (h *Handler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlParamUUID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CompletePayment(r.Context(), paymentID); err != nil {
		h.writeServiceError(w, err, "complete payment error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type withdrawalRequest struct {
	WalletID      string `json:"wallet_id"`
	BankAccountID string `json:"bank_account_id"`
	Amount        string `json:"amount"`
}

type withdrawalResponse struct {
	ID            string `json:"id"`
	WalletID      string `json:"wallet_id"`
	BankAccountID string `json:"bank_account_id"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	NetAmount     string `json:"net_amount"`
	Status        string `json:"status"`
	ReferenceCode string `json:"reference_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	ProcessedAt   string `json:"processed_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toWithdrawalResponse(wd *model.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:            wd.ID.String(),
		WalletID:      wd.WalletID.String(),
		BankAccountID: wd.BankAccountID.String(),
		Amount:        wd.Amount.StringFixed(2),
		Fee:           wd.Fee.StringFixed(2),
		NetAmount:     wd.NetAmount.StringFixed(2),
		Status:        string(wd.Status),
		CreatedAt:     wd.CreatedAt.Format(time.RFC3339),
	}
	if wd.ReferenceCode != nil {
		resp.ReferenceCode = *wd.ReferenceCode
	}
	if wd.FailureReason != nil {
		resp.FailureReason = *wd.FailureReason
	}
	if wd.ProcessedAt != nil {
		resp.ProcessedAt = wd.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

// RequestWithdrawal создаёт заявку на вывод средств, блокируя сумму на кошельке.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	walletID, okWallet := parseUUID(req.WalletID)
	bankAccountID, okBank := parseUUID(req.BankAccountID)
	if !okWallet || !okBank {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), service.WithdrawCommand{
		WalletID:      walletID,
		BankAccountID: bankAccountID,
		Amount:        amount,
	})
	if err != nil {
		h.writeServiceError(w, err, "request withdrawal error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toWithdrawalResponse(wd))
}

// ProcessWithdrawal помечает заявку переданной во внешнюю платёжную систему.
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, ok := urlParamUUID(r, "withdrawalID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessWithdrawal(r.Context(), withdrawalID); err != nil {
		h.writeServiceError(w, err, "process withdrawal error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type completeWithdrawalRequest struct {
	ReferenceCode string `json:"reference_code"`
}

// CompleteWithdrawal завершает вывод по подтверждению внешней платёжной системы.
func (h *Handler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, ok := urlParamUUID(r, "withdrawalID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req completeWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CompleteWithdrawal(r.Context(), withdrawalID, req.ReferenceCode); err != nil {
		h.writeServiceError(w, err, "complete withdrawal error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type failWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// FailWithdrawal помечает вывод неуспешным по сообщению внешней платёжной системы.
func (h *Handler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, ok := urlParamUUID(r, "withdrawalID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req failWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.FailWithdrawal(r.Context(), withdrawalID, req.Reason); err != nil {
		h.writeServiceError(w, err, "fail withdrawal error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CancelWithdrawal отменяет заявку на вывод по инициативе владельца.
func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, ok := urlParamUUID(r, "withdrawalID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelWithdrawal(r.Context(), withdrawalID); err != nil {
		h.writeServiceError(w, err, "cancel withdrawal error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, ok := urlParamUUID(r, "withdrawalID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wd, err := h.service.GetWithdrawal(r.Context(), withdrawalID)
	if err != nil {
		h.writeServiceError(w, err, "get withdrawal error")
		return
	}

	h.writeJSON(w, http.StatusOK, toWithdrawalResponse(wd))
}

// GetWithdrawals возвращает историю выводов кошелька.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	walletID, ok := urlParamUUID(r, "walletID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	withdrawals, err := h.service.WithdrawalsByWallet(r.Context(), walletID)
	if err != nil {
		h.writeServiceError(w, err, "get withdrawals error")
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		resp = append(resp, toWithdrawalResponse(&withdrawals[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

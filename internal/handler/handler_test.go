package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/admarket/wallet-system/internal/middleware"
	"github.com/admarket/wallet-system/internal/model"
	"github.com/admarket/wallet-system/internal/repository"
	"github.com/admarket/wallet-system/internal/service"
)

// stubService подменяет операционный слой: каждый метод делегирует в
// соответствующее поле-функцию, незаданные методы возвращают ошибку.
type stubService struct {
	createAdvertiserWallet   func(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
	createChannelOwnerWallet func(ctx context.Context, telegramID uuid.UUID) (*model.Wallet, error)
	getBalance               func(ctx context.Context, walletID uuid.UUID) (*model.Balance, error)
	history                  func(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error)
	reconcile                func(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error)
	credit                   func(ctx context.Context, cmd service.CreditCommand) error
	debit                    func(ctx context.Context, cmd service.DebitCommand) error
	lockFunds                func(ctx context.Context, cmd service.LockCommand) error
	unlockFunds              func(ctx context.Context, cmd service.UnlockCommand) error
	transfer                 func(ctx context.Context, cmd service.TransferCommand) error
	createPayment            func(ctx context.Context, cmd service.CreatePaymentCommand) (*model.Payment, error)
	getPayment               func(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	completePayment          func(ctx context.Context, paymentID uuid.UUID) error
	requestWithdrawal        func(ctx context.Context, cmd service.WithdrawCommand) (*model.Withdrawal, error)
	processWithdrawal        func(ctx context.Context, withdrawalID uuid.UUID) error
	completeWithdrawal       func(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error
	failWithdrawal           func(ctx context.Context, withdrawalID uuid.UUID, reason string) error
	cancelWithdrawal         func(ctx context.Context, withdrawalID uuid.UUID) error
	getWithdrawal            func(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error)
	withdrawalsByWallet      func(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error)
}

var errStubNotSet = errors.New("stub method not set")

func (s *stubService) CreateAdvertiserWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	if s.createAdvertiserWallet == nil {
		return nil, errStubNotSet
	}
	return s.createAdvertiserWallet(ctx, userID)
}

func (s *stubService) CreateChannelOwnerWallet(ctx context.Context, telegramID uuid.UUID) (*model.Wallet, error) {
	if s.createChannelOwnerWallet == nil {
		return nil, errStubNotSet
	}
	return s.createChannelOwnerWallet(ctx, telegramID)
}

func (s *stubService) GetBalance(ctx context.Context, walletID uuid.UUID) (*model.Balance, error) {
	if s.getBalance == nil {
		return nil, errStubNotSet
	}
	return s.getBalance(ctx, walletID)
}

func (s *stubService) History(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error) {
	if s.history == nil {
		return nil, errStubNotSet
	}
	return s.history(ctx, walletID, limit, cursor)
}

func (s *stubService) Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error) {
	if s.reconcile == nil {
		return nil, errStubNotSet
	}
	return s.reconcile(ctx, walletID)
}

func (s *stubService) Credit(ctx context.Context, cmd service.CreditCommand) error {
	if s.credit == nil {
		return errStubNotSet
	}
	return s.credit(ctx, cmd)
}

func (s *stubService) Debit(ctx context.Context, cmd service.DebitCommand) error {
	if s.debit == nil {
		return errStubNotSet
	}
	return s.debit(ctx, cmd)
}

func (s *stubService) LockFunds(ctx context.Context, cmd service.LockCommand) error {
	if s.lockFunds == nil {
		return errStubNotSet
	}
	return s.lockFunds(ctx, cmd)
}

func (s *stubService) UnlockFunds(ctx context.Context, cmd service.UnlockCommand) error {
	if s.unlockFunds == nil {
		return errStubNotSet
	}
	return s.unlockFunds(ctx, cmd)
}

func (s *stubService) Transfer(ctx context.Context, cmd service.TransferCommand) error {
	if s.transfer == nil {
		return errStubNotSet
	}
	return s.transfer(ctx, cmd)
}

func (s *stubService) CreatePayment(ctx context.Context, cmd service.CreatePaymentCommand) (*model.Payment, error) {
	if s.createPayment == nil {
		return nil, errStubNotSet
	}
	return s.createPayment(ctx, cmd)
}

func (s *stubService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	if s.getPayment == nil {
		return nil, errStubNotSet
	}
	return s.getPayment(ctx, paymentID)
}

func (s *stubService) CompletePayment(ctx context.Context, paymentID uuid.UUID) error {
	if s.completePayment == nil {
		return errStubNotSet
	}
	return s.completePayment(ctx, paymentID)
}

func (s *stubService) RequestWithdrawal(ctx context.Context, cmd service.WithdrawCommand) (*model.Withdrawal, error) {
	if s.requestWithdrawal == nil {
		return nil, errStubNotSet
	}
	return s.requestWithdrawal(ctx, cmd)
}

func (s *stubService) ProcessWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	if s.processWithdrawal == nil {
		return errStubNotSet
	}
	return s.processWithdrawal(ctx, withdrawalID)
}

func (s *stubService) CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error {
	if s.completeWithdrawal == nil {
		return errStubNotSet
	}
	return s.completeWithdrawal(ctx, withdrawalID, referenceCode)
}

func (s *stubService) FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) error {
	if s.failWithdrawal == nil {
		return errStubNotSet
	}
	return s.failWithdrawal(ctx, withdrawalID, reason)
}

func (s *stubService) CancelWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	if s.cancelWithdrawal == nil {
		return errStubNotSet
	}
	return s.cancelWithdrawal(ctx, withdrawalID)
}

func (s *stubService) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	if s.getWithdrawal == nil {
		return nil, errStubNotSet
	}
	return s.getWithdrawal(ctx, withdrawalID)
}

func (s *stubService) WithdrawalsByWallet(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error) {
	if s.withdrawalsByWallet == nil {
		return nil, errStubNotSet
	}
	return s.withdrawalsByWallet(ctx, walletID)
}

func newTestRouter(t *testing.T, s Service) (*chi.Mux, string) {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(s, zap.NewNop(), auth)
	return h.SetupRouter(), auth.IssueToken("billing-tests")
}

func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAdvertiserWallet(t *testing.T) {
	userID := uuid.New()
	wallet := &model.Wallet{
		ID:          uuid.New(),
		OwnerType:   model.OwnerTypeAdvertiser,
		OwnerUserID: &userID,
		Balance:     decimal.Zero,
		Currency:    "ETB",
		CreatedAt:   time.Now(),
	}

	svc := &stubService{
		createAdvertiserWallet: func(_ context.Context, id uuid.UUID) (*model.Wallet, error) {
			if id != userID {
				t.Fatalf("unexpected user id: %s", id)
			}
			return wallet, nil
		},
	}
	router, token := newTestRouter(t, svc)

	tests := []struct {
		name       string
		token      string
		body       string
		wantStatus int
	}{
		{
			name:       "success",
			token:      token,
			body:       `{"user_id":"` + userID.String() + `"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed user id",
			token:      token,
			body:       `{"user_id":"not-a-uuid"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no token",
			token:      "",
			body:       `{"user_id":"` + userID.String() + `"}`,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/wallets/advertiser", tt.token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			if tt.wantStatus == http.StatusOK {
				var resp struct {
					ID          string `json:"id"`
					OwnerType   string `json:"owner_type"`
					OwnerUserID string `json:"owner_user_id"`
					Balance     string `json:"balance"`
					Currency    string `json:"currency"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if resp.ID != wallet.ID.String() || resp.OwnerType != "ADVERTISER" || resp.OwnerUserID != userID.String() {
					t.Fatalf("unexpected response: %+v", resp)
				}
				if resp.Balance != "0.00" || resp.Currency != "ETB" {
					t.Fatalf("unexpected balance fields: %+v", resp)
				}
			}
		})
	}
}

func TestGetBalance(t *testing.T) {
	walletID := uuid.New()

	svc := &stubService{
		getBalance: func(_ context.Context, id uuid.UUID) (*model.Balance, error) {
			if id != walletID {
				return nil, repository.ErrWalletNotFound
			}
			return &model.Balance{
				Balance:          decimal.RequireFromString("100.00"),
				LockedBalance:    decimal.RequireFromString("30.00"),
				AvailableBalance: decimal.RequireFromString("70.00"),
			}, nil
		},
	}
	router, _ := newTestRouter(t, svc)

	rec := doRequest(t, router, http.MethodGet, "/api/wallets/"+walletID.String()+"/balance", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Balance          string `json:"balance"`
		LockedBalance    string `json:"locked_balance"`
		AvailableBalance string `json:"available_balance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != "100.00" || resp.LockedBalance != "30.00" || resp.AvailableBalance != "70.00" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/wallets/"+uuid.NewString()+"/balance", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown wallet, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/wallets/bad-id/balance", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestDebitErrorMapping(t *testing.T) {
	walletID := uuid.New()
	refID := uuid.New()

	tests := []struct {
		name       string
		serviceErr error
		body       string
		wantStatus int
	}{
		{
			name:       "success",
			serviceErr: nil,
			body:       `{"wallet_id":"` + walletID.String() + `","amount":"25.00","reference_type":"PAYMENT","reference_id":"` + refID.String() + `"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "insufficient funds",
			serviceErr: repository.ErrInsufficientFunds,
			body:       `{"wallet_id":"` + walletID.String() + `","amount":"25.00","reference_type":"PAYMENT","reference_id":"` + refID.String() + `"}`,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "wallet not found",
			serviceErr: repository.ErrWalletNotFound,
			body:       `{"wallet_id":"` + walletID.String() + `","amount":"25.00","reference_type":"PAYMENT","reference_id":"` + refID.String() + `"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid command",
			serviceErr: service.ErrInvalidCommand,
			body:       `{"wallet_id":"` + walletID.String() + `","amount":"25.00","reference_type":"","reference_id":"` + refID.String() + `"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "sub-cent amount",
			serviceErr: nil,
			body:       `{"wallet_id":"` + walletID.String() + `","amount":"25.001","reference_type":"PAYMENT","reference_id":"` + refID.String() + `"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				debit: func(_ context.Context, _ service.DebitCommand) error {
					return tt.serviceErr
				},
			}
			router, token := newTestRouter(t, svc)

			rec := doRequest(t, router, http.MethodPost, "/api/ledger/debit", token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestLockFunds(t *testing.T) {
	walletID := uuid.New()

	var got service.LockCommand
	svc := &stubService{
		lockFunds: func(_ context.Context, cmd service.LockCommand) error {
			got = cmd
			return nil
		},
	}
	router, token := newTestRouter(t, svc)

	body := `{"wallet_id":"` + walletID.String() + `","amount":"30.00"}`
	rec := doRequest(t, router, http.MethodPost, "/api/ledger/lock", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.WalletID != walletID || !got.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestCompletePayment(t *testing.T) {
	paymentID := uuid.New()

	completed := false
	svc := &stubService{
		completePayment: func(_ context.Context, id uuid.UUID) error {
			if id != paymentID {
				return repository.ErrPaymentNotFound
			}
			if completed {
				return repository.ErrInvalidState
			}
			completed = true
			return nil
		},
	}
	router, token := newTestRouter(t, svc)

	path := "/api/payments/" + paymentID.String() + "/complete"

	rec := doRequest(t, router, http.MethodPost, path, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first completion, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, path, token, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeated completion, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/payments/"+uuid.NewString()+"/complete", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown payment, got %d", rec.Code)
	}
}

func TestGetTransactions(t *testing.T) {
	walletID := uuid.New()
	now := time.Now()

	transactions := []model.Transaction{
		{
			ID:            uuid.New(),
			WalletID:      walletID,
			Type:          model.TransactionCredit,
			Amount:        decimal.RequireFromString("100.00"),
			ReferenceType: "DEPOSIT",
			ReferenceID:   uuid.New(),
			CreatedAt:     now,
		},
		{
			ID:            uuid.New(),
			WalletID:      walletID,
			Type:          model.TransactionDebit,
			Amount:        decimal.RequireFromString("40.00"),
			ReferenceType: "PAYMENT",
			ReferenceID:   uuid.New(),
			CreatedAt:     now.Add(-time.Minute),
		},
	}

	svc := &stubService{
		history: func(_ context.Context, id uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error) {
			if id != walletID {
				return nil, nil
			}
			if cursor != nil {
				return nil, nil
			}
			return transactions, nil
		},
	}
	router, _ := newTestRouter(t, svc)

	rec := doRequest(t, router, http.MethodGet, "/api/wallets/"+walletID.String()+"/transactions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []struct {
		Type   string `json:"type"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[0].Type != "CREDIT" || resp[0].Amount != "100.00" || resp[1].Type != "DEBIT" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	// Чтение за пределами последней страницы возвращает 204.
	cursorPath := "/api/wallets/" + walletID.String() + "/transactions?before=" +
		now.UTC().Format(time.RFC3339Nano) + "&before_id=" + transactions[1].ID.String()
	rec = doRequest(t, router, http.MethodGet, cursorPath, "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 past the last page, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/wallets/"+uuid.NewString()+"/transactions", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for empty history, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/wallets/"+walletID.String()+"/transactions?limit=abc", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed limit, got %d", rec.Code)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	walletID := uuid.New()
	bankAccountID := uuid.New()

	svc := &stubService{
		requestWithdrawal: func(_ context.Context, cmd service.WithdrawCommand) (*model.Withdrawal, error) {
			return &model.Withdrawal{
				ID:            uuid.New(),
				WalletID:      cmd.WalletID,
				BankAccountID: cmd.BankAccountID,
				Amount:        cmd.Amount,
				Fee:           decimal.Zero,
				NetAmount:     cmd.Amount,
				Status:        model.WithdrawalStatusPending,
				CreatedAt:     time.Now(),
			}, nil
		},
	}
	router, token := newTestRouter(t, svc)

	body := `{"wallet_id":"` + walletID.String() + `","bank_account_id":"` + bankAccountID.String() + `","amount":"50.00"}`
	rec := doRequest(t, router, http.MethodPost, "/api/withdrawals", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		WalletID  string `json:"wallet_id"`
		Amount    string `json:"amount"`
		NetAmount string `json:"net_amount"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WalletID != walletID.String() || resp.Amount != "50.00" || resp.NetAmount != "50.00" || resp.Status != "PENDING" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/withdrawals", token,
		`{"wallet_id":"`+walletID.String()+`","bank_account_id":"`+bankAccountID.String()+`","amount":"-50.00"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative amount, got %d", rec.Code)
	}
}

func TestGetWithdrawals(t *testing.T) {
	walletID := uuid.New()
	refCode := "PAY-42"

	svc := &stubService{
		withdrawalsByWallet: func(_ context.Context, id uuid.UUID) ([]model.Withdrawal, error) {
			if id != walletID {
				return nil, nil
			}
			return []model.Withdrawal{{
				ID:            uuid.New(),
				WalletID:      walletID,
				BankAccountID: uuid.New(),
				Amount:        decimal.RequireFromString("50.00"),
				Fee:           decimal.Zero,
				NetAmount:     decimal.RequireFromString("50.00"),
				Status:        model.WithdrawalStatusCompleted,
				ReferenceCode: &refCode,
				CreatedAt:     time.Now(),
			}}, nil
		},
	}
	router, _ := newTestRouter(t, svc)

	rec := doRequest(t, router, http.MethodGet, "/api/wallets/"+walletID.String()+"/withdrawals", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []struct {
		Status        string `json:"status"`
		ReferenceCode string `json:"reference_code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Status != "COMPLETED" || resp[0].ReferenceCode != refCode {
		t.Fatalf("unexpected body: %+v", resp)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/wallets/"+uuid.NewString()+"/withdrawals", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for empty history, got %d", rec.Code)
	}
}

func TestWithdrawalStateTransitions(t *testing.T) {
	withdrawalID := uuid.New()

	svc := &stubService{
		processWithdrawal: func(_ context.Context, id uuid.UUID) error {
			if id != withdrawalID {
				return repository.ErrWithdrawalNotFound
			}
			return nil
		},
		completeWithdrawal: func(_ context.Context, _ uuid.UUID, referenceCode string) error {
			if referenceCode == "" {
				return service.ErrInvalidCommand
			}
			return repository.ErrInvalidState
		},
		cancelWithdrawal: func(_ context.Context, _ uuid.UUID) error {
			return repository.ErrInvalidState
		},
	}
	router, token := newTestRouter(t, svc)

	rec := doRequest(t, router, http.MethodPost, "/api/withdrawals/"+withdrawalID.String()+"/process", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/withdrawals/"+uuid.NewString()+"/process", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown withdrawal, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/withdrawals/"+withdrawalID.String()+"/complete", token, `{"reference_code":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty reference code, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/withdrawals/"+withdrawalID.String()+"/complete", token, `{"reference_code":"PAY-1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for wrong state, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/withdrawals/"+withdrawalID.String()+"/cancel", token, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for non-cancellable withdrawal, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{})

	paths := []string{
		"/api/wallets/advertiser",
		"/api/ledger/credit",
		"/api/payments",
		"/api/withdrawals",
	}

	for _, path := range paths {
		rec := doRequest(t, router, http.MethodPost, path, "", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, router, http.MethodPost, "/api/ledger/credit", "forged.deadbeef", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", rec.Code)
	}
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/admarket/wallet-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кошелькового сервиса.
// Все операции записи выполняются внутренними системами и защищены сервисным токеном;
// чтение балансов и историй открыто для витрин.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/wallets/{walletID}/balance", h.GetBalance)
		r.Get("/wallets/{walletID}/transactions", h.GetTransactions)
		r.Get("/wallets/{walletID}/withdrawals", h.GetWithdrawals)
		r.Get("/wallets/{walletID}/reconciliation", h.GetReconciliation)
		r.Get("/payments/{paymentID}", h.GetPayment)
		r.Get("/withdrawals/{withdrawalID}", h.GetWithdrawal)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/wallets/advertiser", h.CreateAdvertiserWallet)
			r.Post("/wallets/channel-owner", h.CreateChannelOwnerWallet)

			r.Post("/ledger/credit", h.Credit)
			r.Post("/ledger/debit", h.Debit)
			r.Post("/ledger/lock", h.LockFunds)
			r.Post("/ledger/unlock", h.UnlockFunds)
			r.Post("/ledger/transfer", h.Transfer)

			r.Post("/payments", h.CreatePayment)
			r.Post("/payments/{paymentID}/complete", h.CompletePayment)

			r.Post("/withdrawals", h.RequestWithdrawal)
			r.Post("/withdrawals/{withdrawalID}/process", h.ProcessWithdrawal)
			r.Post("/withdrawals/{withdrawalID}/complete", h.CompleteWithdrawal)
			r.Post("/withdrawals/{withdrawalID}/fail", h.FailWithdrawal)
			r.Post("/withdrawals/{withdrawalID}/cancel", h.CancelWithdrawal)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

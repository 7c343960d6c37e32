// Package service реализует операционный слой кошелькового ядра: набор
// леджерных операций и рабочие процессы расчётов поверх хранилища.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/admarket/wallet-system/internal/model"
	"github.com/admarket/wallet-system/internal/payout"
	"github.com/admarket/wallet-system/internal/validation"
)

// ErrInvalidCommand возвращается, если команда не прошла валидацию до обращения к хранилищу.
var ErrInvalidCommand = errors.New("invalid command")

// Repository описывает контракт доступа к данным, используемый сервисом.
// Каждый метод, затрагивающий балансы, атомарен на уровне хранилища.
type Repository interface {
	Close() error
	CreateWallet(ctx context.Context, ownerType model.OwnerType, ownerRef uuid.UUID) (*model.Wallet, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*model.Wallet, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (*model.Balance, error)
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error
	Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error
	Lock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
	Unlock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error
	Transactions(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error)
	SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	CompletePayment(ctx context.Context, paymentID uuid.UUID) error
	CreateWithdrawal(ctx context.Context, walletID, bankAccountID uuid.UUID, amount, fee decimal.Decimal) (*model.Withdrawal, error)
	GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error)
	MarkWithdrawalProcessing(ctx context.Context, withdrawalID uuid.UUID) error
	CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error
	FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) error
	CancelWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error
	WithdrawalsByWallet(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error)
	ProcessingWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error)
}

// PayoutClient описывает контракт клиента внешней платёжной системы выплат.
type PayoutClient interface {
	GetPayoutStatus(ctx context.Context, withdrawalID uuid.UUID) (*payout.PayoutStatus, int, time.Duration, error)
}

// Service реализует леджерные операции и рабочие процессы расчётов.
// Зависимости передаются явно при создании: сервис не использует глобальное состояние.
type Service struct {
	repo         Repository
	payoutClient PayoutClient
	logger       *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом системы выплат.
// payoutClient может быть nil, тогда фоновый опрос выплат не запускается.
func NewService(repo Repository, payoutClient PayoutClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         repo,
		payoutClient: payoutClient,
		logger:       logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreditCommand описывает зачисление средств на кошелёк.
type CreditCommand struct {
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
}

// DebitCommand описывает списание средств с кошелька.
type DebitCommand struct {
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
}

// LockCommand описывает блокировку средств на кошельке.
type LockCommand struct {
	WalletID uuid.UUID
	Amount   decimal.Decimal
}

// UnlockCommand описывает снятие блокировки средств.
type UnlockCommand struct {
	WalletID uuid.UUID
	Amount   decimal.Decimal
}

// TransferCommand описывает перевод средств между кошельками.
type TransferCommand struct {
	FromWalletID  uuid.UUID
	ToWalletID    uuid.UUID
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
}

// CreatePaymentCommand описывает создание платежа за размещение.
type CreatePaymentCommand struct {
	PlacementID      uuid.UUID
	AdvertiserUserID uuid.UUID
	ChannelOwnerID   uuid.UUID
	GrossAmount      decimal.Decimal
	PlatformFee      decimal.Decimal
}

// WithdrawCommand описывает заявку на вывод средств.
type WithdrawCommand struct {
	WalletID      uuid.UUID
	BankAccountID uuid.UUID
	Amount        decimal.Decimal
}

func checkAmount(amount decimal.Decimal) error {
	if !validation.IsValidAmount(amount) {
		return ErrInvalidCommand
	}
	return nil
}

func checkID(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidCommand
	}
	return nil
}

// CreateAdvertiserWallet создаёт кошелёк рекламодателя. Операция идемпотентна.
func (s *Service) CreateAdvertiserWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	if err := checkID(userID); err != nil {
		return nil, err
	}
	return s.repo.CreateWallet(ctx, model.OwnerTypeAdvertiser, userID)
}

// CreateChannelOwnerWallet создаёт кошелёк владельца канала. Операция идемпотентна.
func (s *Service) CreateChannelOwnerWallet(ctx context.Context, telegramID uuid.UUID) (*model.Wallet, error) {
	if err := checkID(telegramID); err != nil {
		return nil, err
	}
	return s.repo.CreateWallet(ctx, model.OwnerTypeChannelOwner, telegramID)
}

// GetBalance возвращает баланс кошелька.
func (s *Service) GetBalance(ctx context.Context, walletID uuid.UUID) (*model.Balance, error) {
	return s.repo.GetBalance(ctx, walletID)
}

// History возвращает историю операций кошелька от новых к старым.
func (s *Service) History(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.Transactions(ctx, walletID, limit, cursor)
}

// Reconcile сверяет баланс кошелька с суммой записей журнала операций.
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (*model.Reconciliation, error) {
	balance, err := s.repo.GetBalance(ctx, walletID)
	if err != nil {
		return nil, err
	}

	sum, err := s.repo.SumTransactions(ctx, walletID)
	if err != nil {
		return nil, err
	}

	return &model.Reconciliation{
		WalletID:   walletID,
		Balance:    balance.Balance,
		LedgerSum:  sum,
		Consistent: balance.Balance.Equal(sum),
	}, nil
}

// Credit зачисляет средства на кошелёк.
func (s *Service) Credit(ctx context.Context, cmd CreditCommand) error {
	if err := errors.Join(checkID(cmd.WalletID), checkID(cmd.ReferenceID), checkAmount(cmd.Amount)); err != nil {
		return ErrInvalidCommand
	}
	if cmd.ReferenceType == "" {
		return ErrInvalidCommand
	}
	return s.repo.Credit(ctx, cmd.WalletID, cmd.Amount, cmd.ReferenceType, cmd.ReferenceID)
}

// Debit списывает средства с кошелька.
func (s *Service) Debit(ctx context.Context, cmd DebitCommand) error {
	if err := errors.Join(checkID(cmd.WalletID), checkID(cmd.ReferenceID), checkAmount(cmd.Amount)); err != nil {
		return ErrInvalidCommand
	}
	if cmd.ReferenceType == "" {
		return ErrInvalidCommand
	}
	return s.repo.Debit(ctx, cmd.WalletID, cmd.Amount, cmd.ReferenceType, cmd.ReferenceID)
}

// LockFunds блокирует средства на кошельке.
func (s *Service) LockFunds(ctx context.Context, cmd LockCommand) error {
	if err := errors.Join(checkID(cmd.WalletID), checkAmount(cmd.Amount)); err != nil {
		return ErrInvalidCommand
	}
	return s.repo.Lock(ctx, cmd.WalletID, cmd.Amount)
}

// UnlockFunds снимает блокировку средств на кошельке.
func (s *Service) UnlockFunds(ctx context.Context, cmd UnlockCommand) error {
	if err := errors.Join(checkID(cmd.WalletID), checkAmount(cmd.Amount)); err != nil {
		return ErrInvalidCommand
	}
	return s.repo.Unlock(ctx, cmd.WalletID, cmd.Amount)
}

// Transfer переводит средства между кошельками.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) error {
	if err := errors.Join(checkID(cmd.FromWalletID), checkID(cmd.ToWalletID), checkID(cmd.ReferenceID), checkAmount(cmd.Amount)); err != nil {
		return ErrInvalidCommand
	}
	if cmd.ReferenceType == "" || cmd.FromWalletID == cmd.ToWalletID {
		return ErrInvalidCommand
	}
	return s.repo.Transfer(ctx, cmd.FromWalletID, cmd.ToWalletID, cmd.Amount, cmd.ReferenceType, cmd.ReferenceID)
}

// CreatePayment регистрирует платёж за размещение в статусе PENDING.
// Сумма к зачислению владельцу канала равна gross − fee.
func (s *Service) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (*model.Payment, error) {
	if err := errors.Join(checkID(cmd.PlacementID), checkID(cmd.AdvertiserUserID), checkID(cmd.ChannelOwnerID), checkAmount(cmd.GrossAmount)); err != nil {
		return nil, ErrInvalidCommand
	}
	if cmd.PlatformFee.IsNegative() || cmd.PlatformFee.GreaterThanOrEqual(cmd.GrossAmount) {
		return nil, ErrInvalidCommand
	}

	p := &model.Payment{
		PlacementID:      cmd.PlacementID,
		AdvertiserUserID: cmd.AdvertiserUserID,
		ChannelOwnerID:   cmd.ChannelOwnerID,
		GrossAmount:      cmd.GrossAmount,
		PlatformFee:      cmd.PlatformFee,
		NetAmount:        cmd.GrossAmount.Sub(cmd.PlatformFee),
	}

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// GetPayment возвращает платёж по идентификатору.
func (s *Service) GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

// CompletePayment завершает платёж: рекламодатель дебетуется на gross_amount,
// владелец канала кредитуется на net_amount, комиссия уходит платформе.
// Повторный вызов возвращает ошибку недопустимого состояния без побочных эффектов.
func (s *Service) CompletePayment(ctx context.Context, paymentID uuid.UUID) error {
	if err := checkID(paymentID); err != nil {
		return err
	}
	return s.repo.CompletePayment(ctx, paymentID)
}

// RequestWithdrawal создаёт заявку на вывод средств, блокируя сумму на кошельке.
func (s *Service) RequestWithdrawal(ctx context.Context, cmd WithdrawCommand) (*model.Withdrawal, error) {
	if err := errors.Join(checkID(cmd.WalletID), checkID(cmd.BankAccountID), checkAmount(cmd.Amount)); err != nil {
		return nil, ErrInvalidCommand
	}
	// Комиссия за вывод пока не взимается: net_amount равен сумме заявки.
	return s.repo.CreateWithdrawal(ctx, cmd.WalletID, cmd.BankAccountID, cmd.Amount, decimal.Zero)
}

// ProcessWithdrawal помечает заявку переданной во внешнюю платёжную систему.
func (s *Service) ProcessWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	if err := checkID(withdrawalID); err != nil {
		return err
	}
	return s.repo.MarkWithdrawalProcessing(ctx, withdrawalID)
}

// CompleteWithdrawal завершает вывод по подтверждению внешней платёжной системы.
func (s *Service) CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error {
	if err := checkID(withdrawalID); err != nil {
		return err
	}
	if referenceCode == "" {
		return ErrInvalidCommand
	}
	return s.repo.CompleteWithdrawal(ctx, withdrawalID, referenceCode)
}

// FailWithdrawal помечает вывод неуспешным и возвращает средства в доступный баланс.
func (s *Service) FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) error {
	if err := checkID(withdrawalID); err != nil {
		return err
	}
	return s.repo.FailWithdrawal(ctx, withdrawalID, reason)
}

// CancelWithdrawal отменяет заявку на вывод до передачи во внешнюю платёжную систему.
func (s *Service) CancelWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	if err := checkID(withdrawalID); err != nil {
		return err
	}
	return s.repo.CancelWithdrawal(ctx, withdrawalID)
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (s *Service) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	return s.repo.GetWithdrawal(ctx, withdrawalID)
}

// WithdrawalsByWallet возвращает историю выводов кошелька.
func (s *Service) WithdrawalsByWallet(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error) {
	return s.repo.WithdrawalsByWallet(ctx, walletID)
}

// StartPayoutUpdates запускает фоновый процесс опроса внешней платёжной системы
// по заявкам в статусе PROCESSING.
func (s *Service) StartPayoutUpdates(ctx context.Context, interval time.Duration) {
	if s.payoutClient == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPayoutBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPayoutBatch(ctx context.Context) {
	withdrawals, err := s.repo.ProcessingWithdrawals(ctx, 100)
	if err != nil {
		s.logger.Error("select processing withdrawals", zap.Error(err))
		return
	}

	for _, wd := range withdrawals {
		resp, statusCode, retryAfter, err := s.payoutClient.GetPayoutStatus(ctx, wd.ID)
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		switch resp.Status {
		case payout.StatusCompleted:
			if err := s.repo.CompleteWithdrawal(ctx, wd.ID, resp.ReferenceCode); err != nil {
				s.logger.Error("complete withdrawal", zap.Error(err), zap.String("withdrawal", wd.ID.String()))
			}
		case payout.StatusFailed:
			if err := s.repo.FailWithdrawal(ctx, wd.ID, resp.Reason); err != nil {
				s.logger.Error("fail withdrawal", zap.Error(err), zap.String("withdrawal", wd.ID.String()))
			}
		}
	}
}

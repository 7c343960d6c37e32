// Package model содержит доменные сущности кошелькового ядра маркетплейса.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnerType описывает тип владельца кошелька.
type OwnerType string

const (
	OwnerTypeAdvertiser   OwnerType = "ADVERTISER"
	OwnerTypeChannelOwner OwnerType = "CHANNEL_OWNER"
	OwnerTypePlatform     OwnerType = "PLATFORM"
)

// Wallet представляет счёт участника маркетплейса.
// Владелец — ровно один: пользователь-рекламодатель либо telegram-идентичность
// владельца канала. Платформенный кошелёк владельца не имеет.
type Wallet struct {
	ID              uuid.UUID
	OwnerType       OwnerType
	OwnerUserID     *uuid.UUID
	OwnerTelegramID *uuid.UUID
	Balance         decimal.Decimal
	LockedBalance   decimal.Decimal
	Currency        string
	CreatedAt       time.Time
}

// Balance содержит баланс кошелька с разбивкой на заблокированную и доступную части.
type Balance struct {
	Balance          decimal.Decimal `json:"balance"`
	LockedBalance    decimal.Decimal `json:"locked_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

// TransactionType описывает направление движения средств.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// Transaction описывает одну запись журнала операций кошелька.
// Записи неизменяемы: сумма всегда положительна, направление задаёт Type.
type Transaction struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
	CreatedAt     time.Time
}

// TransactionCursor задаёт позицию в журнале для постраничного чтения истории.
type TransactionCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// PaymentStatus описывает статус платежа за размещение.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusHeld      PaymentStatus = "HELD"
	PaymentStatusReleased  PaymentStatus = "RELEASED"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment представляет расчёт рекламодателя с владельцем канала за одно размещение.
// NetAmount зачисляется владельцу канала, разница gross − net уходит
// платформенному кошельку как комиссия.
type Payment struct {
	ID               uuid.UUID
	PlacementID      uuid.UUID
	AdvertiserUserID uuid.UUID
	ChannelOwnerID   uuid.UUID
	GrossAmount      decimal.Decimal
	PlatformFee      decimal.Decimal
	NetAmount        decimal.Decimal
	Status           PaymentStatus
	CreatedAt        time.Time
}

// WithdrawalStatus описывает статус вывода средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
	WithdrawalStatusCancelled  WithdrawalStatus = "CANCELLED"
)

// Withdrawal описывает заявку на вывод средств.
// С момента создания и до терминального статуса сумма заблокирована на кошельке:
// COMPLETED списывает и разблокирует, FAILED и CANCELLED только разблокируют.
type Withdrawal struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	BankAccountID uuid.UUID
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	NetAmount     decimal.Decimal
	Status        WithdrawalStatus
	ReferenceCode *string
	FailureReason *string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// Reconciliation содержит результат сверки баланса кошелька с журналом операций.
type Reconciliation struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

// Package repository содержит реализацию хранилища кошельков и журнала
// операций в PostgreSQL. Все денежные операции выполняются внутри одной
// транзакции с блокировкой строк кошельков (SELECT ... FOR UPDATE), чтобы
// параллельные запросы не могли прочитать устаревший баланс.
package repository

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/admarket/wallet-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrWalletNotFound возвращается, если кошелёк не найден.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	// ErrInsufficientFunds возвращается при попытке списать или заблокировать сумму, превышающую доступный баланс.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvariantViolation возвращается, если операция нарушила бы инвариант 0 <= locked_balance <= balance.
	ErrInvariantViolation = errors.New("balance invariant violation")
	// ErrInvalidState возвращается при недопустимом переходе статуса платежа или вывода.
	ErrInvalidState = errors.New("invalid state transition")
)

// PostgresRepository предоставляет доступ к хранилищу кошельков в PostgreSQL.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	currency string
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
// currency — валюта, с которой создаются новые кошельки.
func NewPostgresRepository(dsn, currency string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, currency: currency}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при дедлоке или сбое сериализации.
// Ошибки бизнес-логики возвращаются сразу без повторов.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const walletColumns = `id, owner_type, owner_user_id, owner_telegram_id, balance::text, locked_balance::text, currency, created_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var (
		w         model.Wallet
		balance   string
		locked    string
		ownerType string
	)
	err := row.Scan(&w.ID, &ownerType, &w.OwnerUserID, &w.OwnerTelegramID, &balance, &locked, &w.Currency, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	w.OwnerType = model.OwnerType(ownerType)

	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if w.LockedBalance, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse locked balance: %w", err)
	}

	return &w, nil
}

// lockWallet блокирует строку кошелька до конца транзакции и возвращает
// текущие balance и locked_balance.
func lockWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var balanceStr, lockedStr string
	err := tx.QueryRow(ctx,
		`SELECT balance::text, locked_balance::text FROM wallets WHERE id = $1 FOR UPDATE`,
		walletID,
	).Scan(&balanceStr, &lockedStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("lock wallet row: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	locked, err := decimal.NewFromString(lockedStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse locked balance: %w", err)
	}

	return balance, locked, nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, txType model.TransactionType, amount decimal.Decimal, refType string, refID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (wallet_id, type, amount, reference_type, reference_id)
		 VALUES ($1, $2, $3::numeric, $4, $5)`,
		walletID, string(txType), amount.String(), refType, refID,
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// CreateWallet создаёт кошелёк для указанного владельца. Операция идемпотентна:
// если кошелёк владельца уже существует, возвращается существующий.
func (r *PostgresRepository) CreateWallet(ctx context.Context, ownerType model.OwnerType, ownerRef uuid.UUID) (*model.Wallet, error) {
	var insertSQL, selectSQL string

	switch ownerType {
	case model.OwnerTypeAdvertiser:
		insertSQL = `INSERT INTO wallets (owner_type, owner_user_id, currency) VALUES ($1, $2, $3)
			 ON CONFLICT (owner_user_id) WHERE owner_user_id IS NOT NULL DO NOTHING`
		selectSQL = `SELECT ` + walletColumns + ` FROM wallets WHERE owner_user_id = $1`
	case model.OwnerTypeChannelOwner:
		insertSQL = `INSERT INTO wallets (owner_type, owner_telegram_id, currency) VALUES ($1, $2, $3)
			 ON CONFLICT (owner_telegram_id) WHERE owner_telegram_id IS NOT NULL DO NOTHING`
		selectSQL = `SELECT ` + walletColumns + ` FROM wallets WHERE owner_telegram_id = $1`
	default:
		return nil, fmt.Errorf("unsupported owner type: %s", ownerType)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertSQL, string(ownerType), ownerRef, r.currency); err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	w, err := scanWallet(tx.QueryRow(ctx, selectSQL, ownerRef))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return w, nil
}

// GetWallet возвращает кошелёк по идентификатору.
func (r *PostgresRepository) GetWallet(ctx context.Context, walletID uuid.UUID) (*model.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID))
}

// GetWalletByUser возвращает кошелёк рекламодателя по идентификатору пользователя.
func (r *PostgresRepository) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_user_id = $1`, userID))
}

// GetWalletByTelegramID возвращает кошелёк владельца канала по telegram-идентичности.
func (r *PostgresRepository) GetWalletByTelegramID(ctx context.Context, telegramID uuid.UUID) (*model.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_telegram_id = $1`, telegramID))
}

// GetPlatformWallet возвращает платформенный кошелёк, на который зачисляются комиссии.
func (r *PostgresRepository) GetPlatformWallet(ctx context.Context) (*model.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_type = $1`, string(model.OwnerTypePlatform)))
}

// GetBalance возвращает баланс кошелька с разбивкой на заблокированную и доступную части.
func (r *PostgresRepository) GetBalance(ctx context.Context, walletID uuid.UUID) (*model.Balance, error) {
	w, err := r.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	return &model.Balance{
		Balance:          w.Balance,
		LockedBalance:    w.LockedBalance,
		AvailableBalance: w.Balance.Sub(w.LockedBalance),
	}, nil
}

// Credit атомарно зачисляет сумму на кошелёк и добавляет запись CREDIT в журнал.
func (r *PostgresRepository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, _, err := lockWallet(ctx, tx, walletID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $2::numeric WHERE id = $1`,
		walletID, amount.String(),
	); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	if err := appendTransaction(ctx, tx, walletID, model.TransactionCredit, amount, refType, refID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Debit атомарно списывает сумму с кошелька и добавляет запись DEBIT в журнал.
// Требуется balance >= amount; доступный баланс не проверяется, списание
// допустимо и при наличии блокировок.
func (r *PostgresRepository) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, _, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return err
	}

	if balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2::numeric WHERE id = $1`,
		walletID, amount.String(),
	); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}

	if err := appendTransaction(ctx, tx, walletID, model.TransactionDebit, amount, refType, refID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Lock резервирует сумму на кошельке под будущий вывод.
// Требуется available_balance >= amount. Запись в журнал не создаётся:
// блокировка не является движением средств.
func (r *PostgresRepository) Lock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, locked, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return err
	}

	if balance.Sub(locked).LessThan(amount) {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET locked_balance = locked_balance + $2::numeric WHERE id = $1`,
		walletID, amount.String(),
	); err != nil {
		return fmt.Errorf("lock funds: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Unlock снимает резервирование суммы на кошельке.
func (r *PostgresRepository) Unlock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, locked, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return err
	}

	if locked.LessThan(amount) {
		return ErrInvariantViolation
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET locked_balance = locked_balance - $2::numeric WHERE id = $1`,
		walletID, amount.String(),
	); err != nil {
		return fmt.Errorf("unlock funds: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Transfer атомарно переводит сумму между двумя кошельками: DEBIT у отправителя
// и CREDIT у получателя фиксируются в одной транзакции. При дедлоке операция
// повторяется целиком.
func (r *PostgresRepository) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error {
	return r.withRetry(ctx, func() error {
		return r.transfer(ctx, fromID, toID, amount, refType, refID)
	})
}

func (r *PostgresRepository) transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, refType string, refID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Строки блокируются в порядке возрастания id, чтобы встречные переводы
	// не взаимоблокировались.
	balances := make(map[uuid.UUID]decimal.Decimal, 2)
	for _, id := range orderIDs(fromID, toID) {
		balance, _, err := lockWallet(ctx, tx, id)
		if err != nil {
			return err
		}
		balances[id] = balance
	}

	if balances[fromID].LessThan(amount) {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2::numeric WHERE id = $1`,
		fromID, amount.String(),
	); err != nil {
		return fmt.Errorf("debit source wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $2::numeric WHERE id = $1`,
		toID, amount.String(),
	); err != nil {
		return fmt.Errorf("credit destination wallet: %w", err)
	}

	if err := appendTransaction(ctx, tx, fromID, model.TransactionDebit, amount, refType, refID); err != nil {
		return err
	}
	if err := appendTransaction(ctx, tx, toID, model.TransactionCredit, amount, refType, refID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func orderIDs(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}

// Transactions возвращает историю операций кошелька от новых к старым.
// cursor задаёт позицию продолжения чтения; nil — чтение с начала.
func (r *PostgresRepository) Transactions(ctx context.Context, walletID uuid.UUID, limit int, cursor *model.TransactionCursor) ([]model.Transaction, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if cursor == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT id, wallet_id, type, amount::text, reference_type, reference_id, created_at
			 FROM transactions
			 WHERE wallet_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			walletID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT id, wallet_id, type, amount::text, reference_type, reference_id, created_at
			 FROM transactions
			 WHERE wallet_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			walletID, cursor.CreatedAt, cursor.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t      model.Transaction
			txType string
			amount string
		)
		if err := rows.Scan(&t.ID, &t.WalletID, &txType, &amount, &t.ReferenceType, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		t.Type = model.TransactionType(txType)
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}

		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SumTransactions возвращает сумму CREDIT минус сумму DEBIT по журналу кошелька.
// Используется для сверки: результат должен совпадать с текущим balance.
func (r *PostgresRepository) SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var sumStr string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)::text
		 FROM transactions
		 WHERE wallet_id = $1`,
		walletID,
	).Scan(&sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse sum: %w", err)
	}

	return sum, nil
}

// CreatePayment сохраняет новый платёж в статусе PENDING и заполняет ID и CreatedAt.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (placement_id, advertiser_user_id, channel_owner_id, gross_amount, platform_fee, net_amount, status)
		 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)
		 RETURNING id, created_at`,
		p.PlacementID, p.AdvertiserUserID, p.ChannelOwnerID,
		p.GrossAmount.String(), p.PlatformFee.String(), p.NetAmount.String(),
		string(model.PaymentStatusPending),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	p.Status = model.PaymentStatusPending
	return nil
}

// GetPayment возвращает платёж по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx,
		`SELECT id, placement_id, advertiser_user_id, channel_owner_id,
		        gross_amount::text, platform_fee::text, net_amount::text, status, created_at
		 FROM payments WHERE id = $1`,
		paymentID,
	))
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p      model.Payment
		gross  string
		fee    string
		net    string
		status string
	)
	err := row.Scan(&p.ID, &p.PlacementID, &p.AdvertiserUserID, &p.ChannelOwnerID, &gross, &fee, &net, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Status = model.PaymentStatus(status)

	if p.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("parse gross amount: %w", err)
	}
	if p.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse platform fee: %w", err)
	}
	if p.NetAmount, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("parse net amount: %w", err)
	}

	return &p, nil
}

// CompletePayment завершает платёж: переводит его из PENDING в COMPLETED,
// списывает gross_amount с кошелька рекламодателя, зачисляет net_amount
// владельцу канала и разницу gross − net платформенному кошельку. Все шаги
// выполняются в одной транзакции; повторный вызов для того же платежа
// возвращает ErrInvalidState и не создаёт новых записей журнала.
func (r *PostgresRepository) CompletePayment(ctx context.Context, paymentID uuid.UUID) error {
	return r.withRetry(ctx, func() error {
		return r.completePayment(ctx, paymentID)
	})
}

func (r *PostgresRepository) completePayment(ctx context.Context, paymentID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		advertiserUserID uuid.UUID
		channelOwnerID   uuid.UUID
		grossStr         string
		netStr           string
		status           string
	)
	err = tx.QueryRow(ctx,
		`SELECT advertiser_user_id, channel_owner_id, gross_amount::text, net_amount::text, status
		 FROM payments WHERE id = $1 FOR UPDATE`,
		paymentID,
	).Scan(&advertiserUserID, &channelOwnerID, &grossStr, &netStr, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("select payment: %w", err)
	}

	if model.PaymentStatus(status) != model.PaymentStatusPending {
		return ErrInvalidState
	}

	gross, err := decimal.NewFromString(grossStr)
	if err != nil {
		return fmt.Errorf("parse gross amount: %w", err)
	}
	net, err := decimal.NewFromString(netStr)
	if err != nil {
		return fmt.Errorf("parse net amount: %w", err)
	}
	fee := gross.Sub(net)

	advertiserWalletID, err := walletIDByOwner(ctx, tx, `owner_user_id = $1`, advertiserUserID)
	if err != nil {
		return err
	}
	channelWalletID, err := walletIDByOwner(ctx, tx, `owner_telegram_id = $1`, channelOwnerID)
	if err != nil {
		return err
	}
	platformWalletID, err := walletIDByOwner(ctx, tx, `owner_type = $1`, string(model.OwnerTypePlatform))
	if err != nil {
		return err
	}

	// Условное обновление статуса: строка платежа уже заблокирована, но переход
	// фиксируется одним атомарным UPDATE c проверкой исходного статуса.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1 AND status = $3`,
		paymentID, string(model.PaymentStatusCompleted), string(model.PaymentStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	walletIDs := []uuid.UUID{advertiserWalletID, channelWalletID}
	if fee.IsPositive() {
		walletIDs = append(walletIDs, platformWalletID)
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(walletIDs))
	for _, id := range orderedUnique(walletIDs) {
		balance, _, err := lockWallet(ctx, tx, id)
		if err != nil {
			return err
		}
		balances[id] = balance
	}

	if balances[advertiserWalletID].LessThan(gross) {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2::numeric WHERE id = $1`,
		advertiserWalletID, gross.String(),
	); err != nil {
		return fmt.Errorf("debit advertiser wallet: %w", err)
	}
	if err := appendTransaction(ctx, tx, advertiserWalletID, model.TransactionDebit, gross, "PAYMENT", paymentID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $2::numeric WHERE id = $1`,
		channelWalletID, net.String(),
	); err != nil {
		return fmt.Errorf("credit channel owner wallet: %w", err)
	}
	if err := appendTransaction(ctx, tx, channelWalletID, model.TransactionCredit, net, "PAYMENT", paymentID); err != nil {
		return err
	}

	if fee.IsPositive() {
		if _, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance + $2::numeric WHERE id = $1`,
			platformWalletID, fee.String(),
		); err != nil {
			return fmt.Errorf("credit platform wallet: %w", err)
		}
		if err := appendTransaction(ctx, tx, platformWalletID, model.TransactionCredit, fee, "PLATFORM_FEE", paymentID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func walletIDByOwner(ctx context.Context, tx pgx.Tx, where string, arg any) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE `+where, arg).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrWalletNotFound
		}
		return uuid.Nil, fmt.Errorf("select wallet id: %w", err)
	}
	return id, nil
}

func orderedUnique(ids []uuid.UUID) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	for i := 1; i < len(res); i++ {
		for j := i; j > 0 && bytes.Compare(res[j][:], res[j-1][:]) < 0; j-- {
			res[j], res[j-1] = res[j-1], res[j]
		}
	}
	return res
}

const withdrawalColumns = `id, wallet_id, bank_account_id, amount::text, fee::text, net_amount::text, status, reference_code, failure_reason, processed_at, created_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var (
		wd     model.Withdrawal
		amount string
		fee    string
		net    string
		status string
	)
	err := row.Scan(&wd.ID, &wd.WalletID, &wd.BankAccountID, &amount, &fee, &net, &status, &wd.ReferenceCode, &wd.FailureReason, &wd.ProcessedAt, &wd.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}

	wd.Status = model.WithdrawalStatus(status)

	if wd.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if wd.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}
	if wd.NetAmount, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("parse net amount: %w", err)
	}

	return &wd, nil
}

// CreateWithdrawal создаёт заявку на вывод средств и в той же транзакции
// блокирует сумму на кошельке. Требуется available_balance >= amount.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, walletID, bankAccountID uuid.UUID, amount, fee decimal.Decimal) (*model.Withdrawal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, locked, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}

	if balance.Sub(locked).LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET locked_balance = locked_balance + $2::numeric WHERE id = $1`,
		walletID, amount.String(),
	); err != nil {
		return nil, fmt.Errorf("lock funds: %w", err)
	}

	wd := &model.Withdrawal{
		WalletID:      walletID,
		BankAccountID: bankAccountID,
		Amount:        amount,
		Fee:           fee,
		NetAmount:     amount.Sub(fee),
		Status:        model.WithdrawalStatusPending,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO withdrawals (wallet_id, bank_account_id, amount, fee, net_amount, status)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
		 RETURNING id, created_at`,
		walletID, bankAccountID, amount.String(), fee.String(), wd.NetAmount.String(),
		string(model.WithdrawalStatusPending),
	).Scan(&wd.ID, &wd.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return wd, nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, withdrawalID))
}

// lockWithdrawal блокирует строку заявки до конца транзакции.
func lockWithdrawal(ctx context.Context, tx pgx.Tx, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, withdrawalID))
}

// MarkWithdrawalProcessing переводит заявку из PENDING в PROCESSING.
// Перевод статуса не затрагивает балансы: средства уже заблокированы.
func (r *PostgresRepository) MarkWithdrawalProcessing(ctx context.Context, withdrawalID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wd, err := lockWithdrawal(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}

	if wd.Status != model.WithdrawalStatusPending {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx,
		`UPDATE withdrawals SET status = $2 WHERE id = $1`,
		withdrawalID, string(model.WithdrawalStatusProcessing),
	); err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CompleteWithdrawal завершает вывод: заявка переходит из PROCESSING в COMPLETED,
// сумма одновременно списывается с баланса и снимается с блокировки, в журнал
// добавляется запись DEBIT. referenceCode — внешний идентификатор выплаты.
func (r *PostgresRepository) CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error {
	return r.withRetry(ctx, func() error {
		return r.completeWithdrawal(ctx, withdrawalID, referenceCode)
	})
}

func (r *PostgresRepository) completeWithdrawal(ctx context.Context, withdrawalID uuid.UUID, referenceCode string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wd, err := lockWithdrawal(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}

	if wd.Status != model.WithdrawalStatusProcessing {
		return ErrInvalidState
	}

	_, locked, err := lockWallet(ctx, tx, wd.WalletID)
	if err != nil {
		return err
	}

	// Заблокированных средств не может быть меньше суммы заявки: блокировка
	// была поставлена при создании и снимается только терминальным переходом.
	if locked.LessThan(wd.Amount) {
		return ErrInvariantViolation
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets
		 SET balance = balance - $2::numeric, locked_balance = locked_balance - $2::numeric
		 WHERE id = $1`,
		wd.WalletID, wd.Amount.String(),
	); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE withdrawals SET status = $2, reference_code = $3, processed_at = now() WHERE id = $1`,
		withdrawalID, string(model.WithdrawalStatusCompleted), referenceCode,
	); err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}

	if err := appendTransaction(ctx, tx, wd.WalletID, model.TransactionDebit, wd.Amount, "WITHDRAWAL", withdrawalID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// FailWithdrawal помечает вывод неуспешным и возвращает заблокированную сумму
// в доступный баланс. Баланс не списывается: до COMPLETED средства кошелёк
// не покидали. Повторный вызов для заявки в терминальном статусе возвращает
// ErrInvalidState и не меняет балансы.
func (r *PostgresRepository) FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wd, err := lockWithdrawal(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}

	switch wd.Status {
	case model.WithdrawalStatusCompleted, model.WithdrawalStatusFailed, model.WithdrawalStatusCancelled:
		return ErrInvalidState
	}

	if err := unlockWithdrawalFunds(ctx, tx, wd); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE withdrawals SET status = $2, failure_reason = $3 WHERE id = $1`,
		withdrawalID, string(model.WithdrawalStatusFailed), reason,
	); err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CancelWithdrawal отменяет заявку по инициативе владельца. Допустимо только
// из PENDING: после передачи во внешнюю платёжную систему заявка может лишь
// завершиться или провалиться.
func (r *PostgresRepository) CancelWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wd, err := lockWithdrawal(ctx, tx, withdrawalID)
	if err != nil {
		return err
	}

	if wd.Status != model.WithdrawalStatusPending {
		return ErrInvalidState
	}

	if err := unlockWithdrawalFunds(ctx, tx, wd); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE withdrawals SET status = $2 WHERE id = $1`,
		withdrawalID, string(model.WithdrawalStatusCancelled),
	); err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func unlockWithdrawalFunds(ctx context.Context, tx pgx.Tx, wd *model.Withdrawal) error {
	_, locked, err := lockWallet(ctx, tx, wd.WalletID)
	if err != nil {
		return err
	}

	if locked.LessThan(wd.Amount) {
		return ErrInvariantViolation
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET locked_balance = locked_balance - $2::numeric WHERE id = $1`,
		wd.WalletID, wd.Amount.String(),
	); err != nil {
		return fmt.Errorf("unlock funds: %w", err)
	}
	return nil
}

// WithdrawalsByWallet возвращает заявки на вывод кошелька от новых к старым.
func (r *PostgresRepository) WithdrawalsByWallet(ctx context.Context, walletID uuid.UUID) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawals
		 WHERE wallet_id = $1
		 ORDER BY created_at DESC`,
		walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	return collectWithdrawals(rows)
}

// ProcessingWithdrawals возвращает заявки в статусе PROCESSING для опроса
// внешней платёжной системы.
func (r *PostgresRepository) ProcessingWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawals
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.WithdrawalStatusProcessing), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select processing withdrawals: %w", err)
	}
	defer rows.Close()

	return collectWithdrawals(rows)
}

func collectWithdrawals(rows pgx.Rows) ([]model.Withdrawal, error) {
	var res []model.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *wd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

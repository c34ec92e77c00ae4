// Package ledger — repository.go выполняет все операции с таблицами accounts и transactions.
// Все денежные операции выполняются в транзакциях БД для целостности данных:
// обновление счёта и запись в журнал либо происходят оба, либо ни одного.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository предоставляет методы для работы со счетами и журналом транзакций.
type Repository struct {
	db *pgxpool.Pool
	// Стартовый баланс нового счёта. Счёт создаётся при первой записи,
	// поэтому дефолт применяется прямо в upsert-запросах.
	startingBalance int64
}

// NewRepository создаёт новый репозиторий экономики.
func NewRepository(db *pgxpool.Pool, startingBalance int64) *Repository {
	return &Repository{db: db, startingBalance: startingBalance}
}

// CreditWin начисляет выигрыш: win_count +1, balance +amount, запись 'win' в журнал.
// Если счёта нет — создаёт его со стартовым балансом и сразу применяет начисление.
// Имя игрока обновляется при каждой записи (последняя запись побеждает).
//
// Возвращает новый баланс.
func (r *Repository) CreditWin(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	// Транзакция БД: обновление счёта и запись в журнал атомарны.
	// Конкурирующие операции по одному user_id сериализуются блокировкой строки.
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, display_name, win_count, balance)
		VALUES ($1, $2, 1, $3 + $4)
		ON CONFLICT (user_id) DO UPDATE
		SET win_count = accounts.win_count + 1,
		    balance = accounts.balance + $4,
		    display_name = EXCLUDED.display_name,
		    updated_at = NOW()
		RETURNING balance
	`, userID, displayName, r.startingBalance, amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления выигрыша: %w", err)
	}

	// Записываем транзакцию в журнал
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, display_name, amount, kind)
		VALUES ($1, $2, $3, $4)
	`, userID, displayName, amount, TxKindWin)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return newBalance, nil
}

// DebitBet списывает ставку: balance -amount, запись 'bet' в журнал.
// Нижней границы нет — проверка достаточности средств делается вызывающей
// стороной до списания (внутри критической секции сессии).
//
// Возвращает новый баланс.
func (r *Repository) DebitBet(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, display_name, win_count, balance)
		VALUES ($1, $2, 0, $3 - $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance - $4,
		    display_name = EXCLUDED.display_name,
		    updated_at = NOW()
		RETURNING balance
	`, userID, displayName, r.startingBalance, amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка списания ставки: %w", err)
	}

	// В журнал ставка пишется со знаком минус
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, display_name, amount, kind)
		VALUES ($1, $2, $3, $4)
	`, userID, displayName, -amount, TxKindBet)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи транзакции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return newBalance, nil
}

// GetBalance возвращает текущий баланс пользователя.
// Если счёта ещё нет — стартовый баланс (счёт не создаётся).
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.startingBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// TopByWins возвращает счета с наибольшим числом побед.
// При равенстве побед порядок стабильный (по user_id).
func (r *Repository) TopByWins(ctx context.Context, limit int) ([]*Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, display_name, win_count, balance, created_at, updated_at
		FROM accounts
		WHERE win_count > 0
		ORDER BY win_count DESC, user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лидеров: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.UserID, &a.DisplayName, &a.WinCount, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// RecentTransactions возвращает последние N транзакций пользователя,
// от новых к старым.
func (r *Repository) RecentTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, display_name, amount, kind, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.DisplayName, &t.Amount, &t.Kind, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}

// GetSummary возвращает сводку по всей экономике (для ежедневного отчёта).
func (r *Repository) GetSummary(ctx context.Context) (*Summary, error) {
	var s Summary
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(win_count), 0)
		FROM accounts
	`).Scan(&s.Accounts, &s.TotalBalance, &s.TotalWins)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сводки: %w", err)
	}
	return &s, nil
}

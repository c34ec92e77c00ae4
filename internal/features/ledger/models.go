// Package ledger управляет экономикой бота: балансами игроков и журналом транзакций.
// models.go описывает структуры для счетов и транзакций.
package ledger

import "time"

// Account представляет счёт игрока.
// Каждый игрок имеет ровно одну запись в таблице accounts.
// Счёт создаётся неявно при первой записи в журнал — со стартовым балансом.
type Account struct {
	UserID      int64     `db:"user_id"`      // Telegram user ID
	DisplayName string    `db:"display_name"` // Последнее известное имя (обновляется при каждой записи)
	WinCount    int       `db:"win_count"`    // Количество побед (только растёт)
	Balance     int64     `db:"balance"`      // Текущий баланс
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Transaction представляет одну операцию с монетами.
// Записи неизменяемы: журнал только пополняется, для любого игрока
// balance == стартовый баланс + сумма всех его транзакций.
type Transaction struct {
	ID          int64     `db:"id"`           // ID транзакции (монотонный, выдаёт БД)
	UserID      int64     `db:"user_id"`      // Чья операция
	DisplayName string    `db:"display_name"` // Имя на момент операции
	Amount      int64     `db:"amount"`       // Сумма со знаком: минус — ставка, плюс — выигрыш
	Kind        string    `db:"kind"`         // Тип: 'bet' или 'win'
	CreatedAt   time.Time `db:"created_at"`   // Время операции
}

// Типы транзакций
const (
	TxKindBet = "bet" // Списание за ход
	TxKindWin = "win" // Начисление выигрыша
)

// Summary — сводка по всей экономике для ежедневного отчёта в лог.
type Summary struct {
	Accounts     int64 // Всего счетов
	TotalBalance int64 // Суммарный баланс всех игроков
	TotalWins    int64 // Всего побед
}

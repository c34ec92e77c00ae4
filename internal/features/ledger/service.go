// Package ledger — service.go содержит бизнес-логику экономики.
// Валидация сумм, начисления и списания, лидерборд и история транзакций.
package ledger

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/common"
)

// Store — контракт хранилища счетов и журнала.
// Реализуется *Repository; в тестах подменяется фейком.
type Store interface {
	CreditWin(ctx context.Context, userID int64, displayName string, amount int64) (int64, error)
	DebitBet(ctx context.Context, userID int64, displayName string, amount int64) (int64, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	TopByWins(ctx context.Context, limit int) ([]*Account, error)
	RecentTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	GetSummary(ctx context.Context) (*Summary, error)
}

// Service управляет экономикой бота (монеты).
type Service struct {
	store Store
}

// NewService создаёт новый сервис экономики.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetBalance возвращает текущий баланс пользователя.
// Для нового игрока — стартовый баланс.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.store.GetBalance(ctx, userID)
}

// CreditWin начисляет выигрыш и увеличивает счётчик побед на 1.
// Идемпотентность НЕ гарантируется этим вызовом: ровно один вызов
// на фактическую победу обеспечивает реестр сессий.
func (s *Service) CreditWin(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}

	newBalance, err := s.store.CreditWin(ctx, userID, displayName, amount)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"balance": newBalance,
	}).Info("Выигрыш начислен")

	return newBalance, nil
}

// DebitBet списывает стоимость хода.
// Нижняя граница баланса здесь намеренно не проверяется: проверку
// достаточности средств делает реестр сессий внутри критической секции
// по ключу сессии, до вызова списания. Баланс может уйти в минус только
// если один игрок одновременно делает ходы в разных чатах — принимаем
// это как допустимое поведение (как в исходной версии бота).
func (s *Service) DebitBet(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}

	newBalance, err := s.store.DebitBet(ctx, userID, displayName, amount)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"balance": newBalance,
	}).Debug("Ставка списана")

	return newBalance, nil
}

// Leaderboard возвращает топ-10 игроков по количеству побед.
func (s *Service) Leaderboard(ctx context.Context) ([]*Account, error) {
	return s.store.TopByWins(ctx, 10)
}

// History возвращает последние транзакции пользователя, от новых к старым.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.RecentTransactions(ctx, userID, limit)
}

// GetSummary возвращает сводку по экономике для ежедневного отчёта.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	return s.store.GetSummary(ctx)
}

// Package game — registry.go владеет всеми игровыми сессиями.
// Реестр — единственный писатель состояния сессий: создание, открытие ячеек
// и снятие по таймауту проходят только через него.
//
// Модель конкурентности: на каждый ключ сессии (chat ID) — свой мьютекс,
// который держится на всю мутацию, включая списание ставки в БД. Ходы в
// разных чатах идут параллельно, внутри одного чата — строго по одному.
// Поколение сессии (gen) сквозное и монотонное: таймер прошлой игры не может
// задеть новую игру с тем же ключом.
package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/common"
	"serotonyl.ru/prize-bot/internal/config"
)

// Balance — операции экономики, которые нужны игре.
// Реализуется *ledger.Service; в тестах подменяется фейком.
type Balance interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	DebitBet(ctx context.Context, userID int64, displayName string, amount int64) (int64, error)
	CreditWin(ctx context.Context, userID int64, displayName string, amount int64) (int64, error)
}

// keyState — слот одного ключа сессии. Мьютекс слота сериализует
// все мутации по этому ключу; gen меняется при каждом StartSession.
type keyState struct {
	mu   sync.Mutex
	gen  uint64
	sess *session
}

// Registry хранит активные сессии по ключу (chat ID).
type Registry struct {
	mu   sync.Mutex
	keys map[int64]*keyState
	gen  uint64 // сквозной счётчик поколений, под r.mu

	balance Balance
	cfg     *config.Config

	// randCell выбирает ячейку с призом; в тестах подменяется
	randCell func(gridSize int) Cell
}

// NewRegistry создаёт реестр сессий.
func NewRegistry(balance Balance, cfg *config.Config) *Registry {
	return &Registry{
		keys:    make(map[int64]*keyState),
		balance: balance,
		cfg:     cfg,
		randCell: func(gridSize int) Cell {
			return Cell{Row: rand.IntN(gridSize), Col: rand.IntN(gridSize)}
		},
	}
}

// lockKey захватывает слот ключа, создавая его при необходимости.
// После захвата слот перепроверяется: пока мы ждали мьютекс, слот могли
// удалить из карты и создать заново — тогда берём актуальный.
func (r *Registry) lockKey(key int64) *keyState {
	for {
		r.mu.Lock()
		ks, ok := r.keys[key]
		if !ok {
			ks = &keyState{}
			r.keys[key] = ks
		}
		r.mu.Unlock()

		ks.mu.Lock()

		r.mu.Lock()
		current := r.keys[key]
		r.mu.Unlock()
		if current == ks {
			return ks
		}
		ks.mu.Unlock()
	}
}

// release отпускает слот; пустые слоты (без сессии) удаляются из карты,
// чтобы реестр не рос на каждый чат, где когда-то играли.
func (r *Registry) release(key int64, ks *keyState) {
	if ks.sess == nil {
		r.mu.Lock()
		if r.keys[key] == ks {
			delete(r.keys, key)
		}
		r.mu.Unlock()
	}
	ks.mu.Unlock()
}

// StartSession начинает новую игру для ключа.
// Требует баланс не меньше стоимости одного хода, иначе common.ErrInsufficientBalance.
// Существующая сессия по этому ключу молча затирается — без выплат и возвратов.
//
// Возвращает поколение новой сессии (для таймера супервизора) и текущий баланс.
func (r *Registry) StartSession(ctx context.Context, key int64, userID int64, displayName string) (uint64, int64, error) {
	ks := r.lockKey(key)
	defer r.release(key, ks)

	balance, err := r.balance.GetBalance(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	if balance < r.cfg.GameMoveCost {
		return 0, balance, common.ErrInsufficientBalance
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	target := r.randCell(r.cfg.GameGridSize)
	ks.gen = gen
	ks.sess = &session{
		target:    target,
		opened:    make(map[Cell]struct{}),
		active:    true,
		createdAt: time.Now(),
	}

	log.WithFields(log.Fields{
		"key":    key,
		"gen":    gen,
		"target": target.String(),
	}).Info("Новая игра начата")

	return gen, balance, nil
}

// OpenCell принимает ход: проверяет предусловия, списывает стоимость хода
// и только после подтверждённого списания мутирует сессию.
//
// Порядок при выигрыше строго такой: (1) списание хода, (2) открытие ячейки
// и обнаружение приза, (3) ровно одно начисление выигрыша. Если списание
// не прошло — сессия не меняется вообще.
func (r *Registry) OpenCell(ctx context.Context, key int64, userID int64, displayName string, cell Cell) (*OpenResult, error) {
	ks := r.lockKey(key)
	defer r.release(key, ks)

	sess := ks.sess
	if sess == nil {
		return nil, common.ErrNoSession
	}
	if !sess.active {
		return nil, common.ErrSessionInactive
	}
	if !cell.Valid(r.cfg.GameGridSize) {
		return nil, common.ErrInvalidCell
	}
	if _, opened := sess.opened[cell]; opened {
		return nil, common.ErrCellAlreadyOpened
	}

	// Проверка средств и списание — одна критическая секция по ключу.
	moveCost := r.cfg.GameMoveCost
	balance, err := r.balance.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	if balance < moveCost {
		return nil, common.ErrInsufficientBalance
	}

	newBalance, err := r.balance.DebitBet(ctx, userID, displayName, moveCost)
	if err != nil {
		// Списание не прошло — сессию не трогаем
		return nil, fmt.Errorf("ошибка списания хода: %w", err)
	}

	sess.opened[cell] = struct{}{}
	sess.moves++
	sess.totalSpent += moveCost

	result := &OpenResult{
		Cell:          cell,
		Moves:         sess.moves,
		TotalSpent:    sess.totalSpent,
		BalanceBefore: balance,
		Balance:       newBalance,
		Opened:        openedSnapshot(sess),
	}

	if cell != sess.target {
		total := r.cfg.GameGridSize * r.cfg.GameGridSize
		result.Outcome = OutcomeMiss
		result.Remaining = total - len(sess.opened)
		return result, nil
	}

	// Приз найден: сессия терминальна, удаляем её из реестра ДО начисления —
	// повторное начисление за эту победу невозможно даже при ошибке ниже.
	sess.active = false
	ks.sess = nil

	winAmount := r.cfg.GameWinAmount
	winBalance, err := r.balance.CreditWin(ctx, userID, displayName, winAmount)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"key":     key,
			"user_id": userID,
		}).Error("Ошибка начисления выигрыша")
		return nil, fmt.Errorf("ошибка начисления выигрыша: %w", err)
	}

	result.Outcome = OutcomeWin
	result.Profit = winAmount - result.TotalSpent
	result.BalanceBefore = newBalance // баланс после списания хода, до начисления
	result.Balance = winBalance
	result.Target = sess.target

	log.WithFields(log.Fields{
		"key":    key,
		"moves":  result.Moves,
		"spent":  result.TotalSpent,
		"profit": result.Profit,
	}).Info("Приз найден")

	return result, nil
}

// Expire снимает сессию по таймауту. Срабатывает только если сессия
// всё ещё активна И принадлежит тому же поколению — таймер прошлой игры
// не может снять новую игру с тем же ключом. Идемпотентна: гонка с
// выигрышем или повторным вызовом безопасна (второй вызов — no-op).
func (r *Registry) Expire(key int64, gen uint64) (*ExpiredSession, bool) {
	ks := r.lockKey(key)
	defer r.release(key, ks)

	sess := ks.sess
	if sess == nil || !sess.active || ks.gen != gen {
		return nil, false
	}

	ks.sess = nil
	return &ExpiredSession{Key: key, Moves: sess.moves, TotalSpent: sess.totalSpent}, true
}

// ExpireStale снимает все сессии старше olderThan.
// Страховка на случай потерянного таймера; вызывается кроном.
func (r *Registry) ExpireStale(olderThan time.Duration) []*ExpiredSession {
	cutoff := time.Now().Add(-olderThan)

	r.mu.Lock()
	keys := make([]int64, 0, len(r.keys))
	for key := range r.keys {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	var expired []*ExpiredSession
	for _, key := range keys {
		ks := r.lockKey(key)
		sess := ks.sess
		if sess != nil && sess.active && sess.createdAt.Before(cutoff) {
			ks.sess = nil
			expired = append(expired, &ExpiredSession{Key: key, Moves: sess.moves, TotalSpent: sess.totalSpent})
		}
		r.release(key, ks)
	}
	return expired
}

// openedSnapshot копирует множество открытых ячеек для результата хода.
func openedSnapshot(sess *session) []Cell {
	cells := make([]Cell, 0, len(sess.opened))
	for c := range sess.opened {
		cells = append(cells, c)
	}
	return cells
}

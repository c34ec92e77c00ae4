package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/prize-bot/internal/common"
	"serotonyl.ru/prize-bot/internal/config"
)

// fakeBalance — экономика в памяти с семантикой настоящего леджера:
// счёт создаётся при первой записи со стартовым балансом 100.
type fakeBalance struct {
	mu        sync.Mutex
	balances  map[int64]int64
	wins      map[int64]int
	txAmounts map[int64][]int64

	debitErr  error
	creditErr error
}

func newFakeBalance() *fakeBalance {
	return &fakeBalance{
		balances:  make(map[int64]int64),
		wins:      make(map[int64]int),
		txAmounts: make(map[int64][]int64),
	}
}

func (f *fakeBalance) balanceLocked(userID int64) int64 {
	if b, ok := f.balances[userID]; ok {
		return b
	}
	return 100
}

func (f *fakeBalance) GetBalance(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceLocked(userID), nil
}

func (f *fakeBalance) DebitBet(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return 0, f.debitErr
	}
	f.balances[userID] = f.balanceLocked(userID) - amount
	f.txAmounts[userID] = append(f.txAmounts[userID], -amount)
	return f.balances[userID], nil
}

func (f *fakeBalance) CreditWin(ctx context.Context, userID int64, displayName string, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creditErr != nil {
		return 0, f.creditErr
	}
	f.balances[userID] = f.balanceLocked(userID) + amount
	f.wins[userID]++
	f.txAmounts[userID] = append(f.txAmounts[userID], amount)
	return f.balances[userID], nil
}

// assertLedgerInvariant: balance == 100 + сумма всех транзакций.
func (f *fakeBalance) assertLedgerInvariant(t *testing.T, userID int64) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, a := range f.txAmounts[userID] {
		sum += a
	}
	assert.Equal(t, 100+sum, f.balanceLocked(userID))
}

func testConfig() *config.Config {
	return &config.Config{
		GameMoveCost:           15,
		GameWinAmount:          80,
		GameGridSize:           4,
		GameSessionTimeout:     3 * time.Minute,
		EconomyStartingBalance: 100,
	}
}

// newTestRegistry создаёт реестр с фиксированной позицией приза.
func newTestRegistry(balance Balance, target Cell) *Registry {
	r := NewRegistry(balance, testConfig())
	r.randCell = func(gridSize int) Cell { return target }
	return r
}

const (
	testKey  = int64(1001)
	testUser = int64(42)
)

func TestStartSessionInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	fb.balances[testUser] = 10 // меньше стоимости хода

	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	_, balance, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
	assert.Equal(t, int64(10), balance)

	// Сессия не создана
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.ErrorIs(t, err, common.ErrNoSession)
}

// Сценарий из экономики игры: сетка 4x4, ход 15, выигрыш 80, старт 100.
// Промах → 85, затем попадание → списание до 70, начисление 80 → 150, прибыль 50.
func TestOpenCellMissThenWin(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	target := Cell{Row: 1, Col: 1}
	r := newTestRegistry(fb, target)

	_, balance, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	miss, err := r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, miss.Outcome)
	assert.Equal(t, int64(85), miss.Balance)
	assert.Equal(t, 1, miss.Moves)
	assert.Equal(t, int64(15), miss.TotalSpent)
	assert.Equal(t, 15, miss.Remaining)
	// Позиция приза не раскрывается при промахе
	assert.Equal(t, Cell{}, miss.Target)

	win, err := r.OpenCell(ctx, testKey, testUser, "Вася", target)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWin, win.Outcome)
	assert.Equal(t, 2, win.Moves)
	assert.Equal(t, int64(30), win.TotalSpent)
	assert.Equal(t, int64(50), win.Profit)
	assert.Equal(t, int64(70), win.BalanceBefore) // после списания, до начисления
	assert.Equal(t, int64(150), win.Balance)
	assert.Equal(t, target, win.Target)

	assert.Equal(t, 1, fb.wins[testUser])
	fb.assertLedgerInvariant(t, testUser)
}

func TestOpenCellAlreadyOpened(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 3, Col: 3})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	cell := Cell{Row: 0, Col: 0}
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.NoError(t, err)

	// Повторное открытие — отказ без списания и без мутаций
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.ErrorIs(t, err, common.ErrCellAlreadyOpened)

	balance, _ := fb.GetBalance(ctx, testUser)
	assert.Equal(t, int64(85), balance)

	next, err := r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Moves)
	assert.Equal(t, int64(30), next.TotalSpent)
}

func TestOpenCellInvalidCoordinate(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	for _, cell := range []Cell{
		{Row: -1, Col: 0},
		{Row: 0, Col: -1},
		{Row: 4, Col: 0},
		{Row: 0, Col: 4},
	} {
		_, err := r.OpenCell(ctx, testKey, testUser, "Вася", cell)
		assert.ErrorIs(t, err, common.ErrInvalidCell, "cell %v", cell)
	}

	balance, _ := fb.GetBalance(ctx, testUser)
	assert.Equal(t, int64(100), balance)
}

func TestOpenCellInsufficientFundsNoMutation(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	// После старта баланс упал ниже стоимости хода
	fb.mu.Lock()
	fb.balances[testUser] = 5
	fb.mu.Unlock()

	cell := Cell{Row: 0, Col: 0}
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	// Ячейка не открыта: после пополнения ход по ней проходит
	fb.mu.Lock()
	fb.balances[testUser] = 100
	fb.mu.Unlock()

	result, err := r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moves)
}

func TestOpenCellDebitFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	fb.debitErr = errors.New("база недоступна")
	cell := Cell{Row: 0, Col: 0}
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.Error(t, err)

	// Сессия не тронута: та же ячейка открывается первым ходом
	fb.debitErr = nil
	result, err := r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moves)
	assert.Equal(t, int64(15), result.TotalSpent)
}

func TestWinIsTerminal(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	target := Cell{Row: 2, Col: 2}
	r := newTestRegistry(fb, target)

	gen1, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	win, err := r.OpenCell(ctx, testKey, testUser, "Вася", target)
	require.NoError(t, err)
	require.Equal(t, OutcomeWin, win.Outcome)

	// Сессии больше нет
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.ErrorIs(t, err, common.ErrNoSession)

	// Выигрыш начислен ровно один раз
	assert.Equal(t, 1, fb.wins[testUser])

	// Новая игра стартует с новым поколением
	gen2, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)
	assert.NotEqual(t, gen1, gen2)
}

func TestExpireAfterWinIsNoop(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	target := Cell{Row: 0, Col: 3}
	r := newTestRegistry(fb, target)

	gen, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", target)
	require.NoError(t, err)

	balanceBefore, _ := fb.GetBalance(ctx, testUser)

	_, expired := r.Expire(testKey, gen)
	assert.False(t, expired)

	balanceAfter, _ := fb.GetBalance(ctx, testUser)
	assert.Equal(t, balanceBefore, balanceAfter)
}

func TestExpireWrongGenerationIsNoop(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	gen1, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	// Новая игра затирает старую; таймер первой игры не должен её снять
	_, _, err = r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	_, expired := r.Expire(testKey, gen1)
	assert.False(t, expired)

	// Вторая игра жива
	result, err := r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moves)
}

func TestExpireActiveSessionReturnsSummary(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	gen, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.NoError(t, err)

	summary, expired := r.Expire(testKey, gen)
	require.True(t, expired)
	assert.Equal(t, 1, summary.Moves)
	assert.Equal(t, int64(15), summary.TotalSpent)

	// Повторный вызов — no-op
	_, expired = r.Expire(testKey, gen)
	assert.False(t, expired)
}

func TestStartSessionOverwritesSilently(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 3, Col: 0})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	cell := Cell{Row: 0, Col: 0}
	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.NoError(t, err)

	// Перезапуск: прежние открытые ячейки забыты, счётчики обнулены
	_, _, err = r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	result, err := r.OpenCell(ctx, testKey, testUser, "Вася", cell)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Moves)
	assert.Equal(t, int64(15), result.TotalSpent)
}

// Два конкурентных хода в одну и ту же ячейку: ровно один принимается,
// второй получает ErrCellAlreadyOpened, списание — одно.
func TestConcurrentOpenSameCell(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	fb.balances[testUser] = 1000
	r := newTestRegistry(fb, Cell{Row: 3, Col: 3})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	cell := Cell{Row: 0, Col: 0}
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.OpenCell(ctx, testKey, testUser, "Вася", cell)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, rejectedCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, common.ErrCellAlreadyOpened):
			rejectedCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, rejectedCount)

	balance, _ := fb.GetBalance(ctx, testUser)
	assert.Equal(t, int64(985), balance)
	fb.assertLedgerInvariant(t, testUser)
}

// Конкурентные игры в разных чатах не мешают друг другу.
func TestConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 3, Col: 3})

	const chats = 8
	var wg sync.WaitGroup
	for i := 0; i < chats; i++ {
		wg.Add(1)
		go func(key int64) {
			defer wg.Done()
			userID := key * 10
			_, _, err := r.StartSession(ctx, key, userID, "Игрок")
			if err != nil {
				t.Errorf("StartSession(%d): %v", key, err)
				return
			}
			if _, err := r.OpenCell(ctx, key, userID, "Игрок", Cell{Row: 0, Col: 0}); err != nil {
				t.Errorf("OpenCell(%d): %v", key, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	for i := 0; i < chats; i++ {
		balance, _ := fb.GetBalance(ctx, int64(i+1)*10)
		assert.Equal(t, int64(85), balance)
	}
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBalance()
	r := newTestRegistry(fb, Cell{Row: 1, Col: 1})

	_, _, err := r.StartSession(ctx, testKey, testUser, "Вася")
	require.NoError(t, err)

	// Сессия без единого хода старше нулевого порога — снимается с нулевыми итогами
	expired := r.ExpireStale(0)
	require.Len(t, expired, 1)
	assert.Equal(t, testKey, expired[0].Key)
	assert.Equal(t, 0, expired[0].Moves)
	assert.Equal(t, int64(0), expired[0].TotalSpent)

	_, err = r.OpenCell(ctx, testKey, testUser, "Вася", Cell{Row: 0, Col: 0})
	require.ErrorIs(t, err, common.ErrNoSession)
}

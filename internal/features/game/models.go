// Package game реализует игру «найди приз»: сетка NxN, в одной ячейке спрятан приз,
// каждое открытие ячейки стоит монет, найденный приз приносит фиксированный выигрыш.
// models.go описывает структуры данных игры.
package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"serotonyl.ru/prize-bot/internal/common"
)

// Cell — координата ячейки на сетке. Row и Col в диапазоне [0, gridSize).
type Cell struct {
	Row int
	Col int
}

// String возвращает ячейку в формате "row_col" — он же используется
// в callback-данных кнопок клавиатуры.
func (c Cell) String() string {
	return fmt.Sprintf("%d_%d", c.Row, c.Col)
}

// ParseCell разбирает строку "row_col" в координату и проверяет,
// что она попадает в сетку gridSize x gridSize.
func ParseCell(s string, gridSize int) (Cell, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return Cell{}, common.ErrInvalidCell
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cell{}, common.ErrInvalidCell
	}
	col, err := strconv.Atoi(parts[1])
	if err != nil {
		return Cell{}, common.ErrInvalidCell
	}
	c := Cell{Row: row, Col: col}
	if !c.Valid(gridSize) {
		return Cell{}, common.ErrInvalidCell
	}
	return c, nil
}

// Valid проверяет, что координата лежит в пределах сетки.
func (c Cell) Valid(gridSize int) bool {
	return c.Row >= 0 && c.Row < gridSize && c.Col >= 0 && c.Col < gridSize
}

// session — состояние одной игры. Живёт только в памяти реестра,
// перезапуск процесса сбрасывает все игры. Поле target никогда
// не покидает пакет до выигрышного хода.
type session struct {
	target     Cell                // Где спрятан приз
	opened     map[Cell]struct{}   // Уже открытые ячейки
	active     bool                // false после победы или истечения времени
	moves      int                 // Сколько ходов принято
	totalSpent int64               // Сколько монет списано за эту игру
	createdAt  time.Time           // Для таймаута
}

// Outcome — исход принятого хода.
type Outcome int

const (
	// OutcomeMiss — приза в ячейке нет, игра продолжается
	OutcomeMiss Outcome = iota
	// OutcomeWin — приз найден, игра завершена
	OutcomeWin
)

// OpenResult — результат принятого хода. Содержит всё, что нужно
// обработчику для отрисовки: исход, счётчики и снимок открытых ячеек.
// Target заполняется ТОЛЬКО при выигрыше.
type OpenResult struct {
	Outcome       Outcome
	Cell          Cell   // Открытая этим ходом ячейка
	Moves         int    // Ходов сделано за игру
	TotalSpent    int64  // Потрачено за игру
	Remaining     int    // Сколько ячеек ещё закрыто (для Miss)
	Profit        int64  // Выигрыш минус потраченное (для Win)
	BalanceBefore int64  // Баланс до этого хода
	Balance       int64  // Баланс после хода (и начисления, если Win)
	Opened        []Cell // Снимок открытых ячеек для клавиатуры
	Target        Cell   // Ячейка с призом — только при Win
}

// ExpiredSession — итог игры, снятой по таймауту.
// Передаётся в уведомление «время истекло».
type ExpiredSession struct {
	Key        int64 // Ключ сессии (chat ID)
	Moves      int
	TotalSpent int64
}

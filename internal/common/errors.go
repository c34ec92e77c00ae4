// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки экономики (монеты, ставки)
var (
	// ErrInsufficientBalance — недостаточно монет для хода или новой игры
	ErrInsufficientBalance = errors.New("недостаточно монет на счёте")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки игровой сессии. Это ожидаемые отказы на действия пользователя,
// а не сбои — обработчики показывают их в ответе на callback и не логируют как ошибки.
var (
	// ErrNoSession — для этого чата нет активной игры
	ErrNoSession = errors.New("игра не найдена")
	// ErrSessionInactive — игра уже завершена
	ErrSessionInactive = errors.New("игра уже завершена")
	// ErrCellAlreadyOpened — эта ячейка уже открыта
	ErrCellAlreadyOpened = errors.New("эта ячейка уже открыта")
	// ErrInvalidCell — координата вне сетки или битый формат
	ErrInvalidCell = errors.New("некорректная координата ячейки")
)

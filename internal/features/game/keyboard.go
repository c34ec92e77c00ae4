// Package game — keyboard.go рисует игровую клавиатуру.
// Закрытая ячейка — 📦 с callback "open:<chat_id>:<row>_<col>",
// открытая — ❌ (или 🎁, если в ней был приз) с callback "noop".
package game

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	emojiClosed = "📦"
	emojiMiss   = "❌"
	emojiPrize  = "🎁"

	// callbackNoop — заглушка для уже открытых ячеек
	callbackNoop = "noop"
	// callbackOpenPrefix — префикс callback-данных хода
	callbackOpenPrefix = "open"
)

// BuildKeyboard собирает inline-клавиатуру сетки.
// revealTarget=true только после победы: тогда открытая ячейка с призом
// рисуется как 🎁. До победы позиция приза в разметку не попадает никак.
func BuildKeyboard(chatID int64, gridSize int, opened []Cell, target Cell, revealTarget bool) tgbotapi.InlineKeyboardMarkup {
	openedSet := make(map[Cell]struct{}, len(opened))
	for _, c := range opened {
		openedSet[c] = struct{}{}
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, gridSize)
	for i := 0; i < gridSize; i++ {
		row := make([]tgbotapi.InlineKeyboardButton, 0, gridSize)
		for j := 0; j < gridSize; j++ {
			cell := Cell{Row: i, Col: j}
			if _, isOpened := openedSet[cell]; isOpened {
				text := emojiMiss
				if revealTarget && cell == target {
					text = emojiPrize
				}
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(text, callbackNoop))
			} else {
				data := fmt.Sprintf("%s:%d:%s", callbackOpenPrefix, chatID, cell.String())
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(emojiClosed, data))
			}
		}
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

package game

import (
	"fmt"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buttonAt(t *testing.T, markup tgbotapi.InlineKeyboardMarkup, cell Cell) tgbotapi.InlineKeyboardButton {
	t.Helper()
	require.Greater(t, len(markup.InlineKeyboard), cell.Row)
	require.Greater(t, len(markup.InlineKeyboard[cell.Row]), cell.Col)
	return markup.InlineKeyboard[cell.Row][cell.Col]
}

func TestBuildKeyboardClosedCells(t *testing.T) {
	const chatID = int64(-100200)
	markup := BuildKeyboard(chatID, 4, nil, Cell{Row: 1, Col: 1}, false)

	require.Len(t, markup.InlineKeyboard, 4)
	for i, row := range markup.InlineKeyboard {
		require.Len(t, row, 4)
		for j, btn := range row {
			assert.Equal(t, emojiClosed, btn.Text)
			require.NotNil(t, btn.CallbackData)
			assert.Equal(t, fmt.Sprintf("open:%d:%d_%d", chatID, i, j), *btn.CallbackData)
		}
	}
}

func TestBuildKeyboardOpenedCells(t *testing.T) {
	opened := []Cell{{Row: 0, Col: 0}, {Row: 2, Col: 3}}
	markup := BuildKeyboard(1, 4, opened, Cell{Row: 1, Col: 1}, false)

	for _, cell := range opened {
		btn := buttonAt(t, markup, cell)
		assert.Equal(t, emojiMiss, btn.Text)
		require.NotNil(t, btn.CallbackData)
		assert.Equal(t, callbackNoop, *btn.CallbackData)
	}

	// Не открытая ячейка осталась закрытой
	btn := buttonAt(t, markup, Cell{Row: 3, Col: 0})
	assert.Equal(t, emojiClosed, btn.Text)
}

// До победы позиция приза не просачивается в разметку ни текстом, ни данными.
func TestBuildKeyboardDoesNotRevealTarget(t *testing.T) {
	target := Cell{Row: 1, Col: 1}
	markup := BuildKeyboard(1, 4, []Cell{target}, target, false)

	btn := buttonAt(t, markup, target)
	assert.Equal(t, emojiMiss, btn.Text)

	for _, row := range markup.InlineKeyboard {
		for _, b := range row {
			assert.NotEqual(t, emojiPrize, b.Text)
		}
	}
}

func TestBuildKeyboardRevealsTargetAfterWin(t *testing.T) {
	target := Cell{Row: 2, Col: 2}
	opened := []Cell{{Row: 0, Col: 0}, target}
	markup := BuildKeyboard(1, 4, opened, target, true)

	assert.Equal(t, emojiPrize, buttonAt(t, markup, target).Text)
	assert.Equal(t, emojiMiss, buttonAt(t, markup, Cell{Row: 0, Col: 0}).Text)
	assert.Equal(t, emojiClosed, buttonAt(t, markup, Cell{Row: 3, Col: 3}).Text)
}

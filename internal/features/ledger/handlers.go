// Package ledger — handlers.go обрабатывает команды:
// /balance (баланс), /history (история транзакций), /stats (статистика побед).
package ledger

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/common"
)

// historyLimit — сколько транзакций показываем в /history.
const historyLimit = 10

// Handler обрабатывает команды экономики.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд экономики.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance обрабатывает команду /balance — показывает баланс.
//
// Формат ответа:
//
//	💰 Твой баланс: 150 монет.
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, userID int64) {
	balance, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("💰 Твой баланс: %s.", common.FormatBalance(balance)))
}

// HandleHistory обрабатывает команду /history — показывает последние транзакции.
//
// Формат ответа:
//
//	📊 История последних транзакций:
//
//	01.09.2026 14:32 | ➖ 15 монет | ставка
//	01.09.2026 14:31 | ➕ 80 монет | выигрыш
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, userID int64) {
	transactions, err := h.service.History(ctx, userID, historyLimit)
	if err != nil {
		log.WithError(err).Error("Ошибка получения транзакций")
		h.sendMessage(chatID, "❌ Ошибка получения истории транзакций")
		return
	}

	if len(transactions) == 0 {
		h.sendMessage(chatID, "У тебя пока нет истории транзакций.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 История последних транзакций:\n\n")
	for _, tx := range transactions {
		symbol := "➕"
		if tx.Amount < 0 {
			symbol = "➖"
		}
		absAmount := tx.Amount
		if absAmount < 0 {
			absAmount = -absAmount
		}
		kindText := "ставка"
		if tx.Kind == TxKindWin {
			kindText = "выигрыш"
		}
		sb.WriteString(fmt.Sprintf("%s | %s %s | %s\n",
			common.FormatDateTime(tx.CreatedAt),
			symbol,
			common.FormatBalance(absAmount),
			kindText,
		))
	}

	h.sendMessage(chatID, sb.String())
}

// HandleStats обрабатывает команду /stats — топ игроков по победам.
//
// Формат ответа:
//
//	🏆 Статистика побед:
//	Вася: 12
//	Петя: 7
func (h *Handler) HandleStats(ctx context.Context, chatID int64) {
	leaders, err := h.service.Leaderboard(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лидерборда")
		h.sendMessage(chatID, "❌ Ошибка получения статистики")
		return
	}

	if len(leaders) == 0 {
		h.sendMessage(chatID, "Пока никто не выигрывал 😶")
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 Статистика побед:\n")
	for _, a := range leaders {
		sb.WriteString(fmt.Sprintf("%s: %d\n", a.DisplayName, a.WinCount))
	}

	h.sendMessage(chatID, sb.String())
}

// sendMessage — вспомогательный метод для отправки текстовых сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

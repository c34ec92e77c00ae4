// Package game — handlers.go обрабатывает команду /play и нажатия на ячейки.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/common"
	"serotonyl.ru/prize-bot/internal/config"
)

// Handler обрабатывает игровые команды и callback-и.
type Handler struct {
	registry   *Registry
	supervisor *Supervisor
	bot        *tgbotapi.BotAPI
	cfg        *config.Config
}

// NewHandler создаёт игровой обработчик.
func NewHandler(registry *Registry, supervisor *Supervisor, bot *tgbotapi.BotAPI, cfg *config.Config) *Handler {
	return &Handler{
		registry:   registry,
		supervisor: supervisor,
		bot:        bot,
		cfg:        cfg,
	}
}

// badLuckPhrases — ответы на промах, выбираются случайно.
var badLuckPhrases = []string{
	"Мимо! Продолжай искать.",
	"Не угадал! Ищи дальше.",
	"Пусто! Может в другой коробке?",
	"Ничего! Продолжай поиск.",
	"Нет! Попробуй еще.",
}

// HandlePlay обрабатывает команду /play — начинает новую игру.
//
// Проверяет, что монет хватает хотя бы на один ход, создаёт сессию,
// отправляет клавиатуру и взводит таймер таймаута.
func (h *Handler) HandlePlay(ctx context.Context, chatID int64, userID int64, displayName string) {
	gen, balance, err := h.registry.StartSession(ctx, chatID, userID, displayName)
	if err != nil {
		if errors.Is(err, common.ErrInsufficientBalance) {
			h.sendMessage(chatID, fmt.Sprintf(
				"У тебя недостаточно монет! Нужно хотя бы %d, а у тебя %d.",
				h.cfg.GameMoveCost, balance))
			return
		}
		log.WithError(err).Error("Ошибка запуска игры")
		h.sendMessage(chatID, "❌ Не удалось начать игру, попробуй позже")
		return
	}

	text := fmt.Sprintf(
		"🎲 Найди приз в коробке!\nСтоимость хода: %s.\nВыигрыш: %s.\n\n💰 Текущий баланс: %s",
		common.FormatBalance(h.cfg.GameMoveCost),
		common.FormatBalance(h.cfg.GameWinAmount),
		common.FormatBalance(balance),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = BuildKeyboard(chatID, h.cfg.GameGridSize, nil, Cell{}, false)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки игрового сообщения")
	}

	// Таймер привязан к поколению: новая игра по этому чату его отменит
	h.supervisor.Watch(chatID, gen)
}

// HandleCallback обрабатывает нажатие на кнопку клавиатуры.
// Формат данных: "open:<chat_id>:<row>_<col>" или "noop".
func (h *Handler) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Data == callbackNoop {
		h.answerCallback(callback.ID, "")
		return
	}

	// Telegram не присылает Message для слишком старых сообщений —
	// обновить такую клавиатуру всё равно нельзя
	if callback.Message == nil {
		h.answerCallback(callback.ID, "Сообщение устарело, начни новую игру: /play")
		return
	}

	// Битые callback-данные отсеиваем до похода в реестр и леджер
	parts := strings.Split(callback.Data, ":")
	if len(parts) != 3 || parts[0] != callbackOpenPrefix {
		h.answerCallback(callback.ID, "Неверный формат данных")
		return
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		h.answerCallback(callback.ID, "Неверный формат ID чата")
		return
	}
	cell, err := ParseCell(parts[2], h.cfg.GameGridSize)
	if err != nil {
		h.answerCallback(callback.ID, "Неверная координата")
		return
	}

	userID := callback.From.ID
	displayName := displayNameOf(callback.From)

	result, err := h.registry.OpenCell(ctx, chatID, userID, displayName, cell)
	if err != nil {
		h.handleOpenError(callback, err)
		return
	}

	if result.Outcome == OutcomeWin {
		h.handleWin(ctx, callback, chatID, userID, displayName, result)
		return
	}
	h.handleMiss(callback, chatID, result)
}

// handleOpenError показывает отказ хода в ответе на callback.
// Отказы сессии — ожидаемое поведение, ошибками не считаются и не логируются.
func (h *Handler) handleOpenError(callback *tgbotapi.CallbackQuery, err error) {
	switch {
	case errors.Is(err, common.ErrNoSession):
		h.answerCallback(callback.ID, "Игра не найдена")
	case errors.Is(err, common.ErrSessionInactive):
		h.answerCallback(callback.ID, "Игра уже завершена")
	case errors.Is(err, common.ErrCellAlreadyOpened):
		h.answerCallback(callback.ID, "Эта ячейка уже открыта")
	case errors.Is(err, common.ErrInvalidCell):
		h.answerCallback(callback.ID, "Неверная координата")
	case errors.Is(err, common.ErrInsufficientBalance):
		h.answerCallback(callback.ID, fmt.Sprintf(
			"Недостаточно монет! Нужно %d на ход.", h.cfg.GameMoveCost))
	default:
		log.WithError(err).Error("Ошибка открытия ячейки")
		h.answerCallback(callback.ID, "Произошла ошибка, попробуй позже")
	}
}

// handleMiss обновляет игровое сообщение после промаха.
func (h *Handler) handleMiss(callback *tgbotapi.CallbackQuery, chatID int64, result *OpenResult) {
	phrase := badLuckPhrases[rand.IntN(len(badLuckPhrases))]
	h.answerCallback(callback.ID, fmt.Sprintf("%s Списано %s.",
		phrase, common.FormatBalance(h.cfg.GameMoveCost)))

	// Потенциальная прибыль, если приз найдётся следующим ходом
	potential := h.cfg.GameWinAmount - result.TotalSpent
	profitLine := fmt.Sprintf("Потенциальная прибыль: +%d", potential)
	if potential <= 0 {
		profitLine = fmt.Sprintf("Текущий убыток: %d", potential)
	}

	var sb strings.Builder
	sb.WriteString("🎲 Найди приз в коробке!\n")
	sb.WriteString(fmt.Sprintf("Стоимость хода: %s.\n", common.FormatBalance(h.cfg.GameMoveCost)))
	sb.WriteString(fmt.Sprintf("Выигрыш: %s.\n", common.FormatBalance(h.cfg.GameWinAmount)))
	sb.WriteString(fmt.Sprintf("Ходов сделано: %d\n", result.Moves))
	sb.WriteString(profitLine + "\n\n")
	sb.WriteString(fmt.Sprintf("💰 Баланс: %d → %d монет (-%d)",
		result.BalanceBefore, result.Balance, h.cfg.GameMoveCost))

	// Осталось мало ячеек — предупреждаем
	total := h.cfg.GameGridSize * h.cfg.GameGridSize
	if result.Remaining*4 <= total {
		sb.WriteString(fmt.Sprintf("\n\n⚠️ Осталось всего %d %s!",
			result.Remaining, common.PluralizeCells(result.Remaining)))
	}

	keyboard := BuildKeyboard(chatID, h.cfg.GameGridSize, result.Opened, Cell{}, false)
	h.editMessage(chatID, callback.Message.MessageID, sb.String(), keyboard)
}

// handleWin показывает победу и, если монет хватает, сразу начинает новую игру.
func (h *Handler) handleWin(ctx context.Context, callback *tgbotapi.CallbackQuery, chatID int64, userID int64, displayName string, result *OpenResult) {
	h.answerCallback(callback.ID, "")

	// Обновляем клавиатуру — показываем, где был приз
	gridText := fmt.Sprintf(
		"🎲 Найди приз в коробке!\nСтоимость хода: %s.\nВыигрыш: %s.\n\n💰 Баланс: %d → %d монет",
		common.FormatBalance(h.cfg.GameMoveCost),
		common.FormatBalance(h.cfg.GameWinAmount),
		result.BalanceBefore, result.Balance,
	)
	keyboard := BuildKeyboard(chatID, h.cfg.GameGridSize, result.Opened, result.Target, true)
	h.editMessage(chatID, callback.Message.MessageID, gridText, keyboard)

	winMsg := fmt.Sprintf(
		"💥 %s нашёл приз и выиграл %s!\n"+
			"Потрачено: %s за %d %s\n"+
			"Чистая прибыль: %s\n\n"+
			"💰 Баланс: %d → %d монет (+%d)",
		displayName,
		common.FormatBalance(h.cfg.GameWinAmount),
		common.FormatBalance(result.TotalSpent),
		result.Moves, common.PluralizeMoves(result.Moves),
		common.FormatSignedAmount(result.Profit),
		result.BalanceBefore, result.Balance, h.cfg.GameWinAmount,
	)
	h.sendMessage(chatID, winMsg)

	// Автоматически начинаем новую игру, если монет хватает
	if result.Balance >= h.cfg.GameMoveCost {
		gen, balance, err := h.registry.StartSession(ctx, chatID, userID, displayName)
		if err != nil {
			log.WithError(err).Error("Ошибка автозапуска новой игры")
			return
		}

		text := fmt.Sprintf(
			"🎲 Начинаем новую игру!\nСтоимость хода: %s.\nВыигрыш: %s.\n\n💰 Текущий баланс: %s",
			common.FormatBalance(h.cfg.GameMoveCost),
			common.FormatBalance(h.cfg.GameWinAmount),
			common.FormatBalance(balance),
		)
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = BuildKeyboard(chatID, h.cfg.GameGridSize, nil, Cell{}, false)
		if _, err := h.bot.Send(msg); err != nil {
			log.WithError(err).Error("Ошибка отправки новой игры")
		}

		h.supervisor.Watch(chatID, gen)
	} else {
		h.sendMessage(chatID, fmt.Sprintf(
			"У тебя недостаточно монет для новой игры! Нужно хотя бы %d, а у тебя %d.",
			h.cfg.GameMoveCost, result.Balance))
	}
}

// NotifyExpired отправляет в чат итог игры, снятой по таймауту.
// Передаётся супервизору как NotifyFunc.
func (h *Handler) NotifyExpired(expired *ExpiredSession) {
	text := fmt.Sprintf(
		"⏰ Время игры истекло! Ты потратил %s за %d %s, но так и не нашел приз.",
		common.FormatBalance(expired.TotalSpent),
		expired.Moves, common.PluralizeMoves(expired.Moves),
	)
	h.sendMessage(expired.Key, text)
}

// displayNameOf собирает отображаемое имя из профиля Telegram.
func displayNameOf(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	return name
}

// answerCallback отвечает на callback (убирает «часики» на кнопке).
func (h *Handler) answerCallback(callbackID, text string) {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := h.bot.Request(cb); err != nil {
		log.WithError(err).Debug("Ошибка ответа на callback")
	}
}

// editMessage обновляет текст и клавиатуру игрового сообщения.
func (h *Handler) editMessage(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	if _, err := h.bot.Send(edit); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка обновления игрового сообщения")
	}
}

// sendMessage — утилита для отправки сообщений.
func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

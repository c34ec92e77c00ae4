// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go подключает обработчики и запускает polling.
package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/bot/middleware"
	"serotonyl.ru/prize-bot/internal/common"
	"serotonyl.ru/prize-bot/internal/config"
	"serotonyl.ru/prize-bot/internal/features/game"
	"serotonyl.ru/prize-bot/internal/features/ledger"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	rateLimiter *middleware.RateLimiter

	gameHandler   *game.Handler
	ledgerHandler *ledger.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	gameHandler *game.Handler,
	ledgerHandler *ledger.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		gameHandler:   gameHandler,
		ledgerHandler: ledgerHandler,
		parser:        NewCommandParser(),
		inflight:      make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Нажатия на кнопки клавиатуры
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	// Обрабатываем обычные сообщения
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	message := update.Message
	if message.From == nil || message.Chat == nil {
		return
	}

	// Логируем входящее
	middleware.LogMessage(message)

	// Rate limiting
	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	// Парсим команду
	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	b.routeCommand(ctx, message, cmd)
}

// handleCallback обрабатывает нажатие кнопки.
func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil {
		return
	}

	middleware.LogCallback(callback)

	if !b.rateLimiter.Allow(callback.From.ID) {
		log.WithField("user_id", callback.From.ID).Debug("rate limited (callback)")
		return
	}

	b.gameHandler.HandleCallback(ctx, callback)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start", "help":
		b.sendMessage(chatID, b.rulesText())

	case "play":
		b.gameHandler.HandlePlay(ctx, chatID, userID, displayNameOf(message.From))

	case "balance":
		b.ledgerHandler.HandleBalance(ctx, chatID, userID)

	case "history":
		b.ledgerHandler.HandleHistory(ctx, chatID, userID)

	case "stats":
		b.ledgerHandler.HandleStats(ctx, chatID)
	}
}

// rulesText собирает текст /start с актуальными настройками игры.
func (b *Bot) rulesText() string {
	var sb strings.Builder
	sb.WriteString("Привет! Вот доступные команды:\n")
	sb.WriteString("/play - начать игру\n")
	sb.WriteString("/balance - проверить баланс\n")
	sb.WriteString("/history - история транзакций\n")
	sb.WriteString("/stats - статистика побед\n\n")
	sb.WriteString("📋 Правила игры:\n")
	sb.WriteString("- За каждый ход списывается " + common.FormatBalance(b.cfg.GameMoveCost) + "\n")
	sb.WriteString("- Если найдёшь приз в коробке - получишь " + common.FormatBalance(b.cfg.GameWinAmount) + "\n")
	size := strconv.Itoa(b.cfg.GameGridSize)
	sb.WriteString("- Игра идет на сетке " + size + "x" + size + ", что делает её сложнее\n")
	sb.WriteString("- На игру отводится " + b.cfg.GameSessionTimeout.String() + ", потом она сбрасывается\n")
	sb.WriteString("- Будь внимателен! Открывая больше ячеек, ты рискуешь потерять больше монет")
	return sb.String()
}

// displayNameOf собирает имя игрока из профиля Telegram.
func displayNameOf(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	return name
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс "@botname" после команды отбрасывается (групповые чаты).
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	// /play@prize_bot → play
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}

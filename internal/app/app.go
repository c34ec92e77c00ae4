// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозиторий, сервисы, реестр сессий,
// супервизор, обработчики и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/bot"
	"serotonyl.ru/prize-bot/internal/config"
	"serotonyl.ru/prize-bot/internal/db/postgres"
	"serotonyl.ru/prize-bot/internal/features/game"
	"serotonyl.ru/prize-bot/internal/features/ledger"
	"serotonyl.ru/prize-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot        *bot.Bot
	Scheduler  *jobs.Scheduler
	Supervisor *game.Supervisor
	DB         *pgxpool.Pool
	BotAPI     *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Экономика ===
	ledgerRepo := ledger.NewRepository(pool, cfg.EconomyStartingBalance)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerHandler := ledger.NewHandler(ledgerService, botAPI)

	// === 4. Игра ===
	registry := game.NewRegistry(ledgerService, cfg)
	// Супервизору нужен notify из обработчика, обработчику — супервизор.
	// Разрываем цикл: создаём супервизор без notify и доподключаем его ниже.
	var gameHandler *game.Handler
	supervisor := game.NewSupervisor(registry, cfg.GameSessionTimeout, func(expired *game.ExpiredSession) {
		gameHandler.NotifyExpired(expired)
	})
	gameHandler = game.NewHandler(registry, supervisor, botAPI, cfg)

	// === 5. Собираем бота ===
	b := bot.New(botAPI, cfg, gameHandler, ledgerHandler)

	// === 6. Планировщик задач ===
	scheduler := jobs.NewScheduler(supervisor, ledgerService)

	return &App{
		Bot:        b,
		Scheduler:  scheduler,
		Supervisor: supervisor,
		DB:         pool,
		BotAPI:     botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	// Выполняем миграции по порядку
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Accounts},
		{2, migration002Transactions},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id BIGINT PRIMARY KEY,
    display_name VARCHAR(255),
    win_count INTEGER NOT NULL DEFAULT 0,
    balance BIGINT NOT NULL DEFAULT 100,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_win_count ON accounts(win_count DESC);
`

var migration002Transactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    display_name VARCHAR(255),
    amount BIGINT NOT NULL,
    kind VARCHAR(10) NOT NULL CHECK (kind IN ('bet', 'win')),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
`

// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: периодическую уборку залежавшихся
// игр и ежедневную сводку по экономике в лог.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/prize-bot/internal/common"
	"serotonyl.ru/prize-bot/internal/features/game"
	"serotonyl.ru/prize-bot/internal/features/ledger"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron          *cron.Cron
	supervisor    *game.Supervisor
	ledgerService *ledger.Service
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(supervisor *game.Supervisor, ledgerService *ledger.Service) *Scheduler {
	c := cron.New(cron.WithLocation(common.GetMoscowLocation()))

	return &Scheduler{
		cron:          c,
		supervisor:    supervisor,
		ledgerService: ledgerService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Уборка залежавшихся игр каждые 5 минут.
	// Обычно игры снимает таймер супервизора; это страховка.
	s.cron.AddFunc("*/5 * * * *", func() {
		if n := s.supervisor.Sweep(); n > 0 {
			log.WithField("count", n).Info("[CRON] Уборка залежавшихся игр")
		}
	})

	// Ежедневная сводка по экономике в 00:00 по Москве
	s.cron.AddFunc("0 0 * * *", func() {
		summary, err := s.ledgerService.GetSummary(ctx)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка получения сводки экономики")
			return
		}
		log.WithFields(log.Fields{
			"accounts":      summary.Accounts,
			"total_balance": summary.TotalBalance,
			"total_wins":    summary.TotalWins,
		}).Info("[CRON] Сводка экономики за день")
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен (Europe/Moscow)")
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

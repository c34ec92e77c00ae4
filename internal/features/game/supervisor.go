// Package game — supervisor.go следит за временем жизни сессий.
// На каждую созданную игру взводится один отложенный таймер; когда он
// срабатывает, сессия снимается через реестр и игроку уходит уведомление
// с итогами. Таймер привязан к поколению сессии: новая игра по тому же
// ключу отменяет таймер предыдущей.
package game

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// NotifyFunc доставляет уведомление об истёкшей игре.
// Ошибки доставки супервизор не интересуют — она не должна его ронять.
type NotifyFunc func(expired *ExpiredSession)

// Supervisor взводит и отменяет таймеры таймаута сессий.
type Supervisor struct {
	mu     sync.Mutex
	timers map[int64]*watchedTimer

	registry *Registry
	timeout  time.Duration
	notify   NotifyFunc
}

type watchedTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewSupervisor создаёт супервизор сессий.
// notify может быть nil — тогда истечение просто логируется.
func NewSupervisor(registry *Registry, timeout time.Duration, notify NotifyFunc) *Supervisor {
	return &Supervisor{
		timers:   make(map[int64]*watchedTimer),
		registry: registry,
		timeout:  timeout,
		notify:   notify,
	}
}

// Watch взводит таймер на сессию данного поколения.
// Прежний таймер по этому ключу отменяется: он сторожил игру,
// которой больше нет.
func (s *Supervisor) Watch(key int64, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}

	wt := &watchedTimer{gen: gen}
	wt.timer = time.AfterFunc(s.timeout, func() {
		s.fire(key, gen)
	})
	s.timers[key] = wt
}

// fire — срабатывание таймера: пробуем снять сессию нужного поколения.
// Если её уже нет (победа, перезапуск, досрочное снятие) — тихий no-op.
func (s *Supervisor) fire(key int64, gen uint64) {
	s.mu.Lock()
	if wt, ok := s.timers[key]; ok && wt.gen == gen {
		delete(s.timers, key)
	}
	s.mu.Unlock()

	expired, ok := s.registry.Expire(key, gen)
	if !ok {
		return
	}

	log.WithFields(log.Fields{
		"key":   key,
		"moves": expired.Moves,
		"spent": expired.TotalSpent,
	}).Info("Игра снята по таймауту")

	s.deliver(expired)
}

// Sweep снимает все залежавшиеся сессии, уведомляя игроков.
// Страховка за таймерами; запускается кроном.
func (s *Supervisor) Sweep() int {
	expired := s.registry.ExpireStale(s.timeout)
	for _, e := range expired {
		log.WithField("key", e.Key).Warn("Залежавшаяся игра снята фоновой проверкой")
		s.deliver(e)
	}
	return len(expired)
}

// deliver отправляет уведомление, гася панику доставщика:
// сбой отправки не должен останавливать супервизор.
func (s *Supervisor) deliver(expired *ExpiredSession) {
	if s.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Паника при отправке уведомления о таймауте")
		}
	}()
	s.notify(expired)
}

// Stop отменяет все таймеры. Вызывается при остановке приложения.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, wt := range s.timers {
		wt.timer.Stop()
		delete(s.timers, key)
	}
}

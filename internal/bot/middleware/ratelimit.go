package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает количество действий на пользователя
// (сообщения и нажатия кнопок считаются одинаково).
// Скользящее окно: не больше limit действий за window.
type RateLimiter struct {
	mu      sync.Mutex
	history map[int64][]time.Time
	limit   int
	window  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		history: make(map[int64][]time.Time),
		limit:   limit,
		window:  window,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow сообщает, можно ли принять действие пользователя сейчас.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := pruneOld(rl.history[userID], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.history[userID] = recent
		return false
	}

	rl.history[userID] = append(recent, now)
	return true
}

// cleanupLoop раз в 5 минут выкидывает пользователей,
// которые давно ничего не писали.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window)
			for userID, times := range rl.history {
				recent := pruneOld(times, cutoff)
				if len(recent) == 0 {
					delete(rl.history, userID)
				} else {
					rl.history[userID] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}

// pruneOld отбрасывает отметки старше cutoff, сохраняя порядок.
func pruneOld(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

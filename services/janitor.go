// services/janitor.go
package services

import (
	"sync"
	"time"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/timer"
)

const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultExpiryInterval = time.Second
)

// JanitorConfig 后台清理参数
type JanitorConfig struct {
	SweepInterval  time.Duration
	ExpiryInterval time.Duration
	GameRetention  time.Duration
}

// Janitor runs periodic background maintenance on the timer manager:
// duration expiry and metrics on the short interval, history and game retention on the long one.
type Janitor struct {
	svc     *GameService
	monitor *anticheat.Monitor
	timers  *timer.TimerManager
	cfg     JanitorConfig

	mu  sync.Mutex
	ids []int64
}

func NewJanitor(svc *GameService, mon *anticheat.Monitor, timers *timer.TimerManager, cfg JanitorConfig) *Janitor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = DefaultExpiryInterval
	}
	if cfg.GameRetention <= 0 {
		cfg.GameRetention = room.DefaultRetention
	}
	return &Janitor{svc: svc, monitor: mon, timers: timers, cfg: cfg}
}

// Start schedules the recurring jobs.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ids = append(j.ids,
		j.timers.AddTimer("expire", j.cfg.ExpiryInterval, j.cfg.ExpiryInterval, j.Tick),
		j.timers.AddTimer("sweep", j.cfg.SweepInterval, j.cfg.SweepInterval, func() { j.Sweep() }),
	)
}

// Stop unschedules the jobs. Runs already in flight finish on their own.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, id := range j.ids {
		j.timers.RemoveTimer(id)
	}
	j.ids = nil
}

// Tick ends expired games and refreshes gauges.
func (j *Janitor) Tick() {
	j.svc.ExpireGames()
	j.svc.RefreshMetrics()
}

// SweepResult 一次清理的结果
type SweepResult struct {
	Games     int
	Histories int
}

// Sweep drops retired games and idle movement histories.
func (j *Janitor) Sweep() SweepResult {
	res := SweepResult{
		Games:     j.svc.Registry().Sweep(j.cfg.GameRetention),
		Histories: j.monitor.Cleanup(),
	}
	if res.Games > 0 || res.Histories > 0 {
		logger.Log.Infow("janitor sweep", "games_removed", res.Games, "histories_removed", res.Histories)
	}
	j.svc.RefreshMetrics()
	return res
}

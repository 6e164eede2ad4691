package engine

import (
	"context"
	"time"

	"tixbot/internal/browser"
	"tixbot/internal/logbus"
)

// 两段式等待：距开卖 > fineWindow 时粗粒度睡，进入窗口后细粒度睡。
// 每轮都重新取 now，不预算迭代次数，时钟漂移也能收敛。
const (
	fineWindow = 30 * time.Second
	coarseStep = 15 * time.Second
	fineStep   = time.Second
)

// Scheduler 开卖时间调度：阻塞到该刷新抢票的那一刻。
type Scheduler struct {
	bus *logbus.Bus

	// now / sleep 可注入，测试用假时钟。
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewScheduler(bus *logbus.Bus) *Scheduler {
	return &Scheduler{
		bus:   bus,
		now:   time.Now,
		sleep: sleepFor,
	}
}

// WaitForSaleOpen 阻塞直到开卖并刷新一次页面。
// - openAt 零值：视为已开卖，立即返回，不刷新；
// - 距 readyAt（openAt - lead）还远：一次长睡；
// - 之后进入轮询：>30s 每 15s 一轮，≤30s 每 1s 一轮；
// - 到点后恰好刷新一次。整个过程可被 ctx 取消。
func (s *Scheduler) WaitForSaleOpen(ctx context.Context, port browser.Port, openAt time.Time, lead time.Duration) error {
	if openAt.IsZero() {
		s.log("info", "未配置开卖时间，视为已开卖", nil)
		return nil
	}

	readyAt := openAt.Add(-lead)
	if now := s.now(); now.Before(readyAt) {
		wait := readyAt.Sub(now)
		s.log("info", "等待预备时间", map[string]any{
			"readyAt":     readyAt.Format(time.RFC3339),
			"waitMinutes": wait.Minutes(),
		})
		if !s.sleep(ctx, wait) {
			return ctx.Err()
		}
	}

	s.log("info", "进入开卖倒计时", map[string]any{"openAt": openAt.Format(time.RFC3339)})
	for {
		diff := openAt.Sub(s.now())
		switch {
		case diff <= 0:
			s.log("info", "开卖时间到，刷新页面", nil)
			if err := port.Refresh(ctx); err != nil {
				return err
			}
			return nil
		case diff > fineWindow:
			s.log("info", "距开卖还早，低频等待", map[string]any{"remainSeconds": diff.Seconds()})
			if !s.sleep(ctx, coarseStep) {
				return ctx.Err()
			}
		default:
			if !s.sleep(ctx, fineStep) {
				return ctx.Err()
			}
		}
	}
}

func (s *Scheduler) log(level, msg string, fields map[string]any) {
	if s.bus != nil {
		s.bus.Log(level, msg, fields)
	}
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

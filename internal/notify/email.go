package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"tixbot/internal/config"
	"tixbot/internal/logbus"
	"tixbot/internal/model"
)

// EmailNotifier 异步发终止态通知邮件。
// 发送走独立 goroutine，队列满了就丢——通知永远不能阻塞购票流程。
type EmailNotifier struct {
	cfg config.EmailConfig
	bus *logbus.Bus

	mu     sync.Mutex
	queue  chan RunFinishedEvent
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(cfg config.EmailConfig, bus *logbus.Bus) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		cfg:    cfg,
		bus:    bus,
		queue:  make(chan RunFinishedEvent, 16),
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.loop(ctx)
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyRunFinished(_ context.Context, evt RunFinishedEvent) {
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "通知队列已满，丢弃事件", map[string]any{"runId": evt.RunID})
		}
	}
}

func (n *EmailNotifier) loop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-n.queue:
			if err := n.send(evt); err != nil {
				if n.bus != nil {
					n.bus.Log("warn", "通知邮件发送失败", map[string]any{"error": err.Error()})
				}
				continue
			}
			if n.bus != nil {
				n.bus.Log("info", "通知邮件已发送", map[string]any{"runId": evt.RunID, "state": string(evt.FinalState)})
			}
		}
	}
}

func (n *EmailNotifier) send(evt RunFinishedEvent) error {
	subject := fmt.Sprintf("[tixbot] 购票%s", stateLabel(evt.FinalState))
	body := fmt.Sprintf(
		"活动: %s\n场次: %s\n区域: %s\n张数: %d\n结果: %s\n耗时: %.1f 秒\n",
		evt.EventURL, evt.TargetShow, evt.ChosenArea, evt.TicketCount, string(evt.FinalState), evt.DurationSec,
	)
	if evt.Error != "" {
		body += fmt.Sprintf("错误: %s\n", evt.Error)
	}
	body += fmt.Sprintf("时间: %s\n", time.UnixMilli(evt.At).Format(time.RFC3339))

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.From, n.cfg.AuthCode)
	return d.DialAndSend(m)
}

func stateLabel(s model.BotState) string {
	switch s {
	case model.StateSuccess:
		return "成功"
	case model.StateFailed:
		return "失败"
	default:
		return "异常"
	}
}

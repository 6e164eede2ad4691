package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tixbot/internal/browser"
	"tixbot/internal/captcha"
	"tixbot/internal/logbus"
	"tixbot/internal/model"
	"tixbot/internal/notify"
	"tixbot/internal/store/sqlite"
)

type Options struct {
	Port    browser.Port
	Solver  captcha.Solver
	Bus     *logbus.Bus
	Session model.PurchaseSession

	// Store / Notifier 可选：nil 时跳过落库与通知。
	Store    *sqlite.Store
	Notifier notify.Notifier

	// Scheduler 可注入，测试用；nil 时用默认实现。
	Scheduler *Scheduler

	// DialogWait / ProbeTimeout 为零时取各组件默认值（3s / 10s）。
	DialogWait   time.Duration
	ProbeTimeout time.Duration
}

// Bot 购票编排器：持有状态机，按固定顺序驱动各组件。
// 整个流程单线程，所有 Port/Solver 调用都是阻塞的；
// 取消只在状态机决策点生效，单次调用不可抢占。
type Bot struct {
	port      browser.Port
	solver    captcha.Solver
	bus       *logbus.Bus
	store     *sqlite.Store
	notifier  notify.Notifier
	scheduler *Scheduler
	session   model.PurchaseSession

	dialogWait   time.Duration
	probeTimeout time.Duration

	mu         sync.Mutex
	runID      string
	state      model.BotState
	errMsg     string
	chosenArea string
	startedAt  time.Time
	endedAt    time.Time
	attempts   []model.ChallengeAttempt
}

func New(opts Options) *Bot {
	bus := opts.Bus
	if bus == nil {
		bus = logbus.New(0)
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(bus)
	}
	b := &Bot{
		port:      opts.Port,
		solver:    opts.Solver,
		bus:       bus,
		store:     opts.Store,
		notifier:  opts.Notifier,
		scheduler: scheduler,
		session:   opts.Session,
		state:     model.StateInitializing,

		dialogWait:   opts.DialogWait,
		probeTimeout: opts.ProbeTimeout,
	}
	bus.Log("info", "购票机器人初始化完成", map[string]any{
		"eventUrl": opts.Session.EventURL,
		"show":     opts.Session.TargetShow,
		"area":     opts.Session.TargetArea,
		"tickets":  opts.Session.TicketCount,
	})
	b.setState(model.StateIdle)
	return b
}

// Run 跑完整个购票流程，阻塞到终止态。
// 返回 nil 表示 Success；预算耗尽/用户中断落 Failed，其余落 Error。
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runID = uuid.NewString()
	b.startedAt = time.Now()
	b.endedAt = time.Time{}
	b.errMsg = ""
	b.attempts = nil
	b.mu.Unlock()

	b.bus.Log("info", "开始购票流程", map[string]any{"runId": b.runID})
	err := b.run(ctx)
	b.finish(err)
	return err
}

func (b *Bot) run(ctx context.Context) error {
	// 步骤 0：等待开卖。
	b.setState(model.StateWaiting)
	if err := b.scheduler.WaitForSaleOpen(ctx, b.port, b.session.SaleOpenAt, b.session.LeadTime); err != nil {
		return err
	}

	// 步骤 1：进入场次列表并选场次。
	if err := ctx.Err(); err != nil {
		return err
	}
	b.setState(model.StateSelectingShow)
	if err := b.navigateToBuyPage(ctx); err != nil {
		return err
	}
	if err := b.selectShow(ctx); err != nil {
		return err
	}

	// 步骤 2：区域回退选择。
	if err := ctx.Err(); err != nil {
		return err
	}
	b.setState(model.StateSelectingArea)
	areaSel := NewAreaSelector(b.port, b.bus, b.probeTimeout, b.session.TargetArea)
	chosen, err := areaSel.Select(ctx, b.session.TicketCount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.chosenArea = chosen.Label
	b.mu.Unlock()

	// 步骤 3：选票数 → 验证码 → 提交，带反馈的循环。
	return b.submitCycle(ctx)
}

// submitCycle 重复 {选张数, 解验证码, 提交, 判反馈} 直到通过或预算耗尽。
// 被拒绝时站点会重置表单，所以每一轮都从选张数开始。
func (b *Bot) submitCycle(ctx context.Context) error {
	retry := NewChallengeRetry(b.solver, b.bus, b.session.MaxCaptchaRetry, b.recordAttempt)
	feedback := NewSubmitFeedback(b.port, b.bus, b.dialogWait)

	cycles := b.session.MaxSubmitCycles
	if cycles <= 0 {
		cycles = 3
	}

	var lastDialog string
	for cycle := 1; cycle <= cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.bus.Log("info", "提交循环", map[string]any{"cycle": cycle, "max": cycles})

		b.setState(model.StateSelectingTickets)
		if err := b.selectTickets(ctx); err != nil {
			return err
		}

		b.setState(model.StateSolvingCaptcha)
		text, err := retry.Solve(ctx)
		if err != nil {
			return err
		}
		if err := b.solver.Inject(ctx, text); err != nil {
			return err
		}

		b.setState(model.StateSubmitting)
		if err := feedback.Submit(ctx); err != nil {
			return err
		}
		accepted, dialogText, err := feedback.Check(ctx)
		if err != nil {
			return err
		}
		if accepted {
			b.markLastAttempt(model.OutcomeAccepted)
			b.setState(model.StateSuccess)
			return nil
		}

		b.markLastAttempt(model.OutcomeRejected)
		lastDialog = dialogText
		b.bus.Log("warn", "提交被拒绝，重新开始本轮", map[string]any{"cycle": cycle, "dialog": dialogText})
	}

	return errorWithDialog(lastDialog, cycles)
}

// finish 终止态收尾：映射状态、记录耗时、落库、通知。
func (b *Bot) finish(err error) {
	b.mu.Lock()
	b.endedAt = time.Now()
	switch {
	case err == nil:
		b.state = model.StateSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrUserInterrupt):
		b.state = model.StateFailed
		b.errMsg = ErrUserInterrupt.Error()
	case budgetExhausted(err):
		b.state = model.StateFailed
		b.errMsg = err.Error()
	default:
		b.state = model.StateError
		b.errMsg = err.Error()
	}
	report := b.reportLocked()
	record := b.recordLocked()
	b.mu.Unlock()

	b.bus.State(report)
	b.bus.Log("info", "购票流程结束", map[string]any{
		"state":    string(report.State),
		"error":    report.ErrorMessage,
		"duration": report.DurationSec,
	})

	bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if b.store != nil {
		if err := b.store.SaveRun(bg, record); err != nil {
			b.bus.Log("warn", "购票记录落库失败", map[string]any{"error": err.Error()})
		}
	}
	if b.notifier != nil {
		b.notifier.NotifyRunFinished(bg, notify.RunFinishedEvent{
			At:          time.Now().UnixMilli(),
			RunID:       report.RunID,
			EventURL:    report.EventURL,
			TargetShow:  report.TargetShow,
			ChosenArea:  report.ChosenArea,
			TicketCount: report.TicketCount,
			FinalState:  report.State,
			Error:       report.ErrorMessage,
			DurationSec: report.DurationSec,
		})
	}
}

// Report 当前时刻的状态快照，流程任一阶段都可调用。
func (b *Bot) Report() model.StatusReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reportLocked()
}

func (b *Bot) State() model.BotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) reportLocked() model.StatusReport {
	r := model.StatusReport{
		RunID:        b.runID,
		State:        b.state,
		EventURL:     b.session.EventURL,
		TargetShow:   b.session.TargetShow,
		TargetArea:   b.session.TargetArea,
		TicketCount:  b.session.TicketCount,
		ChosenArea:   b.chosenArea,
		ErrorMessage: b.errMsg,
	}
	if !b.startedAt.IsZero() {
		r.StartedAtMs = b.startedAt.UnixMilli()
	}
	if !b.endedAt.IsZero() {
		r.EndedAtMs = b.endedAt.UnixMilli()
		r.DurationSec = b.endedAt.Sub(b.startedAt).Seconds()
	}
	return r
}

func (b *Bot) recordLocked() model.RunRecord {
	attempts := make([]model.ChallengeAttempt, len(b.attempts))
	copy(attempts, b.attempts)
	return model.RunRecord{
		ID:           b.runID,
		EventURL:     b.session.EventURL,
		TargetShow:   b.session.TargetShow,
		TargetArea:   b.session.TargetArea,
		TicketCount:  b.session.TicketCount,
		ChosenArea:   b.chosenArea,
		FinalState:   b.state,
		ErrorMessage: b.errMsg,
		StartedAt:    b.startedAt,
		EndedAt:      b.endedAt,
		Attempts:     attempts,
	}
}

func (b *Bot) setState(s model.BotState) {
	b.mu.Lock()
	b.state = s
	report := b.reportLocked()
	b.mu.Unlock()
	b.bus.State(report)
}

func (b *Bot) recordAttempt(a model.ChallengeAttempt) {
	b.mu.Lock()
	b.attempts = append(b.attempts, a)
	b.mu.Unlock()
}

func (b *Bot) markLastAttempt(outcome model.AttemptOutcome) {
	b.mu.Lock()
	if n := len(b.attempts); n > 0 {
		b.attempts[n-1].Outcome = outcome
	}
	b.mu.Unlock()
}

func errorWithDialog(dialog string, cycles int) error {
	if dialog == "" {
		return ErrSubmissionExhausted
	}
	return fmt.Errorf("%w after %d cycles, last dialog: %s", ErrSubmissionExhausted, cycles, dialog)
}

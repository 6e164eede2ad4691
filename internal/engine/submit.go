package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tixbot/internal/browser"
	"tixbot/internal/logbus"
)

// 确认张数按钮按文案找（站点原文），找不到时退回第一个 submit 按钮。
const submitScript = `() => {
	const btns = document.querySelectorAll("button[type='submit']");
	for (const b of btns) {
		if (b.textContent.includes('確認張數')) { b.click(); return 'ok'; }
	}
	if (btns.length > 0) { btns[0].click(); return 'ok'; }
	return '';
}`

// SubmitFeedback 提交与反馈判定。
//
// 判定是个超时启发式：提交后站点只在验证码错误时弹原生 alert，
// 窗口期内出现弹窗即判拒绝；窗口期内没弹窗就当通过。
// 慢网络下可能误判通过——真正的服务端确认在这套页面流里观察不到，
// 所以只放宽窗口（dialogWait 可配置），不擅自加强判据。
type SubmitFeedback struct {
	port       browser.Port
	bus        *logbus.Bus
	dialogWait time.Duration
}

func NewSubmitFeedback(port browser.Port, bus *logbus.Bus, dialogWait time.Duration) *SubmitFeedback {
	if dialogWait <= 0 {
		dialogWait = 3 * time.Second
	}
	return &SubmitFeedback{port: port, bus: bus, dialogWait: dialogWait}
}

// Submit 提交当前表单步骤。
func (f *SubmitFeedback) Submit(ctx context.Context) error {
	out, err := f.port.RunScript(ctx, submitScript)
	if err != nil {
		return fmt.Errorf("%w: submit: %v", ErrNavigation, err)
	}
	if strings.TrimSpace(out) != "ok" {
		return fmt.Errorf("%w: submit button not found", ErrNavigation)
	}
	f.log("info", "已提交购票表单", nil)
	return nil
}

// Check 在窗口期内等待拒绝信号。
// 返回 accepted=false 时附带弹窗文案；弹窗恰好被 dismiss 一次。
func (f *SubmitFeedback) Check(ctx context.Context) (accepted bool, dialogText string, err error) {
	text, present := f.port.DialogText(ctx, f.dialogWait)
	if !present {
		f.log("info", "窗口期内无弹窗，按通过处理", map[string]any{"waitMs": f.dialogWait.Milliseconds()})
		return true, "", nil
	}

	f.log("warn", "检测到拒绝弹窗", map[string]any{"text": text})
	if err := f.port.DismissDialog(ctx); err != nil {
		return false, text, fmt.Errorf("dismiss dialog: %w", err)
	}
	return false, text, nil
}

func (f *SubmitFeedback) log(level, msg string, fields map[string]any) {
	if f.bus != nil {
		f.bus.Log(level, msg, fields)
	}
}

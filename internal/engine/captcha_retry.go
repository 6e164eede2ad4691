package engine

import (
	"context"
	"fmt"
	"time"

	"tixbot/internal/captcha"
	"tixbot/internal/logbus"
	"tixbot/internal/model"
)

// minChallengeLength 识别结果的最小长度。站点验证码固定 4 位以上，
// 更短的结果按识别不可靠处理。这是经验阈值，不是协议保证。
const minChallengeLength = 4

// ChallengeRetry 验证码识别重试循环：取图+识别最多 maxRetry 次，
// 产出一条通过长度检查的文本。
type ChallengeRetry struct {
	solver   captcha.Solver
	bus      *logbus.Bus
	maxRetry int

	// onAttempt 每次尝试的回调，编排器用它把尝试记进 run 记录。
	onAttempt func(model.ChallengeAttempt)
}

func NewChallengeRetry(solver captcha.Solver, bus *logbus.Bus, maxRetry int, onAttempt func(model.ChallengeAttempt)) *ChallengeRetry {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &ChallengeRetry{solver: solver, bus: bus, maxRetry: maxRetry, onAttempt: onAttempt}
}

// Solve 返回一条通过长度检查的识别文本。
// 失败后先刷新验证码再重试；刷新失败只记日志不中断——图片可能已经换了。
// 刷新只发生在两次尝试之间：R 次全失败共触发 R-1 次刷新。
func (r *ChallengeRetry) Solve(ctx context.Context) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, confidence, err := r.attemptOnce(ctx)
		rec := model.ChallengeAttempt{
			Index:      attempt,
			Text:       text,
			Confidence: confidence,
			Outcome:    model.OutcomeUndetermined,
			AtMs:       time.Now().UnixMilli(),
		}

		if err == nil && len(text) >= minChallengeLength {
			rec.LengthOK = true
			r.record(rec)
			r.log("info", "验证码识别通过检查", map[string]any{"attempt": attempt, "text": text})
			return text, nil
		}

		if err == nil {
			err = fmt.Errorf("recognized text too short: %q (len=%d)", text, len(text))
		}
		lastErr = err
		r.record(rec)
		r.log("warn", "验证码识别失败", map[string]any{"attempt": attempt, "error": err.Error()})

		if attempt < r.maxRetry {
			if refreshErr := r.solver.Refresh(ctx); refreshErr != nil {
				r.log("warn", "刷新验证码失败，继续下一次尝试", map[string]any{"error": refreshErr.Error()})
			}
		}
	}

	return "", fmt.Errorf("%w after %d attempts, last error: %v", ErrChallengeRecognition, r.maxRetry, lastErr)
}

func (r *ChallengeRetry) attemptOnce(ctx context.Context) (string, float64, error) {
	ref, err := r.solver.Acquire(ctx)
	if err != nil {
		return "", 0, err
	}
	return r.solver.Recognize(ctx, ref)
}

func (r *ChallengeRetry) record(rec model.ChallengeAttempt) {
	if r.onAttempt != nil {
		r.onAttempt(rec)
	}
}

func (r *ChallengeRetry) log(level, msg string, fields map[string]any) {
	if r.bus != nil {
		r.bus.Log(level, msg, fields)
	}
}

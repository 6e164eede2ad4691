package engine

import "errors"

// 错误分层：
// - 单候选/单次尝试的故障在循环内部消化，转成“试下一个”；
// - 预算耗尽类错误向上冒泡，由编排器记入报告并落终止态。
var (
	// ErrNavigation 页面/元素交互失败。对当前候选或当前尝试致命，对整个流程不一定。
	ErrNavigation = errors.New("navigation failed")
	// ErrSelectionExhausted 所有区域候选都试过且均未成功。
	ErrSelectionExhausted = errors.New("all area candidates exhausted")
	// ErrChallengeRecognition 验证码识别重试预算耗尽。
	ErrChallengeRecognition = errors.New("captcha recognition retries exhausted")
	// ErrSubmissionExhausted 提交-反馈循环预算耗尽。
	ErrSubmissionExhausted = errors.New("submission cycles exhausted")
	// ErrUserInterrupt 操作者主动中止，与内部错误区分开。
	ErrUserInterrupt = errors.New("interrupted by operator")
)

// budgetExhausted 预算耗尽类错误落 Failed 而不是 Error。
func budgetExhausted(err error) bool {
	return errors.Is(err, ErrSelectionExhausted) ||
		errors.Is(err, ErrChallengeRecognition) ||
		errors.Is(err, ErrSubmissionExhausted)
}

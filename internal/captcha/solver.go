package captcha

import "context"

// Solver 验证码求解的能力面：取图、识别、填入、换图。
// 重试与预算控制在 engine 层，这里只做单次动作。
type Solver interface {
	// Acquire 从当前页面取一张新的验证码图片，返回图片引用（文件路径）。
	Acquire(ctx context.Context) (string, error)
	// Recognize 识别图片，返回文本与置信度。
	Recognize(ctx context.Context, ref string) (string, float64, error)
	// Inject 把识别结果填入页面输入框。
	Inject(ctx context.Context, text string) error
	// Refresh 刷新页面上的验证码图片。
	Refresh(ctx context.Context) error
}

package browser

import (
	"context"
	"time"

	"tixbot/internal/model"
)

// Element 页面元素的一份只读快照。
type Element struct {
	ID    string
	Text  string
	Attrs map[string]string
}

func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Port 编排核心对页面自动化的全部依赖。
// 实现必须是同步阻塞的：一次调用完成或超时前不会返回，购票流程是单线程的。
type Port interface {
	// Load 打开 url；waitSelector 非空时等待该元素出现后才返回。
	Load(ctx context.Context, url, waitSelector string) error
	Refresh(ctx context.Context) error
	Back(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// WaitFor 在 timeout 内等待元素出现，返回是否出现。不出现不算错误。
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	Attribute(ctx context.Context, selector, name string) (string, error)
	// RunScript 执行一段 js 函数并返回其字符串结果，非标准交互的逃生口。
	RunScript(ctx context.Context, js string) (string, error)
	// List 列出 selector 命中的元素，attrNames 指定要带回的属性。
	List(ctx context.Context, selector string, attrNames ...string) ([]Element, error)
	// Screenshot 截取单个元素的 PNG。
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// DialogText 在 timeout 内等待原生弹窗；没有弹窗是正常返回而不是错误。
	DialogText(ctx context.Context, timeout time.Duration) (string, bool)
	DismissDialog(ctx context.Context) error
}

// SessionPort 在 Port 之上补充登录态的导入导出，CLI 用，核心不依赖。
type SessionPort interface {
	Port
	Cookies(ctx context.Context) ([]model.Cookie, error)
	SetCookies(ctx context.Context, cookies []model.Cookie) error
}

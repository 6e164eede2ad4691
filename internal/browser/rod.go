package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"tixbot/internal/model"
)

const defaultElementTimeout = 10 * time.Second

// RodPort 基于 go-rod 的 Port 实现。
// 持有一个浏览器和一个页面；购票流程自始至终只用这一个页面。
type RodPort struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher

	// nav 限速：导航/刷新类动作统一过限流器，避免高频刷新被风控。
	limiter *rate.Limiter

	dialogCh chan string
}

type RodOptions struct {
	Headless     bool
	NavPerSecond float64
}

func NewRodPort(opts RodOptions) (*RodPort, error) {
	l := launcher.New().Headless(opts.Headless)
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	navPerSecond := opts.NavPerSecond
	if navPerSecond <= 0 {
		navPerSecond = 2
	}

	r := &RodPort{
		browser:  b,
		page:     page,
		launcher: l,
		limiter:  rate.NewLimiter(rate.Limit(navPerSecond), 1),
		dialogCh: make(chan string, 4),
	}

	// 原生弹窗（alert）事件常驻监听：出现即入队，由 DialogText 消费。
	wait := page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		select {
		case r.dialogCh <- e.Message:
		default:
		}
	})
	go wait()

	return r, nil
}

func (r *RodPort) Close() error {
	var firstErr error
	if r.page != nil {
		if err := r.page.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.browser != nil {
		if err := r.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return firstErr
}

func (r *RodPort) Load(ctx context.Context, url, waitSelector string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	if waitSelector != "" {
		if _, err := p.Timeout(defaultElementTimeout).Element(waitSelector); err != nil {
			return fmt.Errorf("wait %q after load: %w", waitSelector, err)
		}
	}
	return nil
}

func (r *RodPort) Refresh(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	p := r.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return p.WaitLoad()
}

func (r *RodPort) Back(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	p := r.page.Context(ctx)
	if err := p.NavigateBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return p.WaitLoad()
}

func (r *RodPort) CurrentURL(ctx context.Context) (string, error) {
	info, err := r.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (r *RodPort) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	_, err := r.page.Context(ctx).Timeout(timeout).Element(selector)
	return err == nil
}

func (r *RodPort) Click(ctx context.Context, selector string) error {
	el, err := r.page.Context(ctx).Timeout(defaultElementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (r *RodPort) Fill(ctx context.Context, selector, text string) error {
	el, err := r.page.Context(ctx).Timeout(defaultElementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	// 先全选再输入，等价于清空重填。
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text of %q: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input %q: %w", selector, err)
	}
	return nil
}

func (r *RodPort) Attribute(ctx context.Context, selector, name string) (string, error) {
	el, err := r.page.Context(ctx).Timeout(defaultElementTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("find %q: %w", selector, err)
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %q of %q: %w", name, selector, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (r *RodPort) RunScript(ctx context.Context, js string) (string, error) {
	res, err := r.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("eval: %w", err)
	}
	if res == nil {
		return "", nil
	}
	return res.Value.Str(), nil
}

func (r *RodPort) List(ctx context.Context, selector string, attrNames ...string) ([]Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		item := Element{Text: text, Attrs: make(map[string]string, len(attrNames)+1)}
		if id, err := el.Attribute("id"); err == nil && id != nil {
			item.ID = *id
		}
		for _, name := range attrNames {
			if v, err := el.Attribute(name); err == nil && v != nil {
				item.Attrs[name] = *v
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *RodPort) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := r.page.Context(ctx).Timeout(defaultElementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}
	bin, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot %q: %w", selector, err)
	}
	return bin, nil
}

func (r *RodPort) DialogText(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case text := <-r.dialogCh:
		return text, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (r *RodPort) DismissDialog(ctx context.Context) error {
	return proto.PageHandleJavaScriptDialog{Accept: true}.Call(r.page.Context(ctx))
}

func (r *RodPort) Cookies(ctx context.Context) ([]model.Cookie, error) {
	raw, err := r.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, model.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (r *RodPort) SetCookies(ctx context.Context, cookies []model.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		if c.SameSite != "" {
			p.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}
	return r.page.Context(ctx).SetCookies(params)
}

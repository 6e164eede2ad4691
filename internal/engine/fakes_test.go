package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tixbot/internal/browser"
)

// fakePort 测试用的页面桩：行为由字段脚本化，所有动作留痕供断言。
type fakePort struct {
	mu sync.Mutex

	// present 登记 WaitFor 直接命中的选择器；waitForFn 非 nil 时优先生效。
	present   map[string]bool
	waitForFn func(selector string) bool

	attrs  map[string]map[string]string
	lists  map[string][]browser.Element
	script func(js string) (string, error)

	loadErr  error
	clickErr error

	// dialogs 按顺序弹出，取空后 DialogText 返回 (_, false)。
	dialogs []string

	loads     []string
	refreshes int
	backs     int
	clicks    []string
	fills     []string
	dismissed int
}

func (p *fakePort) Load(ctx context.Context, url, waitSelector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loads = append(p.loads, url)
	return nil
}

func (p *fakePort) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	return nil
}

func (p *fakePort) Back(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backs++
	return nil
}

func (p *fakePort) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loads) == 0 {
		return "", nil
	}
	return p.loads[len(p.loads)-1], nil
}

func (p *fakePort) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitForFn != nil {
		return p.waitForFn(selector)
	}
	return p.present[selector]
}

func (p *fakePort) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePort) Fill(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills = append(p.fills, text)
	return nil
}

func (p *fakePort) Attribute(ctx context.Context, selector, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.attrs[selector]; ok {
		return m[name], nil
	}
	return "", fmt.Errorf("no such element: %s", selector)
}

func (p *fakePort) RunScript(ctx context.Context, js string) (string, error) {
	p.mu.Lock()
	fn := p.script
	p.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(js)
}

func (p *fakePort) List(ctx context.Context, selector string, attrNames ...string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lists[selector], nil
}

func (p *fakePort) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (p *fakePort) DialogText(ctx context.Context, timeout time.Duration) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dialogs) == 0 {
		return "", false
	}
	text := p.dialogs[0]
	p.dialogs = p.dialogs[1:]
	return text, true
}

func (p *fakePort) DismissDialog(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	return nil
}

// fakeSolver 测试用的识别桩：按 texts 顺序产出结果。
type fakeSolver struct {
	mu sync.Mutex

	texts      []string
	idx        int
	acquireErr error
	refreshErr error

	injected  []string
	refreshes int
}

func (s *fakeSolver) Acquire(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return "", s.acquireErr
	}
	return fmt.Sprintf("img-%d", s.idx), nil
}

func (s *fakeSolver) Recognize(ctx context.Context, ref string) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.texts) {
		return "", 0, fmt.Errorf("no more scripted results")
	}
	text := s.texts[s.idx]
	s.idx++
	return text, 0.9, nil
}

func (s *fakeSolver) Inject(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, text)
	return nil
}

func (s *fakeSolver) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.refreshErr
}

package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tixbot/internal/browser"
	"tixbot/internal/captcha"
	"tixbot/internal/logbus"
	"tixbot/internal/model"
)

// tixcraft 选区页的元素与文案标记。
// 标记按站点原文精确匹配（繁体），不做大小写或同义归一。
const (
	areaListSelector  = ".zone.area-list"
	areaLinkSelector  = ".zone.area-list li.select_form_a a, .zone.area-list li.select_form_b a"
	autoAssignRadioID = "select_form_auto"
	inlineErrSelector = ".alert-danger, .error-message, .fcRed"

	markSoldOut = "已售完"
	markRemain  = "剩餘"
	markHot     = "熱賣中"
)

var remainRe = regexp.MustCompile(`剩餘\s*(\d+)`)

// ClassifyArea 按文案标记推导候选状态与可购性，首个命中的标记生效。
// 不认识的文案一律跳过：页面格式漂移时宁可不点。
func ClassifyArea(el browser.Element, required int) model.AreaCandidate {
	c := model.AreaCandidate{
		ID:    el.ID,
		Label: strings.TrimSpace(el.Text),
	}
	switch {
	case strings.Contains(c.Label, markSoldOut):
		c.Status = model.AreaSoldOut
	case strings.Contains(c.Label, markRemain):
		c.Status = model.AreaLimited
		if m := remainRe.FindStringSubmatch(c.Label); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				c.Remaining = n
				c.Eligible = n >= required
			}
		}
	case strings.Contains(c.Label, markHot):
		// 热卖中看不到余量，乐观尝试。
		c.Status = model.AreaHotSelling
		c.Eligible = true
	default:
		c.Status = model.AreaUnknown
	}
	return c
}

// AreaSelector 区域回退选择：按页面顺序逐个尝试可购候选，
// 第一个成功进入购票子页的即为胜者（first eligible，不挑最优）。
type AreaSelector struct {
	port         browser.Port
	bus          *logbus.Bus
	probeTimeout time.Duration
	// preferred 目标区域偏好；命中的候选排到最前，其余保持页面顺序。
	preferred string
}

func NewAreaSelector(port browser.Port, bus *logbus.Bus, probeTimeout time.Duration, preferred string) *AreaSelector {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &AreaSelector{port: port, bus: bus, probeTimeout: probeTimeout, preferred: preferred}
}

// Select 尝试所有候选，返回成功进入购票子页的那个。
// 单候选的任何故障只淘汰它自己；全部耗尽返回 ErrSelectionExhausted。
func (s *AreaSelector) Select(ctx context.Context, required int) (model.AreaCandidate, error) {
	if !s.port.WaitFor(ctx, areaListSelector, s.probeTimeout) {
		return model.AreaCandidate{}, fmt.Errorf("%w: area list not present", ErrNavigation)
	}

	s.ensureAutoAssign(ctx)

	els, err := s.port.List(ctx, areaLinkSelector)
	if err != nil {
		return model.AreaCandidate{}, fmt.Errorf("%w: list areas: %v", ErrNavigation, err)
	}
	if len(els) == 0 {
		return model.AreaCandidate{}, fmt.Errorf("%w: no area candidates on page", ErrSelectionExhausted)
	}

	candidates := make([]model.AreaCandidate, 0, len(els))
	for _, el := range els {
		candidates = append(candidates, ClassifyArea(el, required))
	}
	candidates = s.reorderPreferred(candidates)
	s.log("info", "解析选区页完成", map[string]any{"candidates": len(candidates)})

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return model.AreaCandidate{}, err
		}
		if !c.Eligible {
			// 已售完/余量不足/格式不明：不做任何导航动作，直接跳过。
			s.log("info", "跳过区域", map[string]any{"label": c.Label, "status": string(c.Status)})
			continue
		}

		ok, err := s.tryCandidate(ctx, c)
		if err != nil {
			// 单候选故障隔离：记录后继续下一个。
			s.log("warn", "区域尝试出错", map[string]any{"label": c.Label, "error": err.Error()})
			s.backToList(ctx)
			continue
		}
		if ok {
			s.log("info", "进入购票子页成功", map[string]any{"label": c.Label, "id": c.ID})
			return c, nil
		}
	}

	return model.AreaCandidate{}, ErrSelectionExhausted
}

// tryCandidate 进入单个候选的购票子页并探测验证码标记。
// 返回 (true, nil) 成功；(false, nil) 候选出局但流程继续。
func (s *AreaSelector) tryCandidate(ctx context.Context, c model.AreaCandidate) (bool, error) {
	s.log("info", "尝试区域", map[string]any{"label": c.Label, "remaining": c.Remaining})

	// 优先走 areaUrlList 里的专属购票地址，拿不到再退回点击。
	target := s.resolveAreaURL(ctx, c.ID)
	if target != "" {
		if err := s.port.Load(ctx, target, ""); err != nil {
			return false, err
		}
	} else {
		if c.ID == "" {
			return false, fmt.Errorf("%w: candidate has no id and no url", ErrNavigation)
		}
		if err := s.port.Click(ctx, fmt.Sprintf("[id=%q]", c.ID)); err != nil {
			return false, err
		}
	}

	// 成功标记：购票子页上出现验证码图片。
	if s.port.WaitFor(ctx, captcha.ImageSelector, s.probeTimeout) {
		return true, nil
	}

	// 还停在选区页：说明刚被人抢完，页面弹回，换下一个。
	if s.port.WaitFor(ctx, areaListSelector, time.Second) {
		s.log("warn", "区域已被抢完，弹回选区页", map[string]any{"label": c.Label})
		return false, nil
	}

	// 页面上有明确的失败文案：记下来，退回去换下一个。
	if errs, err := s.port.List(ctx, inlineErrSelector); err == nil && len(errs) > 0 {
		s.log("warn", "购票子页返回失败文案", map[string]any{
			"label":   c.Label,
			"message": strings.TrimSpace(errs[0].Text),
		})
		s.backToList(ctx)
		return false, nil
	}

	// 超时且无任何可识别信号：保守按失败处理。
	s.log("warn", "购票子页加载异常，按失败处理", map[string]any{"label": c.Label})
	s.backToList(ctx)
	return false, nil
}

// resolveAreaURL 从页面脚本的 areaUrlList 表里查候选的购票地址。
func (s *AreaSelector) resolveAreaURL(ctx context.Context, areaID string) string {
	if areaID == "" {
		return ""
	}
	js := fmt.Sprintf(`() => {
		if (typeof areaUrlList === 'undefined') return '';
		const u = areaUrlList[%q];
		return u ? String(u) : '';
	}`, areaID)
	out, err := s.port.RunScript(ctx, js)
	if err != nil {
		return ""
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	if _, err := url.Parse(out); err != nil {
		return ""
	}
	return out
}

// ensureAutoAssign 勾选“电脑配位”模式；没有这个控件的页面直接忽略。
func (s *AreaSelector) ensureAutoAssign(ctx context.Context) {
	js := fmt.Sprintf(`() => {
		const r = document.getElementById(%q);
		if (r && !r.checked) { r.click(); return 'clicked'; }
		return '';
	}`, autoAssignRadioID)
	if out, err := s.port.RunScript(ctx, js); err == nil && out == "clicked" {
		s.log("info", "已切换电脑配位模式", nil)
	}
}

func (s *AreaSelector) reorderPreferred(in []model.AreaCandidate) []model.AreaCandidate {
	if s.preferred == "" {
		return in
	}
	matched := make([]model.AreaCandidate, 0, len(in))
	rest := make([]model.AreaCandidate, 0, len(in))
	for _, c := range in {
		if strings.Contains(c.Label, s.preferred) {
			matched = append(matched, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(matched, rest...)
}

func (s *AreaSelector) backToList(ctx context.Context) {
	if err := s.port.Back(ctx); err != nil {
		s.log("warn", "返回选区页失败", map[string]any{"error": err.Error()})
	}
}

func (s *AreaSelector) log(level, msg string, fields map[string]any) {
	if s.bus != nil {
		s.bus.Log(level, msg, fields)
	}
}

package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	buyLinkSelector    = "li.buy a"
	gameListSelector   = "#gameList table"
	showButtonSelector = "button[data-href*='ticket/area']"
	priceListSelector  = "#ticketPriceList"
)

// navigateToBuyPage 从活动主页进入场次列表页。
func (b *Bot) navigateToBuyPage(ctx context.Context) error {
	if !b.port.WaitFor(ctx, buyLinkSelector, 10*time.Second) {
		return fmt.Errorf("%w: buy link not present", ErrNavigation)
	}
	href, err := b.port.Attribute(ctx, buyLinkSelector, "href")
	if err != nil {
		return fmt.Errorf("%w: read buy link: %v", ErrNavigation, err)
	}
	target, err := b.absolutize(href)
	if err != nil {
		return fmt.Errorf("%w: buy link %q: %v", ErrNavigation, href, err)
	}
	if err := b.port.Load(ctx, target, gameListSelector); err != nil {
		return fmt.Errorf("%w: open buy page: %v", ErrNavigation, err)
	}
	b.bus.Log("info", "已进入场次列表页", map[string]any{"url": target})
	return nil
}

// selectShow 在场次列表里挑目标场次并跳转到它的选区页。
// 配置了目标场次就按按钮文案/地址匹配，匹配不到退回第一个可购场次。
func (b *Bot) selectShow(ctx context.Context) error {
	els, err := b.port.List(ctx, showButtonSelector, "data-href")
	if err != nil {
		return fmt.Errorf("%w: list shows: %v", ErrNavigation, err)
	}
	if len(els) == 0 {
		return fmt.Errorf("%w: no purchasable show on page", ErrNavigation)
	}

	pick := els[0]
	if want := b.session.TargetShow; want != "" {
		matched := false
		for _, el := range els {
			if strings.Contains(el.Text, want) || strings.Contains(el.Attr("data-href"), want) {
				pick = el
				matched = true
				break
			}
		}
		if !matched {
			b.bus.Log("warn", "未匹配到目标场次，使用第一个可购场次", map[string]any{"target": want})
		}
	}

	href := pick.Attr("data-href")
	if href == "" {
		return fmt.Errorf("%w: show button has no data-href", ErrNavigation)
	}
	target, err := b.absolutize(href)
	if err != nil {
		return fmt.Errorf("%w: show url %q: %v", ErrNavigation, href, err)
	}
	if err := b.port.Load(ctx, target, ""); err != nil {
		return fmt.Errorf("%w: open area page: %v", ErrNavigation, err)
	}
	b.bus.Log("info", "已选择场次", map[string]any{"url": target})
	return nil
}

// selectTickets 设置购买张数并勾选条款。
// 想要的张数不可选时退回页面给出的最大值（和站点下拉行为一致）。
func (b *Bot) selectTickets(ctx context.Context) error {
	if !b.port.WaitFor(ctx, priceListSelector, 10*time.Second) {
		return fmt.Errorf("%w: ticket price list not present", ErrNavigation)
	}

	js := fmt.Sprintf(`() => {
		const sel = document.querySelector("select[id^='TicketForm_ticketPrice_']");
		if (!sel) return '';
		const want = %q;
		let value = '';
		for (const opt of sel.options) {
			if (opt.value === want) { value = want; break; }
		}
		if (!value) {
			let max = 0;
			for (const opt of sel.options) {
				const n = parseInt(opt.value, 10);
				if (!isNaN(n) && n > max) max = n;
			}
			value = String(max);
		}
		sel.value = value;
		sel.dispatchEvent(new Event('change', {bubbles: true}));
		const agree = document.getElementById('TicketForm_agree');
		if (agree && !agree.checked) agree.click();
		return value;
	}`, fmt.Sprintf("%d", b.session.TicketCount))

	out, err := b.port.RunScript(ctx, js)
	if err != nil {
		return fmt.Errorf("%w: select tickets: %v", ErrNavigation, err)
	}
	chosen := strings.TrimSpace(out)
	if chosen == "" || chosen == "0" {
		return fmt.Errorf("%w: no ticket quantity selectable", ErrNavigation)
	}
	if chosen != fmt.Sprintf("%d", b.session.TicketCount) {
		b.bus.Log("warn", "目标张数不可选，已退回最大可选值", map[string]any{
			"want": b.session.TicketCount, "chosen": chosen,
		})
	} else {
		b.bus.Log("info", "已选择张数", map[string]any{"count": chosen})
	}
	return nil
}

// absolutize 把站内相对地址补全成绝对地址，domain 取自活动页。
func (b *Bot) absolutize(href string) (string, error) {
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(b.session.EventURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

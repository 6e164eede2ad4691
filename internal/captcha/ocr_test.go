package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tixbot/internal/browser"
)

// stubPort 只实现取图相关动作的页面桩。
type stubPort struct {
	imageSrc   string
	screenshot []byte
	fills      []string
	clicks     []string
}

func (p *stubPort) Load(ctx context.Context, url, waitSelector string) error { return nil }
func (p *stubPort) Refresh(ctx context.Context) error                        { return nil }
func (p *stubPort) Back(ctx context.Context) error                           { return nil }
func (p *stubPort) CurrentURL(ctx context.Context) (string, error)           { return "", nil }
func (p *stubPort) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	return false
}

func (p *stubPort) Click(ctx context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *stubPort) Fill(ctx context.Context, selector, text string) error {
	p.fills = append(p.fills, text)
	return nil
}

func (p *stubPort) Attribute(ctx context.Context, selector, name string) (string, error) {
	return p.imageSrc, nil
}

func (p *stubPort) RunScript(ctx context.Context, js string) (string, error) { return "", nil }

func (p *stubPort) List(ctx context.Context, selector string, attrNames ...string) ([]browser.Element, error) {
	return nil, nil
}

func (p *stubPort) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	return p.screenshot, nil
}

func (p *stubPort) DialogText(ctx context.Context, timeout time.Duration) (string, bool) {
	return "", false
}
func (p *stubPort) DismissDialog(ctx context.Context) error { return nil }

func TestAcquireDecodesDataURI(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	port := &stubPort{
		imageSrc: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
	}
	dir := t.TempDir()
	s := NewPageSolver(port, nil, Options{ImageDir: dir})

	path, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("取图出错：%v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读保存的图片出错：%v", err)
	}
	if string(got) != string(raw) {
		t.Fatal("data URI 解码结果与原始字节不一致")
	}
}

func TestAcquireFallsBackToScreenshot(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 9, 9}
	port := &stubPort{
		imageSrc:   "https://tixcraft.com/ticket/captcha?v=1", // 非 data URI
		screenshot: raw,
	}
	s := NewPageSolver(port, nil, Options{ImageDir: t.TempDir()})

	path, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("取图出错：%v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != string(raw) {
		t.Fatal("应退回元素截图")
	}
}

func TestPruneKeepsNewestImages(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 7; i++ {
		name := filepath.Join(dir, fmt.Sprintf("captcha_000%d.png", i))
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := &PageSolver{opts: Options{ImageDir: dir}}
	s.pruneImages()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != maxKeepImages {
		t.Fatalf("清理后剩 %d 张，期望 %d", len(entries), maxKeepImages)
	}
	// 删的是最旧的两张。
	for _, e := range entries {
		if e.Name() == "captcha_0000.png" || e.Name() == "captcha_0001.png" {
			t.Fatalf("最旧的图片 %s 未被删除", e.Name())
		}
	}
}

func TestRecognizeParsesEnvelope(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "captcha_1.png")
	if err := os.WriteFile(imgPath, []byte("fake-png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotReq ocrRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("解析请求体出错：%v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"text": " abcd ", "score": 0.97},
		})
	}))
	defer srv.Close()

	s := NewPageSolver(&stubPort{}, nil, Options{Endpoint: srv.URL, Token: "tok-1"})
	text, score, err := s.Recognize(context.Background(), imgPath)
	if err != nil {
		t.Fatalf("识别出错：%v", err)
	}
	if text != "abcd" {
		t.Fatalf("识别文本 = %q，期望去掉首尾空白的 abcd", text)
	}
	if score != 0.97 {
		t.Fatalf("置信度 = %f", score)
	}
	if gotReq.Token != "tok-1" {
		t.Fatalf("请求未携带 token：%+v", gotReq)
	}
	if dec, _ := base64.StdEncoding.DecodeString(gotReq.Image); string(dec) != "fake-png" {
		t.Fatal("请求里的图片不是原图的 base64")
	}
}

func TestRecognizeServiceError(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "captcha_1.png")
	if err := os.WriteFile(imgPath, []byte("fake-png"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 2, "msg": "image unreadable"})
	}))
	defer srv.Close()

	s := NewPageSolver(&stubPort{}, nil, Options{Endpoint: srv.URL})
	_, _, err := s.Recognize(context.Background(), imgPath)
	if err == nil || !strings.Contains(err.Error(), "image unreadable") {
		t.Fatalf("应带上服务端错误信息，得到 %v", err)
	}
}

func TestInjectAndRefreshTargetPageElements(t *testing.T) {
	port := &stubPort{}
	s := NewPageSolver(port, nil, Options{})

	if err := s.Inject(context.Background(), "abcd"); err != nil {
		t.Fatalf("注入出错：%v", err)
	}
	if len(port.fills) != 1 || port.fills[0] != "abcd" {
		t.Fatalf("注入记录 = %v", port.fills)
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("换图出错：%v", err)
	}
	if len(port.clicks) != 1 || port.clicks[0] != ImageSelector {
		t.Fatalf("换图应点击验证码图片，实际 %v", port.clicks)
	}
}

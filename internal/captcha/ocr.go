package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tixbot/internal/browser"
	"tixbot/internal/logbus"
)

// tixcraft 购票页的验证码元素。
const (
	ImageSelector = "#TicketForm_verifyCode-image, img[src*='captcha']"
	InputSelector = "#TicketForm_verifyCode"
)

// maxKeepImages 本地最多保留的验证码图片数，超出后删最旧的。
const maxKeepImages = 5

type Options struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	ImageDir string
}

// PageSolver 从页面取图、调远端 OCR 服务识别的 Solver 实现。
type PageSolver struct {
	port   browser.Port
	client *resty.Client
	bus    *logbus.Bus
	opts   Options
}

func NewPageSolver(port browser.Port, bus *logbus.Bus, opts Options) *PageSolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(timeout)
	return &PageSolver{
		port:   port,
		client: client,
		bus:    bus,
		opts:   opts,
	}
}

type ocrRequest struct {
	Image string `json:"image"`
	Token string `json:"token,omitempty"`
}

type ocrResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"data"`
}

func (s *PageSolver) Acquire(ctx context.Context) (string, error) {
	bin, err := s.captureImage(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire captcha image: %w", err)
	}

	if err := os.MkdirAll(s.opts.ImageDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.ImageDir, fmt.Sprintf("captcha_%d.png", time.Now().UnixMilli()))
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		return "", err
	}
	s.pruneImages()

	if s.bus != nil {
		s.bus.Log("debug", "验证码图片已保存", map[string]any{"path": path, "bytes": len(bin)})
	}
	return path, nil
}

// captureImage 优先解 data URI（省一次截图往返），否则直接截元素。
func (s *PageSolver) captureImage(ctx context.Context) ([]byte, error) {
	src, err := s.port.Attribute(ctx, ImageSelector, "src")
	if err == nil && strings.HasPrefix(src, "data:image") {
		if _, payload, ok := strings.Cut(src, ","); ok {
			if bin, decErr := base64.StdEncoding.DecodeString(payload); decErr == nil {
				return bin, nil
			}
		}
	}
	return s.port.Screenshot(ctx, ImageSelector)
}

func (s *PageSolver) Recognize(ctx context.Context, ref string) (string, float64, error) {
	bin, err := os.ReadFile(ref)
	if err != nil {
		return "", 0, fmt.Errorf("read captcha image: %w", err)
	}

	var out ocrResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(ocrRequest{
			Image: base64.StdEncoding.EncodeToString(bin),
			Token: s.opts.Token,
		}).
		SetResult(&out).
		Post("")
	if err != nil {
		return "", 0, fmt.Errorf("ocr request: %w", err)
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("ocr http %d", resp.StatusCode())
	}
	if out.Code != 0 {
		if out.Msg == "" {
			out.Msg = "recognition failed"
		}
		return "", 0, fmt.Errorf("ocr: %s (code=%d)", out.Msg, out.Code)
	}

	text := strings.TrimSpace(out.Data.Text)
	if text == "" {
		return "", 0, errors.New("ocr: empty result")
	}
	if s.bus != nil {
		s.bus.Log("info", "OCR 识别完成", map[string]any{"text": text, "score": out.Data.Score})
	}
	return text, out.Data.Score, nil
}

func (s *PageSolver) Inject(ctx context.Context, text string) error {
	return s.port.Fill(ctx, InputSelector, text)
}

// Refresh 点击验证码图片换一张（tixcraft 的刷新方式）。
func (s *PageSolver) Refresh(ctx context.Context) error {
	return s.port.Click(ctx, ImageSelector)
}

func (s *PageSolver) pruneImages() {
	entries, err := os.ReadDir(s.opts.ImageDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "captcha_") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= maxKeepImages {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-maxKeepImages] {
		_ = os.Remove(filepath.Join(s.opts.ImageDir, name))
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Sale    SaleConfig    `yaml:"sale"`
	Retry   RetryConfig   `yaml:"retry"`
	Browser BrowserConfig `yaml:"browser"`
	OCR     OCRConfig     `yaml:"ocr"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type TargetConfig struct {
	EventURL string `yaml:"eventUrl"`
	// Show 目标场次（日期或场次文案片段）；留空表示第一个可购场次。
	Show string `yaml:"show"`
	// Area 目标区域偏好；留空表示按页面顺序自动选择。
	Area    string `yaml:"area"`
	Tickets int    `yaml:"tickets"`
}

type SaleConfig struct {
	// OpenAt 开卖时间，RFC3339；留空表示已开卖，跳过等待。
	OpenAt          string `yaml:"openAt"`
	LeadTimeMinutes int    `yaml:"leadTimeMinutes"`
}

type RetryConfig struct {
	CaptchaMax     int `yaml:"captchaMax"`
	SubmitCycles   int `yaml:"submitCycles"`
	DialogWaitMs   int `yaml:"dialogWaitMs"`
	ProbeTimeoutMs int `yaml:"probeTimeoutMs"`
}

type BrowserConfig struct {
	Headless     bool   `yaml:"headless"`
	ProfileLabel string `yaml:"profileLabel"`
	// NavPerSecond 页面导航/刷新的限速，防止被风控。
	NavPerSecond float64 `yaml:"navPerSecond"`
}

type OCRConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeoutMs"`
	ImageDir  string `yaml:"imageDir"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type NotifyConfig struct {
	Email EmailConfig `yaml:"email"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	From     string `yaml:"from"`
	AuthCode string `yaml:"authCode"`
	To       string `yaml:"to"`
}

type MonitorConfig struct {
	// Addr 本地状态服务监听地址；留空表示不启动。
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

func (c SaleConfig) OpenTime() (time.Time, error) {
	if c.OpenAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.OpenAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("sale.openAt: %w", err)
	}
	return t, nil
}

func (c SaleConfig) LeadTime() time.Duration {
	if c.LeadTimeMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.LeadTimeMinutes) * time.Minute
}

func (c RetryConfig) DialogWait() time.Duration {
	if c.DialogWaitMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.DialogWaitMs) * time.Millisecond
}

func (c RetryConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c OCRConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Target.Tickets <= 0 {
		c.Target.Tickets = 1
	}
	if c.Sale.LeadTimeMinutes <= 0 {
		c.Sale.LeadTimeMinutes = 5
	}
	if c.Retry.CaptchaMax <= 0 {
		c.Retry.CaptchaMax = 5
	}
	if c.Retry.SubmitCycles <= 0 {
		c.Retry.SubmitCycles = 3
	}
	if c.Retry.DialogWaitMs <= 0 {
		c.Retry.DialogWaitMs = 3000
	}
	if c.Retry.ProbeTimeoutMs <= 0 {
		c.Retry.ProbeTimeoutMs = 10000
	}
	if c.Browser.ProfileLabel == "" {
		c.Browser.ProfileLabel = "default"
	}
	if c.Browser.NavPerSecond <= 0 {
		c.Browser.NavPerSecond = 2
	}
	if c.OCR.TimeoutMs <= 0 {
		c.OCR.TimeoutMs = 8000
	}
	if c.OCR.ImageDir == "" {
		c.OCR.ImageDir = "./data/captcha"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/tixbot.db"
	}
	if c.Notify.Email.SMTPPort <= 0 {
		c.Notify.Email.SMTPPort = 465
	}
}

func (c Config) validate() error {
	if c.Target.EventURL == "" {
		return errors.New("target.eventUrl is required")
	}
	if c.Target.Tickets <= 0 {
		return errors.New("target.tickets must be > 0")
	}
	if _, err := c.Sale.OpenTime(); err != nil {
		return err
	}
	if c.OCR.Endpoint == "" {
		return errors.New("ocr.endpoint is required")
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.SMTPHost == "" || c.Notify.Email.From == "" || c.Notify.Email.To == "" {
			return errors.New("notify.email requires smtpHost, from and to")
		}
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tixbot/internal/browser"
	"tixbot/internal/captcha"
	"tixbot/internal/config"
	"tixbot/internal/engine"
	"tixbot/internal/logbus"
	"tixbot/internal/model"
	"tixbot/internal/monitor"
	"tixbot/internal/notify"
	"tixbot/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	show := flag.String("show", "", "覆盖配置里的目标场次")
	area := flag.String("area", "", "覆盖配置里的目标区域")
	tickets := flag.Int("tickets", 0, "覆盖配置里的购买张数")
	openAtFlag := flag.String("open-at", "", "覆盖配置里的开卖时间（RFC3339）")
	saveLogin := flag.Bool("save-login", false, "只做登录：打开活动页手动登录后保存 cookie 并退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *show != "" {
		cfg.Target.Show = *show
	}
	if *area != "" {
		cfg.Target.Area = *area
	}
	if *tickets > 0 {
		cfg.Target.Tickets = *tickets
	}
	if *openAtFlag != "" {
		cfg.Sale.OpenAt = *openAtFlag
	}
	openAt, err := cfg.Sale.OpenTime()
	if err != nil {
		log.Fatalf("parse open time: %v", err)
	}

	bus := logbus.New(300)
	printLogs(bus)

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	port, err := browser.NewRodPort(browser.RodOptions{
		Headless:     cfg.Browser.Headless,
		NavPerSecond: cfg.Browser.NavPerSecond,
	})
	if err != nil {
		log.Fatalf("launch browser: %v", err)
	}
	defer port.Close()

	if *saveLogin {
		if err := runSaveLogin(ctx, cfg, port, store); err != nil {
			log.Fatalf("save login: %v", err)
		}
		return
	}

	restoreLogin(ctx, cfg, port, store, bus)

	solver := captcha.NewPageSolver(port, bus, captcha.Options{
		Endpoint: cfg.OCR.Endpoint,
		Token:    cfg.OCR.Token,
		Timeout:  cfg.OCR.Timeout(),
		ImageDir: cfg.OCR.ImageDir,
	})

	var notifier notify.Notifier
	if cfg.Notify.Email.Enabled {
		emailNotifier := notify.NewEmailNotifier(cfg.Notify.Email, bus)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = emailNotifier.Close(closeCtx)
		}()
		notifier = emailNotifier
	}

	bot := engine.New(engine.Options{
		Port:   port,
		Solver: solver,
		Bus:    bus,
		Session: model.PurchaseSession{
			EventURL:        cfg.Target.EventURL,
			TargetShow:      cfg.Target.Show,
			TargetArea:      cfg.Target.Area,
			TicketCount:     cfg.Target.Tickets,
			SaleOpenAt:      openAt,
			LeadTime:        cfg.Sale.LeadTime(),
			MaxCaptchaRetry: cfg.Retry.CaptchaMax,
			MaxSubmitCycles: cfg.Retry.SubmitCycles,
		},
		Store:        store,
		Notifier:     notifier,
		DialogWait:   cfg.Retry.DialogWait(),
		ProbeTimeout: cfg.Retry.ProbeTimeout(),
	})

	if cfg.Monitor.Addr != "" {
		mon := monitor.New(monitor.Options{
			Bus:          bus,
			Report:       bot.Report,
			Store:        store,
			AllowOrigins: cfg.Monitor.AllowOrigins,
		})
		mon.Start(cfg.Monitor.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mon.Shutdown(shutdownCtx)
		}()
	}

	// 打开活动主页后交给编排器。
	if err := port.Load(ctx, cfg.Target.EventURL, ""); err != nil {
		log.Fatalf("open event page: %v", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := bot.Run(runCtx)
	report := bot.Report()
	fmt.Printf("\n最终状态: %s\n", report.State)
	if report.ChosenArea != "" {
		fmt.Printf("区域: %s\n", report.ChosenArea)
	}
	if report.ErrorMessage != "" {
		fmt.Printf("错误: %s\n", report.ErrorMessage)
	}
	fmt.Printf("耗时: %.1f 秒\n", report.DurationSec)

	if runErr != nil {
		os.Exit(1)
	}
}

// printLogs 把总线日志转到标准输出，CLI 的唯一观察口。
func printLogs(bus *logbus.Bus) {
	ch, _ := bus.Subscribe(256)
	go func() {
		for msg := range ch {
			if msg.Type != "log" {
				continue
			}
			data, ok := msg.Data.(logbus.LogData)
			if !ok {
				continue
			}
			if len(data.Fields) > 0 {
				log.Printf("[%s] %s %v", data.Level, data.Msg, data.Fields)
			} else {
				log.Printf("[%s] %s", data.Level, data.Msg)
			}
		}
	}()
}

// runSaveLogin 打开活动页让操作者手动登录，回车后把 cookie 存进 sqlite。
func runSaveLogin(ctx context.Context, cfg config.Config, port *browser.RodPort, store *sqlite.Store) error {
	if err := port.Load(ctx, cfg.Target.EventURL, ""); err != nil {
		return err
	}
	fmt.Println("请在浏览器中完成登录，然后回到终端按回车保存登录态……")
	reader := bufio.NewReader(os.Stdin)
	if _, err := reader.ReadString('\n'); err != nil {
		return err
	}

	cookies, err := port.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := store.SaveLoginProfile(ctx, cfg.Browser.ProfileLabel, cookies); err != nil {
		return err
	}
	fmt.Printf("登录态已保存（profile=%s，cookie %d 条）\n", cfg.Browser.ProfileLabel, len(cookies))
	return nil
}

// restoreLogin 把上次保存的登录 cookie 回灌进浏览器；没存过就跳过。
func restoreLogin(ctx context.Context, cfg config.Config, port *browser.RodPort, store *sqlite.Store, bus *logbus.Bus) {
	profile, ok, err := store.GetLoginProfile(ctx, cfg.Browser.ProfileLabel)
	if err != nil {
		bus.Log("warn", "读取登录态失败", map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		bus.Log("info", "没有已保存的登录态，以游客身份继续", map[string]any{"profile": cfg.Browser.ProfileLabel})
		return
	}
	if err := port.SetCookies(ctx, profile.Cookies); err != nil {
		bus.Log("warn", "回灌登录态失败", map[string]any{"error": err.Error()})
		return
	}
	bus.Log("info", "登录态已恢复", map[string]any{
		"profile":   profile.Label,
		"cookies":   len(profile.Cookies),
		"updatedMs": profile.UpdatedMs,
	})
}

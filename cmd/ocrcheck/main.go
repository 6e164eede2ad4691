package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// 手动冒烟工具：拿一张本地验证码图片打一次 OCR 服务，确认端点、token 和
// 返回格式都对得上，再去跑主流程。
func main() {
	endpoint := flag.String("endpoint", "", "OCR 服务地址")
	token := flag.String("token", "", "OCR 服务 token（可选）")
	image := flag.String("image", "", "本地验证码图片路径（png）")
	flag.Parse()

	if *endpoint == "" || *image == "" {
		fmt.Println("用法: ocrcheck -endpoint http://127.0.0.1:9898/ocr -image ./captcha.png [-token xxx]")
		os.Exit(2)
	}

	bin, err := os.ReadFile(*image)
	if err != nil {
		fmt.Printf("读图失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("图片大小: %d 字节\n", len(bin))

	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"data"`
	}

	start := time.Now()
	resp, err := resty.New().
		SetTimeout(15 * time.Second).
		R().
		SetBody(map[string]string{
			"image": base64.StdEncoding.EncodeToString(bin),
			"token": *token,
		}).
		SetResult(&out).
		Post(*endpoint)
	if err != nil {
		fmt.Printf("请求失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("HTTP %d，耗时 %s\n", resp.StatusCode(), time.Since(start).Round(time.Millisecond))

	if resp.IsError() {
		fmt.Printf("服务端返回错误: %s\n", resp.String())
		os.Exit(1)
	}
	if out.Code != 0 {
		fmt.Printf("识别失败: %s (code=%d)\n", out.Msg, out.Code)
		os.Exit(1)
	}

	fmt.Printf("识别结果: %q（置信度 %.2f，长度 %d）\n", out.Data.Text, out.Data.Score, len(out.Data.Text))
	if len(out.Data.Text) < 4 {
		fmt.Println("注意: 结果不足 4 位，主流程会按识别失败重试")
	}
}

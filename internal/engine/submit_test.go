package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func submitOK(js string) (string, error) {
	if strings.Contains(js, "確認張數") {
		return "ok", nil
	}
	return "", nil
}

func TestCheckAcceptedWhenNoDialog(t *testing.T) {
	port := &fakePort{script: submitOK}
	f := NewSubmitFeedback(port, nil, 10*time.Millisecond)

	if err := f.Submit(context.Background()); err != nil {
		t.Fatalf("提交出错：%v", err)
	}
	accepted, text, err := f.Check(context.Background())
	if err != nil {
		t.Fatalf("判定出错：%v", err)
	}
	if !accepted || text != "" {
		t.Fatalf("窗口期无弹窗应判通过，得到 accepted=%v text=%q", accepted, text)
	}
	if port.dismissed != 0 {
		t.Fatalf("没有弹窗不应 dismiss，实际 %d 次", port.dismissed)
	}
}

func TestCheckRejectedDismissesOnce(t *testing.T) {
	port := &fakePort{
		script:  submitOK,
		dialogs: []string{"驗證碼錯誤"},
	}
	f := NewSubmitFeedback(port, nil, 10*time.Millisecond)

	accepted, text, err := f.Check(context.Background())
	if err != nil {
		t.Fatalf("判定出错：%v", err)
	}
	if accepted {
		t.Fatal("出现弹窗应判拒绝")
	}
	if text != "驗證碼錯誤" {
		t.Fatalf("弹窗文案 = %q", text)
	}
	if port.dismissed != 1 {
		t.Fatalf("弹窗应恰好被 dismiss 一次，实际 %d 次", port.dismissed)
	}
}

func TestSubmitButtonMissing(t *testing.T) {
	port := &fakePort{} // RunScript 返回空串：页面上没有提交按钮
	f := NewSubmitFeedback(port, nil, 0)

	err := f.Submit(context.Background())
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("期望 ErrNavigation，得到 %v", err)
	}
}

package engine

import (
	"context"
	"errors"
	"testing"

	"tixbot/internal/model"
)

func TestSolveRetriesShortResult(t *testing.T) {
	solver := &fakeSolver{texts: []string{"ab", "abcd"}}
	var attempts []model.ChallengeAttempt
	r := NewChallengeRetry(solver, nil, 3, func(a model.ChallengeAttempt) {
		attempts = append(attempts, a)
	})

	text, err := r.Solve(context.Background())
	if err != nil {
		t.Fatalf("第二次识别应通过，得到错误：%v", err)
	}
	if text != "abcd" {
		t.Fatalf("识别结果 = %q，期望 abcd", text)
	}
	// 刷新只发生在两次尝试之间。
	if solver.refreshes != 1 {
		t.Fatalf("刷新次数 = %d，期望 1", solver.refreshes)
	}
	if len(attempts) != 2 {
		t.Fatalf("尝试记录 = %d 条，期望 2", len(attempts))
	}
	if attempts[0].LengthOK || !attempts[1].LengthOK {
		t.Fatalf("长度检查标记不对：%+v", attempts)
	}
	if attempts[0].Index != 1 || attempts[1].Index != 2 {
		t.Fatalf("尝试序号不对：%+v", attempts)
	}
}

func TestSolveExhaustsBudget(t *testing.T) {
	solver := &fakeSolver{texts: []string{"a", "b", "c"}}
	r := NewChallengeRetry(solver, nil, 3, nil)

	_, err := r.Solve(context.Background())
	if !errors.Is(err, ErrChallengeRecognition) {
		t.Fatalf("期望 ErrChallengeRecognition，得到 %v", err)
	}
	// 3 次全失败只有 2 次夹在中间的刷新。
	if solver.refreshes != 2 {
		t.Fatalf("刷新次数 = %d，期望 2", solver.refreshes)
	}
}

func TestSolveAcquireErrorCountsAsAttempt(t *testing.T) {
	solver := &fakeSolver{acquireErr: errors.New("image gone")}
	var attempts []model.ChallengeAttempt
	r := NewChallengeRetry(solver, nil, 2, func(a model.ChallengeAttempt) {
		attempts = append(attempts, a)
	})

	_, err := r.Solve(context.Background())
	if !errors.Is(err, ErrChallengeRecognition) {
		t.Fatalf("期望 ErrChallengeRecognition，得到 %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("取图失败也应计入预算，记录 = %d 条", len(attempts))
	}
}

func TestSolveRefreshFailureDoesNotAbort(t *testing.T) {
	solver := &fakeSolver{
		texts:      []string{"xy", "wxyz"},
		refreshErr: errors.New("refresh blocked"),
	}
	r := NewChallengeRetry(solver, nil, 3, nil)

	text, err := r.Solve(context.Background())
	if err != nil {
		t.Fatalf("刷新失败不应中断重试，得到错误：%v", err)
	}
	if text != "wxyz" {
		t.Fatalf("识别结果 = %q，期望 wxyz", text)
	}
}

func TestSolveCancelled(t *testing.T) {
	solver := &fakeSolver{texts: []string{"abcd"}}
	r := NewChallengeRetry(solver, nil, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Solve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，得到 %v", err)
	}
}

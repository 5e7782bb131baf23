package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// SandboxService 执行学生提交的未受信代码并捕获输出。
//
// 代码始终在独立的解释器子进程中运行，受墙钟时限约束，绝不在宿主进程内求值。
// 任何失败（非零退出、启动失败、超时、panic）都转成一行 `Error: ...` 输出，
// 不会作为 error 向会话传播，更不会中断会话本身。
type SandboxService struct {
	mu  sync.RWMutex
	cfg config.SandboxConfig
}

func NewSandboxService(cfg config.SandboxConfig) *SandboxService {
	return &SandboxService{cfg: cfg}
}

// SetConfig 配置热更新入口；进行中的执行继续用旧配置跑完
func (s *SandboxService) SetConfig(cfg config.SandboxConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *SandboxService) config() config.SandboxConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// RunResult 一次沙箱执行捕获到的按序输出
type RunResult struct {
	Lines      []string `json:"lines"`
	TimedOut   bool     `json:"timedOut"`
	DurationMs int64    `json:"durationMs"`
}

// Run 执行一段源码，可选地在输出末尾回显可见用例。
// 注意：当前并不比较实际输出与期望输出，只回显存在哪些用例。
func (s *SandboxService) Run(ctx context.Context, source string, visible []model.TestCase) (res RunResult) {
	cfg := s.config()
	start := time.Now()
	outcome := "ok"

	defer func() {
		// 沙箱内部的任何 panic 也只体现为一行错误输出
		if r := recover(); r != nil {
			res.Lines = append(res.Lines, fmt.Sprintf("Error: %v", r))
			outcome = "error"
		}
		res.DurationMs = time.Since(start).Milliseconds()
		res.Lines = append(res.Lines, s.echoTestCases(visible)...)
		monitoring.SandboxRunCounter.WithLabelValues(outcome).Inc()
	}()

	dir, err := os.MkdirTemp("", "sandbox-*")
	if err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Error: %v", err))
		outcome = "error"
		return res
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "main.src")
	if err := os.WriteFile(srcPath, []byte(source), 0600); err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Error: %v", err))
		outcome = "error"
		return res
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, cfg.Args...), srcPath)
	cmd := exec.CommandContext(runCtx, cfg.Command, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	res.Lines = splitOutputLines(buf.String(), cfg.MaxOutputLines)

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Lines = append(res.Lines, fmt.Sprintf("Error: execution timed out after %ds", cfg.TimeoutSeconds))
		outcome = "timeout"
		logger.Log.Warn("sandbox execution timed out",
			zap.Int("timeoutSeconds", cfg.TimeoutSeconds))
		return res
	}

	if runErr != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Error: %v", runErr))
		outcome = "error"
	}

	return res
}

// echoTestCases 把非隐藏用例列在输出末尾，给学生一个对照参考
func (s *SandboxService) echoTestCases(visible []model.TestCase) []string {
	lines := make([]string, 0, len(visible))
	for i, tc := range visible {
		lines = append(lines, fmt.Sprintf("Test case %d: input %q, expected output %q", i+1, tc.Input, tc.Expected))
	}
	return lines
}

func splitOutputLines(out string, max int) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	if max > 0 && len(lines) > max {
		truncated := len(lines) - max
		lines = lines[:max]
		lines = append(lines, fmt.Sprintf("... output truncated (%d more lines)", truncated))
	}
	return lines
}

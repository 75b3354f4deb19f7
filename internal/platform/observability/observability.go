package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config captures observability toggles. Future fields (OTel endpoint, etc.) can be added here.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu           sync.RWMutex
	instrumentationLog *slog.Logger
	instrumentationCfg Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationCfg
}

// Setup wires observability. Only the latency tracker is active for now.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationCfg = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[TIMING] 延迟跟踪已启用")
		} else {
			logger.InfoContext(ctx, "[TIMING] 延迟跟踪已关闭")
		}
	}
	return func(context.Context) error { return nil }, nil
}

// Grade 延迟评级
type Grade string

const (
	GradeExcellent  Grade = "excellent"
	GradeGood       Grade = "good"
	GradeAcceptable Grade = "acceptable"
	GradePoor       Grade = "poor"
)

// GradeLatency 按总耗时评级：<1s 优秀，<2s 良好，<5s 可接受，其余差
func GradeLatency(total time.Duration) Grade {
	switch {
	case total < time.Second:
		return GradeExcellent
	case total < 2*time.Second:
		return GradeGood
	case total < 5*time.Second:
		return GradeAcceptable
	default:
		return GradePoor
	}
}

// TurnTimer 记录单轮对话各阶段的时间点
type TurnTimer struct {
	mu            sync.Mutex
	start         time.Time
	asrDone       time.Time
	llmFirstToken time.Time
	ttsFirstChunk time.Time
	done          time.Time
	now           func() time.Time
}

// NewTurnTimer 以当前时间开始计时
func NewTurnTimer() *TurnTimer {
	return newTurnTimerAt(time.Now)
}

func newTurnTimerAt(now func() time.Time) *TurnTimer {
	return &TurnTimer{start: now(), now: now}
}

func (t *TurnTimer) MarkASRDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.asrDone.IsZero() {
		t.asrDone = t.now()
	}
}

func (t *TurnTimer) MarkLLMFirstToken() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.llmFirstToken.IsZero() {
		t.llmFirstToken = t.now()
	}
}

func (t *TurnTimer) MarkTTSFirstChunk() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ttsFirstChunk.IsZero() {
		t.ttsFirstChunk = t.now()
	}
}

// Metrics 单轮延迟指标，单位毫秒
type Metrics struct {
	ASRMs           int64 `json:"asr_ms"`
	LLMFirstTokenMs int64 `json:"llm_first_token_ms"`
	TTSFirstChunkMs int64 `json:"tts_first_chunk_ms"`
	TotalMs         int64 `json:"total_ms"`
	Grade           Grade `json:"grade"`
}

// Finish 结束计时并产出指标。未标记的阶段报告为0。
func (t *TurnTimer) Finish() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done.IsZero() {
		t.done = t.now()
	}

	since := func(ts time.Time) int64 {
		if ts.IsZero() {
			return 0
		}
		return ts.Sub(t.start).Milliseconds()
	}

	total := t.done.Sub(t.start)
	m := Metrics{
		ASRMs:           since(t.asrDone),
		LLMFirstTokenMs: since(t.llmFirstToken),
		TTSFirstChunkMs: since(t.ttsFirstChunk),
		TotalMs:         total.Milliseconds(),
		Grade:           GradeLatency(total),
	}

	loggerMu.RLock()
	logger := instrumentationLog
	loggerMu.RUnlock()
	if logger != nil {
		logger.Info("[TIMING] 轮次延迟",
			slog.Int64("asr_ms", m.ASRMs),
			slog.Int64("llm_first_token_ms", m.LLMFirstTokenMs),
			slog.Int64("tts_first_chunk_ms", m.TTSFirstChunkMs),
			slog.Int64("total_ms", m.TotalMs),
			slog.String("grade", string(m.Grade)))
	}
	return m
}

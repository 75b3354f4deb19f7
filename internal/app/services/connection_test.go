package services

import (
	"testing"
	"time"

	"cuishou-server-go/internal/domain/history"
	llminter "cuishou-server-go/internal/domain/llm/inter"
	"cuishou-server-go/internal/platform/config"
	"cuishou-server-go/internal/protocol"
)

func newTestConnection(t *testing.T) (*ConnectionService, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	svc, err := NewConnectionService(&ConnectionConfig{
		Config:       config.DefaultConfig(),
		Logger:       testLogger(t),
		Sender:       sender,
		SessionID:    "s1",
		HistoryStore: history.NewMemory(history.Config{MaxEntries: 20}),
		LLMProvider: &scriptedLLM{chunks: []llminter.Chunk{
			{Content: "好的，我帮您查一下。"},
			{Done: true},
		}},
		TTSProvider: &fixedTTS{pcm: []byte{1, 2, 3, 4}},
	})
	if err != nil {
		t.Fatalf("NewConnectionService failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, sender
}

func TestTurnTimerAnchoredAtUtteranceEnd(t *testing.T) {
	svc, sender := newTestConnection(t)

	// 说完话到出最终识别结果之间隔了一段时间
	svc.markUtteranceEnd()
	time.Sleep(50 * time.Millisecond)
	svc.onFinalTranscript("我想了解我的欠款", time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for {
		var metrics *protocol.LatencyMetrics
		for _, msg := range sender.all() {
			if m, ok := msg.(protocol.LatencyMetrics); ok {
				metrics = &m
			}
		}
		if metrics != nil {
			if metrics.ASRMs < 30 {
				t.Fatalf("asr_ms = %d, must reflect the gap between utterance end and transcript", metrics.ASRMs)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("latency metrics never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

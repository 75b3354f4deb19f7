package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestSetupRetainsConfigAndLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	shutdown, err := Setup(context.Background(), Config{Enabled: true}, logger)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = Setup(context.Background(), Config{}, nil)
	})

	if !Enabled() {
		t.Error("expected Enabled() true after Setup with Enabled config")
	}

	_, finish := StartSpan(context.Background(), "asr", "start-session")
	finish(errors.New("boom"))
	RecordMetric(context.Background(), "ws.connections", 1, map[string]string{"state": "open"})

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("obs span start")) {
		t.Errorf("expected span start log, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("obs span end")) {
		t.Errorf("expected span end log, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("obs metric")) {
		t.Errorf("expected metric log, got %q", out)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown returned error: %v", err)
	}

	if _, err := Setup(context.Background(), Config{}, nil); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if Enabled() {
		t.Error("expected Enabled() false after Setup with zero config")
	}
}

func TestGradeLatency(t *testing.T) {
	tests := []struct {
		total time.Duration
		want  Grade
	}{
		{500 * time.Millisecond, GradeExcellent},
		{999 * time.Millisecond, GradeExcellent},
		{1500 * time.Millisecond, GradeGood},
		{3 * time.Second, GradeAcceptable},
		{8 * time.Second, GradePoor},
	}
	for _, tt := range tests {
		if got := GradeLatency(tt.total); got != tt.want {
			t.Errorf("GradeLatency(%v) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

func TestTurnTimer_Finish(t *testing.T) {
	base := time.Unix(0, 0)
	clock := base
	timer := newTurnTimerAt(func() time.Time { return clock })

	clock = base.Add(300 * time.Millisecond)
	timer.MarkASRDone()
	clock = base.Add(800 * time.Millisecond)
	timer.MarkLLMFirstToken()
	clock = base.Add(1200 * time.Millisecond)
	timer.MarkTTSFirstChunk()
	clock = base.Add(1800 * time.Millisecond)

	m := timer.Finish()
	if m.ASRMs != 300 {
		t.Errorf("expected asr_ms 300, got %d", m.ASRMs)
	}
	if m.LLMFirstTokenMs != 800 {
		t.Errorf("expected llm_first_token_ms 800, got %d", m.LLMFirstTokenMs)
	}
	if m.TTSFirstChunkMs != 1200 {
		t.Errorf("expected tts_first_chunk_ms 1200, got %d", m.TTSFirstChunkMs)
	}
	if m.TotalMs != 1800 {
		t.Errorf("expected total_ms 1800, got %d", m.TotalMs)
	}
	if m.Grade != GradeGood {
		t.Errorf("expected grade good, got %s", m.Grade)
	}
}

func TestTurnTimer_UnmarkedStagesReportZero(t *testing.T) {
	timer := NewTurnTimer()
	m := timer.Finish()
	if m.ASRMs != 0 || m.LLMFirstTokenMs != 0 || m.TTSFirstChunkMs != 0 {
		t.Errorf("expected unmarked stages to be zero, got %+v", m)
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/domain/history"
	llminter "cuishou-server-go/internal/domain/llm/inter"
	"cuishou-server-go/internal/domain/playback"
	ttsinter "cuishou-server-go/internal/domain/tts/inter"
	"cuishou-server-go/internal/platform/logging"
	"cuishou-server-go/internal/platform/observability"
	"cuishou-server-go/internal/protocol"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: "error", Dir: t.TempDir(), Filename: "test.log"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

type recordingSender struct {
	mu       sync.Mutex
	messages []protocol.Outbound
}

func (s *recordingSender) SendMessage(msg protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) all() []protocol.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Outbound, len(s.messages))
	copy(out, s.messages)
	return out
}

type scriptedLLM struct {
	chunks []llminter.Chunk
}

func (f *scriptedLLM) Stream(ctx context.Context, messages []llminter.Message) (<-chan llminter.Chunk, error) {
	out := make(chan llminter.Chunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (f *scriptedLLM) Close() error { return nil }

type fixedTTS struct {
	pcm []byte
}

func (f *fixedTTS) Synthesize(ctx context.Context, text string) (*ttsinter.Result, error) {
	return &ttsinter.Result{PCM: f.pcm, SampleRate: 24000}, nil
}

func (f *fixedTTS) Close() error { return nil }

func newTestConversation(t *testing.T, llm llminter.Provider, tts ttsinter.Provider, chunkSize int) (*ConversationService, *recordingSender, history.Store) {
	t.Helper()
	logger := testLogger(t)
	sender := &recordingSender{}
	store := history.NewMemory(history.Config{MaxEntries: 20})
	engine := playback.NewEngine("s1", playback.NewWallClock(), NewWSSink(sender), logger)

	svc := NewConversationService(&ConversationConfig{
		LLMProvider:  llm,
		TTSProvider:  tts,
		HistoryStore: store,
		Engine:       engine,
		Sender:       sender,
		Logger:       logger,
		ChunkSize:    chunkSize,
		OutputFormat: audio.DefaultOutputFormat,
		MaxHistory:   20,
	})
	svc.SetSession("s1", &customer.Record{
		CustomerID:  "DEMO_001",
		Name:        "张伟",
		Balance:     15000,
		DaysOverdue: 67,
		RiskLevel:   "medium",
		Scenario:    "overdue_payment",
	})
	return svc, sender, store
}

func TestHandleTurnStreamsChunksInOrder(t *testing.T) {
	llm := &scriptedLLM{chunks: []llminter.Chunk{
		{Content: "您好。"},
		{Content: "请尽快还款。"},
		{Done: true},
	}}
	tts := &fixedTTS{pcm: []byte{1, 2, 3, 4, 5, 6}}
	svc, sender, store := newTestConversation(t, llm, tts, 4)

	err := svc.HandleTurn(context.Background(), 1, "我想了解我的欠款", observability.NewTurnTimer())
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	var chunks []protocol.PCMChunk
	var segmentEnds []protocol.PCMSegmentEnd
	var texts []protocol.TextResponse
	var metrics []protocol.LatencyMetrics
	for _, msg := range sender.all() {
		switch m := msg.(type) {
		case protocol.PCMChunk:
			chunks = append(chunks, m)
		case protocol.PCMSegmentEnd:
			segmentEnds = append(segmentEnds, m)
		case protocol.TextResponse:
			texts = append(texts, m)
		case protocol.LatencyMetrics:
			metrics = append(metrics, m)
		}
	}

	// 两句话，每句6字节按4字节分块，共4块
	if len(chunks) != 4 {
		t.Fatalf("expected 4 pcm chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.SegmentIndex != 1 {
			t.Errorf("chunk %d: segment index = %d, want 1", i, c.SegmentIndex)
		}
		if c.ChunkIndex != i+1 {
			t.Errorf("chunk %d: chunk index = %d, want %d", i, c.ChunkIndex, i+1)
		}
		if c.SampleRate != 24000 {
			t.Errorf("chunk %d: sample rate = %d, want 24000", i, c.SampleRate)
		}
	}

	if len(segmentEnds) != 1 {
		t.Fatalf("expected 1 segment end, got %d", len(segmentEnds))
	}
	if segmentEnds[0].SegmentIndex != 1 || segmentEnds[0].TotalChunks != 4 {
		t.Errorf("segment end = %+v, want segment 1 with 4 chunks", segmentEnds[0])
	}

	if len(texts) != 1 {
		t.Fatalf("expected 1 text response, got %d", len(texts))
	}
	if texts[0].Text != "您好。请尽快还款。" {
		t.Errorf("text response = %q", texts[0].Text)
	}

	if len(metrics) != 1 {
		t.Fatalf("expected 1 latency metrics, got %d", len(metrics))
	}
	if metrics[0].Grade == "" {
		t.Error("latency metrics missing grade")
	}

	entries, err := store.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].Role != "user" || entries[0].Text != "我想了解我的欠款" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Role != "assistant" || entries[1].Text != "您好。请尽快还款。" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestHandleTurnPropagatesStreamError(t *testing.T) {
	llm := &scriptedLLM{chunks: []llminter.Chunk{
		{Err: context.DeadlineExceeded},
	}}
	svc, _, _ := newTestConversation(t, llm, &fixedTTS{pcm: []byte{1, 2}}, 4)

	err := svc.HandleTurn(context.Background(), 1, "你好", observability.NewTurnTimer())
	if err == nil {
		t.Fatal("expected error from failing stream")
	}
}

func TestHandleTurnEmptyReplyFails(t *testing.T) {
	llm := &scriptedLLM{chunks: []llminter.Chunk{{Done: true}}}
	svc, _, _ := newTestConversation(t, llm, &fixedTTS{pcm: []byte{1, 2}}, 4)

	err := svc.HandleTurn(context.Background(), 1, "你好", observability.NewTurnTimer())
	if err == nil {
		t.Fatal("expected error when llm returns nothing")
	}
}

func TestGreetingSpeaksTemplate(t *testing.T) {
	svc, sender, store := newTestConversation(t, &scriptedLLM{}, &fixedTTS{pcm: []byte{9, 9, 9, 9}}, 4)

	if err := svc.Greeting(context.Background(), 0); err != nil {
		t.Fatalf("Greeting failed: %v", err)
	}

	var text string
	var sawChunk, sawEnd bool
	for _, msg := range sender.all() {
		switch m := msg.(type) {
		case protocol.PCMChunk:
			sawChunk = true
			if m.SegmentIndex != 0 {
				t.Errorf("greeting chunk segment = %d, want 0", m.SegmentIndex)
			}
		case protocol.PCMSegmentEnd:
			sawEnd = true
		case protocol.TextResponse:
			text = m.Text
		}
	}
	if !sawChunk || !sawEnd {
		t.Fatal("greeting did not send audio")
	}
	if !strings.Contains(text, "张伟您好") || !strings.Contains(text, "一万五千元") {
		t.Errorf("greeting text = %q", text)
	}

	entries, err := store.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Role != "assistant" {
		t.Fatalf("expected greeting in history, got %+v", entries)
	}
}

func TestOnSpeakingFiresOncePerTurn(t *testing.T) {
	logger := testLogger(t)
	sender := &recordingSender{}
	store := history.NewMemory(history.Config{MaxEntries: 20})
	engine := playback.NewEngine("s1", playback.NewWallClock(), NewWSSink(sender), logger)

	var fired int
	svc := NewConversationService(&ConversationConfig{
		LLMProvider: &scriptedLLM{chunks: []llminter.Chunk{
			{Content: "好的。知道了。"},
			{Done: true},
		}},
		TTSProvider:  &fixedTTS{pcm: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		HistoryStore: store,
		Engine:       engine,
		Sender:       sender,
		Logger:       logger,
		ChunkSize:    4,
		MaxHistory:   20,
		OnSpeaking:   func() { fired++ },
	})
	svc.SetSession("s1", &customer.Record{CustomerID: "DEMO_001", Name: "张伟", Balance: 15000})

	if err := svc.HandleTurn(context.Background(), 1, "好", observability.NewTurnTimer()); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("OnSpeaking fired %d times, want 1", fired)
	}
}

// blockingTTS 模拟还挂在网络上的合成调用，取消前不返回
type blockingTTS struct {
	once    sync.Once
	started chan struct{}
}

func (f *blockingTTS) Synthesize(ctx context.Context, text string) (*ttsinter.Result, error) {
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *blockingTTS) Close() error { return nil }

func TestHandleTurnUnblocksOnCancelDuringSynthesis(t *testing.T) {
	llm := &scriptedLLM{chunks: []llminter.Chunk{
		{Content: "请您尽快处理。"},
		{Done: true},
	}}
	tts := &blockingTTS{started: make(chan struct{})}
	svc, _, _ := newTestConversation(t, llm, tts, 4)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.HandleTurn(ctx, 1, "你好", observability.NewTurnTimer())
	}()

	<-tts.started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled turn did not return while synthesis was in flight")
	}
}

func TestApologySendsFreshSegment(t *testing.T) {
	svc, sender, _ := newTestConversation(t, &scriptedLLM{}, &fixedTTS{pcm: []byte{5, 5, 5, 5}}, 4)

	// 超时轮次在自己的段里已经排了一块音频
	if err := svc.engine.OnChunk(3, 1, []byte{1, 1, 1, 1}, audio.DefaultOutputFormat); err != nil {
		t.Fatalf("dead turn chunk failed: %v", err)
	}

	svc.Apology(3)

	var chunks []protocol.PCMChunk
	var ends []protocol.PCMSegmentEnd
	for _, msg := range sender.all() {
		switch m := msg.(type) {
		case protocol.PCMChunk:
			chunks = append(chunks, m)
		case protocol.PCMSegmentEnd:
			ends = append(ends, m)
		}
	}

	// 死轮次的块 + 致歉的块，致歉音频不能被当作重复块吞掉
	if len(chunks) != 2 {
		t.Fatalf("expected 2 pcm chunks, got %d", len(chunks))
	}
	apology := chunks[1]
	if apology.SegmentIndex >= 0 {
		t.Errorf("apology segment = %d, must not reuse the turn's segment space", apology.SegmentIndex)
	}
	if apology.ChunkIndex != 1 {
		t.Errorf("apology chunk index = %d, want 1", apology.ChunkIndex)
	}

	if len(ends) != 1 {
		t.Fatalf("expected 1 segment end, got %d", len(ends))
	}
	if ends[0].SegmentIndex != apology.SegmentIndex || ends[0].TotalChunks != 1 {
		t.Errorf("segment end = %+v, want segment %d with 1 chunk", ends[0], apology.SegmentIndex)
	}

	// 再次超时用新的段号
	svc.Apology(4)
	var last protocol.PCMSegmentEnd
	for _, msg := range sender.all() {
		if end, ok := msg.(protocol.PCMSegmentEnd); ok {
			last = end
		}
	}
	if last.SegmentIndex != apology.SegmentIndex-1 {
		t.Errorf("second apology segment = %d, want %d", last.SegmentIndex, apology.SegmentIndex-1)
	}
}

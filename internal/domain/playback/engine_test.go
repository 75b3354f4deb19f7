package playback

import (
	"sync"
	"testing"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/platform/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type scheduledPlay struct {
	segment int
	chunk   int
	pcm     []byte
	start   time.Duration
	stopped bool
}

func (p *scheduledPlay) Stop() { p.stopped = true }

type fakeSink struct {
	mu    sync.Mutex
	plays []*scheduledPlay
}

func (s *fakeSink) Schedule(segmentIndex, chunkIndex int, pcm []byte, format audio.Format, at time.Duration) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &scheduledPlay{segment: segmentIndex, chunk: chunkIndex, pcm: pcm, start: at}
	s.plays = append(s.plays, p)
	return p, nil
}

func (s *fakeSink) scheduled() []*scheduledPlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*scheduledPlay(nil), s.plays...)
}

var testFormat = audio.Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: "error", Dir: t.TempDir(), Filename: "test.log"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

// chunkOf 构造固定时长的PCM块，首字节用tag区分内容
func chunkOf(tag byte, d time.Duration) []byte {
	n := int(float64(testFormat.BytesPerSecond()) * d.Seconds())
	data := make([]byte, n)
	data[0] = tag
	return data
}

func TestEngine_OutOfOrderChunksPlayInOrder(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	c1 := chunkOf(1, 100*time.Millisecond)
	c2 := chunkOf(2, 100*time.Millisecond)
	c3 := chunkOf(3, 100*time.Millisecond)

	// 到达顺序 2, 1, 3
	if err := engine.OnChunk(0, 2, c2, testFormat); err != nil {
		t.Fatalf("chunk 2 failed: %v", err)
	}
	if got := len(sink.scheduled()); got != 0 {
		t.Fatalf("chunk 2 must wait for chunk 1, but %d plays scheduled", got)
	}
	if engine.PendingChunks() != 1 {
		t.Errorf("expected 1 pending chunk, got %d", engine.PendingChunks())
	}

	if err := engine.OnChunk(0, 1, c1, testFormat); err != nil {
		t.Fatalf("chunk 1 failed: %v", err)
	}
	if err := engine.OnChunk(0, 3, c3, testFormat); err != nil {
		t.Fatalf("chunk 3 failed: %v", err)
	}

	plays := sink.scheduled()
	if len(plays) != 3 {
		t.Fatalf("expected 3 scheduled plays, got %d", len(plays))
	}
	for i, want := range []byte{1, 2, 3} {
		if plays[i].pcm[0] != want {
			t.Errorf("play %d: expected chunk %d, got %d", i, want, plays[i].pcm[0])
		}
		if plays[i].chunk != int(want) {
			t.Errorf("play %d: expected chunk index %d, got %d", i, want, plays[i].chunk)
		}
	}
}

func TestEngine_GaplessScheduling(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	engine.OnChunk(0, 1, chunkOf(1, 100*time.Millisecond), testFormat)
	engine.OnChunk(0, 2, chunkOf(2, 150*time.Millisecond), testFormat)
	engine.OnChunk(0, 3, chunkOf(3, 100*time.Millisecond), testFormat)

	plays := sink.scheduled()
	if len(plays) != 3 {
		t.Fatalf("expected 3 plays, got %d", len(plays))
	}
	// 起播时刻首尾相接，零间隙
	if plays[0].start != 0 {
		t.Errorf("first chunk must start immediately, got %v", plays[0].start)
	}
	if plays[1].start != 100*time.Millisecond {
		t.Errorf("second chunk must start at 100ms, got %v", plays[1].start)
	}
	if plays[2].start != 250*time.Millisecond {
		t.Errorf("third chunk must start at 250ms, got %v", plays[2].start)
	}
}

func TestEngine_LateChunkDoesNotScheduleInThePast(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	engine.OnChunk(0, 1, chunkOf(1, 100*time.Millisecond), testFormat)

	// 网络停顿：上一块已播完很久，下一块才到
	clock.advance(500 * time.Millisecond)
	engine.OnChunk(0, 2, chunkOf(2, 100*time.Millisecond), testFormat)

	plays := sink.scheduled()
	if plays[1].start != 500*time.Millisecond {
		t.Errorf("late chunk must start now, not in the past: got %v", plays[1].start)
	}
}

func TestEngine_InterruptStopsAllSources(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	for i := 1; i <= 4; i++ {
		engine.OnChunk(0, i, chunkOf(byte(i), 200*time.Millisecond), testFormat)
	}
	if engine.ActiveSources() != 4 {
		t.Fatalf("expected 4 active sources, got %d", engine.ActiveSources())
	}

	stopped := engine.Interrupt()
	if stopped != 4 {
		t.Errorf("expected 4 sources stopped, got %d", stopped)
	}
	if engine.ActiveSources() != 0 {
		t.Errorf("expected zero active sources after interrupt, got %d", engine.ActiveSources())
	}
	for i, p := range sink.scheduled() {
		if !p.stopped {
			t.Errorf("source %d was not stopped", i)
		}
	}

	// 打断后迟到的旧段块必须被丢弃
	engine.OnChunk(0, 5, chunkOf(5, 100*time.Millisecond), testFormat)
	if len(sink.scheduled()) != 4 {
		t.Errorf("stale chunk after interrupt must be dropped")
	}

	// 新的段可以正常播放
	if err := engine.OnChunk(1, 1, chunkOf(9, 100*time.Millisecond), testFormat); err != nil {
		t.Fatalf("new segment failed: %v", err)
	}
	if engine.ActiveSources() != 1 {
		t.Errorf("expected new segment to play, got %d active sources", engine.ActiveSources())
	}
}

func TestEngine_NewSegmentResetsReassembly(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	// 段0缺块2，块3一直暂存
	engine.OnChunk(0, 1, chunkOf(1, 100*time.Millisecond), testFormat)
	engine.OnChunk(0, 3, chunkOf(3, 100*time.Millisecond), testFormat)
	if engine.PendingChunks() != 1 {
		t.Fatalf("expected 1 pending chunk, got %d", engine.PendingChunks())
	}

	// 段1开始：旧段的暂存块不能阻塞新段
	engine.OnChunk(1, 1, chunkOf(7, 100*time.Millisecond), testFormat)
	if engine.PendingChunks() != 0 {
		t.Errorf("expected pending chunks cleared on new segment, got %d", engine.PendingChunks())
	}

	plays := sink.scheduled()
	last := plays[len(plays)-1]
	if last.pcm[0] != 7 {
		t.Errorf("expected new segment chunk to play, got %d", last.pcm[0])
	}
}

func TestEngine_NewSegmentHardStopsPreviousSources(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	// 段0排了两块长音频，都还没播完
	engine.OnChunk(0, 1, chunkOf(1, time.Second), testFormat)
	engine.OnChunk(0, 2, chunkOf(2, time.Second), testFormat)
	if engine.ActiveSources() != 2 {
		t.Fatalf("expected 2 active sources, got %d", engine.ActiveSources())
	}

	// 段1到来：新回复完全取代上一个回复
	if err := engine.OnChunk(1, 1, chunkOf(9, 100*time.Millisecond), testFormat); err != nil {
		t.Fatalf("new segment failed: %v", err)
	}

	plays := sink.scheduled()
	if len(plays) != 3 {
		t.Fatalf("expected 3 scheduled plays, got %d", len(plays))
	}
	for _, p := range plays[:2] {
		if !p.stopped {
			t.Errorf("segment 0 chunk %d must be hard-stopped when segment 1 starts", p.chunk)
		}
	}
	if plays[2].stopped {
		t.Error("new segment's source must not be stopped")
	}
	if engine.ActiveSources() != 1 {
		t.Errorf("expected only the new reply's source active, got %d", engine.ActiveSources())
	}
}

func TestEngine_SourcesExpireWithClock(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	engine := NewEngine("s1", clock, sink, testLogger(t))

	engine.OnChunk(0, 1, chunkOf(1, 100*time.Millisecond), testFormat)
	engine.OnChunk(0, 2, chunkOf(2, 100*time.Millisecond), testFormat)

	clock.advance(150 * time.Millisecond)
	if engine.ActiveSources() != 1 {
		t.Errorf("expected 1 source still active at 150ms, got %d", engine.ActiveSources())
	}
	clock.advance(100 * time.Millisecond)
	if engine.ActiveSources() != 0 {
		t.Errorf("expected all sources finished at 250ms, got %d", engine.ActiveSources())
	}
}

func TestEngine_RejectsZeroChunkIndex(t *testing.T) {
	engine := NewEngine("s1", &fakeClock{}, &fakeSink{}, testLogger(t))
	if err := engine.OnChunk(0, 0, chunkOf(1, 100*time.Millisecond), testFormat); err == nil {
		t.Fatal("expected rejection of chunk index 0")
	}
}

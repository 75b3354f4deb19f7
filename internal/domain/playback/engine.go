package playback

import (
	"sync"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/eventbus"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// Clock 单调音频时钟
type Clock interface {
	Now() time.Duration
}

type wallClock struct {
	start time.Time
}

func (c wallClock) Now() time.Duration { return time.Since(c.start) }

// NewWallClock 以当前时间为零点的时钟
func NewWallClock() Clock { return wallClock{start: time.Now()} }

// Source 一个已排期的播放源
type Source interface {
	Stop()
}

// Sink 播放输出端。Schedule在at时刻开始播放一块PCM并返回播放源句柄。
type Sink interface {
	Schedule(segmentIndex, chunkIndex int, pcm []byte, format audio.Format, at time.Duration) (Source, error)
}

// Engine 分块播放引擎。负责按段重组乱序到达的PCM块，
// 无缝排期连续播放，并支持打断时同步硬停所有活动源。
// 排期规则：每块起播时间取 max(当前时钟, 上一块结束时间)，
// 块间零间隙，时钟落后时也不会把起播时间排到过去。
type Engine struct {
	mu sync.Mutex

	sessionID string
	clock     Clock
	sink      Sink
	logger    *logging.Logger

	currentSegment int
	droppedSegment int
	buffer         *segmentBuffer
	nextStartTime  time.Duration
	active         []*activeSource
}

type activeSource struct {
	src    Source
	endsAt time.Duration
}

// NewEngine 创建播放引擎
func NewEngine(sessionID string, clock Clock, sink Sink, logger *logging.Logger) *Engine {
	return &Engine{
		sessionID:      sessionID,
		clock:          clock,
		sink:           sink,
		logger:         logger,
		currentSegment: -1,
		droppedSegment: -1,
	}
}

// OnChunk 接收一块下行PCM。segmentIndex切换时视为新的回复，重置重组状态。
// 乱序块先暂存，只有补齐缺口后才连同后续块一起排期。
func (e *Engine) OnChunk(segmentIndex, chunkIndex int, pcm []byte, format audio.Format) error {
	if chunkIndex < 1 {
		return platformerrors.New(platformerrors.KindAudio, "playback.OnChunk", "块序号必须从1开始")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 打断后迟到的旧段块直接丢弃
	if segmentIndex == e.droppedSegment {
		return nil
	}

	if segmentIndex != e.currentSegment || e.buffer == nil {
		e.startSegmentLocked(segmentIndex)
	}

	ready := e.buffer.add(chunkIndex, pcm)
	firstIndex := e.buffer.expectedNext - len(ready)
	for i, data := range ready {
		if err := e.scheduleLocked(segmentIndex, firstIndex+i, data, format); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) startSegmentLocked(segmentIndex int) {
	// 新回复完全取代上一个回复，旧段仍在播的源同步硬停
	if stopped := e.stopActiveLocked(); stopped > 0 {
		e.logger.InfoTag("播放", "段%d接管播放，硬停上一段%d个活动源", segmentIndex, stopped)
	}
	e.currentSegment = segmentIndex
	e.buffer = newSegmentBuffer()
	// 新的段从当前时刻起播，不继承上一段的排期尾部
	e.nextStartTime = 0
	eventbus.Publish(eventbus.EventPlaybackStarted, eventbus.PlaybackEventData{
		SessionID:    e.sessionID,
		SegmentIndex: segmentIndex,
	})
}

func (e *Engine) scheduleLocked(segmentIndex, chunkIndex int, pcm []byte, format audio.Format) error {
	now := e.clock.Now()
	start := e.nextStartTime
	if now > start {
		start = now
	}
	duration := format.Duration(len(pcm))

	src, err := e.sink.Schedule(segmentIndex, chunkIndex, pcm, format, start)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAudio, "playback.schedule", "排期播放失败", err)
	}

	e.active = append(e.active, &activeSource{src: src, endsAt: start + duration})
	e.nextStartTime = start + duration
	e.pruneLocked()
	return nil
}

// stopActiveLocked 硬停所有未播完的源，返回停止数量
func (e *Engine) stopActiveLocked() int {
	e.pruneLocked()
	stopped := len(e.active)
	for _, s := range e.active {
		s.src.Stop()
	}
	e.active = nil
	return stopped
}

// pruneLocked 清掉已经播完的源
func (e *Engine) pruneLocked() {
	now := e.clock.Now()
	kept := e.active[:0]
	for _, s := range e.active {
		if s.endsAt > now {
			kept = append(kept, s)
		}
	}
	e.active = kept
}

// OnSegmentEnd 段发送完毕。缺口未补齐的块只告警，不阻塞后续回复。
func (e *Engine) OnSegmentEnd(segmentIndex, totalChunks int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buffer == nil || segmentIndex != e.currentSegment {
		return
	}
	if stuck := e.buffer.end(totalChunks); len(stuck) > 0 {
		e.logger.WarnTag("播放", "段%d结束时仍有%d块未补齐缺口: %v", segmentIndex, len(stuck), stuck)
	}
	eventbus.Publish(eventbus.EventPlaybackFinished, eventbus.PlaybackEventData{
		SessionID:    e.sessionID,
		SegmentIndex: segmentIndex,
	})
}

// Interrupt 同步硬停所有活动源并清空重组状态。
// 返回时不再有任何排期中的播放，后到的旧段块一律丢弃。
func (e *Engine) Interrupt() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	stopped := e.stopActiveLocked()
	e.buffer = nil
	if e.currentSegment >= 0 {
		e.droppedSegment = e.currentSegment
	}
	e.currentSegment = -1
	e.nextStartTime = 0

	if stopped > 0 {
		e.logger.InfoTag("播放", "打断播放，停止%d个活动源", stopped)
	}
	eventbus.Publish(eventbus.EventPlaybackInterrupted, eventbus.PlaybackEventData{
		SessionID: e.sessionID,
	})
	return stopped
}

// ActiveSources 当前活动播放源数量
func (e *Engine) ActiveSources() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked()
	return len(e.active)
}

// IsPlaying 是否有未播完的源
func (e *Engine) IsPlaying() bool {
	return e.ActiveSources() > 0
}

// PendingChunks 当前暂存的乱序块数量
func (e *Engine) PendingChunks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buffer == nil {
		return 0
	}
	return e.buffer.pendingCount()
}

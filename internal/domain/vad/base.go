package vad

import (
	"sync"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/eventbus"
	"cuishou-server-go/internal/domain/vad/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
)

// Manager 把VAD检测器接到音频帧流上，检测到边沿时回调监听器并发布事件。
// SpeechStarted 的监听器会在 Feed 的调用栈里同步执行，
// 打断播放依赖这一点：回调返回时播放必须已经停止。
type Manager struct {
	mu        sync.Mutex
	sessionID string
	detector  inter.Detector

	onSpeechStarted func(inter.Result)
	onSpeechStopped func(inter.Result)

	now func() time.Time
}

// NewManager 创建VAD管理器
func NewManager(sessionID string, detector inter.Detector) *Manager {
	return &Manager{
		sessionID: sessionID,
		detector:  detector,
		now:       time.Now,
	}
}

// OnSpeechStarted 注册语音开始回调
func (m *Manager) OnSpeechStarted(fn func(inter.Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStarted = fn
}

// OnSpeechStopped 注册语音结束回调
func (m *Manager) OnSpeechStopped(fn func(inter.Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStopped = fn
}

// Feed 处理一帧PCM数据
func (m *Manager) Feed(chunk audio.Chunk) (inter.Result, error) {
	samples, err := audio.DecodeToFloat32(chunk.Data, chunk.Format.BitsPerSample)
	if err != nil {
		return inter.Result{}, platformerrors.Wrap(platformerrors.KindAudio, "vad.Feed", "解码PCM帧失败", err)
	}
	return m.FeedSamples(samples, chunk.Timestamp)
}

// FeedSamples 处理一帧浮点样本
func (m *Manager) FeedSamples(samples []float32, at time.Time) (inter.Result, error) {
	if at.IsZero() {
		at = m.now()
	}

	m.mu.Lock()
	detector := m.detector
	started := m.onSpeechStarted
	stopped := m.onSpeechStopped
	m.mu.Unlock()

	if detector == nil {
		return inter.Result{}, platformerrors.New(platformerrors.KindAudio, "vad.FeedSamples", "VAD检测器未设置")
	}

	edge, err := detector.ProcessFrame(samples, at)
	if err != nil {
		return inter.Result{}, err
	}

	result := inter.Result{
		Edge:   edge,
		Energy: audio.RMS(samples),
		At:     at.UnixMilli(),
	}

	switch edge {
	case inter.EdgeSpeechStarted:
		if started != nil {
			started(result)
		}
		eventbus.Publish(eventbus.EventSpeechStarted, eventbus.SpeechEventData{
			SessionID: m.sessionID,
			Energy:    result.Energy,
			AtMs:      result.At,
		})
	case inter.EdgeSpeechStopped:
		if stopped != nil {
			stopped(result)
		}
		eventbus.Publish(eventbus.EventSpeechStopped, eventbus.SpeechEventData{
			SessionID: m.sessionID,
			Energy:    result.Energy,
			AtMs:      result.At,
		})
	}

	return result, nil
}

// IsSpeaking 当前是否处于语音段内
func (m *Manager) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector == nil {
		return false
	}
	return m.detector.IsSpeaking()
}

// Reset 重置检测状态
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector != nil {
		m.detector.Reset()
	}
}

// Close 释放检测器资源
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector != nil {
		err := m.detector.Close()
		m.detector = nil
		return err
	}
	return nil
}

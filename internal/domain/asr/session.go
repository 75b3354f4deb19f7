package asr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuishou-server-go/internal/domain/asr/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// State 识别会话状态
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateActive
	StateStopping
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// 同文本最终结果在此窗口内视为重复
const finalDedupWindow = 2 * time.Second

// Session 一次流式识别会话。
// 上游就绪前到达的音频先积压，就绪后按序补发，一帧不丢。
// 每句话保证恰好产出一个最终结果，窗口内的重复最终结果被吞掉。
type Session struct {
	mu sync.Mutex

	id       string
	state    State
	provider inter.Provider
	logger   *logging.Logger

	startTimeout time.Duration
	pending      [][]byte

	onFinal func(text string, at time.Time)
	onError func(err error)

	lastFinalText string
	lastFinalAt   time.Time
	now           func() time.Time
}

// NewSession 创建识别会话
func NewSession(provider inter.Provider, startTimeout time.Duration, logger *logging.Logger) *Session {
	if startTimeout <= 0 {
		startTimeout = 10 * time.Second
	}
	s := &Session{
		id:           uuid.NewString(),
		state:        StateUninitialized,
		provider:     provider,
		logger:       logger,
		startTimeout: startTimeout,
		now:          time.Now,
	}
	provider.SetEventListener(s)
	return s
}

// ID 会话标识
func (s *Session) ID() string {
	return s.id
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnFinalTranscript 注册最终识别结果回调
func (s *Session) OnFinalTranscript(fn func(text string, at time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinal = fn
}

// OnSessionError 注册错误回调
func (s *Session) OnSessionError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Start 建立上游会话。返回时要么进入Active并已补发积压音频，
// 要么进入Failed。超时按启动失败处理。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return platformerrors.New(platformerrors.KindASR, "asr.Start",
			"会话状态不允许启动: "+state.String())
	}
	s.state = StateStarting
	s.mu.Unlock()

	s.logger.InfoTag("ASR", "启动识别会话 %s", s.id)

	startCtx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.provider.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.fail()
			return platformerrors.Wrap(platformerrors.KindASR, "asr.Start", "上游识别会话启动失败", err)
		}
	case <-startCtx.Done():
		s.fail()
		if ctx.Err() != nil {
			return platformerrors.Wrap(platformerrors.KindASR, "asr.Start", "识别会话启动被取消", ctx.Err())
		}
		return platformerrors.New(platformerrors.KindTimeout, "asr.Start", "识别会话启动超时")
	}

	// 就绪：补发启动期间积压的音频
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.state = StateActive
	s.mu.Unlock()

	if len(pending) > 0 {
		s.logger.InfoTag("ASR", "会话%s就绪，补发%d帧积压音频", s.id, len(pending))
	}
	for _, data := range pending {
		if err := s.provider.SendAudio(data); err != nil {
			s.fail()
			return platformerrors.Wrap(platformerrors.KindASR, "asr.Start", "补发积压音频失败", err)
		}
	}
	return nil
}

// Feed 发送一帧音频。Starting阶段积压，Active阶段直发，
// 其余状态丢弃并报错。
func (s *Session) Feed(data []byte) error {
	s.mu.Lock()
	state := s.state
	if state == StateStarting {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.pending = append(s.pending, buf)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	switch state {
	case StateActive:
		if err := s.provider.SendAudio(data); err != nil {
			return platformerrors.Wrap(platformerrors.KindASR, "asr.Feed", "发送音频失败", err)
		}
		return nil
	default:
		return platformerrors.New(platformerrors.KindASR, "asr.Feed",
			"会话状态不接收音频: "+state.String())
	}
}

// Stop 结束识别。上游会在连接内吐完剩余结果。
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateStarting {
		state := s.state
		s.mu.Unlock()
		if state == StateStopping || state == StateClosed {
			return nil
		}
		return platformerrors.New(platformerrors.KindASR, "asr.Stop",
			"会话状态不允许停止: "+state.String())
	}
	s.state = StateStopping
	s.mu.Unlock()

	err := s.provider.Stop()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if err != nil {
		return platformerrors.Wrap(platformerrors.KindASR, "asr.Stop", "停止识别失败", err)
	}
	s.logger.InfoTag("ASR", "识别会话%s已关闭", s.id)
	return nil
}

// Close 释放上游资源
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return s.provider.Close()
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// OnTranscript 实现inter.EventListener。只放行最终结果，
// 去重窗口内的相同文本只回调一次。
func (s *Session) OnTranscript(text string, isFinal bool) {
	if !isFinal || text == "" {
		return
	}

	s.mu.Lock()
	now := s.now()
	if text == s.lastFinalText && now.Sub(s.lastFinalAt) < finalDedupWindow {
		s.mu.Unlock()
		s.logger.DebugTag("ASR", "吞掉重复的最终结果: %s", text)
		return
	}
	s.lastFinalText = text
	s.lastFinalAt = now
	fn := s.onFinal
	s.mu.Unlock()

	if fn != nil {
		fn(text, now)
	}
}

// OnError 实现inter.EventListener
func (s *Session) OnError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()

	s.logger.ErrorTag("ASR", "识别会话%s出错: %v", s.id, err)
	if fn != nil {
		fn(platformerrors.Wrap(platformerrors.KindASR, "asr.OnError", "上游识别错误", err))
	}
}

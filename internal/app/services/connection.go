package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"cuishou-server-go/internal/domain/asr"
	"cuishou-server-go/internal/domain/asr/infrastructure/dashscope"
	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/domain/history"
	llminter "cuishou-server-go/internal/domain/llm/inter"
	"cuishou-server-go/internal/domain/playback"
	"cuishou-server-go/internal/domain/segmenter"
	"cuishou-server-go/internal/domain/session"
	ttsinter "cuishou-server-go/internal/domain/tts/inter"
	"cuishou-server-go/internal/domain/turn"
	"cuishou-server-go/internal/domain/vad"
	"cuishou-server-go/internal/domain/vad/energy"
	vadinter "cuishou-server-go/internal/domain/vad/inter"
	"cuishou-server-go/internal/platform/config"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
	"cuishou-server-go/internal/platform/observability"
	"cuishou-server-go/internal/protocol"
	"cuishou-server-go/internal/util"
)

// defaultCustomerID 演示模式下未指定客户时用的档案
const defaultCustomerID = "DEMO_001"

// ConnectionConfig 每条连接的装配参数。
// 提供方和存储在连接间共享，音频管线按连接独占。
type ConnectionConfig struct {
	Config       *config.Config
	Logger       *logging.Logger
	Sender       Sender
	SessionID    string
	Customers    *customer.Store
	HistoryStore history.Store
	LLMProvider  llminter.Provider
	TTSProvider  ttsinter.Provider
}

// ConnectionService 一条WebSocket连接的业务编排：
// 收上行消息，驱动VAD/ASR/轮次控制，推下行音频和状态
type ConnectionService struct {
	config    *config.Config
	logger    *logging.Logger
	sender    Sender
	sessionID string
	customers *customer.Store

	conversation *ConversationService
	engine       *playback.Engine
	machine      *session.Machine
	turns        *turn.Controller

	mu          sync.Mutex
	record      *customer.Record
	asrSession  *asr.Session
	vadManager  *vad.Manager
	seg         *segmenter.Segmenter
	opusDecoder *audio.OpusDecoder
	pumpCancel  context.CancelFunc
	timer       *observability.TurnTimer
	closed      bool
}

// NewConnectionService 组装一条连接的完整管线
func NewConnectionService(cfg *ConnectionConfig) (*ConnectionService, error) {
	s := &ConnectionService{
		config:    cfg.Config,
		logger:    cfg.Logger,
		sender:    cfg.Sender,
		sessionID: cfg.SessionID,
		customers: cfg.Customers,
	}

	s.engine = playback.NewEngine(cfg.SessionID, playback.NewWallClock(), NewWSSink(cfg.Sender), cfg.Logger)

	s.machine = session.NewMachine(cfg.SessionID, cfg.Logger, func(from, to session.State) {
		_ = cfg.Sender.SendMessage(protocol.SessionStatus{State: to.String()})
	})

	s.conversation = NewConversationService(&ConversationConfig{
		LLMProvider:  cfg.LLMProvider,
		TTSProvider:  cfg.TTSProvider,
		HistoryStore: cfg.HistoryStore,
		Engine:       s.engine,
		Sender:       cfg.Sender,
		Logger:       cfg.Logger,
		ChunkSize:    cfg.Config.Audio.ChunkSize,
		OutputFormat: audio.Format{
			SampleRate:    cfg.Config.Audio.OutputSampleRate,
			Channels:      1,
			BitsPerSample: 16,
		},
		MaxHistory: cfg.Config.Turn.MaxHistory,
		OnSpeaking: func() {
			_ = s.machine.TransitionTo(session.StateSpeaking)
		},
	})

	turns, err := turn.NewController(turn.Config{
		SessionID: cfg.SessionID,
		Timeout:   cfg.Config.Turn.Timeout,
		Logger:    cfg.Logger,
		Handler: func(ctx context.Context, round int, text string) error {
			timer := s.takeTimer()
			if timer == nil {
				timer = observability.NewTurnTimer()
			}
			return s.conversation.HandleTurn(ctx, round, text, timer)
		},
		OnTimeout: func(round int) {
			s.logger.WarnTag("对话", "[轮次 %d] 处理超时，播报致歉", round)
			s.conversation.Apology(round)
			_ = s.machine.TransitionTo(session.StateListening)
		},
	})
	if err != nil {
		return nil, err
	}
	s.turns = turns

	return s, nil
}

// HandleMessage 处理一条上行消息
func (s *ConnectionService) HandleMessage(ctx context.Context, data []byte) error {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		s.sendError(platformerrors.KindProtocol, "消息格式错误", true)
		return err
	}

	switch m := msg.(type) {
	case protocol.StartStreamingASR:
		return s.handleStartASR(ctx, m)
	case protocol.SendOpusChunk:
		return s.handleAudio(m)
	case protocol.StopStreamingASR:
		return s.handleStopASR()
	case protocol.ChatMessage:
		return s.handleChat(m)
	default:
		s.sendError(platformerrors.KindProtocol, "不支持的消息类型", true)
		return nil
	}
}

func (s *ConnectionService) handleStartASR(ctx context.Context, msg protocol.StartStreamingASR) error {
	customerID := msg.CustomerID
	if customerID == "" {
		customerID = defaultCustomerID
	}
	record, err := s.customers.Get(customerID)
	if err != nil {
		s.sendError(platformerrors.KindStorage, "客户档案不存在: "+customerID, true)
		return nil
	}

	s.mu.Lock()
	s.record = record
	s.mu.Unlock()
	s.conversation.SetSession(s.sessionID, record)
	s.logger.InfoTag("客户", "会话%s绑定客户 %s(%s)", s.sessionID, record.Name, record.CustomerID)

	// 重新开始识别时先拆掉旧管线
	s.teardownPipeline()

	recognizer, err := dashscope.NewRecognizer(dashscope.Config{
		APIKey:     s.config.ASR.APIKey,
		BaseURL:    s.config.ASR.BaseURL,
		Model:      s.config.ASR.Model,
		SampleRate: s.config.Audio.InputSampleRate,
		Format:     "pcm",
	}, s.logger)
	if err != nil {
		s.sendError(platformerrors.KindASR, "创建识别客户端失败", true)
		return err
	}

	asrSession := asr.NewSession(recognizer, s.config.ASR.StartTimeout, s.logger)
	asrSession.OnFinalTranscript(s.onFinalTranscript)
	asrSession.OnSessionError(func(err error) {
		s.sendError(platformerrors.KindOf(err), "语音识别出错", true)
	})
	if err := asrSession.Start(ctx); err != nil {
		s.sendError(platformerrors.KindOf(err), "识别会话启动失败", true)
		return err
	}

	detector, err := energy.NewDetector(vadinter.Config{
		EnergyThreshold: s.config.VAD.EnergyThreshold,
		Hangover:        s.config.VAD.Hangover,
		MinSpeechFrames: s.config.VAD.MinSpeechFrames,
	})
	if err != nil {
		_ = asrSession.Close()
		s.sendError(platformerrors.KindAudio, "创建VAD检测器失败", true)
		return err
	}

	vadManager := vad.NewManager(s.sessionID, detector)
	vadManager.OnSpeechStarted(s.onSpeechStarted)

	seg, err := segmenter.New(segmenter.Config{
		Mode:          segmenter.Mode(s.config.ASR.Segmentation),
		QueueCapacity: 256,
	}, s.logger)
	if err != nil {
		_ = asrSession.Close()
		_ = vadManager.Close()
		s.sendError(platformerrors.KindConfig, "创建分段器失败", true)
		return err
	}
	seg.OnUtterance(func(utt segmenter.Utterance) {
		if err := asrSession.Feed(utt.Bytes()); err != nil {
			s.logger.WarnTag("ASR", "转发整段语音失败: %v", err)
		}
	})
	vadManager.OnSpeechStopped(func(r vadinter.Result) {
		seg.EndUtterance(time.UnixMilli(r.At))
		s.markUtteranceEnd()
	})

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	go s.pumpAudio(pumpCtx, seg, asrSession)

	s.mu.Lock()
	s.asrSession = asrSession
	s.vadManager = vadManager
	s.seg = seg
	s.pumpCancel = pumpCancel
	s.mu.Unlock()

	_ = s.machine.TransitionTo(session.StateListening)
	return s.sender.SendMessage(protocol.ASRResult{
		SessionID: asrSession.ID(),
		Status:    "started",
	})
}

// pumpAudio 把分段器出站队列里的帧按序喂给识别会话
func (s *ConnectionService) pumpAudio(ctx context.Context, seg *segmenter.Segmenter, sess *asr.Session) {
	for {
		chunk, err := seg.Pop(ctx, 200*time.Millisecond)
		if err != nil {
			if errors.Is(err, util.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			continue
		}
		if err := sess.Feed(chunk.Data); err != nil {
			s.logger.WarnTag("ASR", "转发音频失败: %v", err)
		}
	}
}

func (s *ConnectionService) handleAudio(msg protocol.SendOpusChunk) error {
	s.mu.Lock()
	asrSession := s.asrSession
	vadManager := s.vadManager
	seg := s.seg
	s.mu.Unlock()

	if asrSession == nil {
		s.logger.DebugTag("ASR", "识别未启动，丢弃音频帧")
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.sendError(platformerrors.KindProtocol, "音频数据解码失败", true)
		return nil
	}

	pcm := data
	if msg.Format != "pcm" {
		pcm, err = s.decodeOpus(data)
		if err != nil {
			s.logger.WarnTag("ASR", "Opus解码失败，丢弃此帧: %v", err)
			return nil
		}
	}

	chunk := audio.Chunk{
		Data: pcm,
		Format: audio.Format{
			SampleRate:    s.config.Audio.InputSampleRate,
			Channels:      1,
			BitsPerSample: 16,
		},
		Timestamp: time.Now(),
	}

	if _, err := vadManager.Feed(chunk); err != nil {
		s.logger.WarnTag("VAD", "处理音频帧失败: %v", err)
	}
	return seg.OnChunk(chunk, vadManager.IsSpeaking())
}

func (s *ConnectionService) decodeOpus(packet []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opusDecoder == nil {
		decoder, err := audio.NewOpusDecoder(s.config.Audio.InputSampleRate, 1)
		if err != nil {
			return nil, err
		}
		s.opusDecoder = decoder
	}
	return s.opusDecoder.Decode(packet)
}

func (s *ConnectionService) handleStopASR() error {
	s.mu.Lock()
	asrSession := s.asrSession
	s.mu.Unlock()

	if asrSession == nil {
		return nil
	}
	if err := asrSession.Stop(); err != nil {
		s.logger.WarnTag("ASR", "停止识别失败: %v", err)
	}
	return s.sender.SendMessage(protocol.ASRResult{
		SessionID: asrSession.ID(),
		Status:    "completed",
	})
}

func (s *ConnectionService) handleChat(msg protocol.ChatMessage) error {
	if msg.CustomerID != "" {
		if record, err := s.customers.Get(msg.CustomerID); err == nil {
			s.mu.Lock()
			s.record = record
			s.mu.Unlock()
			s.conversation.SetSession(s.sessionID, record)
		}
	}

	if msg.Intent == protocol.IntentAgentGreeting {
		_ = s.machine.TransitionTo(session.StateGreeting)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Turn.Timeout)
			defer cancel()
			if err := s.conversation.Greeting(ctx, 0); err != nil {
				s.logger.ErrorTag("引导", "开场白播报失败: %v", err)
				s.sendError(platformerrors.KindOf(err), "开场白播报失败", true)
			}
		}()
		return nil
	}

	if msg.Text == "" {
		s.sendError(platformerrors.KindProtocol, "聊天消息缺少文本", true)
		return nil
	}

	timer := observability.NewTurnTimer()
	s.setTimer(timer)
	_ = s.machine.TransitionTo(session.StateThinking)
	if _, err := s.turns.Submit(msg.Text); err != nil {
		s.sendError(platformerrors.KindOf(err), "提交对话轮次失败", true)
	}
	return nil
}

// onSpeechStarted 客户开口：正在播报或正在生成时立即打断
func (s *ConnectionService) onSpeechStarted(r vadinter.Result) {
	if !s.engine.IsPlaying() && !s.turns.IsRunning() {
		return
	}

	dropped := s.engine.Interrupt()
	s.turns.Interrupt()
	s.logger.InfoTag("VAD", "客户插话，打断播放，停止%d个活动源", dropped)

	if s.machine.Current() == session.StateSpeaking {
		_ = s.machine.TransitionTo(session.StateInterrupted)
		_ = s.machine.TransitionTo(session.StateListening)
	}
}

// onFinalTranscript 一句话识别完成：回显给客户端并提交新轮次
func (s *ConnectionService) onFinalTranscript(text string, at time.Time) {
	_ = s.sender.SendMessage(protocol.UserSpeechRecognized{
		Text:      text,
		Timestamp: at.UnixMilli(),
	})

	// 计时起点在说完话那一刻，asr_ms 才是真实的识别耗时
	timer := s.takeTimer()
	if timer == nil {
		timer = observability.NewTurnTimer()
	}
	timer.MarkASRDone()
	s.setTimer(timer)

	if s.machine.Current() == session.StateSpeaking {
		s.engine.Interrupt()
		_ = s.machine.TransitionTo(session.StateInterrupted)
	}
	_ = s.machine.TransitionTo(session.StateThinking)

	if _, err := s.turns.Submit(text); err != nil {
		s.logger.ErrorTag("对话", "提交轮次失败: %v", err)
		s.sendError(platformerrors.KindOf(err), "提交对话轮次失败", true)
	}
}

// markUtteranceEnd 客户说完话，开始为这一轮计时
func (s *ConnectionService) markUtteranceEnd() {
	s.setTimer(observability.NewTurnTimer())
}

func (s *ConnectionService) setTimer(t *observability.TurnTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = t
}

func (s *ConnectionService) takeTimer() *observability.TurnTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.timer
	s.timer = nil
	return t
}

func (s *ConnectionService) sendError(kind platformerrors.Kind, message string, recoverable bool) {
	_ = s.sender.SendMessage(protocol.ErrorMessage{
		Kind:        string(kind),
		Message:     message,
		Recoverable: recoverable,
	})
}

// teardownPipeline 拆掉识别侧的管线，播报侧不受影响
func (s *ConnectionService) teardownPipeline() {
	s.mu.Lock()
	asrSession := s.asrSession
	vadManager := s.vadManager
	seg := s.seg
	pumpCancel := s.pumpCancel
	s.asrSession = nil
	s.vadManager = nil
	s.seg = nil
	s.pumpCancel = nil
	s.mu.Unlock()

	if pumpCancel != nil {
		pumpCancel()
	}
	if seg != nil {
		seg.Close()
	}
	if asrSession != nil {
		_ = asrSession.Close()
	}
	if vadManager != nil {
		_ = vadManager.Close()
	}
}

// Close 连接断开时的清理。落一条联系记录再归位
func (s *ConnectionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	record := s.record
	s.mu.Unlock()

	s.teardownPipeline()
	_ = s.turns.Close()
	s.engine.Interrupt()

	if record != nil {
		if err := s.customers.RecordContact(record.CustomerID); err != nil {
			s.logger.WarnTag("客户", "更新联系次数失败: %v", err)
		}
	}
	s.machine.Reset()
	s.logger.InfoTag("会话", "连接%s已清理", s.sessionID)
}

package services

import (
	"context"
	"sync"
	"time"

	"cuishou-server-go/internal/domain/audio"
	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/domain/history"
	domainllm "cuishou-server-go/internal/domain/llm"
	llminter "cuishou-server-go/internal/domain/llm/inter"
	"cuishou-server-go/internal/domain/playback"
	ttsinter "cuishou-server-go/internal/domain/tts/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
	"cuishou-server-go/internal/platform/observability"
	"cuishou-server-go/internal/protocol"
)

// systemRole 发给大模型的固定系统指令，完整话术在用户消息里
const systemRole = "你是专业的银行催收专员，必须使用中文回复。"

// apologyText 轮次超时的兜底话术
const apologyText = "不好意思，刚才系统处理慢了一些，您方便再说一遍吗？"

// ConversationService 处理一通电话里的对话流水线：
// 识别文本进来，经大模型生成回复，逐句合成后分块下发
type ConversationService struct {
	llmProvider  llminter.Provider
	ttsProvider  ttsinter.Provider
	historyStore history.Store
	engine       *playback.Engine
	sender       Sender
	logger       *logging.Logger

	chunkSize    int
	outputFormat audio.Format
	maxHistory   int
	onSpeaking   func()

	mutex      sync.RWMutex
	sessionID  string
	record     *customer.Record
	apologySeq int
}

// ConversationConfig 对话服务配置
type ConversationConfig struct {
	LLMProvider  llminter.Provider
	TTSProvider  ttsinter.Provider
	HistoryStore history.Store
	Engine       *playback.Engine
	Sender       Sender
	Logger       *logging.Logger
	ChunkSize    int
	OutputFormat audio.Format
	MaxHistory   int
	// OnSpeaking 每轮第一块音频排期前回调，用于切换会话状态
	OnSpeaking func()
}

// NewConversationService 创建对话服务
func NewConversationService(config *ConversationConfig) *ConversationService {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 3200
	}
	maxHistory := config.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 20
	}
	format := config.OutputFormat
	if format.SampleRate == 0 {
		format = audio.DefaultOutputFormat
	}

	return &ConversationService{
		llmProvider:  config.LLMProvider,
		ttsProvider:  config.TTSProvider,
		historyStore: config.HistoryStore,
		engine:       config.Engine,
		sender:       config.Sender,
		logger:       config.Logger,
		chunkSize:    chunkSize,
		outputFormat: format,
		maxHistory:   maxHistory,
		onSpeaking:   config.OnSpeaking,
	}
}

// SetSession 绑定会话和客户档案
func (s *ConversationService) SetSession(sessionID string, record *customer.Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessionID = sessionID
	s.record = record
}

func (s *ConversationService) session() (string, *customer.Record) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.sessionID, s.record
}

func (s *ConversationService) promptContext() domainllm.PromptContext {
	_, record := s.session()
	if record == nil {
		return domainllm.PromptContext{}
	}
	return domainllm.PromptContext{
		Name:             record.Name,
		Balance:          record.Balance,
		DaysOverdue:      record.DaysOverdue,
		PreviousContacts: record.PreviousContacts,
		RiskLevel:        record.RiskLevel,
		Scenario:         record.Scenario,
	}
}

// HandleTurn 处理一轮对话：取通话记录、调大模型、逐句合成下发
func (s *ConversationService) HandleTurn(ctx context.Context, round int, text string, timer *observability.TurnTimer) error {
	sessionID, record := s.session()
	s.logger.InfoTag("对话", "[轮次 %d] 客户: %s", round, text)

	recent, err := s.historyStore.Recent(ctx, sessionID, s.maxHistory)
	if err != nil {
		s.logger.WarnTag("对话", "读取通话记录失败: %v", err)
	}
	entries := make([]domainllm.HistoryEntry, len(recent))
	for i, entry := range recent {
		entries[i] = domainllm.HistoryEntry{Role: entry.Role, Text: entry.Text}
	}

	prompt := domainllm.BuildCollectionPrompt(s.promptContext(), entries, text)
	messages := []llminter.Message{
		{Role: "system", Content: systemRole},
		{Role: "user", Content: prompt},
	}

	if err := s.historyStore.Append(ctx, sessionID, history.Entry{
		Role: "user", Text: text, Timestamp: time.Now(),
	}); err != nil {
		s.logger.WarnTag("对话", "写入通话记录失败: %v", err)
	}

	stream, err := s.llmProvider.Stream(ctx, messages)
	if err != nil {
		return err
	}

	splitter := domainllm.NewSentenceSplitter()
	chunkIndex := 1
	full := ""

	for chunk := range stream {
		if chunk.Err != nil {
			return chunk.Err
		}
		if chunk.Content != "" {
			timer.MarkLLMFirstToken()
			full += chunk.Content
			for _, sentence := range splitter.Push(chunk.Content) {
				if err := s.speak(ctx, round, sentence, &chunkIndex, timer); err != nil {
					return err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	if tail := splitter.Flush(); tail != "" {
		if err := s.speak(ctx, round, tail, &chunkIndex, timer); err != nil {
			return err
		}
	}

	if full == "" {
		return platformerrors.New(platformerrors.KindLLM, "conversation.HandleTurn", "大模型没有返回内容")
	}

	totalChunks := chunkIndex - 1
	s.engine.OnSegmentEnd(round, totalChunks)
	if err := s.sender.SendMessage(protocol.PCMSegmentEnd{
		SegmentIndex: round,
		TotalChunks:  totalChunks,
	}); err != nil {
		return err
	}

	var customerID string
	if record != nil {
		customerID = record.CustomerID
	}
	if err := s.sender.SendMessage(protocol.TextResponse{Text: full, CustomerID: customerID}); err != nil {
		return err
	}

	if err := s.historyStore.Append(ctx, sessionID, history.Entry{
		Role: "assistant", Text: full, Timestamp: time.Now(),
	}); err != nil {
		s.logger.WarnTag("对话", "写入通话记录失败: %v", err)
	}

	metrics := timer.Finish()
	return s.sender.SendMessage(protocol.LatencyMetrics{
		ASRMs:           metrics.ASRMs,
		LLMFirstTokenMs: metrics.LLMFirstTokenMs,
		TTSFirstChunkMs: metrics.TTSFirstChunkMs,
		TotalMs:         metrics.TotalMs,
		Grade:           string(metrics.Grade),
	})
}

// Greeting 开场白不走大模型，直接用模板合成下发
func (s *ConversationService) Greeting(ctx context.Context, round int) error {
	sessionID, record := s.session()
	text := domainllm.BuildGreeting(s.promptContext())
	s.logger.InfoTag("引导", "[轮次 %d] 开场白: %s", round, text)

	timer := observability.NewTurnTimer()
	chunkIndex := 1
	if err := s.speak(ctx, round, text, &chunkIndex, timer); err != nil {
		return err
	}

	totalChunks := chunkIndex - 1
	s.engine.OnSegmentEnd(round, totalChunks)
	if err := s.sender.SendMessage(protocol.PCMSegmentEnd{
		SegmentIndex: round,
		TotalChunks:  totalChunks,
	}); err != nil {
		return err
	}

	var customerID string
	if record != nil {
		customerID = record.CustomerID
	}
	if err := s.sender.SendMessage(protocol.TextResponse{Text: text, CustomerID: customerID}); err != nil {
		return err
	}

	return s.historyStore.Append(ctx, sessionID, history.Entry{
		Role: "assistant", Text: text, Timestamp: time.Now(),
	})
}

// Apology 轮次超时后的致歉播报，用独立上下文避免被死掉的轮次拖住。
// 超时轮次可能已经往自己的段里排了部分音频，先硬停掉，
// 再用负的段号播致歉，避开轮次的段号空间。
func (s *ConversationService) Apology(round int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.engine.Interrupt()
	segment := s.nextApologySegment()

	timer := observability.NewTurnTimer()
	chunkIndex := 1
	if err := s.speak(ctx, segment, apologyText, &chunkIndex, timer); err != nil {
		s.logger.ErrorTag("对话", "[轮次 %d] 致歉播报失败: %v", round, err)
		return
	}
	totalChunks := chunkIndex - 1
	s.engine.OnSegmentEnd(segment, totalChunks)
	_ = s.sender.SendMessage(protocol.PCMSegmentEnd{SegmentIndex: segment, TotalChunks: totalChunks})
	_ = s.sender.SendMessage(protocol.TextResponse{Text: apologyText})
}

func (s *ConversationService) nextApologySegment() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.apologySeq--
	return s.apologySeq
}

// speak 合成一句并按固定块大小经播放引擎下发
func (s *ConversationService) speak(ctx context.Context, round int, sentence string, chunkIndex *int, timer *observability.TurnTimer) error {
	clean := domainllm.CleanForTTS(sentence)
	if clean == "" {
		return nil
	}

	result, err := s.ttsProvider.Synthesize(ctx, clean)
	if err != nil {
		return err
	}

	format := s.outputFormat
	if result.SampleRate > 0 {
		format.SampleRate = result.SampleRate
	}

	pcm := result.PCM
	for offset := 0; offset < len(pcm); offset += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + s.chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if *chunkIndex == 1 && s.onSpeaking != nil {
			s.onSpeaking()
		}
		timer.MarkTTSFirstChunk()
		if err := s.engine.OnChunk(round, *chunkIndex, pcm[offset:end], format); err != nil {
			return err
		}
		*chunkIndex++
	}
	return nil
}

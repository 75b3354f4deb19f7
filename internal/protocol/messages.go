package protocol

// WebSocket消息类型。入站与出站各自构成封闭集合，
// 未知类型在编解码边界直接拒绝。
const (
	// 客户端 -> 服务端
	TypeStartStreamingASR = "start_streaming_asr"
	TypeSendOpusChunk     = "send_opus_chunk"
	TypeStopStreamingASR  = "stop_streaming_asr"
	TypeChatMessage       = "chat_message"

	// 服务端 -> 客户端
	TypeASRResult            = "asr_result"
	TypeUserSpeechRecognized = "user_speech_recognized"
	TypePCMChunk             = "pcm_chunk"
	TypePCMSegmentEnd        = "pcm_segment_end"
	TypeTextResponse         = "text_response"
	TypeLatencyMetrics       = "latency_metrics"
	TypeSessionStatus        = "session_status"
	TypeError                = "error"
)

// Inbound 客户端入站消息
type Inbound interface {
	inboundType() string
}

// Outbound 服务端出站消息
type Outbound interface {
	outboundType() string
}

// StartStreamingASR 开始流式识别
type StartStreamingASR struct {
	CustomerID string `json:"customer_id,omitempty"`
}

func (StartStreamingASR) inboundType() string { return TypeStartStreamingASR }

// SendOpusChunk 上行音频块，audio_data为base64编码
type SendOpusChunk struct {
	AudioData string `json:"audio_data"`
	Format    string `json:"format,omitempty"`
}

func (SendOpusChunk) inboundType() string { return TypeSendOpusChunk }

// StopStreamingASR 结束流式识别
type StopStreamingASR struct{}

func (StopStreamingASR) inboundType() string { return TypeStopStreamingASR }

// ChatMessage 文本对话消息。Intent为agent_greeting时走开场白流程。
type ChatMessage struct {
	Text       string `json:"text"`
	Intent     string `json:"intent,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (ChatMessage) inboundType() string { return TypeChatMessage }

const IntentAgentGreeting = "agent_greeting"

// ASRResult 识别会话状态回执
type ASRResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

func (ASRResult) outboundType() string { return TypeASRResult }

// UserSpeechRecognized 一句话的最终识别结果
type UserSpeechRecognized struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (UserSpeechRecognized) outboundType() string { return TypeUserSpeechRecognized }

// PCMChunk 下行音频块。ChunkIndex从1开始，客户端按序重组。
type PCMChunk struct {
	SegmentIndex  int    `json:"segment_index"`
	ChunkIndex    int    `json:"chunk_index"`
	PCMData       string `json:"pcm_data"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
}

func (PCMChunk) outboundType() string { return TypePCMChunk }

// PCMSegmentEnd 一段音频发送完毕
type PCMSegmentEnd struct {
	SegmentIndex int `json:"segment_index"`
	TotalChunks  int `json:"total_chunks"`
}

func (PCMSegmentEnd) outboundType() string { return TypePCMSegmentEnd }

// TextResponse 助手文本回复
type TextResponse struct {
	Text       string `json:"text"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (TextResponse) outboundType() string { return TypeTextResponse }

// LatencyMetrics 单轮延迟指标
type LatencyMetrics struct {
	ASRMs           int64  `json:"asr_ms"`
	LLMFirstTokenMs int64  `json:"llm_first_token_ms"`
	TTSFirstChunkMs int64  `json:"tts_first_chunk_ms"`
	TotalMs         int64  `json:"total_ms"`
	Grade           string `json:"grade"`
}

func (LatencyMetrics) outboundType() string { return TypeLatencyMetrics }

// SessionStatus 会话状态通知
type SessionStatus struct {
	State string `json:"state"`
}

func (SessionStatus) outboundType() string { return TypeSessionStatus }

// ErrorMessage 错误通知。Recoverable为true时客户端无需断开。
type ErrorMessage struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (ErrorMessage) outboundType() string { return TypeError }

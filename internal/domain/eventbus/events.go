package eventbus

// 事件类型定义。订阅方约定：打断类事件必须用同步订阅，
// 保证Publish返回时打断已经生效。
const (
	// VAD相关事件
	EventSpeechStarted = "vad:speech_started"
	EventSpeechStopped = "vad:speech_stopped"

	// 播放相关事件
	EventPlaybackStarted     = "playback:started"
	EventPlaybackInterrupted = "playback:interrupted"
	EventPlaybackFinished    = "playback:finished"

	// 会话状态事件
	EventSessionStateChanged = "session:state_changed"

	// 对话轮次事件
	EventTurnStarted   = "turn:started"
	EventTurnCancelled = "turn:cancelled"
	EventTurnCompleted = "turn:completed"
)

// SpeechEventData VAD边沿事件数据
type SpeechEventData struct {
	SessionID string  `json:"session_id"`
	Energy    float64 `json:"energy"`
	AtMs      int64   `json:"at_ms"`
}

// PlaybackEventData 播放事件数据
type PlaybackEventData struct {
	SessionID    string `json:"session_id"`
	SegmentIndex int    `json:"segment_index"`
}

// SessionStateEventData 会话状态变更数据
type SessionStateEventData struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// TurnEventData 对话轮次事件数据
type TurnEventData struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Text      string `json:"text,omitempty"`
}

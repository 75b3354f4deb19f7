package inter

import "time"

// Edge 语音活动边沿
type Edge int

const (
	EdgeNone Edge = iota
	EdgeSpeechStarted
	EdgeSpeechStopped
)

func (e Edge) String() string {
	switch e {
	case EdgeSpeechStarted:
		return "speech_started"
	case EdgeSpeechStopped:
		return "speech_stopped"
	default:
		return "none"
	}
}

// Detector VAD检测器接口
type Detector interface {
	// ProcessFrame 处理一帧浮点样本，返回本帧触发的边沿
	ProcessFrame(samples []float32, now time.Time) (Edge, error)

	// IsSpeaking 当前是否处于语音段内
	IsSpeaking() bool

	// Reset 重置检测状态
	Reset()

	// Close 释放检测器资源
	Close() error

	// GetConfig 获取检测器配置
	GetConfig() Config
}

// Config VAD配置
type Config struct {
	// EnergyThreshold 判定有声的RMS能量阈值
	EnergyThreshold float64 `json:"energy_threshold"`
	// Hangover 语音结束前允许的静音时长
	Hangover time.Duration `json:"hangover"`
	// MinSpeechFrames 触发语音开始所需的连续有声帧数
	MinSpeechFrames int `json:"min_speech_frames"`
}

// Result 单帧检测结果
type Result struct {
	Edge   Edge    `json:"edge"`
	Energy float64 `json:"energy"`
	At     int64   `json:"at"`
}

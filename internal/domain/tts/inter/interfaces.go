package inter

import "context"

// Result 一次合成的音频结果，PCM为16位小端单声道
type Result struct {
	PCM        []byte
	SampleRate int
}

// Provider 语音合成接口
type Provider interface {
	// Synthesize 合成一句话，返回可直接下发的PCM
	Synthesize(ctx context.Context, text string) (*Result, error)

	// Close 释放合成资源
	Close() error
}

// Config 合成配置
type Config struct {
	Type       string `json:"type"`
	Voice      string `json:"voice"`
	OutputDir  string `json:"output_dir"`
	SampleRate int    `json:"sample_rate"`
	DeleteFile bool   `json:"delete_file"`
}

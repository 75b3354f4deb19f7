package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
			Auth: AuthConfig{
				Enabled: false,
			},
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			Port:      8080,
			StaticDir: "web/static",
			Websocket: "ws://your_ip:8000/ws",
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{
				Enabled: true,
				IP:      "0.0.0.0",
				Port:    8000,
			},
		},
		Audio: AudioConfig{
			InputSampleRate:  8000,
			OutputSampleRate: 24000,
			FrameDuration:    100 * time.Millisecond,
			// 8kHz 16bit 单声道，100ms = 1600样本 = 3200字节
			ChunkSize:     3200,
			SaveUserAudio: false,
		},
		VAD: VADConfig{
			EnergyThreshold: 0.01,
			Hangover:        1500 * time.Millisecond,
			MinSpeechFrames: 2,
		},
		ASR: ASRConfig{
			Model:        "paraformer-realtime-8k-v2",
			BaseURL:      "wss://dashscope.aliyuncs.com/api-ws/v1/inference",
			StartTimeout: 10 * time.Second,
			Segmentation: "continuous",
		},
		LLM: LLMConfig{
			Type:        "openai",
			ModelName:   "qwen-plus",
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Temperature: 0.7,
			MaxTokens:   512,
		},
		TTS: TTSConfig{
			Type:       "edge",
			Voice:      "zh-CN-XiaoxiaoNeural",
			OutputDir:  "data/tmp/",
			SampleRate: 24000,
			DeleteFile: true,
		},
		Turn: TurnConfig{
			Timeout:    25 * time.Second,
			MaxHistory: 20,
		},
		Customer: CustomerConfig{
			DSN:  "data/customers.db",
			Seed: true,
		},
		History: HistoryConfig{
			Type: "memory",
		},
	}
}

package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Web       WebConfig       `yaml:"web" mapstructure:"web"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Audio     AudioConfig     `yaml:"audio" mapstructure:"audio"`
	VAD       VADConfig       `yaml:"vad" mapstructure:"vad"`
	ASR       ASRConfig       `yaml:"asr" mapstructure:"asr"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	TTS       TTSConfig       `yaml:"tts" mapstructure:"tts"`
	Turn      TurnConfig      `yaml:"turn" mapstructure:"turn"`
	Customer  CustomerConfig  `yaml:"customer" mapstructure:"customer"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	IP   string     `yaml:"ip" mapstructure:"ip"`
	Port int        `yaml:"port" mapstructure:"port"`
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`
}

// AuthConfig 可选的WS令牌校验，演示模式默认关闭
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Port      int    `yaml:"port" mapstructure:"port"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
	Websocket string `yaml:"websocket" mapstructure:"websocket"`
}

// TransportConfig 传输层配置
type TransportConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	IP      string `yaml:"ip" mapstructure:"ip"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

// AudioConfig 音频管线配置
type AudioConfig struct {
	// 入站ASR采样率，paraformer-realtime-8k 固定8kHz
	InputSampleRate int `yaml:"input_sample_rate" mapstructure:"input_sample_rate"`
	// 出站TTS PCM采样率
	OutputSampleRate int `yaml:"output_sample_rate" mapstructure:"output_sample_rate"`
	// 每帧时长
	FrameDuration time.Duration `yaml:"frame_duration" mapstructure:"frame_duration"`
	// pcm_chunk 载荷大小（字节）
	ChunkSize     int  `yaml:"chunk_size" mapstructure:"chunk_size"`
	SaveUserAudio bool `yaml:"save_user_audio" mapstructure:"save_user_audio"`
}

// VADConfig 能量VAD配置
type VADConfig struct {
	EnergyThreshold float64       `yaml:"energy_threshold" mapstructure:"energy_threshold"`
	Hangover        time.Duration `yaml:"hangover" mapstructure:"hangover"`
	MinSpeechFrames int           `yaml:"min_speech_frames" mapstructure:"min_speech_frames"`
}

type ASRConfig struct {
	Model        string        `yaml:"model" mapstructure:"model"`
	APIKey       string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string        `yaml:"url" mapstructure:"url"`
	StartTimeout time.Duration `yaml:"start_timeout" mapstructure:"start_timeout"`
	Segmentation string        `yaml:"segmentation" mapstructure:"segmentation"`
}

type LLMConfig struct {
	Type        string  `yaml:"type" mapstructure:"type"`
	ModelName   string  `yaml:"model_name" mapstructure:"model_name"`
	BaseURL     string  `yaml:"url" mapstructure:"url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TopP        float64 `yaml:"top_p" mapstructure:"top_p"`
}

type TTSConfig struct {
	Type       string `yaml:"type" mapstructure:"type"`
	Voice      string `yaml:"voice" mapstructure:"voice"`
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	DeleteFile bool   `yaml:"delete_file" mapstructure:"delete_file"`
}

// TurnConfig 对话轮次配置
type TurnConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxHistory int           `yaml:"max_history" mapstructure:"max_history"`
}

type CustomerConfig struct {
	DSN  string `yaml:"dsn" mapstructure:"dsn"`
	Seed bool   `yaml:"seed" mapstructure:"seed"`
}

// HistoryConfig 对话历史存储配置
type HistoryConfig struct {
	Type   string             `yaml:"type" mapstructure:"type"`
	Redis  HistoryRedisStore  `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite HistorySQLiteStore `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type HistoryRedisStore struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type HistorySQLiteStore struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

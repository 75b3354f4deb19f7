package inter

import "context"

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk 流式回复的一段增量
type Chunk struct {
	Content string
	Done    bool
	Err     error
}

// Provider 大模型对话接口
type Provider interface {
	// Stream 流式生成回复，通道在Done或Err后关闭
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)

	// Close 释放底层客户端
	Close() error
}

// Config 大模型配置
type Config struct {
	Type        string  `json:"type"`
	ModelName   string  `json:"model_name"`
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

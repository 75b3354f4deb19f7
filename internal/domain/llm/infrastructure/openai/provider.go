package openai

import (
	"context"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"cuishou-server-go/internal/domain/llm/inter"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// Provider 基于openai兼容接口的流式对话客户端。
// DashScope的compatible-mode与官方API走同一协议，只换BaseURL。
type Provider struct {
	config inter.Config
	client *openai.Client
	logger *logging.Logger

	mutex  sync.Mutex
	closed bool
}

// NewProvider 创建对话客户端
func NewProvider(config inter.Config, logger *logging.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "openai.NewProvider", "缺少api_key配置")
	}
	if config.ModelName == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "openai.NewProvider", "缺少model_name配置")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Stream 发起流式对话，增量内容经通道送出，通道保证关闭
func (p *Provider) Stream(ctx context.Context, messages []inter.Message) (<-chan inter.Chunk, error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, platformerrors.New(platformerrors.KindLLM, "openai.Stream", "客户端已关闭")
	}
	p.mutex.Unlock()

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	request := openai.ChatCompletionRequest{
		Model:       p.config.ModelName,
		Messages:    chatMessages,
		Stream:      true,
		MaxTokens:   p.config.MaxTokens,
		Temperature: float32(p.config.Temperature),
		TopP:        float32(p.config.TopP),
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindLLM, "openai.Stream", "创建流式请求失败", err)
	}

	out := make(chan inter.Chunk, 10)

	go func() {
		defer close(out)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err == io.EOF {
				out <- inter.Chunk{Done: true}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					// 调用方取消，静默收尾
					return
				}
				p.logger.ErrorTag("LLM", "流式接收失败: %v", err)
				out <- inter.Chunk{
					Err:  platformerrors.Wrap(platformerrors.KindLLM, "openai.Stream", "流式接收失败", err),
					Done: true,
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			chunk := inter.Chunk{
				Content: choice.Delta.Content,
				Done:    choice.FinishReason != "",
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

// Close 标记客户端不可再用
func (p *Provider) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cuishou-server-go/internal/domain/eventbus"
	platformerrors "cuishou-server-go/internal/platform/errors"
	"cuishou-server-go/internal/platform/logging"
)

// Handler 执行一轮对话：识别文本进，LLM/TTS流水线出。
// ctx取消时必须尽快返回
type Handler func(ctx context.Context, round int, text string) error

// Config 轮次控制配置
type Config struct {
	SessionID string
	Timeout   time.Duration
	Handler   Handler
	// OnTimeout 本轮超时后的兜底动作，比如播报致歉话术
	OnTimeout func(round int)
	Logger    *logging.Logger
}

// Controller 保证同一会话任意时刻只有一轮对话在跑。
// 新一轮提交或客户插话都走Interrupt取消当前轮，没有第二条取消路径
type Controller struct {
	sessionID string
	timeout   time.Duration
	handler   Handler
	onTimeout func(round int)
	logger    *logging.Logger

	round int32

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewController 创建轮次控制器
func NewController(config Config) (*Controller, error) {
	if config.Handler == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "turn.NewController", "缺少轮次处理函数")
	}
	if config.Timeout <= 0 {
		config.Timeout = 25 * time.Second
	}

	return &Controller{
		sessionID: config.SessionID,
		timeout:   config.Timeout,
		handler:   config.Handler,
		onTimeout: config.OnTimeout,
		logger:    config.Logger,
	}, nil
}

// Submit 启动新的一轮对话。已有轮次在跑时先取消并等它退出，
// 返回新轮次编号
func (c *Controller) Submit(text string) (int, error) {
	c.Interrupt()

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return 0, platformerrors.New(platformerrors.KindInternal, "turn.Submit", "控制器已关闭")
	}

	round := int(atomic.AddInt32(&c.round, 1))
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mutex.Unlock()

	eventbus.Publish(eventbus.EventTurnStarted, eventbus.TurnEventData{
		SessionID: c.sessionID,
		Round:     round,
		Text:      text,
	})

	go c.run(ctx, cancel, done, round, text)
	return round, nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, round int, text string) {
	defer close(done)
	defer cancel()

	err := c.handler(ctx, round, text)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.logger.WarnTag("会话", "第%d轮处理超时(%v)", round, c.timeout)
		if c.onTimeout != nil {
			c.onTimeout(round)
		}
		eventbus.Publish(eventbus.EventTurnCancelled, eventbus.TurnEventData{
			SessionID: c.sessionID,
			Round:     round,
			Text:      text,
		})
	case errors.Is(ctx.Err(), context.Canceled):
		c.logger.InfoTag("会话", "第%d轮被打断", round)
		eventbus.Publish(eventbus.EventTurnCancelled, eventbus.TurnEventData{
			SessionID: c.sessionID,
			Round:     round,
			Text:      text,
		})
	case err != nil:
		c.logger.ErrorTag("会话", "第%d轮处理失败: %v", round, err)
	default:
		eventbus.Publish(eventbus.EventTurnCompleted, eventbus.TurnEventData{
			SessionID: c.sessionID,
			Round:     round,
			Text:      text,
		})
	}
}

// Interrupt 取消当前轮并等它退出，返回是否真的打断了一轮。
// 客户插话和新轮提交都复用这一条路径
func (c *Controller) Interrupt() bool {
	c.mutex.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mutex.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// IsRunning 当前是否有轮次在跑
func (c *Controller) IsRunning() bool {
	c.mutex.Lock()
	done := c.done
	c.mutex.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// CurrentRound 已提交的最大轮次编号
func (c *Controller) CurrentRound() int {
	return int(atomic.LoadInt32(&c.round))
}

// Close 打断当前轮并拒绝后续提交
func (c *Controller) Close() error {
	c.Interrupt()
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	return nil
}

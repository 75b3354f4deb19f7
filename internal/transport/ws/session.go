package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cuishou-server-go/internal/app/services"
	"cuishou-server-go/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// Session 一条WebSocket连接的生命周期：
// 读循环把上行消息交给业务服务，退出时统一清理
type Session struct {
	id      string
	service *services.ConnectionService
	conn    *Connection
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession 创建受管会话
func NewSession(parent context.Context, service *services.ConnectionService, conn *Connection, logger *logging.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:      conn.ID(),
		service: service,
		conn:    conn,
		logger:  logger,
		ctx:     sessionCtx,
		cancel:  cancel,
	}
}

// Context 会话上下文
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID 会话标识
func (s *Session) ID() string {
	return s.id
}

// Run 执行读循环，退出后触发onDone
func (s *Session) Run(onDone func(error)) {
	var runErr error
	defer func() {
		s.Close(runErr)
		if onDone != nil {
			onDone(runErr)
		}
	}()

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if s.ctx.Err() == nil && !s.conn.IsClosed() {
				runErr = err
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.service.HandleMessage(s.ctx, payload); err != nil {
			s.logger.WarnTag("WebSocket", "会话%s处理消息失败: %v", s.id, err)
		}
	}
}

// Close 尽力优雅地结束会话
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if s.cancel != nil {
		s.cancel(reason)
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, reason)
	defer cancel()

	if s.service != nil {
		done := make(chan struct{})
		go func() {
			s.service.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			if s.logger != nil {
				s.logger.WarnTag("WebSocket", "会话%s业务清理超时: %v", s.id, context.Cause(shutdownCtx))
			}
		}
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil && s.logger != nil {
			s.logger.WarnTag("WebSocket", "会话%s关闭连接失败: %v", s.id, err)
		}
	}
}

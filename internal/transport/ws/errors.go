package ws

import "errors"

var (
	// ErrHandshakeTimeout 握手超过配置的时限
	ErrHandshakeTimeout = errors.New("websocket handshake timed out")
	// ErrSessionShutdown 服务端主动要求会话关闭
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrUnauthorized 令牌校验失败
	ErrUnauthorized = errors.New("websocket token rejected")
)

package ws

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cuishou-server-go/internal/app/services"
	"cuishou-server-go/internal/platform/logging"
	"cuishou-server-go/internal/platform/observability"
)

// ServiceBuilder 为升级成功的连接构建业务服务。
// sender即连接本身，下行消息直接写回这条连接。
type ServiceBuilder func(sessionID string, sender services.Sender) (*services.ConnectionService, error)

// Router 把HTTP请求升级为WebSocket会话
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	authEnabled      bool
	authSecret       string
	builder          atomic.Value // ServiceBuilder
}

// RouterOptions 路由配置
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	// AuthEnabled 开启后握手前校验JWT令牌，演示模式默认关闭
	AuthEnabled bool
	AuthSecret  string
}

// NewRouter 创建WebSocket路由
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
		authEnabled:      opts.AuthEnabled,
		authSecret:       opts.AuthSecret,
	}
}

// SetServiceBuilder 注册业务服务构建回调
func (r *Router) SetServiceBuilder(builder ServiceBuilder) {
	r.builder.Store(builder)
}

// Handle 升级连接并启动新会话
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(ServiceBuilder)

	if r.authEnabled {
		if err := r.verifyToken(req); err != nil {
			if r.logger != nil {
				r.logger.WarnTag("WebSocket", "令牌校验失败: %v", err)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ctx := req.Context()
	handshakeCtx, cancel := context.WithTimeoutCause(ctx, r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.upgrade.error", 1, map[string]string{
			"component": "transport.websocket",
		})
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "握手失败: %v", err)
		}
		return
	}

	sessionID := resolveSessionID(req)
	if r.logger != nil {
		r.logger.InfoTag("WebSocket", "建立连接 session=%s remote=%s", sessionID, req.RemoteAddr)
	}

	wsConn := NewConnection(sessionID, conn)
	service, err := builder(sessionID, wsConn)
	if err != nil || service == nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.connection.error", 1, map[string]string{
			"component": "transport.websocket",
			"reason":    "service_creation_failed",
		})
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "创建连接服务失败: %v", err)
		}
		_ = wsConn.Close()
		return
	}

	session := NewSession(context.Background(), service, wsConn, r.logger)
	r.hub.Register(session)

	observability.RecordMetric(spanCtx, "websocket.connection.opened", 1, map[string]string{
		"component":  "transport.websocket",
		"session_id": sessionID,
	})

	go session.Run(func(runErr error) {
		r.hub.Unregister(session.ID())
		if runErr != nil && r.logger != nil {
			r.logger.WarnTag("WebSocket", "会话 %s 异常结束: %v", session.ID(), runErr)
		}
		observability.RecordMetric(session.Context(), "websocket.connection.closed", 1, map[string]string{
			"component":  "transport.websocket",
			"session_id": sessionID,
		})
	})
}

// verifyToken 校验JWT令牌，支持查询参数和Bearer头两种携带方式
func (r *Router) verifyToken(req *http.Request) error {
	raw := req.URL.Query().Get("token")
	if raw == "" {
		auth := req.Header.Get("Authorization")
		raw = strings.TrimPrefix(auth, "Bearer ")
	}
	if raw == "" {
		return ErrUnauthorized
	}

	_, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return []byte(r.authSecret), nil
	})
	return err
}

func resolveSessionID(req *http.Request) string {
	if id := req.URL.Query().Get("client-id"); id != "" {
		return id
	}
	if id := req.Header.Get("Client-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

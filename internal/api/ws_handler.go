package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"ctonjob/internal/auth"
	"ctonjob/internal/errcode"
	"ctonjob/internal/events"
)

const (
	wsAuthWait   = 10 * time.Second
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

// WsHandler 把 user_notify:<id> 频道上的站内通知推送给已鉴权的 WebSocket 客户端。
type WsHandler struct {
	redis    redis.UniversalClient
	tokens   *auth.AuthService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(client redis.UniversalClient, tokens *auth.AuthService, logger *slog.Logger, origins []string) *WsHandler {
	return &WsHandler{
		redis:    client,
		tokens:   tokens,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(origins)},
	}
}

// originChecker 允许没有 Origin 的客户端和配置的前端域名；未配置时只接受同源。
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			_, ok := allowed[origin]
			return ok
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsReject is an authentication failure carrying the close frame to send.
type wsReject struct {
	code   int
	reason string
	err    error
}

func (e *wsReject) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *wsReject) Unwrap() error { return e.err }

func reject(reason string, err error) *wsReject {
	return &wsReject{code: websocket.ClosePolicyViolation, reason: reason, err: err}
}

// HandleConnection 升级连接，完成首条消息鉴权后开始推送通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "internal error"
		var rej *wsReject
		if errors.As(err, &rej) {
			code, reason = rej.code, rej.reason
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.String("user_id", userID))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := h.stream(ctx, conn, userID, log); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// authenticate 读取首条消息：必须是 {"type":"auth","token":...}，且为无需改密的 access token。
func (h *WsHandler) authenticate(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthWait))

	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return "", reject("invalid auth payload", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return "", reject("auth required", errors.New("first message must be an auth message"))
	}

	claims, err := h.tokens.ValidateToken(msg.Token)
	switch {
	case err != nil:
		return "", reject("unauthorized", err)
	case claims.TokenType != auth.TokenTypeAccess:
		return "", reject("access token required", fmt.Errorf("token type %q", claims.TokenType))
	case claims.MustChangePassword:
		return "", reject("password change required", errors.New("password change pending"))
	}
	return claims.UserID, nil
}

// stream 订阅用户频道并原样转发消息，直到客户端断开或 ctx 结束。
func (h *WsHandler) stream(ctx context.Context, conn *websocket.Conn, userID string, log *slog.Logger) error {
	channel := events.ChannelFor(userID)
	sub := h.redis.Subscribe(ctx, channel)
	defer sub.Close()

	// 订阅确认之后再发送 connected，客户端收到它即可依赖后续推送
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(events.Notification{Type: "connected", ErrorCode: errcode.OK}); err != nil {
		return fmt.Errorf("write welcome: %w", err)
	}

	// 客户端不再发送业务消息；读协程只处理 pong 与关闭帧
	gone := make(chan error, 1)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				gone <- err
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-gone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case msg, ok := <-messages:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
			log.Debug("notification forwarded", slog.String("channel", channel))
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/middleware"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/gorilla/websocket"
)

const eventTimeout = 10 * time.Second

// ChatService services.ChatService が満たす
type ChatService interface {
	CreateMessage(ctx context.Context, senderID, conversationID, content, messageType string) (*models.Message, error)
	MarkConversationAsRead(ctx context.Context, viewerID, conversationID string) (*models.Conversation, time.Time, error)
}

// UserLookup userId クエリでの接続用
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// MessageLimiter middleware.RateLimiter が満たす
type MessageLimiter interface {
	AllowMessage(userID string) bool
}

type Options struct {
	Chat     ChatService
	Auth     middleware.Authenticator
	Users    UserLookup
	Limiter  MessageLimiter
	Metrics  *metrics.Collector
	Registry *Registry
	Config   config.Chat
}

// Gateway チャットのリアルタイム配信
type Gateway struct {
	chat     ChatService
	auth     middleware.Authenticator
	users    UserLookup
	limiter  MessageLimiter
	metrics  *metrics.Collector
	registry *Registry
	cfg      config.Chat
	upgrader websocket.Upgrader
}

func New(opts Options) *Gateway {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Config.PingInterval <= 0 {
		opts.Config.PingInterval = 30 * time.Second
	}
	return &Gateway{
		chat:     opts.Chat,
		auth:     opts.Auth,
		users:    opts.Users,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		registry: opts.Registry,
		cfg:      opts.Config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) Registry() *Registry { return g.registry }

// ServeHTTP GET /ws
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	user, err := g.resolveUser(r)
	if err != nil {
		g.reject(conn, err)
		return
	}

	client := newClient(conn, user.ID, user.FullName, g.cfg.SendBuffer)
	g.registry.Add(client)
	g.metrics.WSConnected()
	slog.Info("websocket connected", slog.String("user_id", user.ID), slog.String("conn_id", client.id))
	g.broadcast(EventUserStatus, UserStatus{UserID: user.ID, IsOnline: true})

	go client.writePump(g.cfg.PingInterval)
	go client.readPump(g.cfg.PingInterval*2, g.handleFrame, g.disconnect)
}

// resolveUser token クエリ / Bearer ヘッダー、なければ userId クエリ
func (g *Gateway) resolveUser(r *http.Request) (*models.User, error) {
	ctx, cancel := context.WithTimeout(r.Context(), eventTimeout)
	defer cancel()

	q := r.URL.Query()
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		token = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token != "" && g.auth != nil {
		return g.auth.Authenticate(ctx, token)
	}
	if id := strings.TrimSpace(q.Get("userId")); id != "" && g.cfg.AllowQueryID && g.users != nil {
		user, err := g.users.GetByID(ctx, id)
		if err != nil {
			return nil, apperrors.Unauthorized("Unknown user")
		}
		return user, nil
	}
	return nil, apperrors.Unauthorized("Authentication required")
}

func (g *Gateway) reject(conn *websocket.Conn, err error) {
	defer conn.Close()
	msg, _ := encode(EventError, errorData{Error: apperrors.PublicMessage(err)})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if werr := conn.WriteMessage(websocket.TextMessage, msg); werr != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
}

func (g *Gateway) disconnect(c *Client) {
	c.close()
	removed, last := g.registry.Remove(c)
	if !removed {
		return
	}
	g.metrics.WSDisconnected()
	slog.Info("websocket disconnected", slog.String("user_id", c.userID), slog.String("conn_id", c.id))
	if last {
		g.broadcast(EventUserStatus, UserStatus{UserID: c.userID, IsOnline: false})
	}
}

// Shutdown 全接続を閉じる
func (g *Gateway) Shutdown() {
	for _, c := range g.registry.All() {
		g.disconnect(c)
	}
}

func (g *Gateway) handleFrame(c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		g.sendTo(c, EventError, errorData{Error: "Invalid message format"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch in.Event {
	case EventSendMessage:
		g.onSendMessage(ctx, c, in.Data)
	case EventMarkRead:
		g.onMarkRead(ctx, c, in.Data)
	default:
		g.sendTo(c, EventError, errorData{Error: "Unknown event: " + in.Event})
	}
}

func (g *Gateway) onSendMessage(ctx context.Context, c *Client, raw json.RawMessage) {
	var data sendMessageData
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		g.sendTo(c, EventErrorMessage, conversationError{ConversationID: data.ConversationID, Error: "conversationId and content are required"})
		return
	}
	if g.limiter != nil && !g.limiter.AllowMessage(c.userID) {
		g.sendTo(c, EventErrorMessage, conversationError{ConversationID: data.ConversationID, Error: "Too many messages. Please slow down."})
		return
	}

	msg, err := g.chat.CreateMessage(ctx, c.userID, data.ConversationID, data.Content, data.MessageType)
	if err != nil {
		logEventError(EventSendMessage, c, err)
		g.sendTo(c, EventErrorMessage, conversationError{ConversationID: data.ConversationID, Error: apperrors.PublicMessage(err)})
		return
	}
	g.metrics.MessageCreated("websocket")
	g.DeliverMessage(msg)
}

// DeliverMessage 送信者の全接続に message_sent、相手がオンラインなら new_message を送る。
// REST のメッセージ送信からも呼ばれる
func (g *Gateway) DeliverMessage(msg *models.Message) {
	payload := newMessagePayload(msg)
	if payload.SenderID != "" {
		g.sendToUser(payload.SenderID, EventMessageSent, payload)
	}
	if msg.Conversation != nil && payload.SenderID != "" {
		g.sendToUser(msg.Conversation.PartnerID(payload.SenderID), EventNewMessage, payload)
	}
}

func (g *Gateway) onMarkRead(ctx context.Context, c *Client, raw json.RawMessage) {
	var data markReadData
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		g.sendTo(c, EventErrorRead, conversationError{ConversationID: data.ConversationID, Error: "conversationId is required"})
		return
	}

	conv, readAt, err := g.chat.MarkConversationAsRead(ctx, c.userID, data.ConversationID)
	if err != nil {
		logEventError(EventMarkRead, c, err)
		g.sendTo(c, EventErrorRead, conversationError{ConversationID: data.ConversationID, Error: apperrors.PublicMessage(err)})
		return
	}
	g.sendToUser(conv.PartnerID(c.userID), EventConversationRead, ConversationRead{
		ConversationID: conv.ID,
		ReaderID:       c.userID,
		ReadAt:         readAt,
	})
	g.sendToUser(c.userID, EventReadSyncSuccess, readSync{ConversationID: conv.ID})
}

func logEventError(event string, c *Client, err error) {
	level := slog.LevelWarn
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, "websocket event failed",
		slog.String("event", event),
		slog.String("user_id", c.userID),
		slog.Any("error", err),
	)
}

func (g *Gateway) sendTo(c *Client, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		slog.Error("encode websocket event", slog.String("event", event), slog.Any("error", err))
		return
	}
	g.deliver(c, msg)
}

func (g *Gateway) sendToUser(userID, event string, data interface{}) {
	clients := g.registry.ClientsOf(userID)
	if len(clients) == 0 {
		return
	}
	msg, err := encode(event, data)
	if err != nil {
		slog.Error("encode websocket event", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, c := range clients {
		g.deliver(c, msg)
	}
}

func (g *Gateway) broadcast(event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		slog.Error("encode websocket event", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, c := range g.registry.All() {
		g.deliver(c, msg)
	}
}

// deliver 送信バッファが溢れたクライアントは切断する
func (g *Gateway) deliver(c *Client, msg []byte) {
	if c.enqueue(msg) || c.closed() {
		return
	}
	slog.Warn("websocket send buffer full, dropping client", slog.String("user_id", c.userID), slog.String("conn_id", c.id))
	go g.disconnect(c)
}

// Package live serves the chat log over a websocket for clients that keep a
// connection open instead of polling.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/transport-university/chatbot/backend/internal/middleware"
	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	chatservice "github.com/transport-university/chatbot/backend/internal/service/chat"
	"github.com/transport-university/chatbot/backend/internal/store"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Inbound frame types.
const (
	TypeSend    = "send"
	TypeHistory = "history"
	TypeDelete  = "delete"
)

// Outgoing frame types.
const (
	TypeConnected = "connected"
	TypeReply     = "reply"
	TypePage      = "page"
	TypeDeleted   = "deleted"
	TypeError     = "error"
)

// WebSocketHandler serves send, history and delete over one connection.
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	catalogs locale.Store
	metrics  *middleware.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the live handler.
func NewWebSocketHandler(chatSvc *chatservice.Service, catalogs locale.Store, metrics *middleware.Metrics, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:  chatSvc,
		catalogs: catalogs,
		metrics:  metrics,
		logger:   logger.With("component", "live"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route. The caller mounts authentication.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// InboundMessage is a client frame.
type InboundMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// HistoryMessage requests one page of the log.
type HistoryMessage struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DeleteMessage removes one exchange.
type DeleteMessage struct {
	ChatID int64 `json:"chat_id"`
}

// OutgoingMessage is a server frame. ID echoes the inbound frame it answers.
type OutgoingMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

type connectionState struct {
	userID  string
	catalog locale.Catalog
}

// handleWebSocket runs one connection.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, middleware.NotAuthenticated, http.StatusUnauthorized)
		return
	}

	state := &connectionState{
		userID:  u.ID,
		catalog: h.catalogs.Match(r.Header.Get("Accept-Language")),
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	if h.metrics != nil {
		defer h.metrics.LiveConnected()()
	}
	h.logger.Info("connection opened", "user", u.ID, "lang", state.catalog.Tag)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	h.send(c, OutgoingMessage{Type: TypeConnected, Data: map[string]any{
		"user":    u.Public(),
		"welcome": state.catalog.Welcome,
		"lang":    state.catalog.Tag,
	}})

	for {
		var msg InboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed", "user", u.ID, "err", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, c, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *conn, state *connectionState, msg *InboundMessage) {
	switch msg.Type {
	case TypeSend:
		h.handleSend(ctx, c, state, msg)
	case TypeHistory:
		h.handleHistory(ctx, c, state, msg)
	case TypeDelete:
		h.handleDelete(ctx, c, state, msg)
	default:
		h.sendError(c, msg.ID, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleSend(ctx context.Context, c *conn, state *connectionState, msg *InboundMessage) {
	var req chat.SendRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.sendError(c, msg.ID, "invalid send payload")
		return
	}

	ex, err := h.chatSvc.Send(ctx, state.userID, req, state.catalog)
	if err != nil {
		h.observe(outcomeFor(err))
		if errors.Is(err, chatservice.ErrNoReply) {
			h.logger.Error("send failed", "user", state.userID, "err", err)
			h.sendError(c, msg.ID, state.catalog.Apology)
			return
		}
		h.sendError(c, msg.ID, err.Error())
		return
	}
	h.observe(middleware.OutcomeAnswered)

	h.send(c, OutgoingMessage{Type: TypeReply, ID: msg.ID, Data: chat.SendResponse{
		ChatID:    ex.ID,
		Message:   ex.Message,
		Response:  *ex.Response,
		Timestamp: ex.CreatedAt,
	}})
}

func (h *WebSocketHandler) handleHistory(ctx context.Context, c *conn, state *connectionState, msg *InboundMessage) {
	var req HistoryMessage
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendError(c, msg.ID, "invalid history payload")
			return
		}
	}

	page, err := h.chatSvc.History(ctx, state.userID, req.Limit, req.Offset)
	if err != nil {
		h.sendError(c, msg.ID, err.Error())
		return
	}
	h.send(c, OutgoingMessage{Type: TypePage, ID: msg.ID, Data: page})
}

func (h *WebSocketHandler) handleDelete(ctx context.Context, c *conn, state *connectionState, msg *InboundMessage) {
	var req DeleteMessage
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.ChatID <= 0 {
		h.sendError(c, msg.ID, "invalid delete payload")
		return
	}

	if err := h.chatSvc.Delete(ctx, state.userID, req.ChatID); err != nil {
		if errors.Is(err, store.ErrExchangeNotFound) {
			h.sendError(c, msg.ID, err.Error())
			return
		}
		h.logger.Error("delete failed", "user", state.userID, "err", err)
		h.sendError(c, msg.ID, "internal error")
		return
	}
	h.send(c, OutgoingMessage{Type: TypeDeleted, ID: msg.ID, Data: req})
}

func (h *WebSocketHandler) send(c *conn, msg OutgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	if err := c.write(msg); err != nil {
		h.logger.Warn("write failed", "type", msg.Type, "err", err)
	}
}

func (h *WebSocketHandler) sendError(c *conn, id, message string) {
	h.send(c, OutgoingMessage{Type: TypeError, ID: id, Data: map[string]string{"message": message}})
}

func (h *WebSocketHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveExchange(outcome)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, chatservice.ErrMessageEmpty) || errors.Is(err, chatservice.ErrMessageTooLong) {
		return middleware.OutcomeRejected
	}
	return middleware.OutcomeFailed
}

// pingLoop keeps the connection alive.
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// Package room fans one karaoke session out to its connected browsers and
// feeds their media-element events back into the session's controller.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"AzzKaraoke/logger"
)

var errEmptyPayload = errors.New("message has no payload")

const (
	sendBuffer   = 256
	readLimit    = 64 << 10 // layout 消息可能较大
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Presence records which viewers are connected. cache.RoomCache implements it.
type Presence interface {
	UpdatePresence(ctx context.Context, roomID, clientID string) error
	RemovePresence(ctx context.Context, roomID, clientID string) error
}

// Client WebSocket 客户端
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	ClientID  string
}

// NewClient binds conn to a session.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID, clientID string) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		SessionID: sessionID,
		ClientID:  clientID,
	}
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// Hub 会话 WebSocket 管理中心
type Hub struct {
	// 会话 -> 客户端集合
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	presence Presence

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub；presence 可为 nil
func NewHub(presence Presence) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, sendBuffer),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true
	h.mu.Unlock()

	h.touch(client)
	logger.Info("client registered",
		logger.String("session", client.SessionID),
		logger.String("client", client.ClientID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if clients, ok := h.sessions[client.SessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			removed = true
			if len(clients) == 0 {
				delete(h.sessions, client.SessionID)
			}
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	if h.presence != nil {
		if err := h.presence.RemovePresence(context.Background(), client.SessionID, client.ClientID); err != nil {
			logger.Warn("failed to remove viewer presence",
				logger.ErrorField(err),
				logger.String("session", client.SessionID))
		}
	}
	logger.Info("client unregistered",
		logger.String("session", client.SessionID),
		logger.String("client", client.ClientID))
}

func (h *Hub) broadcastToSession(msg *BroadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[msg.SessionID]))
	for client := range h.sessions[msg.SessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲区满，移除客户端
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
}

func (h *Hub) touch(client *Client) {
	if h.presence == nil {
		return
	}
	if err := h.presence.UpdatePresence(context.Background(), client.SessionID, client.ClientID); err != nil {
		logger.Warn("failed to update viewer presence",
			logger.ErrorField(err),
			logger.String("session", client.SessionID))
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast 广播消息到会话；Hub 已停止时丢弃
func (h *Hub) Broadcast(msg *WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: msg.SessionID, Message: data}:
	case <-h.done:
	}
	return nil
}

// ClientCount 获取会话客户端数量
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format",
				logger.ErrorField(err),
				logger.String("session", c.SessionID))
			continue
		}

		// 处理心跳
		if msg.Type == MsgTypePing {
			c.Hub.touch(c)
			pong, _ := NewMessage(c.SessionID, MsgTypePong, nil)
			c.SendMessage(pong)
			continue
		}

		msg.SessionID = c.SessionID
		handler(ctx, c, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端；缓冲区满时丢弃
func (c *Client) SendMessage(msg *WSMessage) {
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		// Send 可能已被 Hub 关闭
		_ = recover()
	}()
	select {
	case c.Send <- data:
	default:
	}
}

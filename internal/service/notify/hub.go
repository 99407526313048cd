// Package notify 通过 websocket 向用户推送交易状态
package notify

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// 推送事件名
const (
	EventStatusUpdate = "statusUpdate"
	EventReorged      = "reorged"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Notifier 向某个用户推送事件
type Notifier interface {
	Notify(userAddress, eventName string, payload interface{})
}

// Message 推送给客户端的消息
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	room string
	conn *websocket.Conn
	send chan []byte
}

// Hub 按 userAddress 分房间管理连接
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func roomKey(userAddress string) string {
	return strings.ToLower(strings.TrimSpace(userAddress))
}

// ServeWS 升级连接并加入 userAddress 对应的房间，连接关闭前不返回
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userAddress string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{room: roomKey(userAddress), conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	logger.Debug("Websocket client joined", zap.String("room", c.room))

	go h.writePump(c)
	h.readPump(c)
	return nil
}

// Notify 推送给房间内所有连接，缓冲区满的连接直接丢弃该消息
func (h *Hub) Notify(userAddress, eventName string, payload interface{}) {
	data, err := json.Marshal(Message{Event: eventName, Data: payload})
	if err != nil {
		logger.Error("Marshal notification failed", zap.String("event", eventName), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomKey(userAddress)] {
		select {
		case c.send <- data:
		default:
			logger.Warn("Websocket client too slow, notification dropped", zap.String("room", c.room))
		}
	}
}

// RoomSize 房间内的连接数
func (h *Hub) RoomSize(userAddress string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey(userAddress)])
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
		delete(h.rooms, room)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.room] == nil {
		h.rooms[c.room] = make(map[*client]struct{})
	}
	h.rooms[c.room][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
}

// readPump 只处理 pong 和关闭，客户端不会发送业务消息
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Websocket read error", zap.String("room", c.room), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package ws

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// FrameHandler 处理客户端上行帧
type FrameHandler func(ctx context.Context, c *Client, payload []byte)

// Client 一个在线连接
type Client struct {
	ID     string
	UserID uint64

	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	closed bool
}

// NewClient conn 为 nil 时只排队不写出，供进程内订阅使用
func NewClient(userID uint64, conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = defaultQueue
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, queueSize),
	}
}

// Send 只读的下行队列
func (c *Client) Send() <-chan []byte { return c.send }

// enqueue 非阻塞写入，队列满返回 false
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Reply 直接回给当前连接
func (c *Client) Reply(ev *Event) {
	data, err := encode(ev)
	if err != nil {
		log.Error("事件序列化失败", "type", ev.Type, "err", err)
		return
	}
	c.enqueue(data)
}

// ReadPump 读循环，返回即表示连接结束
func (c *Client) ReadPump(ctx context.Context, handle FrameHandler) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WS 连接异常断开", "user_id", c.UserID, "err", err)
			}
			return
		}
		handle(ctx, c, payload)
	}
}

// WritePump 写循环，队列关闭或写失败时退出
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("WS 推送失败", "user_id", c.UserID, "err", err)
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

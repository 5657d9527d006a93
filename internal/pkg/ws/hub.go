package ws

import (
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	defaultQueue   = 256
	shardCount     = 32
)

// Event 下行事件
type Event struct {
	Type           string    `json:"type"`
	ConversationID uint64    `json:"conversation_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewEvent(typ string, convID uint64, data any) *Event {
	return &Event{Type: typ, ConversationID: convID, Data: data, Timestamp: time.Now().UTC()}
}

// Router 实时事件路由
// Hub 为单进程实现，RedisRelay 为跨实例实现
type Router interface {
	// Fanout 推送给会话参与者的全部在线连接，excludeUserID 为 0 时不排除任何人
	Fanout(convID uint64, ev *Event, participantIDs []uint64, excludeUserID uint64)
	RouteToUser(userID uint64, ev *Event)
	Online(userID uint64) bool
}

type shard struct {
	mu    sync.RWMutex
	users map[uint64]map[string]*Client
}

// Hub 维护 userID -> 连接集合，以及 clientID -> userID 的反向索引
type Hub struct {
	shards [shardCount]*shard

	idxMu   sync.RWMutex
	clients map[string]uint64
}

func NewHub() *Hub {
	h := &Hub{clients: make(map[string]uint64)}
	for i := range h.shards {
		h.shards[i] = &shard{users: make(map[uint64]map[string]*Client)}
	}
	return h
}

func (h *Hub) shardOf(userID uint64) *shard {
	return h.shards[userID%shardCount]
}

// Register 登记一个连接，同一用户可同时持有多个
func (h *Hub) Register(c *Client) {
	sh := h.shardOf(c.UserID)
	sh.mu.Lock()
	set, ok := sh.users[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		sh.users[c.UserID] = set
	}
	set[c.ID] = c
	sh.mu.Unlock()

	h.idxMu.Lock()
	h.clients[c.ID] = c.UserID
	h.idxMu.Unlock()
}

// Unregister 移除连接并关闭其发送队列，重复调用无副作用
func (h *Hub) Unregister(clientID string) {
	h.idxMu.Lock()
	userID, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.idxMu.Unlock()
	if !ok {
		return
	}

	sh := h.shardOf(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set := sh.users[userID]
	c, ok := set[clientID]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(sh.users, userID)
	}
	c.close()
}

func (h *Hub) Online(userID uint64) bool {
	sh := h.shardOf(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.users[userID]) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.idxMu.RLock()
	defer h.idxMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Fanout(convID uint64, ev *Event, participantIDs []uint64, excludeUserID uint64) {
	data, err := encode(ev)
	if err != nil {
		log.Error("事件序列化失败", "type", ev.Type, "conversation_id", convID, "err", err)
		return
	}
	seen := make(map[uint64]struct{}, len(participantIDs))
	for _, uid := range participantIDs {
		if uid == excludeUserID && excludeUserID != 0 {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		h.deliver(uid, data)
	}
}

func (h *Hub) RouteToUser(userID uint64, ev *Event) {
	data, err := encode(ev)
	if err != nil {
		log.Error("事件序列化失败", "type", ev.Type, "user_id", userID, "err", err)
		return
	}
	h.deliver(userID, data)
}

// deliver 向用户的每个连接投递一次，离线直接跳过
func (h *Hub) deliver(userID uint64, data []byte) int {
	sh := h.shardOf(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	n := 0
	for _, c := range sh.users[userID] {
		if c.enqueue(data) {
			n++
		} else {
			log.Warn("连接发送队列已满，丢弃事件", "user_id", userID, "client_id", c.ID)
		}
	}
	return n
}

func encode(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

package ws

import (
	"Homestead/internal/pkg/consts"
	"context"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RelayMessage 一条待发布的频道消息
type RelayMessage struct {
	Channel string
	Payload []byte
}

// Publisher 批量发布到 Redis 频道
type Publisher interface {
	Publish(ctx context.Context, msgs []RelayMessage) error
}

type redisPublisher struct {
	rdb *redis.Client
}

// Publish 一次 pipeline 往返发出整批消息
func (p *redisPublisher) Publish(ctx context.Context, msgs []RelayMessage) error {
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range msgs {
			pipe.Publish(ctx, m.Channel, m.Payload)
		}
		return nil
	})
	return err
}

// RedisRelay 多实例部署时的路由实现
// 事件先发布到 im:user:<id> 频道，各实例通过模式订阅投递给本地 Hub
type RedisRelay struct {
	hub *Hub
	pub Publisher
	rdb *redis.Client
}

func NewRedisRelay(hub *Hub, rdb *redis.Client) *RedisRelay {
	return &RedisRelay{hub: hub, pub: &redisPublisher{rdb: rdb}, rdb: rdb}
}

// newRelayWithPublisher 不订阅，仅用于替换发布端
func newRelayWithPublisher(hub *Hub, pub Publisher) *RedisRelay {
	return &RedisRelay{hub: hub, pub: pub}
}

func (r *RedisRelay) Fanout(convID uint64, ev *Event, participantIDs []uint64, excludeUserID uint64) {
	data, err := encode(ev)
	if err != nil {
		log.Error("事件序列化失败", "type", ev.Type, "conversation_id", convID, "err", err)
		return
	}
	seen := make(map[uint64]struct{}, len(participantIDs))
	msgs := make([]RelayMessage, 0, len(participantIDs))
	for _, uid := range participantIDs {
		if uid == excludeUserID && excludeUserID != 0 {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		msgs = append(msgs, RelayMessage{Channel: userChannel(uid), Payload: data})
	}
	r.publish(convID, msgs)
}

func (r *RedisRelay) RouteToUser(userID uint64, ev *Event) {
	data, err := encode(ev)
	if err != nil {
		log.Error("事件序列化失败", "type", ev.Type, "user_id", userID, "err", err)
		return
	}
	r.publish(0, []RelayMessage{{Channel: userChannel(userID), Payload: data}})
}

// Online 只反映本实例上的连接
func (r *RedisRelay) Online(userID uint64) bool {
	return r.hub.Online(userID)
}

func userChannel(userID uint64) string {
	return consts.IMUserKey + strconv.FormatUint(userID, 10)
}

// publish 整批共用一个超时
func (r *RedisRelay) publish(convID uint64, msgs []RelayMessage) {
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.pub.Publish(ctx, msgs); err != nil {
		log.Error("Redis 发布事件失败", "conversation_id", convID, "channels", len(msgs), "err", err)
	}
}

// Run 订阅 im:user:* 并投递到本地连接，ctx 结束时返回
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, consts.IMUserKey+"*")
	defer func() {
		_ = pubsub.Close()
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("Redis 事件中继已启动")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) dispatch(channel string, payload []byte) {
	userID, err := strconv.ParseUint(strings.TrimPrefix(channel, consts.IMUserKey), 10, 64)
	if err != nil {
		log.Warn("无法解析中继频道", "channel", channel)
		return
	}
	r.hub.deliver(userID, payload)
}

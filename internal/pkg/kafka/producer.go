package kafka

import (
	"Homestead/internal/api/config"
	"Homestead/internal/api/dto"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// MessageSentEvent 投递给下游推送服务的消息事件
type MessageSentEvent struct {
	MessageID      uint64    `json:"message_id"`
	ConversationID uint64    `json:"conversation_id"`
	AuthorID       uint64    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	Text           string    `json:"text"`
	RecipientIDs   []uint64  `json:"recipient_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageProducer 以会话 ID 为 key 写入，同一会话的事件落在同一分区
type MessageProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewMessageProducer(cfg config.KafkaConfig) (*MessageProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	log.Info("Kafka producer started", "topic", cfg.Producer.Topic)
	return newMessageProducer(producer, cfg.Producer.Topic), nil
}

func newMessageProducer(producer sarama.SyncProducer, topic string) *MessageProducer {
	return &MessageProducer{producer: producer, topic: topic}
}

func (p *MessageProducer) OnMessageSent(ctx context.Context, msg *dto.MessageDTO, recipientIDs []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := &MessageSentEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		AuthorID:       msg.AuthorID,
		Text:           msg.Text,
		RecipientIDs:   recipientIDs,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.Author != nil {
		ev.AuthorName = msg.Author.Name
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(msg.ConversationID, 10)),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return err
	}
	log.Debug("消息事件已投递", "message_id", msg.ID, "partition", partition, "offset", offset)
	return nil
}

func (p *MessageProducer) Close() error {
	return p.producer.Close()
}

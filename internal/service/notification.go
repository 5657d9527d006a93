package service

import (
	"Homestead/internal/api/dto"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"
)

// NotificationBridge 离线通知出口，Kafka、站内信等适配器实现
type NotificationBridge interface {
	OnMessageSent(ctx context.Context, msg *dto.MessageDTO, recipientIDs []uint64) error
}

// NotifierChain 依次调用多个适配器，单个失败不影响其余
type NotifierChain []NotificationBridge

func (c NotifierChain) OnMessageSent(ctx context.Context, msg *dto.MessageDTO, recipientIDs []uint64) error {
	var errs []error
	for _, n := range c {
		if n == nil {
			continue
		}
		if err := n.OnMessageSent(ctx, msg, recipientIDs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopNotifier struct{}

func (noopNotifier) OnMessageSent(context.Context, *dto.MessageDTO, []uint64) error { return nil }

type notifyTask struct {
	msg          *dto.MessageDTO
	recipientIDs []uint64
}

// notifyDispatcher 异步调用通知出口，不阻塞发送链路
type notifyDispatcher struct {
	bridge   NotificationBridge
	timeout  time.Duration
	taskChan chan *notifyTask
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newNotifyDispatcher(bridge NotificationBridge, timeout time.Duration, queueSize, workerCount int) *notifyDispatcher {
	if bridge == nil {
		bridge = noopNotifier{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	d := &notifyDispatcher{
		bridge:   bridge,
		timeout:  timeout,
		taskChan: make(chan *notifyTask, queueSize),
		stopChan: make(chan struct{}),
	}
	d.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go d.worker()
	}
	return d
}

// submit 队列满时丢弃并记录
func (d *notifyDispatcher) submit(msg *dto.MessageDTO, recipientIDs []uint64) {
	if len(recipientIDs) == 0 {
		return
	}
	select {
	case d.taskChan <- &notifyTask{msg: msg, recipientIDs: recipientIDs}:
	default:
		log.Warn("通知队列已满，丢弃通知", "message_id", msg.ID, "recipients", len(recipientIDs))
	}
}

func (d *notifyDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.taskChan:
			d.run(task)
		case <-d.stopChan:
			// 退出前把已排队的处理完
			for {
				select {
				case task := <-d.taskChan:
					d.run(task)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) run(task *notifyTask) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.bridge.OnMessageSent(ctx, task.msg, task.recipientIDs); err != nil {
		log.Error("消息通知失败", "message_id", task.msg.ID, "conversation_id", task.msg.ConversationID, "err", err)
	}
}

func (d *notifyDispatcher) close() {
	close(d.stopChan)
	d.wg.Wait()
}

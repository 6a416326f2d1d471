package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// 进程内事件通道名
const (
	ChannelTaskEvents    = "task_events"
	ChannelMonitorEvents = "monitor_events"
)

// DefaultQueueSize 单个订阅者的队列深度
const DefaultQueueSize = 256

// Event 总线上流转的事件
type Event struct {
	Channel string
	Type    string
	Payload interface{}
}

// Bus 进程内发布订阅总线
// 发布永不阻塞:订阅者队列满时丢弃最旧事件,慢消费者不拖累发布方
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscription]struct{}
	queueSize int
	logger    *logrus.Logger
	closed    bool
}

// Subscription 单个订阅者的有界事件队列
type Subscription struct {
	bus     *Bus
	channel string
	mu      sync.Mutex
	events  chan Event
	closed  bool
	dropped uint64
}

// New 创建事件总线
func New(queueSize int, logger *logrus.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		subs:      make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe 订阅指定通道
func (b *Bus) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		bus:     b,
		channel: channel,
		events:  make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.events)
		return sub
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub
}

// Publish 向通道发布事件,复制到每个订阅者各自的队列
func (b *Bus) Publish(channel, eventType string, payload interface{}) {
	event := Event{Channel: channel, Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		sub.push(event)
	}
}

// SubscriberCount 通道当前的订阅者数量
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close 关闭总线,所有订阅者的队列被关闭
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for channel, subs := range b.subs {
		for sub := range subs {
			sub.markClosed()
		}
		delete(b.subs, channel)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.channel]; ok {
		delete(subs, sub)
	}
}

// push 入队事件,队列满时丢弃最旧事件为新事件腾位
func (s *Subscription) push(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped++
		default:
		}
	}
}

// Events 事件接收通道,总线关闭或取消订阅后该通道被关闭
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped 因队列满被丢弃的事件数
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

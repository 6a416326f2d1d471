package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/websocket/message"
	"github.com/sirupsen/logrus"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// SnapshotProvider 新连接建立时下发的状态快照
type SnapshotProvider interface {
	Snapshot() []interface{}
}

// Fanout 消息分发服务
// 在独立端口提供 WebSocket 端点,把事件总线上的消息广播给所有订阅者
type Fanout struct {
	hub      *Hub
	bus      *bus.Bus
	snapshot SnapshotProvider
	logger   *logrus.Entry
	server   *http.Server
}

// NewFanout 创建分发服务
func NewFanout(cfg config.FanoutConfig, eventBus *bus.Bus, snapshot SnapshotProvider, logger *logrus.Logger) *Fanout {
	f := &Fanout{
		hub:      NewHub(),
		bus:      eventBus,
		snapshot: snapshot,
		logger:   logger.WithField("component", "fanout"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleConnection)
	f.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}
	return f
}

// Run 启动分发服务,阻塞直到 ctx 取消
func (f *Fanout) Run(ctx context.Context) error {
	go f.hub.Run()
	go f.pump(ctx, f.bus.Subscribe(bus.ChannelTaskEvents))
	go f.pump(ctx, f.bus.Subscribe(bus.ChannelMonitorEvents))

	errCh := make(chan error, 1)
	go func() {
		f.logger.WithField("addr", f.server.Addr).Info("fanout listening")
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return f.server.Shutdown(shutdownCtx)
	}
}

// ClientCount 当前订阅者数量
func (f *Fanout) ClientCount() int {
	return f.hub.GetClientCount()
}

// pump 把总线事件序列化后交给 Hub 广播
func (f *Fanout) pump(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			raw, err := json.Marshal(event.Payload)
			if err != nil {
				f.logger.WithError(err).Warn("dropping unserializable event")
				continue
			}
			f.hub.Broadcast <- raw
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fanout) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), f.hub, conn, f.logger)
	f.hub.Register <- client

	// 先应答注册,再下发快照,之后才是增量广播
	f.enqueue(client, message.NewRegisterResponse(client.ID, client.ClientType))
	if f.snapshot != nil {
		for _, msg := range f.snapshot.Snapshot() {
			f.enqueue(client, msg)
		}
	}

	go client.ReadPump()
	go client.WritePump()

	f.logger.WithField("client_id", client.ID).Info("subscriber connected")
}

func (f *Fanout) enqueue(client *Client, msg interface{}) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- raw:
	default:
	}
}

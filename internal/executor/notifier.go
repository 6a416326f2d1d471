package executor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/websocket/message"
	"github.com/sirupsen/logrus"
)

// BusNotifier 进程内通知,发布到事件总线
type BusNotifier struct {
	Bus *bus.Bus
}

func (n *BusNotifier) NotifyTaskStatus(task *model.TaskModel) {
	n.Bus.Publish(bus.ChannelTaskEvents, message.TypeTaskStatusChange, message.TaskStatusChangeFrom(task))
}

// WSNotifier 独立执行器进程的通知通道
// 以客户端身份连入分发服务,回传 task_status_update,由分发服务广播
type WSNotifier struct {
	url    string
	logger *logrus.Entry

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSNotifier 创建 WebSocket 通知器,连接失败时后续发送会重试建连
func NewWSNotifier(url string, logger *logrus.Logger) *WSNotifier {
	return &WSNotifier{
		url:    url,
		logger: logger.WithField("component", "ws-notifier"),
	}
}

func (n *WSNotifier) NotifyTaskStatus(task *model.TaskModel) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "task_status_update",
		"task_id": task.TaskID,
		"status":  task.Status,
	})
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// 通知尽力而为,任务状态的权威在存储层
	for attempt := 0; attempt < 2; attempt++ {
		if n.conn == nil {
			if err := n.dial(); err != nil {
				n.logger.WithError(err).Debug("fanout unreachable, dropping notification")
				return
			}
		}
		n.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := n.conn.WriteMessage(websocket.TextMessage, payload); err == nil {
			return
		}
		n.conn.Close()
		n.conn = nil
	}
}

func (n *WSNotifier) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(n.url, nil)
	if err != nil {
		return err
	}
	register, _ := json.Marshal(map[string]string{
		"type":        "register_client",
		"client_type": "executor",
	})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, register); err != nil {
		conn.Close()
		return err
	}
	// 丢弃服务端下行消息,保持读泵活跃
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	n.conn = conn
	n.logger.Info("connected to fanout")
	return nil
}

// Close 关闭通知连接
func (n *WSNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

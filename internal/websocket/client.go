package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mautops/netops-gin/internal/websocket/message"
	"github.com/sirupsen/logrus"
)

const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 读超时时间
	pongWait = 60 * time.Second

	// ping 周期 (必须小于 pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512 * 1024
)

// Client WebSocket 客户端
type Client struct {
	// ID 客户端 ID
	ID string

	// ClientType 客户端自报的类型,register_client 时更新
	ClientType string

	// Hub Hub 实例
	Hub *Hub

	// Conn WebSocket 连接
	Conn *websocket.Conn

	// Send 发送消息的 channel
	Send chan []byte

	logger *logrus.Entry
}

// NewClient 创建新的客户端
func NewClient(id string, hub *Hub, conn *websocket.Conn, logger *logrus.Entry) *Client {
	return &Client{
		ID:         id,
		ClientType: "monitor",
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		logger:     logger,
	}
}

// ReadPump 从 WebSocket 连接读取消息
// register_client 更新客户端类型,task_status_update 回显广播,其余忽略
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("websocket read error")
			}
			break
		}
		c.handleInbound(raw)
	}
}

func (c *Client) handleInbound(raw []byte) {
	var envelope message.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.logger.WithField("client_id", c.ID).Debug("discarding malformed message")
		return
	}

	switch envelope.Type {
	case message.TypeRegisterClient:
		var reg message.RegisterClient
		if err := json.Unmarshal(raw, &reg); err == nil && reg.ClientType != "" {
			c.ClientType = reg.ClientType
		}

	case message.TypeTaskStatusUpdate:
		var update message.TaskStatusUpdate
		if err := json.Unmarshal(raw, &update); err != nil || update.TaskID == "" {
			return
		}
		echo, err := json.Marshal(&message.TaskStatusChange{
			Type:         message.TypeTaskStatusChange,
			TaskID:       update.TaskID,
			Status:       update.Status,
			Timestamp:    message.Now(),
			SourceClient: c.ID,
		})
		if err == nil {
			c.Hub.Broadcast <- echo
		}

	default:
		c.logger.WithFields(logrus.Fields{
			"client_id": c.ID,
			"type":      envelope.Type,
		}).Debug("ignoring unknown message type")
	}
}

// WritePump 向 WebSocket 连接写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
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

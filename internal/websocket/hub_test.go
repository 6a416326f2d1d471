package websocket

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 监控引擎每个采样周期都读客户端数,和广播摘除慢客户端并发
// 用 -race 跑这组用例
func TestBroadcastEvictsSlowClientsUnderConcurrentCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	counting := make(chan struct{})
	go func() {
		defer close(counting)
		for i := 0; i < 500; i++ {
			hub.GetClientCount()
		}
	}()

	// 发送队列满的客户端在广播时被摘除
	for i := 0; i < 50; i++ {
		hub.Register <- &Client{ID: fmt.Sprintf("slow-%d", i), Send: make(chan []byte)}
		hub.Broadcast <- []byte(`{"type":"dashboard_update"}`)
	}
	<-counting

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastKeepsResponsiveClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{ID: "dashboard-1", Send: make(chan []byte, 4)}
	hub.Register <- client
	hub.Broadcast <- []byte(`{"type":"task_status_change"}`)

	select {
	case got := <-client.Send:
		assert.Contains(t, string(got), "task_status_change")
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
	assert.Equal(t, 1, hub.GetClientCount())
}

package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
)

func testEngine(t *testing.T) (*Engine, *bus.Bus) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	eventBus := bus.New(16, logger)
	t.Cleanup(eventBus.Close)

	e := &Engine{
		bus:             eventBus,
		logger:          logger.WithField("component", "monitor"),
		collectInterval: 30 * time.Second,
		trafficInterval: 5 * time.Second,
		freshnessWindow: 180 * time.Second,
		hardExpiry:      900 * time.Second,
		forceInterval:   10 * time.Second,
		inflight:        make(map[int]bool),
		snapshots:       make(map[int]*Snapshot),
		lastProbe:       make(map[int]time.Time),
	}
	return e, eventBus
}

func healthySnapshot(deviceID int, age time.Duration) *Snapshot {
	return &Snapshot{
		DeviceID:     deviceID,
		DeviceName:   "sw-01",
		Timestamp:    time.Now().Add(-age),
		Reachability: model.ReachabilityReachable,
		Freshness:    model.FreshnessLive,
		CPUPct:       42,
		MemoryPct:    51,
		Interfaces: []model.InterfaceStatus{
			{Name: "GigabitEthernet0/0/1", AdminState: "up", OperState: "up"},
		},
	}
}

func TestClassifyHealthyDevice(t *testing.T) {
	snap := healthySnapshot(1, 0)
	assert.Equal(t, model.ReachabilityReachable, classify(snap))
}

func TestClassifyHighCPU(t *testing.T) {
	snap := healthySnapshot(1, 0)
	snap.CPUPct = 80
	assert.Equal(t, model.ReachabilityReachable, classify(snap))
	snap.CPUPct = 80.5
	assert.Equal(t, model.ReachabilityWarning, classify(snap))
}

func TestClassifyHighMemory(t *testing.T) {
	snap := healthySnapshot(1, 0)
	snap.MemoryPct = 85
	assert.Equal(t, model.ReachabilityReachable, classify(snap))
	snap.MemoryPct = 86
	assert.Equal(t, model.ReachabilityWarning, classify(snap))
}

func TestClassifyDownedInterface(t *testing.T) {
	snap := healthySnapshot(1, 0)
	snap.Interfaces = append(snap.Interfaces, model.InterfaceStatus{
		Name: "GigabitEthernet0/0/2", AdminState: "up", OperState: "down",
	})
	assert.Equal(t, model.ReachabilityWarning, classify(snap))
}

func TestClassifyAdminDownIsNotWarning(t *testing.T) {
	snap := healthySnapshot(1, 0)
	snap.Interfaces = append(snap.Interfaces, model.InterfaceStatus{
		Name: "GigabitEthernet0/0/2", AdminState: "down", OperState: "down",
	})
	assert.Equal(t, model.ReachabilityReachable, classify(snap))
}

func TestClassifyInterfaceErrors(t *testing.T) {
	snap := healthySnapshot(1, 0)
	snap.Interfaces[0].ErrorCounter = 3
	assert.Equal(t, model.ReachabilityWarning, classify(snap))
}

func TestOnline(t *testing.T) {
	snap := &Snapshot{Reachability: model.ReachabilityReachable}
	assert.True(t, snap.Online())
	snap.Reachability = model.ReachabilityWarning
	assert.True(t, snap.Online())
	snap.Reachability = model.ReachabilityUnknown
	assert.False(t, snap.Online())
	snap.Reachability = model.ReachabilityUnreachable
	assert.False(t, snap.Online())
}

func TestFallbackFreshCache(t *testing.T) {
	e, _ := testEngine(t)
	device := &model.DeviceModel{ID: 1, Name: "sw-01"}
	e.snapshots[1] = healthySnapshot(1, 60*time.Second)

	snap := e.fallback(device, errors.New("probe failed"))

	// 新鲜缓存原样复用,只改新鲜度标记
	assert.Equal(t, model.FreshnessCached, snap.Freshness)
	assert.Equal(t, model.ReachabilityReachable, snap.Reachability)
	assert.InDelta(t, 42, snap.CPUPct, 0.001)
}

func TestFallbackStaleCache(t *testing.T) {
	e, _ := testEngine(t)
	device := &model.DeviceModel{ID: 1, Name: "sw-01"}
	e.snapshots[1] = healthySnapshot(1, 10*time.Minute)

	snap := e.fallback(device, errors.New("probe failed"))

	assert.Equal(t, model.FreshnessStale, snap.Freshness)
	assert.Equal(t, model.ReachabilityUnknown, snap.Reachability)
	assert.InDelta(t, 42, snap.CPUPct, 0.001)
}

func TestFallbackExpiredCache(t *testing.T) {
	e, _ := testEngine(t)
	device := &model.DeviceModel{ID: 1, Name: "sw-01"}
	e.snapshots[1] = healthySnapshot(1, 2*time.Hour)

	snap := e.fallback(device, errors.New("probe failed"))

	assert.Equal(t, model.FreshnessExpired, snap.Freshness)
	assert.Equal(t, model.ReachabilityUnreachable, snap.Reachability)
	assert.EqualValues(t, gateway.UnknownValue, snap.CPUPct)
	assert.EqualValues(t, gateway.UnknownValue, snap.MemoryPct)
	// 最后一次看到的接口列表保留
	assert.Len(t, snap.Interfaces, 1)
}

func TestFallbackDoesNotMutateCachedSnapshot(t *testing.T) {
	e, _ := testEngine(t)
	device := &model.DeviceModel{ID: 1, Name: "sw-01"}
	e.snapshots[1] = healthySnapshot(1, 2*time.Hour)

	_ = e.fallback(device, errors.New("probe failed"))

	assert.InDelta(t, 42, e.snapshots[1].CPUPct, 0.001)
	assert.Equal(t, model.FreshnessLive, e.snapshots[1].Freshness)
}

func TestDashboardCounts(t *testing.T) {
	e, _ := testEngine(t)
	e.snapshots[1] = healthySnapshot(1, 0)
	warning := healthySnapshot(2, 0)
	warning.Reachability = model.ReachabilityWarning
	e.snapshots[2] = warning
	offline := healthySnapshot(3, 0)
	offline.Reachability = model.ReachabilityUnreachable
	e.snapshots[3] = offline

	dashboard := e.Dashboard()

	assert.Equal(t, 3, dashboard.DeviceCount)
	assert.Equal(t, 2, dashboard.OnlineCount)
	assert.Equal(t, 1, dashboard.OfflineCount)
	assert.Contains(t, dashboard.DeviceStatus, "1")
	assert.Contains(t, dashboard.DeviceStatus, "3")
}

func TestPublishDashboardSuppressesUnchanged(t *testing.T) {
	e, eventBus := testEngine(t)
	e.snapshots[1] = healthySnapshot(1, 0)
	sub := eventBus.Subscribe(bus.ChannelMonitorEvents)

	e.publishDashboard(false)
	e.publishDashboard(false)

	require.Len(t, drainEvents(sub), 1)
}

func TestPublishDashboardOnChange(t *testing.T) {
	e, eventBus := testEngine(t)
	e.snapshots[1] = healthySnapshot(1, 0)
	sub := eventBus.Subscribe(bus.ChannelMonitorEvents)

	e.publishDashboard(false)
	e.snapshots[2] = healthySnapshot(2, 0)
	e.publishDashboard(false)

	require.Len(t, drainEvents(sub), 2)
}

func TestPublishDashboardForceBypassesDeltaGate(t *testing.T) {
	e, eventBus := testEngine(t)
	e.snapshots[1] = healthySnapshot(1, 0)
	sub := eventBus.Subscribe(bus.ChannelMonitorEvents)

	e.publishDashboard(false)
	e.publishDashboard(true)

	require.Len(t, drainEvents(sub), 2)
}

func TestSampleTrafficSkipsWithoutWatchers(t *testing.T) {
	e, _ := testEngine(t)
	e.snapshots[1] = healthySnapshot(1, 0)

	// registry 未设置:只有在无人订阅时提前返回才不会触碰它
	e.SetSubscriberSource(func() int { return 0 })
	e.sampleTraffic(context.Background())
}

func drainEvents(sub *bus.Subscription) []bus.Event {
	var events []bus.Event
	for {
		select {
		case event := <-sub.Events():
			events = append(events, event)
		case <-time.After(50 * time.Millisecond):
			return events
		}
	}
}

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/metrics"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/websocket/message"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 告警阈值
const (
	cpuWarnThreshold = 80.0
	memWarnThreshold = 85.0
)

// 每台设备每轮采样的接口数上限
const maxTrafficInterfaces = 4

// Engine 监控引擎
// 周期探测每台注册设备并发布快照,探测失败时按缓存新鲜度降级
type Engine struct {
	registry *registry.Registry
	gateway  *gateway.Gateway
	bus      *bus.Bus
	db       *gorm.DB
	logger   *logrus.Entry

	collectInterval time.Duration
	trafficInterval time.Duration
	freshnessWindow time.Duration
	hardExpiry      time.Duration
	forceInterval   time.Duration
	retention       time.Duration

	// subscribers 报告当前关注流量视图的客户端数
	// 未设置时退化为总线订阅者计数
	subscribers func() int

	mu        sync.Mutex
	inflight  map[int]bool
	snapshots map[int]*Snapshot
	lastProbe map[int]time.Time

	lastDashboard []byte
	lastPublish   time.Time
	lastTrim      time.Time
}

// New 创建监控引擎
func New(cfg config.MonitorConfig, reg *registry.Registry, gw *gateway.Gateway, eventBus *bus.Bus, db *gorm.DB, logger *logrus.Logger) *Engine {
	return &Engine{
		registry:        reg,
		gateway:         gw,
		bus:             eventBus,
		db:              db,
		logger:          logger.WithField("component", "monitor"),
		collectInterval: time.Duration(cfg.CollectInterval) * time.Second,
		trafficInterval: time.Duration(cfg.TrafficInterval) * time.Second,
		freshnessWindow: time.Duration(cfg.FreshnessWindow) * time.Second,
		hardExpiry:      time.Duration(cfg.HardExpiry) * time.Second,
		forceInterval:   time.Duration(cfg.ForceInterval) * time.Second,
		retention:       time.Duration(cfg.HistoryDays) * 24 * time.Hour,
		inflight:        make(map[int]bool),
		snapshots:       make(map[int]*Snapshot),
		lastProbe:       make(map[int]time.Time),
	}
}

// SetSubscriberSource 指定流量采样的订阅者计数来源
// 分发服务持有真实的连接数,没有浏览器在看时不采样
func (e *Engine) SetSubscriberSource(fn func() int) {
	e.subscribers = fn
}

// Run 启动调度循环,阻塞直到 ctx 取消
func (e *Engine) Run(ctx context.Context) {
	e.logger.WithFields(logrus.Fields{
		"collect_interval": e.collectInterval,
		"traffic_interval": e.trafficInterval,
	}).Info("monitor engine started")

	collect := time.NewTicker(e.collectInterval)
	traffic := time.NewTicker(e.trafficInterval)
	defer collect.Stop()
	defer traffic.Stop()

	e.tick(ctx)
	for {
		select {
		case <-collect.C:
			e.tick(ctx)
		case <-traffic.C:
			e.sampleTraffic(ctx)
		case <-ctx.Done():
			e.logger.Info("monitor engine stopped")
			return
		}
	}
}

// tick 为每台还没有在途探测且结果过期的设备启动探测
func (e *Engine) tick(ctx context.Context) {
	devices, err := e.registry.List(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("device listing failed, skipping collection round")
		return
	}

	now := time.Now()
	for _, device := range devices {
		e.mu.Lock()
		overdue := now.Sub(e.lastProbe[device.ID]) >= e.collectInterval
		busy := e.inflight[device.ID]
		if overdue && !busy {
			e.inflight[device.ID] = true
			e.lastProbe[device.ID] = now
		}
		e.mu.Unlock()

		if overdue && !busy {
			go e.probeDevice(device)
		}
	}
}

// probeDevice 探测单台设备并发布结果
// 同一设备的探测不会并发,不同设备互不阻塞
func (e *Engine) probeDevice(device *model.DeviceModel) {
	defer func() {
		e.mu.Lock()
		delete(e.inflight, device.ID)
		e.mu.Unlock()
	}()

	snap, err := e.probe(device)
	if err != nil {
		metrics.RecordProbe("failure")
		snap = e.fallback(device, err)
	} else {
		metrics.RecordProbe("success")
		if err := persistSnapshot(e.db, snap); err != nil {
			e.logger.WithError(err).WithField("device", device.Name).Warn("snapshot persist failed")
		}
		e.maybeTrim()
	}

	e.mu.Lock()
	e.snapshots[device.ID] = snap
	e.mu.Unlock()

	e.publishDashboard(false)
}

// probe 执行一轮读探针并分类可达性
func (e *Engine) probe(device *model.DeviceModel) (*Snapshot, error) {
	cpuPct, memPct, err := e.gateway.GetCpuMemory(device)
	if err != nil {
		return nil, err
	}
	interfaces, err := e.gateway.GetInterfaces(device)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Timestamp:  time.Now(),
		Freshness:  model.FreshnessLive,
		CPUPct:     cpuPct,
		MemoryPct:  memPct,
		Interfaces: interfaces,
	}
	snap.Reachability = classify(snap)
	return snap, nil
}

// classify 高负载、接口掉线或错误计数非零都算 warning
func classify(snap *Snapshot) string {
	if snap.CPUPct > cpuWarnThreshold || snap.MemoryPct > memWarnThreshold {
		return model.ReachabilityWarning
	}
	for _, iface := range snap.Interfaces {
		if iface.AdminState == "up" && iface.OperState == "down" {
			return model.ReachabilityWarning
		}
		if iface.ErrorCounter > 0 {
			return model.ReachabilityWarning
		}
	}
	return model.ReachabilityReachable
}

// fallback 探测失败时的降级策略
// 新鲜缓存原样复用,过期缓存只保留接口列表,可达性按缓存年龄定级
func (e *Engine) fallback(device *model.DeviceModel, probeErr error) *Snapshot {
	e.logger.WithError(probeErr).WithField("device", device.Name).Debug("probe failed, applying cache fallback")

	e.mu.Lock()
	last := e.snapshots[device.ID]
	e.mu.Unlock()

	if last == nil {
		if loaded, err := loadSnapshot(e.db, device.ID); err == nil {
			loaded.DeviceName = device.Name
			last = loaded
		}
	}
	if last == nil {
		return &Snapshot{
			DeviceID:     device.ID,
			DeviceName:   device.Name,
			Timestamp:    time.Now(),
			Reachability: model.ReachabilityUnreachable,
			Freshness:    model.FreshnessExpired,
			CPUPct:       gateway.UnknownValue,
			MemoryPct:    gateway.UnknownValue,
		}
	}

	age := time.Since(last.Timestamp)
	snap := *last
	switch {
	case age <= e.freshnessWindow:
		snap.Freshness = model.FreshnessCached
	case age <= e.hardExpiry:
		snap.Freshness = model.FreshnessStale
		snap.Reachability = model.ReachabilityUnknown
	default:
		snap.Freshness = model.FreshnessExpired
		snap.Reachability = model.ReachabilityUnreachable
		snap.CPUPct = gateway.UnknownValue
		snap.MemoryPct = gateway.UnknownValue
		// 最后一次看到的接口列表保留
	}
	return &snap
}

// ForceRefresh 绕过缓存:关闭现有会话后立即重探
func (e *Engine) ForceRefresh(ctx context.Context, deviceID int) (*Snapshot, error) {
	device, err := e.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	e.gateway.CloseSession(fmt.Sprintf("%d", device.ID))

	snap, err := e.probe(device)
	if err != nil {
		return nil, err
	}
	if err := persistSnapshot(e.db, snap); err != nil {
		e.logger.WithError(err).Warn("snapshot persist failed")
	}

	e.mu.Lock()
	e.snapshots[device.ID] = snap
	e.lastProbe[device.ID] = snap.Timestamp
	e.mu.Unlock()

	e.publishDashboard(true)
	return snap, nil
}

// RepairInterface 对接口执行 shutdown / undo shutdown 自愈,随后强制重探
func (e *Engine) RepairInterface(ctx context.Context, deviceID int, iface string) (*gateway.Transcript, error) {
	device, err := e.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	transcript, err := e.gateway.BounceInterface(device, iface)
	if err != nil {
		return transcript, err
	}
	go e.ForceRefresh(context.Background(), deviceID)
	return transcript, nil
}

// RebootDevice 远程重启设备
func (e *Engine) RebootDevice(ctx context.Context, deviceID int) (*gateway.Transcript, error) {
	device, err := e.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return e.gateway.RebootDevice(device)
}

// Dashboard 构造当前的仪表盘聚合消息
func (e *Engine) Dashboard() *message.DeviceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dashboardLocked()
}

func (e *Engine) dashboardLocked() *message.DeviceStatus {
	online, offline := 0, 0
	statuses := make(map[string]interface{}, len(e.snapshots))
	for id, snap := range e.snapshots {
		if snap.Online() {
			online++
		} else {
			offline++
		}
		statuses[fmt.Sprintf("%d", id)] = snap
	}
	return &message.DeviceStatus{
		Type:         message.TypeDeviceStatus,
		DeviceCount:  len(e.snapshots),
		OnlineCount:  online,
		OfflineCount: offline,
		LastUpdate:   message.Now(),
		DeviceStatus: statuses,
	}
}

// publishDashboard 发布仪表盘更新
// 快照未变化且距上次发布不足 force_interval 时静默,抑制广播噪声
func (e *Engine) publishDashboard(force bool) {
	e.mu.Lock()
	dashboard := e.dashboardLocked()

	serialized, err := json.Marshal(dashboard.DeviceStatus)
	if err != nil {
		e.mu.Unlock()
		return
	}
	unchanged := string(serialized) == string(e.lastDashboard)
	recent := time.Since(e.lastPublish) < e.forceInterval
	if !force && unchanged && recent {
		e.mu.Unlock()
		return
	}
	e.lastDashboard = serialized
	e.lastPublish = time.Now()
	e.mu.Unlock()

	e.bus.Publish(bus.ChannelMonitorEvents, message.TypeDeviceStatus, dashboard)
}

// sampleTraffic 细粒度流量采样
// 只在存在活跃订阅者时进行,空闲时不产生设备流量
func (e *Engine) sampleTraffic(ctx context.Context) {
	watching := 0
	if e.subscribers != nil {
		watching = e.subscribers()
	} else {
		watching = e.bus.SubscriberCount(bus.ChannelMonitorEvents)
	}
	if watching == 0 {
		return
	}

	e.mu.Lock()
	targets := make(map[*Snapshot]bool, len(e.snapshots))
	for _, snap := range e.snapshots {
		if snap.Online() && snap.Freshness == model.FreshnessLive {
			targets[snap] = true
		}
	}
	e.mu.Unlock()

	data := make(map[string]message.TrafficData)
	now := time.Now()

	for snap := range targets {
		device, err := e.registry.Get(ctx, snap.DeviceID)
		if err != nil {
			continue
		}
		sampled := 0
		for _, iface := range snap.Interfaces {
			if iface.OperState != "up" || sampled >= maxTrafficInterfaces {
				continue
			}
			inputBps, outputBps, err := e.gateway.GetInterfaceRates(device, iface.Name)
			if err != nil || (inputBps < 0 && outputBps < 0) {
				continue
			}
			sampled++
			key := fmt.Sprintf("%s:%s", device.Address, iface.Name)
			data[key] = message.TrafficData{InputBps: inputBps, OutputBps: outputBps}
			if err := recordTraffic(e.db, device.Address, iface.Name, inputBps, outputBps, now); err != nil {
				e.logger.WithError(err).Debug("traffic record failed")
			}
		}
	}

	if len(data) == 0 {
		return
	}
	e.bus.Publish(bus.ChannelMonitorEvents, message.TypeTrafficDataUpdate, &message.TrafficDataUpdate{
		Type:      message.TypeTrafficDataUpdate,
		Data:      data,
		Timestamp: message.Now(),
	})
}

// maybeTrim 机会性清理过期历史,至多每小时一次
func (e *Engine) maybeTrim() {
	e.mu.Lock()
	due := time.Since(e.lastTrim) > time.Hour
	if due {
		e.lastTrim = time.Now()
	}
	e.mu.Unlock()
	if !due {
		return
	}
	if err := trimHistory(e.db, e.retention); err != nil {
		e.logger.WithError(err).Warn("history trim failed")
	}
}

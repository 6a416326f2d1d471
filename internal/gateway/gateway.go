package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// Gateway 设备网关,保证每台设备同一时刻至多一个活跃会话
// 程序在单个会话内顺序执行,会话空闲超时后被回收
type Gateway struct {
	dialer Dialer
	logger *logrus.Entry

	connectTimeout time.Duration
	commandTimeout time.Duration
	lockWait       time.Duration
	idleTimeout    time.Duration

	mu    sync.Mutex
	slots map[string]*deviceSlot

	stop chan struct{}
	once sync.Once
}

// deviceSlot 单台设备的锁与会话
type deviceSlot struct {
	lock     chan struct{}
	session  *session
	lastUsed time.Time
}

// New 创建设备网关并启动空闲会话回收
func New(cfg config.GatewayConfig, dialer Dialer, logger *logrus.Logger) *Gateway {
	if dialer == nil {
		dialer = &NetDialer{}
	}
	g := &Gateway{
		dialer:         dialer,
		logger:         logger.WithField("component", "gateway"),
		connectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		commandTimeout: time.Duration(cfg.CommandTimeout) * time.Second,
		lockWait:       time.Duration(cfg.LockWait) * time.Second,
		idleTimeout:    time.Duration(cfg.IdleTimeout) * time.Second,
		slots:          make(map[string]*deviceSlot),
		stop:           make(chan struct{}),
	}
	go g.evictLoop()
	return g
}

// Execute 在设备上执行程序,返回完整执行记录
// 会话中断时重连一次并从失败步骤恢复,再次失败返回 SessionLost
func (g *Gateway) Execute(device *model.DeviceModel, program Program) (*Transcript, error) {
	slot := g.slot(deviceKey(device))
	if err := g.acquire(slot, device); err != nil {
		return nil, err
	}
	defer g.release(slot)

	vendor := VendorFor(device.Vendor)
	transcript := &Transcript{DeviceID: deviceKey(device)}

	sess, err := g.ensureSession(slot, device, vendor)
	if err != nil {
		return nil, err
	}

	reconnected := false
	for i := 0; i < len(program.Steps); {
		step := program.Steps[i]
		result, err := sess.runStep(step, g.commandTimeout)
		if result.Output != "" || result.Command != "" {
			transcript.Steps = append(transcript.Steps, result)
			transcript.Output += result.Output
		}

		if err == nil {
			i++
			continue
		}

		if err != errConnLost {
			// 对话超时等错误不触发重连,带部分记录直接上抛
			// 此时会话已失步(迟到的输出会被当成下一条命令的应答),关闭并在下次执行时重新建连
			slot.session = nil
			sess.close()
			return transcript, err
		}

		if reconnected {
			slot.session = nil
			sess.close()
			return transcript, &SessionLost{Device: device.Name, Err: err}
		}
		reconnected = true

		g.logger.WithFields(logrus.Fields{
			"device": device.Name,
			"step":   i,
		}).Warn("session dropped mid-program, reconnecting")

		frames := sess.modes
		sess.close()
		slot.session = nil

		sess, err = g.openSession(slot, device, vendor)
		if err != nil {
			return transcript, &SessionLost{Device: device.Name, Err: err}
		}
		if err := sess.replayModes(frames, g.commandTimeout); err != nil {
			slot.session = nil
			sess.close()
			return transcript, &SessionLost{Device: device.Name, Err: err}
		}
		// 从失败的步骤继续
	}

	return transcript, nil
}

// CloseSession 强制关闭设备的现有会话,下次执行时重新建连
func (g *Gateway) CloseSession(deviceID string) {
	g.mu.Lock()
	slot, ok := g.slots[deviceID]
	g.mu.Unlock()
	if !ok {
		return
	}

	select {
	case slot.lock <- struct{}{}:
		if slot.session != nil {
			slot.session.close()
			slot.session = nil
		}
		<-slot.lock
	case <-time.After(g.lockWait):
	}
}

// Close 停止网关并关闭所有会话
func (g *Gateway) Close() {
	g.once.Do(func() { close(g.stop) })

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, slot := range g.slots {
		if slot.session != nil {
			slot.session.close()
			slot.session = nil
		}
	}
}

func deviceKey(device *model.DeviceModel) string {
	if device.ID != 0 {
		return fmt.Sprintf("%d", device.ID)
	}
	return device.Address
}

func (g *Gateway) slot(key string) *deviceSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[key]
	if !ok {
		slot = &deviceSlot{lock: make(chan struct{}, 1)}
		g.slots[key] = slot
	}
	return slot
}

func (g *Gateway) acquire(slot *deviceSlot, device *model.DeviceModel) error {
	select {
	case slot.lock <- struct{}{}:
		return nil
	case <-time.After(g.lockWait):
		return &BusyError{Device: device.Name}
	}
}

func (g *Gateway) release(slot *deviceSlot) {
	slot.lastUsed = time.Now()
	<-slot.lock
}

func (g *Gateway) ensureSession(slot *deviceSlot, device *model.DeviceModel, vendor *Vendor) (*session, error) {
	if slot.session != nil {
		return slot.session, nil
	}
	return g.openSession(slot, device, vendor)
}

func (g *Gateway) openSession(slot *deviceSlot, device *model.DeviceModel, vendor *Vendor) (*session, error) {
	transport, err := g.dialer.Dial(device, g.connectTimeout)
	if err != nil {
		return nil, err
	}
	slot.session = newSession(device, vendor, transport)
	g.logger.WithFields(logrus.Fields{
		"device":   device.Name,
		"protocol": device.Protocol,
	}).Debug("session opened")
	return slot.session, nil
}

// evictLoop 周期回收空闲超时的会话
func (g *Gateway) evictLoop() {
	interval := g.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.evictIdle()
		case <-g.stop:
			return
		}
	}
}

func (g *Gateway) evictIdle() {
	g.mu.Lock()
	slots := make([]*deviceSlot, 0, len(g.slots))
	for _, slot := range g.slots {
		slots = append(slots, slot)
	}
	g.mu.Unlock()

	now := time.Now()
	for _, slot := range slots {
		select {
		case slot.lock <- struct{}{}:
			if slot.session != nil && now.Sub(slot.lastUsed) > g.idleTimeout {
				slot.session.close()
				slot.session = nil
			}
			<-slot.lock
		default:
			// 使用中的会话不回收
		}
	}
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/store"
)

type fakeResolver struct {
	devices map[string]*model.DeviceModel
}

func (r *fakeResolver) Get(ctx context.Context, id int) (*model.DeviceModel, error) {
	return r.lookup(fmt.Sprintf("%d", id))
}

func (r *fakeResolver) GetByAddress(ctx context.Context, address string) (*model.DeviceModel, error) {
	return r.lookup(address)
}

func (r *fakeResolver) lookup(key string) (*model.DeviceModel, error) {
	device, ok := r.devices[key]
	if !ok {
		return nil, registry.ErrDeviceNotFound
	}
	return device, nil
}

// deviceOutcome 单次执行的预设结果
type deviceOutcome struct {
	transcript *gateway.Transcript
	err        error
}

// fakeRunner 按设备名顺序消费预设结果,并记录收到的程序
type fakeRunner struct {
	mu       sync.Mutex
	outcomes map[string][]deviceOutcome
	programs map[string][]gateway.Program
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outcomes: make(map[string][]deviceOutcome),
		programs: make(map[string][]gateway.Program),
	}
}

func (r *fakeRunner) queue(deviceName string, transcript *gateway.Transcript, err error) {
	r.outcomes[deviceName] = append(r.outcomes[deviceName], deviceOutcome{transcript: transcript, err: err})
}

func (r *fakeRunner) Execute(device *model.DeviceModel, program gateway.Program) (*gateway.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[device.Name] = append(r.programs[device.Name], program)

	queued := r.outcomes[device.Name]
	if len(queued) == 0 {
		return &gateway.Transcript{DeviceID: device.Name}, nil
	}
	outcome := queued[0]
	r.outcomes[device.Name] = queued[1:]
	return outcome.transcript, outcome.err
}

func okTranscript(device string, commands ...string) *gateway.Transcript {
	t := &gateway.Transcript{DeviceID: device}
	for _, command := range commands {
		t.Steps = append(t.Steps, gateway.StepResult{Command: command, Status: gateway.StepSuccess})
	}
	return t
}

func testRunner(resolver *fakeResolver, gw ProgramRunner) *deviceRunner {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &deviceRunner{
		registry:   resolver,
		gateway:    gw,
		maxRetries: 2,
		logger:     logger.WithField("component", "executor"),
	}
}

func twoDevices() *fakeResolver {
	one := &model.DeviceModel{ID: 1, Name: "sw-01", Address: "192.0.2.1", Protocol: model.ProtocolSSH}
	two := &model.DeviceModel{ID: 2, Name: "sw-02", Address: "192.0.2.2", Protocol: model.ProtocolSSH}
	// ID 与地址两种键指向同一设备,对应解析器的两条查找路径
	return &fakeResolver{devices: map[string]*model.DeviceModel{
		"1": one, "2": two,
		one.Address: one, two.Address: two,
	}}
}

func buildNoop(device *model.DeviceModel) (gateway.Program, error) {
	program := gateway.Program{}
	program.Send("display clock")
	return program, nil
}

func TestRunAllDevicesSucceed(t *testing.T) {
	runner := newFakeRunner()
	runner.queue("sw-01", okTranscript("sw-01", "display clock"), nil)
	runner.queue("sw-02", okTranscript("sw-02", "display clock"), nil)
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1", "2"}, buildNoop)

	assert.Equal(t, 2, result.Succeeded())
	assert.False(t, result.Partial)
	assert.Equal(t, "success", result.PerDeviceResults["1"].Status)
	assert.Equal(t, "success", result.PerDeviceResults["2"].Status)
}

func TestRunPartialFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.queue("sw-01", okTranscript("sw-01", "display clock"), nil)
	runner.queue("sw-02", nil, &gateway.AuthError{Device: "sw-02", Err: errors.New("bad password")})
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1", "2"}, buildNoop)

	assert.Equal(t, 1, result.Succeeded())
	assert.True(t, result.Partial)
	assert.Equal(t, "error", result.PerDeviceResults["2"].Status)
	assert.Contains(t, result.PerDeviceResults["2"].Error, "authentication failed")
}

func TestRunAllDevicesFail(t *testing.T) {
	runner := newFakeRunner()
	runner.queue("sw-01", nil, &gateway.AuthError{Device: "sw-01", Err: errors.New("bad password")})
	runner.queue("sw-02", nil, &gateway.AuthError{Device: "sw-02", Err: errors.New("bad password")})
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1", "2"}, buildNoop)

	assert.Equal(t, 0, result.Succeeded())
	assert.False(t, result.Partial)
}

func TestRetryOnUnreachableThenSucceed(t *testing.T) {
	runner := newFakeRunner()
	runner.queue("sw-01", nil, &gateway.UnreachableError{Device: "sw-01", Err: errors.New("timeout")})
	runner.queue("sw-01", okTranscript("sw-01", "display clock"), nil)
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1"}, buildNoop)

	device := result.PerDeviceResults["1"]
	assert.Equal(t, "success", device.Status)
	assert.Equal(t, 2, device.Attempts)
}

func TestNoRetryOnAuthFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.queue("sw-01", nil, &gateway.AuthError{Device: "sw-01", Err: errors.New("bad password")})
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1"}, buildNoop)

	device := result.PerDeviceResults["1"]
	assert.Equal(t, "error", device.Status)
	assert.Equal(t, 1, device.Attempts)
}

func TestStepErrorFailsDevice(t *testing.T) {
	transcript := &gateway.Transcript{
		DeviceID: "sw-01",
		Steps: []gateway.StepResult{
			{Command: "system-view", Status: gateway.StepSuccess},
			{Command: "ip pool office", Status: gateway.StepError, Hint: "Error: Invalid pool name"},
		},
	}
	runner := newFakeRunner()
	runner.queue("sw-01", transcript, nil)
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1"}, buildNoop)

	device := result.PerDeviceResults["1"]
	assert.Equal(t, "error", device.Status)
	assert.Contains(t, device.Error, "Invalid pool name")
}

func TestStepWarningStillSucceeds(t *testing.T) {
	transcript := &gateway.Transcript{
		DeviceID: "sw-01",
		Steps: []gateway.StepResult{
			{Command: "ip pool office", Status: gateway.StepWarning, Hint: "configuration already exists"},
		},
	}
	runner := newFakeRunner()
	runner.queue("sw-01", transcript, nil)
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"1"}, buildNoop)
	assert.Equal(t, "success", result.PerDeviceResults["1"].Status)
}

func TestUnknownDeviceFailsWithoutDialing(t *testing.T) {
	runner := newFakeRunner()
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"99"}, buildNoop)

	device := result.PerDeviceResults["99"]
	assert.Equal(t, "error", device.Status)
	assert.Equal(t, 0, device.Attempts)
	assert.Empty(t, runner.programs)
}

func TestResolveDeviceByAddress(t *testing.T) {
	runner := newFakeRunner()
	dr := testRunner(twoDevices(), runner)

	result := dr.run(context.Background(), []string{"192.0.2.2"}, buildNoop)
	assert.Equal(t, "success", result.PerDeviceResults["192.0.2.2"].Status)
	assert.Len(t, runner.programs["sw-02"], 1)
}

func dhcpTask(params string) *model.TaskModel {
	return &model.TaskModel{
		TaskID:   "task-dhcp-1",
		TaskType: model.TaskTypeDHCP,
		Status:   model.StatusRunning,
		Params:   datatypes.JSON(params),
	}
}

func TestDHCPHandlerBuildsPoolProgram(t *testing.T) {
	runner := newFakeRunner()
	handler := &DHCPHandler{runner: testRunner(twoDevices(), runner)}

	task := dhcpTask(`{
		"device_ids": ["1"],
		"pool_name": "office",
		"network": "10.10.0.0",
		"mask": "255.255.255.0",
		"gateway": "10.10.0.1",
		"dns": "8.8.8.8"
	}`)

	result, err := handler.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded())

	require.Len(t, runner.programs["sw-01"], 1)
	program := runner.programs["sw-01"][0]

	var commands []string
	hasSave := false
	for _, step := range program.Steps {
		if step.Kind == gateway.StepSave {
			hasSave = true
		}
		if step.Command != "" {
			commands = append(commands, step.Command)
		}
	}
	assert.Contains(t, commands, "system-view")
	assert.Contains(t, commands, "dhcp enable")
	assert.Contains(t, commands, "ip pool office")
	assert.Contains(t, commands, "gateway-list 10.10.0.1")
	assert.Contains(t, commands, "network 10.10.0.0 mask 255.255.255.0")
	assert.Contains(t, commands, "dns-list 8.8.8.8")
	assert.Contains(t, commands, "lease day 3")
	assert.True(t, hasSave)
	// dhcp enable 必须先于地址池创建
	assert.Less(t, indexOf(commands, "dhcp enable"), indexOf(commands, "ip pool office"))
}

func TestDHCPHandlerRejectsMissingFields(t *testing.T) {
	handler := &DHCPHandler{runner: testRunner(twoDevices(), newFakeRunner())}

	_, err := handler.Execute(context.Background(), dhcpTask(`{"device_ids":["1"],"pool_name":"office"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestVPNHandlerBuildsTunnelProgram(t *testing.T) {
	runner := newFakeRunner()
	handler := &VPNHandler{runner: testRunner(twoDevices(), runner)}

	task := &model.TaskModel{
		TaskID:   "task-vpn-1",
		TaskType: model.TaskTypeVPN,
		Status:   model.StatusRunning,
		Params: datatypes.JSON(`{
			"device_ids": ["1"],
			"tunnel_number": 1,
			"tunnel_ip": "172.16.0.1",
			"source": "192.0.2.1",
			"destination": "198.51.100.1",
			"route_dest": "10.20.0.0",
			"route_mask": "255.255.0.0"
		}`),
	}

	_, err := handler.Execute(context.Background(), task)
	require.NoError(t, err)

	program := runner.programs["sw-01"][0]
	var commands []string
	for _, step := range program.Steps {
		if step.Command != "" {
			commands = append(commands, step.Command)
		}
	}
	assert.Contains(t, commands, "interface Tunnel0/0/1")
	assert.Contains(t, commands, "tunnel-protocol gre")
	assert.Contains(t, commands, "ip address 172.16.0.1 255.255.255.0")
	assert.Contains(t, commands, "ip route-static 10.20.0.0 255.255.0.0 Tunnel0/0/1")
}

func indexOf(list []string, target string) int {
	for i, s := range list {
		if s == target {
			return i
		}
	}
	return -1
}

// fakeQueue 记录状态迁移调用的任务存储替身
type fakeQueue struct {
	mu          sync.Mutex
	transitions []string
	failOnce    map[string]error
	history     []*model.TaskHistoryModel
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failOnce: make(map[string]error)}
}

func (q *fakeQueue) ClaimNext(executorID string, taskTypes []string) (*model.TaskModel, error) {
	return nil, nil
}

func (q *fakeQueue) TransitionStatus(taskID, newStatus string, opts store.TransitionOptions) (*model.TaskModel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err, ok := q.failOnce[newStatus]; ok {
		delete(q.failOnce, newStatus)
		return nil, err
	}
	q.transitions = append(q.transitions, newStatus)
	return &model.TaskModel{TaskID: taskID, Status: newStatus}, nil
}

func (q *fakeQueue) GetHistory(taskID string) ([]*model.TaskHistoryModel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.history, nil
}

func testExecutor(queue TaskQueue) *Executor {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Executor{
		id:             "executor-test",
		store:          queue,
		handlers:       make(map[string]Handler),
		notifier:       NopNotifier{},
		logger:         logger.WithField("component", "executor"),
		workers:        1,
		maxTaskRetries: 1,
	}
}

func TestProcessWithoutHandlerFailsTask(t *testing.T) {
	queue := newFakeQueue()
	e := testExecutor(queue)

	task := dhcpTask(`{"device_ids":["1"]}`)
	e.process(context.Background(), task)

	require.Equal(t, []string{model.StatusFailed}, queue.transitions)
}

func TestProcessCompletedWhenAnyDeviceSucceeds(t *testing.T) {
	queue := newFakeQueue()
	e := testExecutor(queue)

	runner := newFakeRunner()
	runner.queue("sw-01", okTranscript("sw-01", "display clock"), nil)
	runner.queue("sw-02", nil, &gateway.AuthError{Device: "sw-02", Err: errors.New("bad password")})
	e.Register(&DHCPHandler{runner: testRunner(twoDevices(), runner)})

	task := dhcpTask(`{"device_ids":["1","2"],"pool_name":"office","network":"10.10.0.0","mask":"255.255.255.0"}`)
	e.process(context.Background(), task)

	require.Equal(t, []string{model.StatusCompleted}, queue.transitions)
}

func TestProcessFailedWhenAllDevicesFail(t *testing.T) {
	queue := newFakeQueue()
	e := testExecutor(queue)

	runner := newFakeRunner()
	runner.queue("sw-01", nil, &gateway.AuthError{Device: "sw-01", Err: errors.New("bad password")})
	e.Register(&DHCPHandler{runner: testRunner(twoDevices(), runner)})

	task := dhcpTask(`{"device_ids":["1"],"pool_name":"office","network":"10.10.0.0","mask":"255.255.255.0"}`)
	e.process(context.Background(), task)

	require.Equal(t, []string{model.StatusFailed}, queue.transitions)
}

func TestFinishRequeuesOnTransientStoreFailure(t *testing.T) {
	queue := newFakeQueue()
	queue.failOnce[model.StatusCompleted] = &store.TransientError{Err: errors.New("connection refused")}
	e := testExecutor(queue)

	task := dhcpTask(`{"device_ids":["1"]}`)
	task.Status = model.StatusRunning
	e.finish(task, model.StatusCompleted, &Result{PerDeviceResults: map[string]DeviceResult{}}, "")

	// 瞬时故障:回到 approved 重新排队
	require.Equal(t, []string{model.StatusApproved}, queue.transitions)
}

func TestFinishFailsAfterRequeueBudgetExhausted(t *testing.T) {
	queue := newFakeQueue()
	queue.failOnce[model.StatusCompleted] = &store.TransientError{Err: errors.New("connection refused")}
	queue.history = []*model.TaskHistoryModel{
		{OldStatus: model.StatusRunning, NewStatus: model.StatusApproved},
	}
	e := testExecutor(queue)

	task := dhcpTask(`{"device_ids":["1"]}`)
	e.finish(task, model.StatusCompleted, nil, "")

	require.Equal(t, []string{model.StatusFailed}, queue.transitions)
}

func TestFinishDoesNotRequeueOnPermanentError(t *testing.T) {
	queue := newFakeQueue()
	queue.failOnce[model.StatusCompleted] = store.ErrIllegalTransition
	e := testExecutor(queue)

	task := dhcpTask(`{"device_ids":["1"]}`)
	e.finish(task, model.StatusCompleted, nil, "")

	assert.Empty(t, queue.transitions)
}

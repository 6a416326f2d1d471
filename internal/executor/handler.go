package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrHandlerMissing 任务类型没有注册处理器
var ErrHandlerMissing = errors.New("no handler registered for task type")

// DeviceResult 单台设备的执行结果
type DeviceResult struct {
	DeviceID string   `json:"device_id"`
	Status   string   `json:"status"`
	Commands []string `json:"commands,omitempty"`
	Output   string   `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
	Attempts int      `json:"attempts"`
}

// Result 任务的聚合结果
type Result struct {
	Partial          bool                    `json:"partial,omitempty"`
	PerDeviceResults map[string]DeviceResult `json:"per_device_results"`
}

// Succeeded 成功设备数
func (r *Result) Succeeded() int {
	n := 0
	for _, d := range r.PerDeviceResults {
		if d.Status == "success" {
			n++
		}
	}
	return n
}

// Handler 任务处理器:输入任务,输出聚合结果
type Handler interface {
	Type() string
	Execute(ctx context.Context, task *model.TaskModel) (*Result, error)
}

// programBuilder 按设备生成命令程序
type programBuilder func(device *model.DeviceModel) (gateway.Program, error)

// DeviceResolver 设备查找能力,由设备注册表实现
type DeviceResolver interface {
	Get(ctx context.Context, id int) (*model.DeviceModel, error)
	GetByAddress(ctx context.Context, address string) (*model.DeviceModel, error)
}

// ProgramRunner 程序执行能力,由设备网关实现
type ProgramRunner interface {
	Execute(device *model.DeviceModel, program gateway.Program) (*gateway.Transcript, error)
}

// deviceRunner 处理器共用的设备遍历与重试逻辑
type deviceRunner struct {
	registry   DeviceResolver
	gateway    ProgramRunner
	maxRetries int
	logger     *logrus.Entry
}

// backoffSchedule 设备级重试间隔
var backoffSchedule = []time.Duration{time.Second, 3 * time.Second}

// run 在每台声明的设备上执行程序并聚合结果
// 不可达与会话丢失按退避重试,认证失败与对话超时不重试
func (dr *deviceRunner) run(ctx context.Context, deviceIDs []string, build programBuilder) *Result {
	result := &Result{PerDeviceResults: make(map[string]DeviceResult, len(deviceIDs))}

	for _, deviceID := range deviceIDs {
		result.PerDeviceResults[deviceID] = dr.runDevice(ctx, deviceID, build)
	}

	succeeded := result.Succeeded()
	result.Partial = succeeded > 0 && succeeded < len(deviceIDs)
	return result
}

func (dr *deviceRunner) runDevice(ctx context.Context, deviceID string, build programBuilder) DeviceResult {
	device, err := dr.resolveDevice(ctx, deviceID)
	if err != nil {
		return DeviceResult{DeviceID: deviceID, Status: "error", Error: err.Error(), Attempts: 0}
	}

	program, err := build(device)
	if err != nil {
		return DeviceResult{DeviceID: deviceID, Status: "error", Error: err.Error(), Attempts: 0}
	}

	var transcript *gateway.Transcript
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= dr.maxRetries; attempt++ {
		attempts++
		transcript, lastErr = dr.gateway.Execute(device, program)
		if lastErr == nil {
			break
		}
		if !gateway.IsRetryable(lastErr) || attempt == dr.maxRetries {
			break
		}

		delay := backoffSchedule[len(backoffSchedule)-1]
		if attempt < len(backoffSchedule) {
			delay = backoffSchedule[attempt]
		}
		dr.logger.WithFields(logrus.Fields{
			"device":  device.Name,
			"attempt": attempts,
		}).WithError(lastErr).Warn("device execution failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = dr.maxRetries
		}
	}

	dres := DeviceResult{DeviceID: deviceID, Attempts: attempts}
	if transcript != nil {
		dres.Commands = transcript.Commands()
		dres.Output = transcript.Output
	}
	if lastErr != nil {
		dres.Status = "error"
		dres.Error = lastErr.Error()
		return dres
	}

	// 步骤级错误算设备失败,警告不算
	for _, step := range transcript.Steps {
		if step.Status == gateway.StepError {
			dres.Status = "error"
			dres.Error = step.Hint
			if dres.Error == "" {
				dres.Error = fmt.Sprintf("command %q rejected", step.Command)
			}
			return dres
		}
	}
	dres.Status = "success"
	return dres
}

// resolveDevice 设备标识可以是注册表主键或管理地址
func (dr *deviceRunner) resolveDevice(ctx context.Context, deviceID string) (*model.DeviceModel, error) {
	if id, err := strconv.Atoi(deviceID); err == nil {
		return dr.registry.Get(ctx, id)
	}
	return dr.registry.GetByAddress(ctx, deviceID)
}

func decodeParams(task *model.TaskModel, dst interface{}) error {
	if err := json.Unmarshal(task.Params, dst); err != nil {
		return fmt.Errorf("invalid params for task %s: %w", task.TaskID, err)
	}
	return nil
}

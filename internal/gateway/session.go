package gateway

import (
	"errors"
	"regexp"
	"time"

	"github.com/mautops/netops-gin/internal/model"
)

// errConnLost 会话中断的内部标记,由网关决定是否重连
var errConnLost = errors.New("connection lost")

// session 单个设备的活跃交互会话,持有视图栈以便重连后恢复
type session struct {
	device    *model.DeviceModel
	vendor    *Vendor
	transport Transport
	// 已进入的视图:进入命令与退出命令
	modes []modeFrame
}

type modeFrame struct {
	enterCommand string
	exitCommand  string
}

func newSession(device *model.DeviceModel, vendor *Vendor, transport Transport) *session {
	return &session{device: device, vendor: vendor, transport: transport}
}

func (s *session) close() {
	if s.transport != nil {
		s.transport.Close()
	}
}

// runStep 执行单个步骤并返回该步的输出
func (s *session) runStep(step Step, commandTimeout time.Duration) (StepResult, error) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = commandTimeout
	}

	switch step.Kind {
	case StepSend:
		return s.send(step.Command, step.Expect, step.OnPrompt, timeout)
	case StepEnterMode:
		expect := step.Expect
		if expect == nil {
			expect = s.vendor.PromptSystem
		}
		result, err := s.send(step.Command, expect, step.OnPrompt, timeout)
		if err == nil {
			s.modes = append(s.modes, modeFrame{enterCommand: step.Command, exitCommand: step.ExitCommand})
		}
		return result, err
	case StepExitMode:
		exit := "quit"
		if n := len(s.modes); n > 0 {
			exit = s.modes[n-1].exitCommand
			s.modes = s.modes[:n-1]
		}
		return s.send(exit, s.vendor.PromptAny, nil, timeout)
	case StepSave:
		return s.save(timeout)
	default:
		return StepResult{}, errors.New("unknown step kind")
	}
}

func (s *session) send(command string, expect *regexp.Regexp, onPrompt []PromptReply, timeout time.Duration) (StepResult, error) {
	if expect == nil {
		expect = s.vendor.PromptAny
	}
	if err := s.transport.WriteLine(command); err != nil {
		return StepResult{Command: command, Status: StepError}, errConnLost
	}

	output, err := s.waitFor(command, expect, onPrompt, timeout)
	if err != nil {
		return StepResult{Command: command, Output: output, Status: StepError}, err
	}

	status, hint := s.vendor.Classify(output)
	return StepResult{Command: command, Output: output, Status: status, Hint: hint}, nil
}

// save 下发保存命令,应答 Y/N 确认,只有看到成功令牌才算成功
func (s *session) save(timeout time.Duration) (StepResult, error) {
	replies := []PromptReply{{Pattern: s.vendor.ConfirmPattern, Reply: s.vendor.ConfirmReply}}
	result, err := s.send(s.vendor.SaveCommand, s.vendor.SaveSuccess, replies, timeout)
	if err != nil {
		return result, err
	}
	if !s.vendor.SaveSuccess.MatchString(result.Output) {
		result.Status = StepError
		result.Hint = "save not confirmed"
	}
	return result, nil
}

// waitFor 读取输出直到期望提示出现
// 中途匹配 onPrompt 的提示会自动应答后继续等待
func (s *session) waitFor(command string, expect *regexp.Regexp, onPrompt []PromptReply, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var output []byte
	// 自动应答后只对新输出再匹配,避免对同一提示重复应答
	promptOffset := 0

	for {
		select {
		case chunk, ok := <-s.transport.Output():
			if !ok {
				return string(output), errConnLost
			}
			output = append(output, chunk...)

			replied := false
			for _, pr := range onPrompt {
				if loc := pr.Pattern.FindIndex(output[promptOffset:]); loc != nil {
					if err := s.transport.WriteLine(pr.Reply); err != nil {
						return string(output), errConnLost
					}
					promptOffset += loc[1]
					replied = true
					break
				}
			}
			if replied {
				continue
			}

			if expect.Match(output) {
				return string(output), nil
			}
		case <-deadline.C:
			return string(output), &DialogTimeout{
				Device:  s.device.Name,
				Command: command,
				Partial: string(output),
			}
		}
	}
}

// replayModes 重连后按原顺序重新进入视图栈
func (s *session) replayModes(frames []modeFrame, timeout time.Duration) error {
	s.modes = nil
	for _, frame := range frames {
		if _, err := s.send(frame.enterCommand, s.vendor.PromptSystem, nil, timeout); err != nil {
			return err
		}
		s.modes = append(s.modes, frame)
	}
	return nil
}

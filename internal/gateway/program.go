package gateway

import (
	"regexp"
	"time"
)

// StepKind 步骤类型
type StepKind int

const (
	StepSend StepKind = iota
	StepEnterMode
	StepExitMode
	StepSave
)

// 步骤结果状态
const (
	StepSuccess = "success"
	StepWarning = "warning"
	StepError   = "error"
)

// PromptReply 对话中途出现的提示及其自动应答
type PromptReply struct {
	Pattern *regexp.Regexp
	Reply   string
}

// Step 交互式会话中的一个命令步骤
// Expect 为 nil 时等待当前视图的默认提示符
type Step struct {
	Kind     StepKind
	Command  string
	Expect   *regexp.Regexp
	OnPrompt []PromptReply
	Timeout  time.Duration
	// EnterMode 时记录退出该视图的命令,默认 quit
	ExitCommand string
}

// Program 在单个会话内按序执行的步骤序列
type Program struct {
	Steps []Step
}

// Send 追加一个命令步骤
func (p *Program) Send(command string) *Program {
	p.Steps = append(p.Steps, Step{Kind: StepSend, Command: command})
	return p
}

// SendDialog 追加一个带自定义期望提示与中途应答的命令步骤
func (p *Program) SendDialog(command string, expect *regexp.Regexp, replies ...PromptReply) *Program {
	p.Steps = append(p.Steps, Step{Kind: StepSend, Command: command, Expect: expect, OnPrompt: replies})
	return p
}

// EnterMode 进入子视图,退出命令默认 quit
func (p *Program) EnterMode(command string, expect *regexp.Regexp) *Program {
	p.Steps = append(p.Steps, Step{
		Kind: StepEnterMode, Command: command, Expect: expect, ExitCommand: "quit",
	})
	return p
}

// ExitMode 退出当前视图
func (p *Program) ExitMode() *Program {
	p.Steps = append(p.Steps, Step{Kind: StepExitMode})
	return p
}

// Save 保存配置,含 Y/N 确认
func (p *Program) Save() *Program {
	p.Steps = append(p.Steps, Step{Kind: StepSave})
	return p
}

// StepResult 单步执行结果
type StepResult struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Status  string `json:"status"`
	Hint    string `json:"hint,omitempty"`
}

// Transcript 程序执行的完整记录
type Transcript struct {
	DeviceID string       `json:"device_id"`
	Steps    []StepResult `json:"steps"`
	Output   string       `json:"output"`
}

// HasWarnings 是否有步骤以警告结束
func (t *Transcript) HasWarnings() bool {
	for _, s := range t.Steps {
		if s.Status == StepWarning {
			return true
		}
	}
	return false
}

// Commands 已下发的命令列表
func (t *Transcript) Commands() []string {
	commands := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s.Command != "" {
			commands = append(commands, s.Command)
		}
	}
	return commands
}

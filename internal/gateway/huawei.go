package gateway

import (
	"regexp"
	"strings"
)

// Vendor 厂商对话约定:提示符、保存序列、输出分类
type Vendor struct {
	Name string
	// 用户视图提示符
	PromptUser *regexp.Regexp
	// 系统视图及各级配置视图提示符
	PromptSystem *regexp.Regexp
	// 任意视图提示符
	PromptAny *regexp.Regexp
	// 进入系统视图的命令
	SystemViewCommand string
	SaveCommand       string
	ConfirmPattern    *regexp.Regexp
	ConfirmReply      string
	SaveSuccess       *regexp.Regexp
}

// Huawei VRP 的对话约定
// 用户视图 <Name>,系统视图 [Name],配置保存需 Y/N 确认
var Huawei = &Vendor{
	Name:              "huawei",
	PromptUser:        regexp.MustCompile(`>\s*$`),
	PromptSystem:      regexp.MustCompile(`\]\s*$`),
	PromptAny:         regexp.MustCompile(`[>\]]\s*$`),
	SystemViewCommand: "system-view",
	SaveCommand:       "save",
	ConfirmPattern:    regexp.MustCompile(`\[Y/N\]`),
	ConfirmReply:      "Y",
	SaveSuccess:       regexp.MustCompile(`successfully`),
}

// VendorFor 按注册表中的 vendor 字段解析厂商约定,默认华为
func VendorFor(name string) *Vendor {
	switch strings.ToLower(name) {
	case "", "huawei":
		return Huawei
	default:
		return Huawei
	}
}

// Classify 对单步输出分类
// "already exists" 一类的重复配置响应是警告而非失败,保证程序可重复执行
func (v *Vendor) Classify(output string) (status, hint string) {
	if strings.Contains(output, "already exist") {
		return StepWarning, "configuration already exists"
	}
	for _, token := range []string{"Error", "Invalid", "Unrecognized command", "Incomplete command"} {
		if strings.Contains(output, token) {
			if line := firstLineContaining(output, token); line != "" {
				return StepError, line
			}
			return StepError, token
		}
	}
	return StepSuccess, ""
}

func firstLineContaining(output, token string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, token) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

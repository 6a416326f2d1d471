package gateway

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mautops/netops-gin/internal/model"
)

// UnknownValue 解析失败时的占位值
// 探针解析器是宽容的:字段缺失返回占位而不是错误,由监控引擎走缓存降级
const UnknownValue = -1

var (
	cpuUsageRe   = regexp.MustCompile(`CPU [Uu]sage[^\d]*(\d+(?:\.\d+)?)%`)
	memUsageRe   = regexp.MustCompile(`Memory [Uu]s(?:ing|age)[^\d]*?(\d+(?:\.\d+)?)%`)
	inputRateRe  = regexp.MustCompile(`[Ii]nput rate[^\n]*?(\d+)\s+bits/sec`)
	outputRateRe = regexp.MustCompile(`[Oo]utput rate[^\n]*?(\d+)\s+bits/sec`)
)

// GetCpuMemory 读取 CPU 与内存占用百分比
func (g *Gateway) GetCpuMemory(device *model.DeviceModel) (cpuPct, memPct float64, err error) {
	program := Program{}
	program.Send("display cpu-usage").Send("display memory-usage")

	transcript, err := g.Execute(device, program)
	if err != nil {
		return UnknownValue, UnknownValue, err
	}

	cpuPct, memPct = UnknownValue, UnknownValue
	if len(transcript.Steps) > 0 {
		cpuPct = parsePercent(cpuUsageRe, transcript.Steps[0].Output)
	}
	if len(transcript.Steps) > 1 {
		memPct = parsePercent(memUsageRe, transcript.Steps[1].Output)
	}
	return cpuPct, memPct, nil
}

// GetInterfaces 读取接口简表
// NULL/InLoop/MEth 等内部接口行被跳过,*down 表示管理性关闭
func (g *Gateway) GetInterfaces(device *model.DeviceModel) ([]model.InterfaceStatus, error) {
	program := Program{}
	program.Send("display interface brief")

	transcript, err := g.Execute(device, program)
	if err != nil {
		return nil, err
	}
	if len(transcript.Steps) == 0 {
		return nil, nil
	}
	return parseInterfaceBrief(transcript.Steps[0].Output), nil
}

// GetInterfaceRates 读取单个接口的实时输入输出速率,bits/sec
func (g *Gateway) GetInterfaceRates(device *model.DeviceModel, iface string) (inputBps, outputBps int64, err error) {
	program := Program{}
	program.Send("display interface " + iface)

	transcript, err := g.Execute(device, program)
	if err != nil {
		return UnknownValue, UnknownValue, err
	}

	output := ""
	if len(transcript.Steps) > 0 {
		output = transcript.Steps[0].Output
	}
	return parseRate(inputRateRe, output), parseRate(outputRateRe, output), nil
}

// BounceInterface 对接口做 shutdown / undo shutdown 自愈
func (g *Gateway) BounceInterface(device *model.DeviceModel, iface string) (*Transcript, error) {
	vendor := VendorFor(device.Vendor)
	program := Program{}
	program.EnterMode(vendor.SystemViewCommand, vendor.PromptSystem).
		EnterMode("interface "+iface, vendor.PromptSystem).
		Send("shutdown").
		Send("undo shutdown").
		ExitMode().
		ExitMode().
		Save()
	return g.Execute(device, program)
}

var rebootContinueRe = regexp.MustCompile(`Continue\?\s*\[Y/N\]`)

// RebootDevice 远程重启设备
// 重启有两次 Continue?[Y/N] 确认,成功令牌为 System will reboot
func (g *Gateway) RebootDevice(device *model.DeviceModel) (*Transcript, error) {
	program := Program{}
	program.SendDialog("reboot", regexp.MustCompile(`System will reboot`),
		PromptReply{Pattern: rebootContinueRe, Reply: "Y"})
	transcript, err := g.Execute(device, program)
	if err != nil {
		return transcript, err
	}
	// 设备随即断连,主动丢弃会话
	g.CloseSession(deviceKey(device))
	return transcript, nil
}

func parsePercent(re *regexp.Regexp, output string) float64 {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return UnknownValue
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return UnknownValue
	}
	return v
}

func parseRate(re *regexp.Regexp, output string) int64 {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return UnknownValue
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return UnknownValue
	}
	return v
}

var skipInterfacePrefixes = []string{"NULL", "InLoop", "MEth", "Interface", "PHY", "InUti", "*down:", "(l):", "(s):", "(b):", "(d):", "^down:"}

// parseInterfaceBrief 解析 display interface brief 的表格输出
func parseInterfaceBrief(output string) []model.InterfaceStatus {
	var interfaces []model.InterfaceStatus

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		if skipInterface(name) {
			continue
		}
		// 行形如: GigabitEthernet0/0/1  up  up  0.01%  0.01%  0  0
		phy := fields[1]
		proto := fields[2]

		status := model.InterfaceStatus{Name: name}
		switch {
		case phy == "*down":
			status.AdminState = "down"
			status.OperState = "down"
		case strings.HasPrefix(phy, "up"):
			status.AdminState = "up"
			status.OperState = "up"
		default:
			status.AdminState = "up"
			status.OperState = "down"
		}
		if strings.HasPrefix(proto, "down") && status.OperState == "up" {
			status.OperState = "down"
		}

		if len(fields) >= 7 {
			inErr, err1 := strconv.ParseInt(fields[5], 10, 64)
			outErr, err2 := strconv.ParseInt(fields[6], 10, 64)
			if err1 == nil && err2 == nil {
				status.ErrorCounter = int(inErr + outErr)
			}
		}
		interfaces = append(interfaces, status)
	}
	return interfaces
}

func skipInterface(name string) bool {
	for _, prefix := range skipInterfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	// 图例行与表头不含接口名
	return !strings.ContainsAny(name, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
}

package executor

import (
	"context"
	"fmt"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
)

// vpnParams vpn_config 任务参数,GRE 隧道部署
type vpnParams struct {
	DeviceIDs    []string `json:"device_ids"`
	TunnelNumber int      `json:"tunnel_number"`
	TunnelIP     string   `json:"tunnel_ip"`
	TunnelMask   string   `json:"tunnel_mask"`
	Source       string   `json:"source"`
	Destination  string   `json:"destination"`

	// 可选:经隧道的静态路由
	RouteDest string `json:"route_dest,omitempty"`
	RouteMask string `json:"route_mask,omitempty"`
}

// VPNHandler 部署 GRE 隧道及可选的隧道路由
type VPNHandler struct {
	runner *deviceRunner
}

func (h *VPNHandler) Type() string { return model.TaskTypeVPN }

func (h *VPNHandler) Execute(ctx context.Context, task *model.TaskModel) (*Result, error) {
	var params vpnParams
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if params.TunnelIP == "" || params.Source == "" || params.Destination == "" {
		return nil, fmt.Errorf("vpn task %s: tunnel_ip, source and destination are required", task.TaskID)
	}
	mask := params.TunnelMask
	if mask == "" {
		mask = "255.255.255.0"
	}

	return h.runner.run(ctx, params.DeviceIDs, func(device *model.DeviceModel) (gateway.Program, error) {
		vendor := gateway.VendorFor(device.Vendor)
		iface := fmt.Sprintf("Tunnel0/0/%d", params.TunnelNumber)

		program := gateway.Program{}
		program.EnterMode(vendor.SystemViewCommand, vendor.PromptSystem).
			EnterMode(fmt.Sprintf("interface %s", iface), vendor.PromptSystem).
			Send("tunnel-protocol gre").
			Send(fmt.Sprintf("ip address %s %s", params.TunnelIP, mask)).
			Send(fmt.Sprintf("source %s", params.Source)).
			Send(fmt.Sprintf("destination %s", params.Destination)).
			ExitMode()
		if params.RouteDest != "" && params.RouteMask != "" {
			program.Send(fmt.Sprintf("ip route-static %s %s %s", params.RouteDest, params.RouteMask, iface))
		}
		program.ExitMode().Save()
		return program, nil
	}), nil
}

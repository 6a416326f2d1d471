package executor

import (
	"context"
	"fmt"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
)

// dhcpParams dhcp_config 任务参数
type dhcpParams struct {
	DeviceIDs []string `json:"device_ids"`
	PoolName  string   `json:"pool_name"`
	Network   string   `json:"network"`
	Mask      string   `json:"mask"`
	Gateway   string   `json:"gateway,omitempty"`
	DNS       string   `json:"dns,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	LeaseDays int      `json:"lease_days,omitempty"`
}

// DHCPHandler 下发全局地址池配置
type DHCPHandler struct {
	runner *deviceRunner
}

func (h *DHCPHandler) Type() string { return model.TaskTypeDHCP }

func (h *DHCPHandler) Execute(ctx context.Context, task *model.TaskModel) (*Result, error) {
	var params dhcpParams
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if params.PoolName == "" || params.Network == "" || params.Mask == "" {
		return nil, fmt.Errorf("dhcp task %s: pool_name, network and mask are required", task.TaskID)
	}
	lease := params.LeaseDays
	if lease <= 0 {
		lease = 3
	}

	return h.runner.run(ctx, params.DeviceIDs, func(device *model.DeviceModel) (gateway.Program, error) {
		vendor := gateway.VendorFor(device.Vendor)
		program := gateway.Program{}
		program.EnterMode(vendor.SystemViewCommand, vendor.PromptSystem).
			Send("dhcp enable").
			EnterMode(fmt.Sprintf("ip pool %s", params.PoolName), vendor.PromptSystem)
		if params.Gateway != "" {
			program.Send(fmt.Sprintf("gateway-list %s", params.Gateway))
		}
		program.Send(fmt.Sprintf("network %s mask %s", params.Network, params.Mask))
		if params.DNS != "" {
			program.Send(fmt.Sprintf("dns-list %s", params.DNS))
		}
		if params.Domain != "" {
			program.Send(fmt.Sprintf("domain-name %s", params.Domain))
		}
		program.Send(fmt.Sprintf("lease day %d", lease)).
			ExitMode().
			ExitMode().
			Send("display ip pool").
			Save()
		return program, nil
	}), nil
}

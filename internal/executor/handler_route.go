package executor

import (
	"context"
	"fmt"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
)

// routeParams route_config 任务参数
// kind 取值 static/rip/ospf/bgp,各 kind 使用不同的字段子集
type routeParams struct {
	DeviceIDs []string `json:"device_ids"`
	Kind      string   `json:"kind"`

	// static
	Destination string `json:"destination,omitempty"`
	Mask        string `json:"mask,omitempty"`
	NextHop     string `json:"next_hop,omitempty"`

	// rip / ospf
	Networks []string `json:"networks,omitempty"`

	// ospf
	ProcessID int    `json:"process_id,omitempty"`
	AreaID    string `json:"area_id,omitempty"`
	Wildcard  string `json:"wildcard,omitempty"`

	// bgp
	ASNumber int    `json:"as_number,omitempty"`
	RouterID string `json:"router_id,omitempty"`
	Peers    []struct {
		Address  string `json:"address"`
		RemoteAS int    `json:"remote_as"`
	} `json:"peers,omitempty"`
}

// RouteHandler 下发静态路由或动态路由协议配置
type RouteHandler struct {
	runner *deviceRunner
}

func (h *RouteHandler) Type() string { return model.TaskTypeRoute }

func (h *RouteHandler) Execute(ctx context.Context, task *model.TaskModel) (*Result, error) {
	var params routeParams
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}

	build, err := h.builder(params)
	if err != nil {
		return nil, fmt.Errorf("route task %s: %w", task.TaskID, err)
	}
	return h.runner.run(ctx, params.DeviceIDs, build), nil
}

func (h *RouteHandler) builder(params routeParams) (programBuilder, error) {
	switch params.Kind {
	case "static":
		if params.Destination == "" || params.Mask == "" || params.NextHop == "" {
			return nil, fmt.Errorf("static route requires destination, mask and next_hop")
		}
	case "rip", "ospf":
		if len(params.Networks) == 0 {
			return nil, fmt.Errorf("%s requires at least one network", params.Kind)
		}
	case "bgp":
		if params.ASNumber <= 0 {
			return nil, fmt.Errorf("bgp requires as_number")
		}
	default:
		return nil, fmt.Errorf("unknown route kind %q", params.Kind)
	}

	return func(device *model.DeviceModel) (gateway.Program, error) {
		vendor := gateway.VendorFor(device.Vendor)
		program := gateway.Program{}
		program.EnterMode(vendor.SystemViewCommand, vendor.PromptSystem)

		switch params.Kind {
		case "static":
			program.Send(fmt.Sprintf("ip route-static %s %s %s", params.Destination, params.Mask, params.NextHop))
		case "rip":
			program.EnterMode("rip", vendor.PromptSystem).
				Send("version 2")
			for _, network := range params.Networks {
				program.Send(fmt.Sprintf("network %s", network))
			}
			program.ExitMode()
		case "ospf":
			pid := params.ProcessID
			if pid <= 0 {
				pid = 1
			}
			area := params.AreaID
			if area == "" {
				area = "0"
			}
			wildcard := params.Wildcard
			if wildcard == "" {
				wildcard = "0.0.0.255"
			}
			program.EnterMode(fmt.Sprintf("ospf %d", pid), vendor.PromptSystem).
				EnterMode(fmt.Sprintf("area %s", area), vendor.PromptSystem)
			for _, network := range params.Networks {
				program.Send(fmt.Sprintf("network %s %s", network, wildcard))
			}
			program.ExitMode().ExitMode()
		case "bgp":
			program.EnterMode(fmt.Sprintf("bgp %d", params.ASNumber), vendor.PromptSystem)
			if params.RouterID != "" {
				program.Send(fmt.Sprintf("router-id %s", params.RouterID))
			}
			for _, peer := range params.Peers {
				program.Send(fmt.Sprintf("peer %s as-number %d", peer.Address, peer.RemoteAS))
			}
			for _, network := range params.Networks {
				program.Send(fmt.Sprintf("network %s", network))
			}
			program.ExitMode()
		}

		program.ExitMode().Save()
		return program, nil
	}, nil
}

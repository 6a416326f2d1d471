package executor

import (
	"context"
	"fmt"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
)

// batchAddressParams batch_address_config 任务参数
// 每个条目配置一个物理接口或 Vlanif 的地址
type batchAddressParams struct {
	DeviceIDs []string `json:"device_ids"`
	Entries   []struct {
		Interface string `json:"interface,omitempty"`
		VlanID    int    `json:"vlan_id,omitempty"`
		IP        string `json:"ip"`
		Mask      string `json:"mask"`
	} `json:"entries"`
}

// BatchAddressHandler 批量下发接口地址
type BatchAddressHandler struct {
	runner *deviceRunner
}

func (h *BatchAddressHandler) Type() string { return model.TaskTypeBatchAddress }

func (h *BatchAddressHandler) Execute(ctx context.Context, task *model.TaskModel) (*Result, error) {
	var params batchAddressParams
	if err := decodeParams(task, &params); err != nil {
		return nil, err
	}
	if len(params.Entries) == 0 {
		return nil, fmt.Errorf("batch address task %s: entries is empty", task.TaskID)
	}
	for i, entry := range params.Entries {
		if entry.IP == "" || entry.Mask == "" {
			return nil, fmt.Errorf("batch address task %s: entry %d missing ip or mask", task.TaskID, i)
		}
		if entry.Interface == "" && entry.VlanID == 0 {
			return nil, fmt.Errorf("batch address task %s: entry %d needs interface or vlan_id", task.TaskID, i)
		}
	}

	return h.runner.run(ctx, params.DeviceIDs, func(device *model.DeviceModel) (gateway.Program, error) {
		vendor := gateway.VendorFor(device.Vendor)
		program := gateway.Program{}
		program.EnterMode(vendor.SystemViewCommand, vendor.PromptSystem)
		for _, entry := range params.Entries {
			iface := entry.Interface
			if iface == "" {
				iface = fmt.Sprintf("Vlanif %d", entry.VlanID)
				program.Send(fmt.Sprintf("vlan %d", entry.VlanID)).
					Send("quit")
			}
			program.EnterMode(fmt.Sprintf("interface %s", iface), vendor.PromptSystem).
				Send(fmt.Sprintf("ip address %s %s", entry.IP, entry.Mask)).
				ExitMode()
		}
		program.ExitMode().Save()
		return program, nil
	}), nil
}

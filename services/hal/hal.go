// services/hal/hal.go
package hal

import (
	"context"

	"bmscode-go/bus"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider"
	"bmscode-go/services/hal/internal/provider/setups"
	"bmscode-go/types"

	// Register device builders.
	_ "bmscode-go/services/hal/devices/ltc6811"
)

// Plans names the resource plans a program may select.
var Plans = map[string]setups.ResourcePlan{
	"bench":  setups.SelectedPlan,
	"spidev": setups.SpidevPlan,
}

// Run starts the HAL on conn with the named resource plan ("" => the
// selected plan) and blocks until ctx ends. Devices arrive on config/hal.
func Run(ctx context.Context, conn *bus.Connection, plan string) {
	if p, ok := Plans[plan]; ok {
		provider.SelectedPlan = p
	} else if plan != "" {
		println("[hal] unknown plan:", plan, "- using the selected plan")
	}
	res, reg := provider.NewResources()
	defer reg.Close()
	core.NewHAL(conn, res).Run(ctx)
}

// CapTopic returns hal/cap/<domain>/<kind>/<name> followed by leaf tokens,
// e.g. CapTopic("power", types.KindCells, "pack", "control", "read").
func CapTopic(domain string, kind types.Kind, name string, leaf ...any) bus.Topic {
	return bus.T("hal", "cap", domain, string(kind), name).Append(leaf...)
}

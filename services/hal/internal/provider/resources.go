package provider

import (
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider/setups"
)

// SelectedPlan and InitialHALConfig describe the bench setup unless a
// program replaces them before NewResources.
var (
	SelectedPlan     = setups.SelectedPlan
	InitialHALConfig = core.HALConfig(setups.SelectedSetup)
)

// NewResources constructs the registry from the selected plan.
func NewResources() (core.Resources, *Registry) {
	reg := NewResourceRegistry(SelectedPlan)
	return core.Resources{Reg: reg}, reg
}

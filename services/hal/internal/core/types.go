package core

import (
	"context"

	"bmscode-go/errcode"
	"bmscode-go/types"
)

// ---- Capability & device model ----

// CapAddr is the public address of a capability:
// hal/cap/<domain>/<kind>/<name>.
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string // "" => inferred from Kind
	Kind   types.Kind
	Name   string // "" => device ID
	Info   types.Info
}

// EnqueueResult reports whether a control was accepted by the device worker.
// The outcome of the work itself arrives later as an Event.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code // set when OK is false; "" => busy
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Control must not block. It validates and enqueues verb for addr.
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error // release claimed resources
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}

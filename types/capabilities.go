package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindCells       Kind = "cells"       // per-cell voltages of a monitor chain
	KindTemperature Kind = "temperature" // die temperatures
	KindStack       Kind = "stack"       // sum of cells, supplies, flags
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "power"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}

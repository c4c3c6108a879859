package core

import "tinygo.org/x/drivers"

type ResourceID string // e.g. "spi0", "sim0"

// ---- Transactional buses ----

// SPIOwner is an SPI bus with a chip-select line held by one device.
// ChipSelect(false) asserts CS (active low) and brackets the Tx calls of a
// transaction; the owner keeps CS asserted between them.
type SPIOwner interface {
	drivers.SPI
	ChipSelect(level bool)
}

// ---- Device → HAL telemetry (single shape) ----
// By default, an Event represents a "value-like" update for a capability that
// HAL should publish to .../value (retained). If IsEvent is true, HAL instead
// publishes to .../event (non-retained). Err, when non-empty, causes HAL to
// publish only .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any    // typed value payload (e.g. types.CellsValue)
	TS       int64  // Unix ns
	Err      string // "pec_mismatch","conversion_timeout","io_error",...
	IsEvent  bool   // true => publish to .../event (non-retained)
	EventTag string // optional subtopic tag for events
}

// ---- Event emission (devices → HAL) ----

type EventEmitter interface {
	// Emit tries to enqueue an Event for HAL publication.
	// It must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL; devices use it to emit values/events
}

// ---- Registry interface ----

type ResourceRegistry interface {
	// ClaimSPI hands id to devID exclusively. Errors are errcode.UnknownBus
	// or errcode.Conflict.
	ClaimSPI(devID string, id ResourceID) (SPIOwner, error)
	ReleaseSPI(devID string, id ResourceID)
}

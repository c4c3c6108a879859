package errcode

import (
	"errors"

	"bmscode-go/drivers/ltc6811"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	Unavailable       Code = "unavailable"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Conflict   Code = "conflict"
	Timeout    Code = "timeout"

	// Battery monitor chain.
	PECMismatch       Code = "pec_mismatch"
	ConversionTimeout Code = "conversion_timeout"
	ShortBuffer       Code = "short_buffer"
	NoDevices         Code = "no_devices"
	IOError           Code = "io_error"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ltc6811.ErrPEC):
		return PECMismatch
	case errors.Is(err, ltc6811.ErrConversionTimeout):
		return ConversionTimeout
	case errors.Is(err, ltc6811.ErrShortBuffer):
		return ShortBuffer
	case errors.Is(err, ltc6811.ErrNoDevices), errors.Is(err, ltc6811.ErrTooManyDevices):
		return InvalidParams
	}
	if c := Of(err); c != Error {
		return c
	}
	return IOError
}

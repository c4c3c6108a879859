package ltc6811

import "errors"

var (
	// Sentinel errors (TinyGo-safe; no fmt)
	ErrPEC               = errors.New("ltc6811: PEC mismatch")
	ErrConversionTimeout = errors.New("ltc6811: conversion poll limit reached")
	ErrShortBuffer       = errors.New("ltc6811: buffer too short for chain")
	ErrNoDevices         = errors.New("ltc6811: chain has no devices")
	ErrTooManyDevices    = errors.New("ltc6811: chain longer than MaxDevices")
)

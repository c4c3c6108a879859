package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Bench: two simulated LTC6811s on spi0.
const cfgBench = `{
  "heartbeat": {"interval": 5},
  "hal": {
    "devices": [
      {
        "id": "bms0",
        "type": "ltc6811",
        "params": {
          "bus": "spi0",
          "devices": 2,
          "domain": "power",
          "name": "pack",
          "mode": "7khz",
          "vuv_mV": 3000,
          "vov_mV": 4200
        }
      }
    ],
    "pollers": [
      {"domain": "power", "kind": "cells", "name": "pack", "verb": "read", "interval_ms": 1000, "jitter_ms": 50}
    ]
  }
}`

// Raspberry Pi with an isoSPI adapter on spidev0.0; filtered mode for a
// noisy pack.
const cfgRPi = `{
  "heartbeat": {"interval": 30},
  "hal": {
    "devices": [
      {
        "id": "bms0",
        "type": "ltc6811",
        "params": {
          "bus": "spi0",
          "devices": 4,
          "domain": "power",
          "name": "pack",
          "mode": "26hz",
          "vuv_mV": 2800,
          "vov_mV": 4200,
          "poll_limit": 65536
        }
      }
    ],
    "pollers": [
      {"domain": "power", "kind": "cells", "name": "pack", "verb": "read", "interval_ms": 2000, "jitter_ms": 100}
    ]
  }
}`

var embeddedConfigs = map[string][]byte{
	"bench": []byte(cfgBench),
	"rpi":   []byte(cfgRPi),
}

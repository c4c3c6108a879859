package setups

import (
	ltc6811dev "bmscode-go/services/hal/devices/ltc6811"
	"bmscode-go/types"
)

// SelectedPlan wires buses and sets operating parameters for this setup.
// The bench setup runs a simulated two-device chain.
var SelectedPlan = ResourcePlan{
	SPI: []SPIPlan{
		{ID: "spi0", Driver: DriverSim, Hz: 1_000_000, Devices: 2},
	},
}

// SpidevPlan is the same chain on a Raspberry Pi header (isoSPI adapter on
// SPI0 with GPIO8 as chip select).
var SpidevPlan = ResourcePlan{
	SPI: []SPIPlan{
		{ID: "spi0", Driver: DriverSpidev, Hz: 1_000_000, Port: "/dev/spidev0.0", CS: "GPIO8"},
	},
}

// SelectedSetup lists logical devices for HAL to instantiate on boot.
// Names are chosen for meaningful public addresses under hal/cap/…
var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		// Cell monitor chain (hal/cap/power/{cells,temperature,stack}/pack/…)
		{ID: "bms0", Type: "ltc6811", Params: ltc6811dev.Params{
			Bus:     "spi0",
			Devices: 2,
			Domain:  "power",
			Name:    "pack",
			Mode:    "7khz",
			VUVmV:   3000,
			VOVmV:   4200,
		}},
	},
	Pollers: []types.PollSpec{
		{Domain: "power", Kind: types.KindCells, Name: "pack", Verb: "read", IntervalMs: 1000, JitterMs: 50},
	},
}

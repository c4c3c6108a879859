package setups

// ResourcePlan specifies wiring and operating parameters chosen by a setup.
// Providers consume this plan to instantiate resource owners.
type ResourcePlan struct {
	SPI []SPIPlan
}

// SPI bus drivers.
const (
	DriverSim    = "sim"    // in-process simulated chain
	DriverSpidev = "spidev" // Linux spidev through periph.io
)

type SPIPlan struct {
	ID     string // e.g. "spi0"
	Driver string // DriverSim | DriverSpidev
	Hz     uint32 // bus clock; 0 => 1MHz

	// spidev
	Port string // periph port name, e.g. "/dev/spidev0.0" or "SPI0.0"
	CS   string // GPIO driven as chip select, e.g. "GPIO8"

	// sim
	Devices int // simulated chain length
}

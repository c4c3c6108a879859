package provider

import (
	"testing"

	"bmscode-go/drivers/ltc6811"
	"bmscode-go/errcode"
	"bmscode-go/services/hal/internal/provider/setups"
)

func newSimRegistry(t *testing.T, devices int) *Registry {
	t.Helper()
	r := NewResourceRegistry(setups.ResourcePlan{SPI: []setups.SPIPlan{
		{ID: "spi0", Driver: setups.DriverSim, Devices: devices},
	}})
	t.Cleanup(r.Close)
	return r
}

func TestClaimSPIOwnership(t *testing.T) {
	r := newSimRegistry(t, 1)

	if _, err := r.ClaimSPI("a", "spi9"); err != errcode.UnknownBus {
		t.Fatalf("unknown bus: got %v", err)
	}
	if _, err := r.ClaimSPI("a", "spi0"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := r.ClaimSPI("a", "spi0"); err != nil {
		t.Fatalf("reclaim by owner: %v", err)
	}
	if _, err := r.ClaimSPI("b", "spi0"); err != errcode.Conflict {
		t.Fatalf("second owner: got %v", err)
	}
	r.ReleaseSPI("b", "spi0") // not the owner; no effect
	if _, err := r.ClaimSPI("b", "spi0"); err != errcode.Conflict {
		t.Fatalf("after foreign release: got %v", err)
	}
	r.ReleaseSPI("a", "spi0")
	if _, err := r.ClaimSPI("b", "spi0"); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestUnknownDriverSkipped(t *testing.T) {
	r := NewResourceRegistry(setups.ResourcePlan{SPI: []setups.SPIPlan{{ID: "x", Driver: "usb"}}})
	defer r.Close()
	if _, err := r.ClaimSPI("a", "x"); err != errcode.UnknownBus {
		t.Fatalf("got %v", err)
	}
}

func TestSpidevWithoutCSRejected(t *testing.T) {
	if _, err := openSpidev(setups.SPIPlan{ID: "spi0", Driver: setups.DriverSpidev, Port: "/dev/spidev0.0"}); err != errcode.InvalidParams {
		t.Fatalf("got %v", err)
	}
}

func TestClaimedBusDrivesChain(t *testing.T) {
	r := newSimRegistry(t, 2)
	bus, err := r.ClaimSPI("bms", "spi0")
	if err != nil {
		t.Fatal(err)
	}
	sim, ok := r.Sim("spi0")
	if !ok {
		t.Fatal("sim not found")
	}
	sim.SetCells(1, 40000)

	d := ltc6811.New(bus, bus.ChipSelect, ltc6811.Config{Devices: 2, Mode: ltc6811.Mode7kHz, PollLimit: 100})
	if err := d.WakeUp(); err != nil {
		t.Fatal(err)
	}
	if got := sim.Selects(); got != 2 {
		t.Fatalf("selects = %d, want 2", got)
	}
	cells := make([]uint16, 2*ltc6811.CellsPerDevice)
	if err := d.StartCellConversion(ltc6811.Mode7kHz, ltc6811.DischargeOff, ltc6811.CellsAll); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitConversion(); err != nil {
		t.Fatal(err)
	}
	if err := d.ReadCellVoltages(cells); err != nil {
		t.Fatal(err)
	}
	if cells[ltc6811.CellsPerDevice] != 40000 || cells[0] != 37000 {
		t.Fatalf("cells = %v", cells)
	}
}

func TestClosedBusTimesOut(t *testing.T) {
	r := newSimRegistry(t, 1)
	bus, err := r.ClaimSPI("bms", "spi0")
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	if _, err := bus.Transfer(0xFF); err != errcode.Timeout {
		t.Fatalf("closed bus: got %v", err)
	}
}

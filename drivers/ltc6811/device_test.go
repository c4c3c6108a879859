package ltc6811_test

import (
	"errors"
	"testing"

	"bmscode-go/drivers/ltc6811"
	"bmscode-go/drivers/ltc6811/ltc6811sim"

	"tinygo.org/x/drivers"
)

func newDevice(t *testing.T, n int) (*ltc6811.Device, *ltc6811sim.Chain) {
	t.Helper()
	sim := ltc6811sim.New(n)
	cfg := ltc6811.DefaultConfig()
	cfg.Devices = n
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return ltc6811.New(sim, sim.ChipSelect, cfg), sim
}

func TestConfigValidate(t *testing.T) {
	if err := (ltc6811.Config{}).Validate(); !errors.Is(err, ltc6811.ErrNoDevices) {
		t.Fatalf("zero devices: %v", err)
	}
	if err := (ltc6811.Config{Devices: ltc6811.MaxDevices + 1}).Validate(); !errors.Is(err, ltc6811.ErrTooManyDevices) {
		t.Fatalf("too many: %v", err)
	}
}

func TestWakeUpPulsesEveryDevice(t *testing.T) {
	d, sim := newDevice(t, 3)
	if err := d.WakeUp(); err != nil {
		t.Fatal(err)
	}
	if got := sim.Selects(); got != 3 {
		t.Fatalf("selects=%d", got)
	}
}

func TestWriteReadConfig(t *testing.T) {
	d, sim := newDevice(t, 3)
	in := make([]ltc6811.Cfgr, 3)
	for i := range in {
		in[i] = ltc6811.Cfgr{REFON: true, GPIO: 0x1F, VUV: uint16(100 * (i + 1)), VOV: 0xA00, DCC: uint16(1 << uint(i))}
	}
	if err := d.WriteConfig(in); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if got := sim.Config(i); got != in[i] {
			t.Fatalf("device %d holds %+v, want %+v", i, got, in[i])
		}
	}
	out := make([]ltc6811.Cfgr, 3)
	if err := d.ReadConfig(out); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("read back %+v, want %+v", out[i], in[i])
		}
	}
}

func TestUpdateVoltage(t *testing.T) {
	d, sim := newDevice(t, 2)
	sim.ConversionPolls = 5
	sim.SetCells(1, 30000, 30001, 30002, 30003, 30004, 30005, 30006, 30007, 30008, 30009, 30010, 30011)
	sim.SetGPIO(0, 1000, 2000, 3000, 4000, 5000, 30000)
	if err := d.Update(drivers.Voltage); err != nil {
		t.Fatal(err)
	}
	for c := 0; c < 12; c++ {
		if got := d.CellCode(0, c); got != 37000 {
			t.Fatalf("dev0 cell %d = %d", c, got)
		}
		if got := d.CellCode(1, c); got != uint16(30000+c) {
			t.Fatalf("dev1 cell %d = %d", c, got)
		}
	}
	if d.CellMilliVolts(1, 11) != 3001 {
		t.Fatalf("mV=%d", d.CellMilliVolts(1, 11))
	}
	for k, want := range []uint16{1000, 2000, 3000, 4000, 5000, 30000} {
		if got := d.AuxCode(0, k); got != want {
			t.Fatalf("aux %d = %d", k, got)
		}
	}
}

func TestUpdateTemperatureAndFlags(t *testing.T) {
	d, sim := newDevice(t, 3)
	cfg := make([]ltc6811.Cfgr, 3)
	for i := range cfg {
		cfg[i] = ltc6811.Cfgr{VUV: ltc6811.UnderVoltageCode(3000), VOV: ltc6811.OverVoltageCode(4200)}
	}
	if err := d.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	sim.SetCells(0, 37000, 37000, 37000, 37000, 43000)
	sim.SetCells(2, 25000)
	if err := d.StartDiagnose(); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(drivers.Temperature); err != nil {
		t.Fatal(err)
	}
	if got := d.DieMilliC(1); got != 27_000 {
		t.Fatalf("die=%d", got)
	}
	s0, s1, s2 := d.Status(0), d.Status(1), d.Status(2)
	if s0.COV != 1<<4 || s0.CUV != 0 {
		t.Fatalf("dev0 flags %+v", s0)
	}
	if s1.COV != 0 || s1.CUV != 0 || s1.MUXFAIL {
		t.Fatalf("dev1 flags %+v", s1)
	}
	if s2.CUV != 1 {
		t.Fatalf("dev2 flags %+v", s2)
	}
	if ltc6811.SumOfCellsMilliVolts(s1.SC) != 44400 {
		t.Fatalf("sum of cells %d", ltc6811.SumOfCellsMilliVolts(s1.SC))
	}
}

func TestReadCellsKeepsRejectedDevice(t *testing.T) {
	d, sim := newDevice(t, 3)
	if err := d.Update(drivers.Voltage); err != nil {
		t.Fatal(err)
	}
	sim.SetCells(1, 20000, 20000, 20000)
	sim.SetCells(2, 21000, 21000, 21000)
	if err := d.StartCellConversion(ltc6811.Mode7kHz, ltc6811.DischargeOff, ltc6811.CellsAll); err != nil {
		t.Fatal(err)
	}
	sim.Corrupt(1, 1) // group A of device 1
	out := make([]uint16, 36)
	err := d.ReadCellVoltages(out)
	if !errors.Is(err, ltc6811.ErrPEC) {
		t.Fatalf("err=%v", err)
	}
	if d.Rejected() != 1<<1 {
		t.Fatalf("rejected=%b", d.Rejected())
	}
	if out[12] != 0 || out[24] != 21000 || out[0] != 37000 {
		t.Fatalf("out=%v", out)
	}
	if out[15] != 37000 {
		t.Fatalf("group B of device 1 should decode: %d", out[15])
	}
}

func TestWaitConversionPollLimit(t *testing.T) {
	sim := ltc6811sim.New(1)
	sim.ConversionPolls = 50
	d := ltc6811.New(sim, sim.ChipSelect, ltc6811.Config{Devices: 1, Mode: ltc6811.Mode7kHz, PollLimit: 10})
	if err := d.StartAuxConversion(ltc6811.Mode7kHz, ltc6811.GPIOAll); err != nil {
		t.Fatal(err)
	}
	if err := d.WaitConversion(); !errors.Is(err, ltc6811.ErrConversionTimeout) {
		t.Fatalf("err=%v", err)
	}
	// Each wait drains ten busy polls.
	for i := 0; i < 4; i++ {
		if err := d.WaitConversion(); !errors.Is(err, ltc6811.ErrConversionTimeout) {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if err := d.WaitConversion(); err != nil {
		t.Fatalf("final wait: %v", err)
	}
}

func TestBusFaultStopsUpdate(t *testing.T) {
	d, sim := newDevice(t, 1)
	sim.FailNext(ltc6811sim.ErrBusFault)
	if err := d.Update(drivers.Voltage | drivers.Temperature); !errors.Is(err, ltc6811sim.ErrBusFault) {
		t.Fatalf("err=%v", err)
	}
}

func TestSctrlAndPWM(t *testing.T) {
	d, sim := newDevice(t, 2)
	sctl := make([]uint8, 24)
	sctl[0] = ltc6811.SctrlLow
	sctl[13] = ltc6811.SctrlPulses(3)
	if err := d.WriteSctrl(sctl); err != nil {
		t.Fatal(err)
	}
	if s := sim.Sctrl(0); s[0] != ltc6811.SctrlLow {
		t.Fatalf("dev0 sctrl %v", s)
	}
	if s := sim.Sctrl(1); s[1] != 3 {
		t.Fatalf("dev1 sctrl %v", s)
	}
	back := make([]uint8, 24)
	if err := d.ReadSctrl(back); err != nil {
		t.Fatal(err)
	}
	for i := range sctl {
		if back[i] != sctl[i] {
			t.Fatalf("read back %v, want %v", back, sctl)
		}
	}
	if err := d.ClearSctrl(); err != nil {
		t.Fatal(err)
	}
	if s := sim.Sctrl(0); s[0] != 0 {
		t.Fatalf("cleared sctrl %v", s)
	}

	pwm := make([]uint8, 24)
	for i := range pwm {
		pwm[i] = uint8(i % 16)
	}
	if err := d.WritePWM(pwm); err != nil {
		t.Fatal(err)
	}
	if p := sim.PWM(1); p[11] != uint8(23%16) {
		t.Fatalf("dev1 pwm %v", p)
	}
	got := make([]uint8, 24)
	if err := d.ReadPWM(got); err != nil {
		t.Fatal(err)
	}
	for i := range pwm {
		if got[i] != pwm[i] {
			t.Fatalf("pwm read back %v", got)
		}
	}
}

func TestCommBridge(t *testing.T) {
	d, sim := newDevice(t, 2)
	sim.Bridge = func(dev int, sent ltc6811.Comm) ltc6811.Comm {
		got := sent
		got.Data[2] = byte(0xA0 + dev)
		got.FCOM = [3]uint8{ltc6811.I2CReadSlaveACK, ltc6811.I2CReadSlaveACK, ltc6811.I2CReadSlaveNACKStop}
		return got
	}
	comm := make([]ltc6811.Comm, 2)
	for i := range comm {
		comm[i] = ltc6811.Comm{
			ICOM: [3]uint8{ltc6811.I2CWriteStart, ltc6811.I2CWriteBlank, ltc6811.I2CWriteStart},
			Data: [3]uint8{0xA0, 0x10, 0xA1},
			FCOM: [3]uint8{ltc6811.I2CWriteNACK, ltc6811.I2CWriteNACK, ltc6811.I2CWriteNACKStop},
		}
	}
	if err := d.WriteComm(comm); err != nil {
		t.Fatal(err)
	}
	if err := d.StartComm(); err != nil {
		t.Fatal(err)
	}
	back := make([]ltc6811.Comm, 2)
	if err := d.ReadComm(back); err != nil {
		t.Fatal(err)
	}
	for i := range back {
		if back[i].Data[2] != byte(0xA0+i) || back[i].FCOM[2] != ltc6811.I2CReadSlaveNACKStop {
			t.Fatalf("device %d comm %+v", i, back[i])
		}
	}
}

func TestShortOutputBuffers(t *testing.T) {
	d, _ := newDevice(t, 2)
	if err := d.ReadCellVoltages(make([]uint16, 12)); !errors.Is(err, ltc6811.ErrShortBuffer) {
		t.Fatalf("cells: %v", err)
	}
	if err := d.ReadStatus(make([]ltc6811.Str, 1)); !errors.Is(err, ltc6811.ErrShortBuffer) {
		t.Fatalf("status: %v", err)
	}
	if err := d.WriteConfig(make([]ltc6811.Cfgr, 1)); !errors.Is(err, ltc6811.ErrShortBuffer) {
		t.Fatalf("config: %v", err)
	}
}

func TestUpdateAccumulatesRejected(t *testing.T) {
	d, sim := newDevice(t, 2)
	sim.Corrupt(1, 1) // first read of Update: cell group A
	if err := d.Update(drivers.Voltage | drivers.Temperature); !errors.Is(err, ltc6811.ErrPEC) {
		t.Fatalf("err=%v", err)
	}
	if d.Rejected() != 1<<1 {
		t.Fatalf("rejected=%b", d.Rejected())
	}
	if d.Status(1).ITMP != 22500 {
		t.Fatalf("status of device 1 should still decode: %+v", d.Status(1))
	}
}

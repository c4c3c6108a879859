package ltc6811

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// PinOutput drives a chip-select line. CS is active low.
type PinOutput func(level bool)

// MaxDevices bounds the chain length tracked by Device.
const MaxDevices = 64

// DefaultPollLimit bounds the bytes clocked while waiting on PLADC. At 1MHz it
// covers a filtered-mode conversion of all cells (≈201ms).
const DefaultPollLimit = 32768

// Config describes the chain wired to a Device.
type Config struct {
	Devices   int  // devices in the chain (required)
	Mode      Mode // conversion mode for Update
	PollLimit int  // 0 => DefaultPollLimit
}

// DefaultConfig returns a single-device chain in normal (7kHz) mode.
func DefaultConfig() Config {
	return Config{Devices: 1, Mode: Mode7kHz, PollLimit: DefaultPollLimit}
}

// Validate checks the chain length.
func (c Config) Validate() error {
	if c.Devices <= 0 {
		return ErrNoDevices
	}
	if c.Devices > MaxDevices {
		return ErrTooManyDevices
	}
	return nil
}

// Device is a daisy chain bound to an SPI bus and its chip-select line.
// Every transaction holds the device lock from the command to the last byte
// read back.
type Device struct {
	spi   drivers.SPI
	cs    PinOutput
	chain Chain
	mode  Mode
	limit int

	mu  sync.Mutex
	bad uint64 // devices rejected by the last read, bit i = device i

	// Fixed buffers sized at New.
	cmd   [cmdFrame]byte
	tx    []byte
	rx    []byte
	group []uint16
	cells []uint16
	aux   []uint16
	stat  []Str
}

// New constructs a Device. Devices is clamped to [1, MaxDevices].
func New(spi drivers.SPI, cs PinOutput, cfg Config) *Device {
	n := cfg.Devices
	if n < 1 {
		n = 1
	}
	if n > MaxDevices {
		n = MaxDevices
	}
	limit := cfg.PollLimit
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	txLen := WriteBufferSize(n)
	if s := StcommBufferSize(n); s > txLen {
		txLen = s
	}
	return &Device{
		spi:   spi,
		cs:    cs,
		chain: Chain{Count: n},
		mode:  cfg.Mode,
		limit: limit,
		tx:    make([]byte, txLen),
		rx:    make([]byte, DataBufferSize(n)),
		group: make([]uint16, CellsPerGroup*n),
		cells: make([]uint16, CellsPerDevice*n),
		aux:   make([]uint16, AuxPerDevice*n),
		stat:  make([]Str, n),
	}
}

// Chain returns the codec for the bound chain.
func (d *Device) Chain() *Chain { return &d.chain }

// Devices returns the chain length.
func (d *Device) Devices() int { return d.chain.Count }

// SetMode changes the conversion mode used by Update.
func (d *Device) SetMode(md Mode) {
	d.mu.Lock()
	d.mode = md
	d.mu.Unlock()
}

// Rejected returns the devices whose frames failed PEC in the last read,
// bit i = device i.
func (d *Device) Rejected() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bad
}

// ---------------- Transport ----------------

func (d *Device) chipSelect(active bool) {
	if d.cs != nil {
		d.cs(!active)
	}
}

// WakeUp pulses CS once per device so every isoSPI port in the chain leaves
// IDLE (and every core leaves SLEEP).
func (d *Device) WakeUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < d.chain.Count; i++ {
		d.chipSelect(true)
		_, err := d.spi.Transfer(0xFF)
		d.chipSelect(false)
		if err != nil {
			return err
		}
		time.Sleep(WakeTime)
	}
	return nil
}

func (d *Device) send(w []byte) error {
	d.chipSelect(true)
	err := d.spi.Tx(w, nil)
	d.chipSelect(false)
	return err
}

// transact sends the command in d.cmd and reads one frame per device into d.rx.
// It records which frames carry a bad PEC.
func (d *Device) transact() error {
	d.chipSelect(true)
	err := d.spi.Tx(d.cmd[:], nil)
	if err == nil {
		err = d.spi.Tx(nil, d.rx)
	}
	d.chipSelect(false)
	if err != nil {
		return err
	}
	d.bad = 0
	for i := 0; i < d.chain.Count; i++ {
		if !checkPEC(d.rx[i*frameBytes : (i+1)*frameBytes]) {
			d.bad |= 1 << uint(i)
		}
	}
	return nil
}

func (d *Device) verdict(accepted int) error {
	if accepted != d.chain.DataBufferSize() {
		return ErrPEC
	}
	return nil
}

// ---------------- Broadcast commands ----------------

// Command sends any broadcast command without data.
func (d *Device) Command(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	encodeCommand(cmd, false, 0, d.cmd[:])
	return d.send(d.cmd[:])
}

func (d *Device) start(encode func(out []byte) int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if encode(d.cmd[:]) == 0 {
		return ErrShortBuffer
	}
	return d.send(d.cmd[:])
}

// StartCellConversion issues ADCV.
func (d *Device) StartCellConversion(md Mode, dcp Discharge, ch CellSelect) error {
	return d.start(func(out []byte) int { return d.chain.EncodeADCV(md, dcp, ch, out) })
}

// StartOpenWire issues ADOW.
func (d *Device) StartOpenWire(md Mode, pup PullUp, dcp Discharge, ch CellSelect) error {
	return d.start(func(out []byte) int { return d.chain.EncodeADOW(md, pup, dcp, ch, out) })
}

// StartAuxConversion issues ADAX.
func (d *Device) StartAuxConversion(md Mode, chg GPIOSelect) error {
	return d.start(func(out []byte) int { return d.chain.EncodeADAX(md, chg, out) })
}

// StartStatusConversion issues ADSTAT.
func (d *Device) StartStatusConversion(md Mode, chst StatusSelect) error {
	return d.start(func(out []byte) int { return d.chain.EncodeADSTAT(md, chst, out) })
}

// StartCellSelfTest issues CVST.
func (d *Device) StartCellSelfTest(md Mode, st SelfTest) error {
	return d.start(func(out []byte) int { return d.chain.EncodeCVST(md, st, out) })
}

// StartDiagnose issues DIAGN (MUX self test, result in status MUXFAIL).
func (d *Device) StartDiagnose() error { return d.start(d.chain.EncodeDIAGN) }

func (d *Device) ClearCells() error  { return d.start(d.chain.EncodeCLRCELL) }
func (d *Device) ClearAux() error    { return d.start(d.chain.EncodeCLRAUX) }
func (d *Device) ClearStatus() error { return d.start(d.chain.EncodeCLRSTAT) }
func (d *Device) ClearSctrl() error  { return d.start(d.chain.EncodeCLRSCTRL) }

// WaitConversion sends PLADC and clocks bytes with CS held low until the
// chain reports completion or the poll limit is reached.
func (d *Device) WaitConversion() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain.EncodePLADC(d.cmd[:])
	d.chipSelect(true)
	defer d.chipSelect(false)
	if err := d.spi.Tx(d.cmd[:], nil); err != nil {
		return err
	}
	for i := 0; i < d.limit; i++ {
		b, err := d.spi.Transfer(0xFF)
		if err != nil {
			return err
		}
		if PladcCheck(b) {
			return nil
		}
	}
	return ErrConversionTimeout
}

// ---------------- Register groups ----------------

// WriteConfig writes CFGR to every device; cfg is in chain order.
func (d *Device) WriteConfig(cfg []Cfgr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.chain.EncodeWRCFG(cfg, d.tx)
	if n == 0 {
		return ErrShortBuffer
	}
	return d.send(d.tx[:n])
}

// ReadConfig reads CFGR from every device. On ErrPEC the accepted devices are
// still written to out.
func (d *Device) ReadConfig(out []Cfgr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(out) < d.chain.Count {
		return ErrShortBuffer
	}
	d.chain.EncodeRDCFG(d.cmd[:])
	if err := d.transact(); err != nil {
		return err
	}
	return d.verdict(d.chain.DecodeRDCFG(d.rx, out))
}

// ReadCellVoltages reads all four cell groups. out[12*i+c] receives cell c+1
// of device i. Cells of a rejected frame keep their previous value.
func (d *Device) ReadCellVoltages(out []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readCells(out)
}

func (d *Device) readCells(out []uint16) error {
	if len(out) < CellsPerDevice*d.chain.Count {
		return ErrShortBuffer
	}
	var bad uint64
	for g := CellGroupA; g <= CellGroupD; g++ {
		d.chain.EncodeRDCV(g, d.cmd[:])
		if err := d.transact(); err != nil {
			return err
		}
		d.chain.DecodeRDCV(d.rx, d.group)
		d.scatter(out, CellsPerDevice, int(g)*CellsPerGroup, CellsPerGroup)
		bad |= d.bad
	}
	d.bad = bad
	if bad != 0 {
		return ErrPEC
	}
	return nil
}

// ReadAuxVoltages reads both auxiliary groups. out[6*i+k] receives G(k+1) of
// device i, with k=5 the second reference.
func (d *Device) ReadAuxVoltages(out []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readAux(out)
}

func (d *Device) readAux(out []uint16) error {
	if len(out) < AuxPerDevice*d.chain.Count {
		return ErrShortBuffer
	}
	var bad uint64
	for g := AuxGroupA; g <= AuxGroupB; g++ {
		d.chain.EncodeRDAUX(g, d.cmd[:])
		if err := d.transact(); err != nil {
			return err
		}
		d.chain.DecodeRDAUX(d.rx, d.group)
		d.scatter(out, AuxPerDevice, int(g)*AuxPerGroup, AuxPerGroup)
		bad |= d.bad
	}
	d.bad = bad
	if bad != 0 {
		return ErrPEC
	}
	return nil
}

// scatter copies accepted devices from d.group into a per-device layout.
func (d *Device) scatter(out []uint16, stride, offset, per int) {
	for i := 0; i < d.chain.Count; i++ {
		if d.bad&(1<<uint(i)) != 0 {
			continue
		}
		copy(out[i*stride+offset:i*stride+offset+per], d.group[i*per:(i+1)*per])
	}
}

// ReadStatus reads status groups A and B into out, one entry per device.
func (d *Device) ReadStatus(out []Str) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readStatus(out)
}

func (d *Device) readStatus(out []Str) error {
	if len(out) < d.chain.Count {
		return ErrShortBuffer
	}
	var bad uint64
	for _, g := range [...]StatusGroup{StatusGroupA, StatusGroupB} {
		d.chain.EncodeRDSTAT(g, d.cmd[:])
		if err := d.transact(); err != nil {
			return err
		}
		d.chain.DecodeRDSTAT(g, d.rx, out)
		bad |= d.bad
	}
	d.bad = bad
	if bad != 0 {
		return ErrPEC
	}
	return nil
}

// WriteSctrl writes 12 S pin codes per device.
func (d *Device) WriteSctrl(sctl []uint8) error {
	return d.write(func(out []byte) int { return d.chain.EncodeWRSCTRL(sctl, out) })
}

// ReadSctrl reads 12 S pin codes per device.
func (d *Device) ReadSctrl(sctl []uint8) error {
	return d.read(d.chain.EncodeRDSCTRL, func(data []byte) int { return d.chain.DecodeRDSCTRL(data, sctl) })
}

// StartSctrl issues STSCTRL so the written S pin pulses start.
func (d *Device) StartSctrl() error { return d.start(d.chain.EncodeSTSCTRL) }

// WritePWM writes 12 PWM duty nibbles per device.
func (d *Device) WritePWM(pwm []uint8) error {
	return d.write(func(out []byte) int { return d.chain.EncodeWRPWM(pwm, out) })
}

// ReadPWM reads 12 PWM duty nibbles per device.
func (d *Device) ReadPWM(pwm []uint8) error {
	return d.read(d.chain.EncodeRDPWM, func(data []byte) int { return d.chain.DecodeRDPWM(data, pwm) })
}

// WriteComm loads the COMM register of every device.
func (d *Device) WriteComm(comm []Comm) error {
	return d.write(func(out []byte) int { return d.chain.EncodeWRCOMM(comm, out) })
}

// ReadComm reads back COMM after a bridge transfer.
func (d *Device) ReadComm(comm []Comm) error {
	return d.read(d.chain.EncodeRDCOMM, func(data []byte) int { return d.chain.DecodeRDCOMM(data, comm) })
}

// StartComm issues STCOMM and clocks the bridge transfer out.
func (d *Device) StartComm() error {
	return d.write(d.chain.EncodeSTCOMM)
}

func (d *Device) write(encode func(out []byte) int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := encode(d.tx)
	if n == 0 {
		return ErrShortBuffer
	}
	return d.send(d.tx[:n])
}

func (d *Device) read(encode func(out []byte) int, decode func(data []byte) int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	encode(d.cmd[:])
	if err := d.transact(); err != nil {
		return err
	}
	got := decode(d.rx)
	if got == 0 && d.bad == 0 {
		return ErrShortBuffer
	}
	return d.verdict(got)
}

// ---------------- drivers.Sensor ----------------

var _ drivers.Sensor = (*Device)(nil)

// Update converts and reads the requested measurements. drivers.Voltage reads
// every cell and GPIO input; drivers.Temperature reads both status groups (die temperature,
// supplies, sum of cells and flags). A PEC failure keeps the accepted devices
// and is reported after all requested reads; any other error stops at once.
// Afterwards Rejected covers every read Update made.
func (d *Device) Update(which drivers.Measurement) error {
	var (
		first error
		bad   uint64
	)
	keep := func(err error) bool {
		if err == nil {
			return true
		}
		if first == nil {
			first = err
		}
		return err == ErrPEC
	}
	locked := func(read func() error) {
		d.mu.Lock()
		keep(read())
		bad |= d.bad
		d.mu.Unlock()
	}
	defer func() {
		d.mu.Lock()
		d.bad = bad
		d.mu.Unlock()
	}()

	if which&drivers.Voltage != 0 {
		if keep(d.StartCellConversion(d.mode, DischargeOff, CellsAll)) && keep(d.WaitConversion()) {
			locked(func() error { return d.readCells(d.cells) })
		}
		if first != nil && first != ErrPEC {
			return first
		}
		if keep(d.StartAuxConversion(d.mode, GPIOAll)) && keep(d.WaitConversion()) {
			locked(func() error { return d.readAux(d.aux) })
		}
	}
	if first != nil && first != ErrPEC {
		return first
	}
	if which&drivers.Temperature != 0 {
		if keep(d.StartStatusConversion(d.mode, StatusAll)) && keep(d.WaitConversion()) {
			locked(func() error { return d.readStatus(d.stat) })
		}
	}
	return first
}

// CellCode returns the last raw code of cell (0..11) on device dev.
func (d *Device) CellCode(dev, cell int) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cells[dev*CellsPerDevice+cell]
}

// CellMilliVolts returns the last reading of cell (0..11) on device dev.
func (d *Device) CellMilliVolts(dev, cell int) int32 { return CodeMilliVolts(d.CellCode(dev, cell)) }

// AuxCode returns the last raw code of auxiliary input k (0..5) on device dev.
func (d *Device) AuxCode(dev, k int) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aux[dev*AuxPerDevice+k]
}

// Status returns the last status read from device dev.
func (d *Device) Status(dev int) Str {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stat[dev]
}

// DieMilliC returns the last die temperature of device dev in milli-°C.
func (d *Device) DieMilliC(dev int) int32 { return DieMilliC(d.Status(dev).ITMP) }

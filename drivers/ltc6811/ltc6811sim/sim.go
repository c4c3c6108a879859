// Package ltc6811sim is an in-memory LTC6811 daisy chain. It sits behind the
// same drivers.SPI and chip-select seams as a real bus so the driver, the HAL
// device and the CLI can run without hardware.
package ltc6811sim

import (
	"errors"
	"sync"

	"bmscode-go/drivers/ltc6811"

	"tinygo.org/x/drivers"
)

// ErrBusFault is returned by Tx/Transfer after FailNext.
var ErrBusFault = errors.New("ltc6811sim: injected bus fault")

const (
	frame = 8
	reg   = 6
)

// Chip is the analog state of one device. Codes use the 100µV LSB.
type Chip struct {
	Cells [ltc6811.CellsPerDevice]uint16
	GPIO  [ltc6811.AuxPerDevice]uint16 // G1..G5, REF
	ITMP  uint16
	VA    uint16
	VD    uint16
	REV   uint8

	cfg   [reg]byte
	cv    [ltc6811.CellGroups][reg]byte
	aux   [ltc6811.AuxGroups][reg]byte
	stat  [2][reg]byte
	sctrl [reg]byte
	pwm   [reg]byte
	comm  [reg]byte

	corrupt int // next reads with a flipped bit
}

// Bridge answers one COMM transfer on a device's I²C/SPI master port. The
// returned value is what RDCOMM reads back.
type Bridge func(dev int, sent ltc6811.Comm) ltc6811.Comm

// Chain simulates count devices sharing one chip-select.
type Chain struct {
	mu    sync.Mutex
	chips []Chip

	// ConversionPolls is the number of 0x00 bytes PLADC returns before 0xFF.
	ConversionPolls int
	// Bridge handles STCOMM; nil echoes the written bytes with ACK codes.
	Bridge Bridge

	selected bool
	in       []byte
	out      []byte
	outPos   int
	polling  bool
	busy     int
	selects  int
	rejected int
	failNext error
	lastCmd  ltc6811.Command
}

var _ drivers.SPI = (*Chain)(nil)

// New returns a chain of count powered devices with mid-range cells.
func New(count int) *Chain {
	if count < 1 {
		count = 1
	}
	c := &Chain{chips: make([]Chip, count)}
	for i := range c.chips {
		ch := &c.chips[i]
		for k := range ch.Cells {
			ch.Cells[k] = 37000 // 3.7V
		}
		for k := range ch.GPIO {
			ch.GPIO[k] = 15000
		}
		ch.GPIO[5] = 30000 // 3.0V reference
		ch.ITMP = 22_500   // ≈27°C
		ch.VA = 50_000
		ch.VD = 30_000
		ch.REV = 0x2
		ch.cfg[0] = 0xF8 // GPIO pull-downs off
		fill(ch.cv[:])
		fill(ch.aux[:])
		fill(ch.stat[:])
	}
	return c
}

// Devices returns the chain length.
func (c *Chain) Devices() int { return len(c.chips) }

// SetCells sets the cell codes of device dev, starting at cell 1.
func (c *Chain) SetCells(dev int, codes ...uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.chips[dev].Cells[:], codes)
}

// SetGPIO sets the auxiliary input codes of device dev, starting at G1.
func (c *Chain) SetGPIO(dev int, codes ...uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.chips[dev].GPIO[:], codes)
}

// SetDie sets the die temperature and supply codes of device dev.
func (c *Chain) SetDie(dev int, itmp, va, vd uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := &c.chips[dev]
	ch.ITMP, ch.VA, ch.VD = itmp, va, vd
}

// Config returns the configuration register last written to device dev.
func (c *Chain) Config(dev int) ltc6811.Cfgr {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cfg ltc6811.Cfgr
	cfg.Unpack(c.chips[dev].cfg[:])
	return cfg
}

// Sctrl returns the 12 S pin codes of device dev.
func (c *Chain) Sctrl(dev int) [ltc6811.SctrlPerDevice]uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return nibbles(c.chips[dev].sctrl[:])
}

// PWM returns the 12 PWM duty nibbles of device dev.
func (c *Chain) PWM(dev int) [ltc6811.PWMPerDevice]uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return nibbles(c.chips[dev].pwm[:])
}

// Corrupt flips one bit in the next reads frames returned by device dev.
func (c *Chain) Corrupt(dev, reads int) {
	c.mu.Lock()
	c.chips[dev].corrupt = reads
	c.mu.Unlock()
}

// FailNext makes the next Tx or Transfer return err.
func (c *Chain) FailNext(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

// Selects returns how many times chip select went active.
func (c *Chain) Selects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects
}

// Rejected returns how many commands or data frames failed their PEC.
func (c *Chain) Rejected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}

// LastCommand returns the last command accepted by the chain.
func (c *Chain) LastCommand() ltc6811.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCmd
}

// ---------------- Bus side ----------------

// ChipSelect drives the chip-select line; low starts a transaction and high ends
// it. It matches ltc6811.PinOutput.
func (c *Chain) ChipSelect(level bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := !level
	switch {
	case active && !c.selected:
		c.selected = true
		c.selects++
		c.in = c.in[:0]
		c.out = c.out[:0]
		c.outPos = 0
		c.polling = false
	case !active && c.selected:
		c.selected = false
		c.finish()
	}
}

// Tx clocks w out and fills r. Either may be nil; both must match when set.
func (c *Chain) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(); err != nil {
		return err
	}
	if w != nil && r != nil && len(w) != len(r) {
		return errors.New("ltc6811sim: tx length mismatch")
	}
	n := len(w)
	if w == nil {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var b byte = 0xFF
		if w != nil {
			b = w[i]
		}
		o := c.clock(b, w != nil)
		if r != nil {
			r[i] = o
		}
	}
	return nil
}

// Transfer clocks a single byte.
func (c *Chain) Transfer(b byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(); err != nil {
		return 0, err
	}
	return c.clock(b, true), nil
}

func (c *Chain) fault() error {
	err := c.failNext
	c.failNext = nil
	return err
}

// clock shifts one byte in and one byte out.
func (c *Chain) clock(b byte, write bool) byte {
	if !c.selected {
		return 0xFF
	}
	var o byte = 0xFF
	switch {
	case c.outPos < len(c.out):
		o = c.out[c.outPos]
		c.outPos++
	case c.polling:
		if c.busy > 0 {
			c.busy--
			o = 0x00
		}
	}
	if write || len(c.in) < 4 {
		c.in = append(c.in, b)
		if len(c.in) == 4 {
			c.command()
		}
	}
	return o
}

// command runs once the 4-byte command frame is in.
func (c *Chain) command() {
	if ltc6811.PEC15(c.in[:2]) != uint16(c.in[2])<<8|uint16(c.in[3]) {
		c.rejected++
		return
	}
	cmd := ltc6811.Command(c.in[0]&0x07)<<8 | ltc6811.Command(c.in[1])
	c.lastCmd = cmd
	if c.in[0]&0x80 != 0 {
		// Addressed commands are not issued by the driver.
		return
	}
	switch cmd {
	case ltc6811.RDCFGA:
		c.respond(func(ch *Chip) []byte { return ch.cfg[:] })
	case ltc6811.RDCVA, ltc6811.RDCVB, ltc6811.RDCVC, ltc6811.RDCVD:
		g := cellGroup(cmd)
		c.respond(func(ch *Chip) []byte { return ch.cv[g][:] })
	case ltc6811.RDAUXA:
		c.respond(func(ch *Chip) []byte { return ch.aux[0][:] })
	case ltc6811.RDAUXB:
		c.respond(func(ch *Chip) []byte { return ch.aux[1][:] })
	case ltc6811.RDSTATA:
		c.respond(func(ch *Chip) []byte { return ch.stat[0][:] })
	case ltc6811.RDSTATB:
		c.respond(func(ch *Chip) []byte { return ch.stat[1][:] })
	case ltc6811.RDSCTRL:
		c.respond(func(ch *Chip) []byte { return ch.sctrl[:] })
	case ltc6811.RDPWM:
		c.respond(func(ch *Chip) []byte { return ch.pwm[:] })
	case ltc6811.RDCOMM:
		c.respond(func(ch *Chip) []byte { return ch.comm[:] })
	case ltc6811.PLADC:
		c.polling = true
	case ltc6811.CLRCELL:
		c.each(func(ch *Chip) { fill(ch.cv[:]) })
	case ltc6811.CLRAUX:
		c.each(func(ch *Chip) { fill(ch.aux[:]) })
	case ltc6811.CLRSTAT:
		c.each(func(ch *Chip) { fill(ch.stat[:]) })
	case ltc6811.CLRSCTRL:
		c.each(func(ch *Chip) { ch.sctrl = [reg]byte{} })
	case ltc6811.DIAGN:
		c.convert(func(ch *Chip) { ch.stat[1][5] &^= 0x02 })
	case ltc6811.STCOMM:
		c.stcomm()
	case ltc6811.STSCTRL:
	default:
		c.adc(cmd)
	}
}

func (c *Chain) each(f func(ch *Chip)) {
	for i := range c.chips {
		f(&c.chips[i])
	}
}

func fill(groups [][reg]byte) {
	for g := range groups {
		for k := range groups[g] {
			groups[g][k] = 0xFF
		}
	}
}

// respond queues one frame per device in chain order.
func (c *Chain) respond(get func(ch *Chip) []byte) {
	for i := range c.chips {
		ch := &c.chips[i]
		f := make([]byte, frame)
		copy(f, get(ch))
		pec := ltc6811.PEC15(f[:reg])
		f[6], f[7] = byte(pec>>8), byte(pec)
		if ch.corrupt > 0 {
			ch.corrupt--
			f[0] ^= 0x01
		}
		c.out = append(c.out, f...)
	}
}

// finish applies a write transaction when chip select is released. Frames
// arrive last device first; each carries its own PEC.
func (c *Chain) finish() {
	if len(c.in) < 4 || c.in[0]&0x80 != 0 {
		return
	}
	cmd := ltc6811.Command(c.in[0]&0x07)<<8 | ltc6811.Command(c.in[1])
	var dst func(ch *Chip) []byte
	switch cmd {
	case ltc6811.WRCFGA:
		dst = func(ch *Chip) []byte { return ch.cfg[:] }
	case ltc6811.WRSCTRL:
		dst = func(ch *Chip) []byte { return ch.sctrl[:] }
	case ltc6811.WRPWM:
		dst = func(ch *Chip) []byte { return ch.pwm[:] }
	case ltc6811.WRCOMM:
		dst = func(ch *Chip) []byte { return ch.comm[:] }
	default:
		return
	}
	n := len(c.chips)
	data := c.in[4:]
	if len(data) < n*frame {
		return
	}
	for k := 0; k < n; k++ {
		f := data[k*frame : (k+1)*frame]
		if ltc6811.PEC15(f[:reg]) != uint16(f[6])<<8|uint16(f[7]) {
			c.rejected++
			continue
		}
		copy(dst(&c.chips[n-1-k]), f[:reg])
	}
}

func (c *Chain) stcomm() {
	for i := range c.chips {
		ch := &c.chips[i]
		var sent ltc6811.Comm
		sent.Unpack(ch.comm[:])
		var got ltc6811.Comm
		if c.Bridge != nil {
			got = c.Bridge(i, sent)
		} else {
			got = echo(sent)
		}
		got.Pack(ch.comm[:])
	}
}

// echo reports every written byte as sent with a slave ACK.
func echo(sent ltc6811.Comm) ltc6811.Comm {
	got := sent
	for j := range got.FCOM {
		if sent.ICOM[j] == ltc6811.I2CWriteNoTransmit {
			got.ICOM[j] = ltc6811.I2CReadNoTransmit
			got.Data[j] = 0xFF
			got.FCOM[j] = ltc6811.I2CReadSlaveNACK
			continue
		}
		if sent.FCOM[j] == ltc6811.I2CWriteNACKStop {
			got.FCOM[j] = ltc6811.I2CReadSlaveACKStop
		} else {
			got.FCOM[j] = ltc6811.I2CReadSlaveACK
		}
	}
	return got
}

func cellGroup(cmd ltc6811.Command) int {
	switch cmd {
	case ltc6811.RDCVB:
		return 1
	case ltc6811.RDCVC:
		return 2
	case ltc6811.RDCVD:
		return 3
	}
	return 0
}

func nibbles(p []byte) [12]uint8 {
	var v [12]uint8
	for j := 0; j < reg; j++ {
		v[2*j] = p[j] & 0x0F
		v[2*j+1] = p[j] >> 4
	}
	return v
}

package provider

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"bmscode-go/errcode"
	"bmscode-go/services/hal/internal/provider/setups"
)

var errNoCSPin = errors.New("spidev: chip select pin not found")

// spidevPort drives a chain through a periph.io SPI port. Chip select is a
// GPIO held by the port so that one transaction may span several Tx calls.
type spidevPort struct {
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinIO

	// Scratch buffers for one-sided transfers.
	wbuf, rbuf []byte
}

func openSpidev(p setups.SPIPlan) (*spidevPort, error) {
	if p.CS == "" {
		return nil, errcode.InvalidParams
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	cs := gpioreg.ByName(p.CS)
	if cs == nil {
		return nil, errNoCSPin
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, err
	}
	port, err := spireg.Open(p.Port)
	if err != nil {
		return nil, err
	}
	hz := p.Hz
	if hz == 0 {
		hz = defaultHz
	}
	// Mode 3, 8-bit words; CS is ours.
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode3|spi.NoCS, 8)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return &spidevPort{port: port, conn: conn, cs: cs}, nil
}

// Tx clocks max(len(w), len(r)) bytes. A nil w sends 0xFF; a nil r discards.
func (s *spidevPort) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if n == 0 {
		return nil
	}
	if len(w) < n {
		s.wbuf = grow(s.wbuf, n)
		copy(s.wbuf, w)
		for i := len(w); i < n; i++ {
			s.wbuf[i] = 0xFF
		}
		w = s.wbuf[:n]
	}
	if len(r) < n {
		s.rbuf = grow(s.rbuf, n)
		rr := s.rbuf[:n]
		if err := s.conn.Tx(w, rr); err != nil {
			return err
		}
		copy(r, rr)
		return nil
	}
	return s.conn.Tx(w, r)
}

func (s *spidevPort) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.conn.Tx([]byte{b}, r[:])
	return r[0], err
}

func (s *spidevPort) ChipSelect(level bool) { _ = s.cs.Out(gpio.Level(level)) }

func (s *spidevPort) Close() error {
	_ = s.cs.Out(gpio.High)
	return s.port.Close()
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

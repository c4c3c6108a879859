package ltc6811

import (
	"bytes"
	"testing"
)

var commSample = Comm{
	ICOM: [3]uint8{I2CWriteStart, I2CWriteBlank, I2CWriteBlank},
	Data: [3]uint8{0x0F, 0x0F, 0x0F},
	FCOM: [3]uint8{I2CWriteACK, I2CWriteACK, I2CWriteNACKStop},
}

func TestEncodeWRCOMM(t *testing.T) {
	c := NewChain(1)
	out := make([]byte, c.WriteBufferSize())
	if n := c.EncodeWRCOMM([]Comm{commSample}, out); n != 12 {
		t.Fatalf("n=%d", n)
	}
	want := []byte{0x07, 0x21, 0x24, 0xb2, 0x60, 0xf0, 0x00, 0xf0, 0x00, 0xf9, 0x3d, 0x3a}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x want % x", out, want)
	}
}

func TestDecodeRDCOMMPerDevice(t *testing.T) {
	c := NewChain(2)
	data := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xc2, 0x12,
		0x60, 0xf0, 0x00, 0xf0, 0x00, 0xf9, 0x3d, 0x3a,
	}
	out := make([]Comm, 2)
	if n := c.DecodeRDCOMM(data, out); n != 16 {
		t.Fatalf("accepted=%d", n)
	}
	if out[0] != (Comm{}) || out[1] != commSample {
		t.Fatalf("decoded %+v", out)
	}
}

func TestEncodeSTCOMM(t *testing.T) {
	c := NewChain(4)
	out := make([]byte, c.StcommBufferSize())
	if n := c.EncodeSTCOMM(out); n != 76 {
		t.Fatalf("n=%d", n)
	}
	if !bytes.Equal(out[:4], []byte{0x07, 0x23, 0xb9, 0xe4}) {
		t.Fatalf("command % x", out[:4])
	}
	for i, b := range out[4:] {
		if b != 0xFF {
			t.Fatalf("dummy byte %d = %#x", i, b)
		}
	}
}

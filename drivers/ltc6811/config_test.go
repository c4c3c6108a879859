package ltc6811

import (
	"bytes"
	"testing"
	"time"
)

func sampleCfgr() Cfgr {
	return Cfgr{ADCOPT: true, DTEN: true, REFON: true, GPIO: 0x1F, VUV: 0x0FF, VOV: 0xF00, DCC: 0x0FF, DCTO: DCTO120Min}
}

func TestEncodeWRCFGReverseOrder(t *testing.T) {
	c := NewChain(2)
	cfg := []Cfgr{sampleCfgr(), {}}
	out := make([]byte, c.WriteBufferSize())
	if n := c.EncodeWRCFG(cfg, out); n != 20 {
		t.Fatalf("n=%d", n)
	}
	want := []byte{
		0x00, 0x01, 0x3d, 0x6e,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xc2, 0x12, // device 1 first
		0xff, 0xff, 0x00, 0xf0, 0xff, 0xf0, 0xe3, 0x6c, // device 0 last
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got  % x\nwant % x", out, want)
	}
}

func TestEncodeWRCFGReverseOrderThreeDevices(t *testing.T) {
	c := NewChain(3)
	cfg := []Cfgr{{VUV: 0x111}, {VUV: 0x222}, {VUV: 0x333}}
	out := make([]byte, c.WriteBufferSize())
	if n := c.EncodeWRCFG(cfg, out); n != cmdFrame+3*8 {
		t.Fatalf("n=%d", n)
	}
	// Frame k on the wire carries device 2-k.
	for k := 0; k < 3; k++ {
		f := out[cmdFrame+8*k : cmdFrame+8*(k+1)]
		if !checkPEC(f) {
			t.Fatalf("frame %d: bad PEC % x", k, f)
		}
		var got Cfgr
		got.Unpack(f[:6])
		if want := cfg[2-k]; got != want {
			t.Fatalf("frame %d: got %+v, want device %d %+v", k, got, 2-k, want)
		}
	}
	var first, last [8]byte
	cfg[2].Pack(first[:6])
	putPEC(first[:], 6)
	cfg[0].Pack(last[:6])
	putPEC(last[:], 6)
	if !bytes.Equal(out[cmdFrame:cmdFrame+8], first[:]) || !bytes.Equal(out[cmdFrame+16:], last[:]) {
		t.Fatalf("wire % x", out)
	}
}

func TestDecodeRDCFGForwardOrder(t *testing.T) {
	c := NewChain(2)
	data := []byte{
		0xff, 0xff, 0x00, 0xf0, 0xff, 0xf0, 0xe3, 0x6c,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xc2, 0x12,
	}
	out := make([]Cfgr, 2)
	if n := c.DecodeRDCFG(data, out); n != 16 {
		t.Fatalf("accepted=%d", n)
	}
	if out[0] != sampleCfgr() || out[1] != (Cfgr{}) {
		t.Fatalf("decoded %+v", out)
	}
}

func TestConfigRoundTripThroughChain(t *testing.T) {
	for n := 1; n <= 12; n++ {
		c := NewChain(n)
		in := make([]Cfgr, n)
		for i := range in {
			in[i] = Cfgr{
				ADCOPT: i%2 == 0,
				REFON:  i%3 == 0,
				GPIO:   uint8(i) & 0x1F,
				VUV:    uint16(0x100 + i),
				VOV:    uint16(0xA00 + i),
				DCC:    uint16(1) << uint(i%12),
				DCTO:   DischargeTimeout(i % 16),
			}
		}
		wr := make([]byte, c.WriteBufferSize())
		if c.EncodeWRCFG(in, wr) == 0 {
			t.Fatalf("n=%d: encode failed", n)
		}
		// A read returns the written frames in chain order.
		data := make([]byte, c.DataBufferSize())
		for i := 0; i < n; i++ {
			copy(data[i*8:], wr[4+(n-1-i)*8:4+(n-i)*8])
		}
		out := make([]Cfgr, n)
		if got := c.DecodeRDCFG(data, out); got != 8*n {
			t.Fatalf("n=%d: accepted=%d", n, got)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("n=%d device %d: got %+v want %+v", n, i, out[i], in[i])
			}
		}
	}
}

func TestDischargeTimeout(t *testing.T) {
	if DCTO30s.Duration() != 30*time.Second || DCTO120Min.Duration() != 2*time.Hour || DCTOOff.Duration() != 0 {
		t.Fatal("duration table")
	}
	tests := []struct {
		in   time.Duration
		want DischargeTimeout
	}{
		{0, DCTOOff},
		{10 * time.Second, DCTO30s},
		{45 * time.Second, DCTO1Min},
		{11 * time.Minute, DCTO15Min},
		{5 * time.Hour, DCTO120Min},
	}
	for _, tt := range tests {
		if got := DischargeTimeoutFor(tt.in); got != tt.want {
			t.Errorf("DischargeTimeoutFor(%v)=%d, want %d", tt.in, got, tt.want)
		}
	}
}

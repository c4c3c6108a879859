package ltc6811

import "testing"

func TestDecodeRDSTATA(t *testing.T) {
	c := NewChain(1)
	data := []byte{0x00, 0xff, 0xff, 0x00, 0x00, 0xff, 0x45, 0x4e}
	out := []Str{{VD: 7, CUV: 3}}
	if n := c.DecodeRDSTAT(StatusGroupA, data, out); n != 8 {
		t.Fatalf("accepted=%d", n)
	}
	want := Str{SC: 0xFF00, ITMP: 0x00FF, VA: 0xFF00, VD: 7, CUV: 3}
	if out[0] != want {
		t.Fatalf("got %+v want %+v", out[0], want)
	}
}

func TestDecodeRDSTATB(t *testing.T) {
	c := NewChain(1)
	data := []byte{0xff, 0x00, 0x55, 0x55, 0xaa, 0xff, 0x44, 0xea}
	// Stale flags must not survive a decode.
	out := []Str{{SC: 9, CUV: 0xF000, COV: 0x00F}}
	if n := c.DecodeRDSTAT(StatusGroupB, data, out); n != 8 {
		t.Fatalf("accepted=%d", n)
	}
	want := Str{SC: 9, VD: 0x00FF, CUV: 0x0FF, COV: 0xF00, REV: 0xF, RSVD: 3, MUXFAIL: true, THSD: true}
	if out[0] != want {
		t.Fatalf("got %+v want %+v", out[0], want)
	}
}

func TestDecodeRDSTATUnknownGroup(t *testing.T) {
	c := NewChain(1)
	data := []byte{0x00, 0xff, 0xff, 0x00, 0x00, 0xff, 0x45, 0x4e}
	out := make([]Str, 1)
	if n := c.DecodeRDSTAT(StatusGroup(2), data, out); n != 0 {
		t.Fatalf("accepted=%d", n)
	}
}

func TestPackStatusInverse(t *testing.T) {
	s := Str{SC: 1234, ITMP: 22500, VA: 50000, VD: 30000, CUV: 0x801, COV: 0x010, REV: 2, MUXFAIL: true}
	var a, b [8]byte
	PackStatus(StatusGroupA, &s, a[:6])
	PackStatus(StatusGroupB, &s, b[:6])
	putPEC(a[:], 6)
	putPEC(b[:], 6)
	c := NewChain(1)
	out := make([]Str, 1)
	c.DecodeRDSTAT(StatusGroupA, a[:], out)
	c.DecodeRDSTAT(StatusGroupB, b[:], out)
	if out[0] != s {
		t.Fatalf("got %+v want %+v", out[0], s)
	}
}

package types

import "testing"

func TestBitIterStackFlags(t *testing.T) {
	it := NewBitIter(StackOverVoltage|StackRejected|StackFlags(1<<9), StackFlagsTable[:])
	var got []string
	for name, ok := it.Next(); ok; name, ok = it.Next() {
		got = append(got, name)
	}
	if len(got) != 2 || got[0] != "over_voltage" || got[1] != "pec_rejected" {
		t.Fatalf("names = %v", got)
	}

	it.Reset()
	if name, ok := it.Next(); !ok || name != "over_voltage" {
		t.Fatalf("after Reset: %q %v", name, ok)
	}

	empty := NewBitIter(StackFlags(0), StackFlagsTable[:])
	if _, ok := empty.Next(); ok {
		t.Fatal("no bits set, iterator yielded a name")
	}
}

package heartbeat

import (
	"testing"
	"time"

	"bmscode-go/types"
)

func TestInterval(t *testing.T) {
	for _, c := range []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": 2.0}, 2 * time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 0.0}, 0, false},
		{map[string]any{"interval": "5"}, 0, false},
		{"interval", 0, false},
	} {
		got, ok := interval(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("interval(%v) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSummary(t *testing.T) {
	s := &Service{}
	if got := s.summary(); got != "pack: no data" {
		t.Fatalf("empty summary %q", got)
	}

	s.seen = true
	s.cells = types.CellsValue{Cells: make([]int32, 24), MinMV: 3600, MaxMV: 4250}
	s.stack = types.StackValue{
		SumMilliV: 90000,
		Devices: []types.StackDevice{
			{Flags: types.StackOverVoltage},
			{Flags: types.StackRejected},
		},
	}
	s.status = types.CapabilityStatus{Link: types.LinkDegraded, Error: "pec_mismatch"}

	want := "pack: 24 cells 3600..4250 mV stack 90000 mV over_voltage pec_rejected [degraded pec_mismatch]"
	if got := s.summary(); got != want {
		t.Fatalf("summary\n got %q\nwant %q", got, want)
	}
}

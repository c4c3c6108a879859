package timex

import (
	"testing"
	"time"
)

func TestPeriodFromHz(t *testing.T) {
	if got := PeriodFromHz(1_000_000); got != 1000 {
		t.Fatalf("1MHz period = %d ns", got)
	}
	if got := PeriodFromHz(0); got != 1_000_000_000 {
		t.Fatalf("0Hz period = %d ns", got)
	}
}

func TestClockTime(t *testing.T) {
	if got := ClockTime(125, 1_000_000); got != time.Millisecond {
		t.Fatalf("125 bytes at 1MHz = %v", got)
	}
	if got := ClockTime(-1, 1_000_000); got != 0 {
		t.Fatalf("negative length = %v", got)
	}
}

func TestNowNsAfterNowMs(t *testing.T) {
	ms := NowMs()
	if ns := NowNs(); ns/1_000_000 < ms {
		t.Fatalf("NowNs %d earlier than NowMs %d", ns, ms)
	}
}

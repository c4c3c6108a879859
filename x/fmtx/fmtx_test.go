package fmtx

import (
	"bytes"
	"errors"
	"testing"
)

func TestSprintfVerbs(t *testing.T) {
	for _, c := range []struct {
		fmt  string
		args []any
		want string
	}{
		{"dev %d:", []any{1}, "dev 1:"},
		{" %4d", []any{int32(370)}, "  370"},
		{"rejected %#b", []any{uint64(2)}, "rejected 0b10"},
		{"%.1f C", []any{27.0}, "27.0 C"},
		{"q=%q", []any{"a\"b"}, `q="a\"b"`},
	} {
		if got := Sprintf(c.fmt, c.args...); got != c.want {
			t.Fatalf("Sprintf(%q, ...) = %q, want %q", c.fmt, got, c.want)
		}
	}
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Fprint(&buf, "ok", "\n"); err != nil {
		t.Fatalf("Fprint error: %v", err)
	}
	if _, err := Fprintf(&buf, "hi %s", "there"); err != nil {
		t.Fatalf("Fprintf error: %v", err)
	}
	if got, want := buf.String(), "ok\nhi there"; got != want {
		t.Fatalf("wrote %q, want %q", got, want)
	}
}

func TestErrorfWraps(t *testing.T) {
	base := errors.New("base")
	err := Errorf("bad %s: %w", "thing", base)
	if err.Error() != "bad thing: base" {
		t.Fatalf("Errorf string = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatal("Errorf should wrap with %w")
	}
}

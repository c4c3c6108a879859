package core

import (
	"testing"

	"bmscode-go/errcode"
	"bmscode-go/types"
)

func TestAsAcceptsValuePointerAndMap(t *testing.T) {
	want := types.SetBalance{Device: 1, Cells: 3, TimeoutS: 60}

	if v, code := As[types.SetBalance](want); code != "" || v != want {
		t.Fatalf("value: %+v %q", v, code)
	}
	if v, code := As[types.SetBalance](&want); code != "" || v != want {
		t.Fatalf("pointer: %+v %q", v, code)
	}
	m := map[string]any{"device": 1, "cells": 3, "timeout_s": 60}
	if v, code := As[types.SetBalance](m); code != "" || v != want {
		t.Fatalf("map: %+v %q", v, code)
	}
	if v, code := As[types.SetBalance](`{"device":1,"cells":3,"timeout_s":60}`); code != "" || v != want {
		t.Fatalf("json: %+v %q", v, code)
	}
}

func TestAsNilAndMismatch(t *testing.T) {
	if v, code := As[types.PollStop](nil); code != "" || v.Verb != "" {
		t.Fatalf("nil: %+v %q", v, code)
	}
	var np *types.PollStop
	if _, code := As[types.PollStop](np); code != "" {
		t.Fatalf("nil pointer: %q", code)
	}
	if _, code := As[types.PollStop](42); code != errcode.InvalidPayload {
		t.Fatalf("int: %q", code)
	}
	if _, code := As[types.PollStop]("{"); code != errcode.InvalidPayload {
		t.Fatalf("bad json: %q", code)
	}
}

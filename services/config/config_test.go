package config

import (
	"context"
	"testing"
	"time"

	"bmscode-go/bus"
	"bmscode-go/types"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	// Start publisher with device ID in context.
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})

	type gotMsg struct {
		key string
		val any
	}

	wantCount := 3 // mode, debug, region
	got := map[string]gotMsg{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) < 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			// Assert tokens to string
			prefix, ok := m.Topic[0].(string)
			if !ok {
				t.Fatalf("topic[0] type %T, want string", m.Topic[0])
			}
			if prefix != configPrefix {
				t.Fatalf("unexpected prefix: %q", prefix)
			}
			keyTok := m.Topic[1]
			key, ok := keyTok.(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", keyTok)
			}
			got[key] = gotMsg{key: key, val: m.Payload}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	// Assert payloads without reflect.
	// mode
	if v, ok := got["mode"]; !ok {
		t.Fatal("missing 'mode' message")
	} else if s, ok := v.val.(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", v.val)
	}
	// debug
	if v, ok := got["debug"]; !ok {
		t.Fatal("missing 'debug' message")
	} else if bval, ok := v.val.(bool); !ok || bval != true {
		t.Fatalf("debug payload = %#v, want true", v.val)
	}
	// region
	if v, ok := got["region"]; !ok {
		t.Fatal("missing 'region' message")
	} else if m, ok := v.val.(map[string]any); !ok {
		t.Fatalf("region payload type = %T, want map[string]any", v.val)
	} else if code, ok := m["code"].(string); !ok || code != "eu" {
		t.Fatalf("region.code = %#v, want \"eu\"", m["code"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	// No device ID in context
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_HALKeyIsTyped(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-hal")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "bench")
	if err := svc.publishConfig(ctx, conn); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sub := conn.Subscribe(bus.T(configPrefix, "hal"))
	select {
	case m := <-sub.Channel():
		cfg, ok := m.Payload.(types.HALConfig)
		if !ok {
			t.Fatalf("payload type %T, want types.HALConfig", m.Payload)
		}
		if len(cfg.Devices) != 1 || cfg.Devices[0].Type != "ltc6811" {
			t.Fatalf("devices = %+v", cfg.Devices)
		}
		p, ok := cfg.Devices[0].Params.(map[string]any)
		if !ok || p["bus"] != "spi0" {
			t.Fatalf("params = %#v", cfg.Devices[0].Params)
		}
		if len(cfg.Pollers) != 1 || cfg.Pollers[0].Kind != types.KindCells || cfg.Pollers[0].IntervalMs != 1000 {
			t.Fatalf("pollers = %+v", cfg.Pollers)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no retained config/hal")
	}
}

func TestConfig_EmbeddedConfigsParse(t *testing.T) {
	for dev := range embeddedConfigs {
		b := bus.NewBus(4)
		ctx := context.WithValue(context.Background(), CtxDeviceKey, dev)
		if err := NewConfigService().publishConfig(ctx, b.NewConnection(dev)); err != nil {
			t.Fatalf("%s: %v", dev, err)
		}
	}
}

func TestConfig_BadHALReported(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(string) ([]byte, bool) {
		return []byte(`{"hal": {"devices": 7}, "other": 1}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-bad")
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "x")
	if err := NewConfigService().publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for malformed hal config")
	}
	sub := conn.Subscribe(bus.T(configPrefix, "other"))
	select {
	case m := <-sub.Channel():
		if v, ok := m.Payload.(float64); !ok || v != 1 {
			t.Fatalf("other = %#v", m.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("valid keys should still be published")
	}
}

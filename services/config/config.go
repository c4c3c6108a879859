package config

import (
	"context"
	"encoding/json"
	"errors"

	"bmscode-go/bus"
	"bmscode-go/types"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// typed lists the keys whose payload is published as a typed value rather
// than a JSON-like map.
var typed = map[string]func(raw json.RawMessage) (any, error){
	"hal": func(raw json.RawMessage) (any, error) {
		var cfg types.HALConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	},
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes
// each top-level key as a retained config/<key> message.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.New("embedded config is not a JSON object")
	}

	var errs []error
	for k, v := range m {
		var payload any
		var err error
		if dec, ok := typed[k]; ok {
			payload, err = dec(v)
		} else {
			err = json.Unmarshal(v, &payload)
		}
		if err != nil {
			errs = append(errs, errors.New(k+": "+err.Error()))
			continue
		}
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  payload,
			Retained: true,
		})
	}
	return errors.Join(errs...)
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config]", err.Error())
		}
	}()
}

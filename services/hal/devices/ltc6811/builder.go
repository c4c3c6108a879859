package ltc6811dev

import (
	"context"

	"bmscode-go/drivers/ltc6811"
	"bmscode-go/errcode"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/types"
	"bmscode-go/x/strx"
)

// Params defines wiring and behaviour for one LTC6811 daisy chain.
type Params struct {
	Bus     string `json:"bus"`     // e.g. "spi0" (required)
	Devices int    `json:"devices"` // chain length, 1..ltc6811.MaxDevices (required)

	// Required naming.
	Domain string `json:"domain"` // "" => "power"
	Name   string `json:"name"`

	Mode      string `json:"mode"`       // see parseMode; "" => "7khz"
	VUVmV     int32  `json:"vuv_mV"`     // under-voltage threshold; 0 => lowest code
	VOVmV     int32  `json:"vov_mV"`     // over-voltage threshold; 0 => disabled
	PollLimit int    `json:"poll_limit"` // PLADC poll bytes; 0 => driver default
	RefOff    bool   `json:"ref_off"`    // let the reference sleep between conversions
}

// Builder registration.
func init() { core.RegisterBuilder("ltc6811", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[Params](in.Params)
	if code != "" || in.Params == nil {
		return nil, errcode.InvalidParams
	}
	if p.Bus == "" || p.Name == "" {
		return nil, errcode.InvalidParams
	}
	if p.Devices <= 0 || p.Devices > ltc6811.MaxDevices {
		return nil, errcode.InvalidParams
	}
	p.Domain = strx.Coalesce(p.Domain, "power")
	p.Mode = strx.Coalesce(p.Mode, "7khz")
	md, adcopt, ok := parseMode(p.Mode)
	if !ok {
		return nil, errcode.InvalidParams
	}

	// Claim the SPI bus (serialised by provider) for the chain.
	spi, err := in.Res.Reg.ClaimSPI(in.ID, core.ResourceID(p.Bus))
	if err != nil {
		return nil, err
	}

	dev := &Device{
		id:    in.ID,
		aCell: core.CapAddr{Domain: p.Domain, Kind: types.KindCells, Name: p.Name},
		aTemp: core.CapAddr{Domain: p.Domain, Kind: types.KindTemperature, Name: p.Name},
		aStk:  core.CapAddr{Domain: p.Domain, Kind: types.KindStack, Name: p.Name},

		res:    in.Res,
		spi:    spi,
		mode:   md,
		adcopt: adcopt,
		params: p,
	}
	return dev, nil
}

// parseMode maps a conversion rate name to MD and ADCOPT.
func parseMode(s string) (ltc6811.Mode, bool, bool) {
	switch s {
	case "422hz":
		return ltc6811.Mode422Hz, false, true
	case "1khz":
		return ltc6811.Mode422Hz, true, true
	case "27khz":
		return ltc6811.Mode27kHz, false, true
	case "14khz":
		return ltc6811.Mode27kHz, true, true
	case "7khz":
		return ltc6811.Mode7kHz, false, true
	case "3khz":
		return ltc6811.Mode7kHz, true, true
	case "26hz":
		return ltc6811.Mode26Hz, false, true
	case "2khz":
		return ltc6811.Mode26Hz, true, true
	}
	return 0, false, false
}

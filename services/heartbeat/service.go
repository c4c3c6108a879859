package heartbeat

import (
	"context"
	"time"

	"bmscode-go/bus"
	"bmscode-go/types"
	"bmscode-go/x/fmtx"
)

var topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}

// Service prints a periodic one-line summary of a monitored pack.
type Service struct {
	Domain string // "" => "power"
	Name   string // "" => "pack"

	cells  types.CellsValue
	stack  types.StackValue
	status types.CapabilityStatus
	seen   bool
}

func (s *Service) capTopic(kind types.Kind, leaf string) bus.Topic {
	d, n := s.Domain, s.Name
	if d == "" {
		d = "power"
	}
	if n == "" {
		n = "pack"
	}
	return bus.T("hal", "cap", d, string(kind), n, leaf)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	cellSub := conn.Subscribe(s.capTopic(types.KindCells, "value"))
	defer conn.Unsubscribe(cellSub)
	stackSub := conn.Subscribe(s.capTopic(types.KindStack, "value"))
	defer conn.Unsubscribe(stackSub)
	statusSub := conn.Subscribe(s.capTopic(types.KindCells, "status"))
	defer conn.Unsubscribe(statusSub)

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case t := <-tick.C:
			println("[heartbeat]", t.Format("15:04:05"), s.summary())
		case msg := <-cellSub.Channel():
			if v, ok := msg.Payload.(types.CellsValue); ok {
				s.cells, s.seen = v, true
			}
		case msg := <-stackSub.Channel():
			if v, ok := msg.Payload.(types.StackValue); ok {
				s.stack = v
			}
		case msg := <-statusSub.Channel():
			if v, ok := msg.Payload.(types.CapabilityStatus); ok {
				s.status = v
			}
		case msg := <-cfgSub.Channel():
			if iv, ok := interval(msg.Payload); ok {
				tick.Reset(iv)
				println("[heartbeat] interval set to", iv.String())
			}
		}
	}
}

// interval reads {"interval": seconds} from a config payload.
func interval(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	secs, ok := m["interval"].(float64)
	if !ok || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// summary formats the latest pack readings.
func (s *Service) summary() string {
	if !s.seen {
		return "pack: no data"
	}
	line := fmtx.Sprintf("pack: %d cells %d..%d mV stack %d mV",
		len(s.cells.Cells), s.cells.MinMV, s.cells.MaxMV, s.stack.SumMilliV)
	var flags types.StackFlags
	for _, d := range s.stack.Devices {
		flags |= d.Flags
	}
	it := types.NewBitIter(flags, types.StackFlagsTable[:])
	for name, ok := it.Next(); ok; name, ok = it.Next() {
		line += " " + name
	}
	if s.status.Link != "" && s.status.Link != types.LinkUp {
		line += fmtx.Sprintf(" [%s %s]", s.status.Link, s.status.Error)
	}
	return line
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

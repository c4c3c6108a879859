package provider

import (
	"sync"
	"time"

	"bmscode-go/drivers/ltc6811/ltc6811sim"
	"bmscode-go/errcode"
	"bmscode-go/services/hal/internal/core"
	"bmscode-go/services/hal/internal/provider/setups"
	"bmscode-go/x/timex"
)

// Ensure the provider satisfies the contracts at compile time.
var _ core.ResourceRegistry = (*Registry)(nil)

const (
	defaultHz      = 1_000_000
	baseTxTimeout  = 250 * time.Millisecond
	spiQueueLength = 16
)

// spiPort is the hardware (or simulated) side of one SPI bus.
type spiPort interface {
	core.SPIOwner
	Close() error
}

// -----------------------------------------------------------------------------
// Per-bus worker
// -----------------------------------------------------------------------------

type spiOp uint8

const (
	opTx spiOp = iota
	opTransfer
	opSelect
)

// request posted to the per-bus worker
type spiReq struct {
	op    spiOp
	w, r  []byte
	b     byte
	level bool
	done  chan spiResp // buffered(1); worker replies best-effort
}

type spiResp struct {
	b   byte
	err error
}

// per-bus owner that hosts a single worker goroutine
type spiOwner struct {
	id   core.ResourceID
	hw   spiPort
	hz   uint32
	reqs chan spiReq
	quit chan struct{}
	done chan struct{} // closed when loop returns
}

func newSPIOwner(id core.ResourceID, hw spiPort, hz uint32) *spiOwner {
	if hz == 0 {
		hz = defaultHz
	}
	o := &spiOwner{
		id:   id,
		hw:   hw,
		hz:   hz,
		reqs: make(chan spiReq, spiQueueLength),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *spiOwner) loop() {
	defer close(o.done)
	for {
		select {
		case req := <-o.reqs:
			var resp spiResp
			switch req.op {
			case opTx:
				resp.err = o.hw.Tx(req.w, req.r)
			case opTransfer:
				resp.b, resp.err = o.hw.Transfer(req.b)
			case opSelect:
				o.hw.ChipSelect(req.level)
			}
			// best-effort reply; do not block the worker
			select {
			case req.done <- resp:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *spiOwner) stop() {
	close(o.quit)
	<-o.done
	_ = o.hw.Close()
}

// claimedSPI adapts the owner to core.SPIOwner (and so drivers.SPI).
// It posts a request and enforces a per-call timeout scaled to the length.
type claimedSPI struct {
	o       *spiOwner
	timeout time.Duration // base; 0 => no deadline
}

var _ core.SPIOwner = (*claimedSPI)(nil)

func (d *claimedSPI) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	_, err := d.post(spiReq{op: opTx, w: w, r: r}, timex.ClockTime(n, d.o.hz))
	return err
}

func (d *claimedSPI) Transfer(b byte) (byte, error) {
	return d.post(spiReq{op: opTransfer, b: b}, timex.ClockTime(1, d.o.hz))
}

// ChipSelect waits for the line to change so that later Tx calls see it.
func (d *claimedSPI) ChipSelect(level bool) {
	_, _ = d.post(spiReq{op: opSelect, level: level}, 0)
}

func (d *claimedSPI) post(req spiReq, extra time.Duration) (byte, error) {
	req.done = make(chan spiResp, 1)

	if d.timeout <= 0 {
		// Unbounded enqueue (blocks until space is available)
		d.o.reqs <- req
		resp := <-req.done
		return resp.b, resp.err
	}

	// Bounded enqueue
	t := time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case d.o.reqs <- req:
	case <-t.C:
		return 0, errcode.Busy
	}

	// Completion
	t.Reset(d.timeout + extra)
	select {
	case resp := <-req.done:
		return resp.b, resp.err
	case <-t.C:
		return 0, errcode.Timeout
	}
}

// -----------------------------------------------------------------------------
// Resource registry (SPI)
// -----------------------------------------------------------------------------

type Registry struct {
	mu sync.Mutex

	spiOwners map[core.ResourceID]*spiOwner
	owners    map[core.ResourceID]string // bus id -> devID
	sims      map[core.ResourceID]*ltc6811sim.Chain
}

func NewResourceRegistry(plan setups.ResourcePlan) *Registry {
	r := &Registry{
		spiOwners: make(map[core.ResourceID]*spiOwner),
		owners:    make(map[core.ResourceID]string),
		sims:      make(map[core.ResourceID]*ltc6811sim.Chain),
	}

	for _, p := range plan.SPI {
		id := core.ResourceID(p.ID)
		var hw spiPort
		switch p.Driver {
		case setups.DriverSim:
			sim := ltc6811sim.New(p.Devices)
			r.sims[id] = sim
			hw = simPort{sim}
		case setups.DriverSpidev:
			port, err := openSpidev(p)
			if err != nil {
				println("[hal] spi open failed:", p.ID, "err:", err.Error())
				continue
			}
			hw = port
		default:
			println("[hal] unknown spi driver:", p.Driver, "id:", p.ID)
			continue
		}
		r.spiOwners[id] = newSPIOwner(id, hw, p.Hz)
	}
	return r
}

// ClaimSPI hands bus id to devID exclusively. A device may claim the same bus
// again.
func (r *Registry) ClaimSPI(devID string, id core.ResourceID) (core.SPIOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.spiOwners[id]
	if o == nil {
		return nil, errcode.UnknownBus
	}
	if owner, taken := r.owners[id]; taken && owner != "" && owner != devID {
		return nil, errcode.Conflict // bus already claimed
	}
	// Record (or reaffirm) ownership.
	r.owners[id] = devID
	return &claimedSPI{o: o, timeout: baseTxTimeout}, nil
}

func (r *Registry) ReleaseSPI(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[id]; ok && owner == devID {
		delete(r.owners, id)
	}
}

// Sim returns the simulated chain behind bus id, if it is one.
func (r *Registry) Sim(id core.ResourceID) (*ltc6811sim.Chain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sims[id]
	return s, ok
}

// Close stops the per-bus workers and closes their ports.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range r.spiOwners {
		o.stop()
		delete(r.spiOwners, id)
	}
}

// simPort gives the simulated chain the port shape.
type simPort struct{ *ltc6811sim.Chain }

func (simPort) Close() error { return nil }

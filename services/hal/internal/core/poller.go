package core

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"bmscode-go/services/hal/internal/util"
)

// PollReq is a due schedule handed to the HAL loop.
type PollReq struct {
	Addr  CapAddr
	Verb  string
	Every time.Duration
}

type schedKey struct {
	addr CapAddr
	verb string
}

type schedule struct {
	key    schedKey
	due    int64 // Unix ns
	every  time.Duration
	jitter time.Duration
	index  int // heap slot; -1 when not queued
}

// dueQueue orders schedules by next due time.
type dueQueue []*schedule

func (q dueQueue) Len() int           { return len(q) }
func (q dueQueue) Less(i, j int) bool { return q[i].due < q[j].due }
func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *dueQueue) Push(x any) {
	s := x.(*schedule)
	s.index = len(*q)
	*q = append(*q, s)
}
func (q *dueQueue) Pop() any {
	old := *q
	s := old[len(old)-1]
	s.index = -1
	*q = old[:len(old)-1]
	return s
}

// Poller turns per-capability schedules into PollReqs on out. A request that
// finds out full is dropped and counted; the schedule still advances.
type Poller struct {
	mu      sync.Mutex
	byKey   map[schedKey]*schedule
	q       dueQueue
	rng     *rand.Rand
	wake    chan struct{}
	out     chan<- PollReq
	dropped atomic.Uint64
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		byKey: make(map[schedKey]*schedule),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:  make(chan struct{}, 1),
		out:   out,
	}
}

// Upsert starts or replaces the schedule for (addr, verb). The next fire is
// interval plus a uniform jitter in [0, jitter], re-drawn on every re-arm.
func (p *Poller) Upsert(addr CapAddr, verb string, interval, jitter time.Duration) {
	if interval <= 0 || verb == "" {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	k := schedKey{addr: addr, verb: verb}

	p.mu.Lock()
	s := p.byKey[k]
	if s == nil {
		s = &schedule{key: k, index: -1}
		p.byKey[k] = s
	}
	s.every, s.jitter = interval, jitter
	s.due = time.Now().Add(p.jittered(interval, jitter)).UnixNano()
	if s.index < 0 {
		heap.Push(&p.q, s)
	} else {
		heap.Fix(&p.q, s.index)
	}
	p.mu.Unlock()
	p.wakeup()
}

// Stop removes the schedule for (addr, verb), if any.
func (p *Poller) Stop(addr CapAddr, verb string) {
	k := schedKey{addr: addr, verb: verb}
	p.mu.Lock()
	if s := p.byKey[k]; s != nil {
		heap.Remove(&p.q, s.index)
		delete(p.byKey, k)
	}
	p.mu.Unlock()
	p.wakeup()
}

// BumpAfter moves the next fire to one interval after lastNs, so a value
// published outside the schedule resets its period.
func (p *Poller) BumpAfter(addr CapAddr, verb string, lastNs int64) {
	k := schedKey{addr: addr, verb: verb}
	now := time.Now().UnixNano()
	p.mu.Lock()
	if s := p.byKey[k]; s != nil {
		due := lastNs + int64(s.every)
		if due < now {
			due = now
		}
		s.due = due
		heap.Fix(&p.q, s.index)
	}
	p.mu.Unlock()
	p.wakeup()
}

// Active reports whether (addr, verb) is scheduled.
func (p *Poller) Active(addr CapAddr, verb string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byKey[schedKey{addr: addr, verb: verb}] != nil
}

// Dropped returns how many due requests found the output queue full.
func (p *Poller) Dropped() uint64 { return p.dropped.Load() }

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if req, ok := p.popDue(); ok {
			select {
			case p.out <- req:
			default:
				p.dropped.Add(1)
			}
			continue
		}

		wait, idle := p.nextWait()
		if idle {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}
		util.ResetTimer(timer, wait)
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-timer.C:
		}
	}
}

// popDue re-arms the earliest schedule if it is due and returns its request.
func (p *Poller) popDue() (PollReq, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return PollReq{}, false
	}
	s := p.q[0]
	now := time.Now()
	if s.due > now.UnixNano() {
		return PollReq{}, false
	}
	s.due = now.Add(p.jittered(s.every, s.jitter)).UnixNano()
	heap.Fix(&p.q, 0)
	return PollReq{Addr: s.key.addr, Verb: s.key.verb, Every: s.every}, true
}

// nextWait returns the time until the earliest schedule; idle is true when
// nothing is scheduled.
func (p *Poller) nextWait() (wait time.Duration, idle bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return 0, true
	}
	d := time.Duration(p.q[0].due - time.Now().UnixNano())
	if d < 0 {
		d = 0
	}
	return d, false
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// jittered is called with mu held; rand.Rand is not safe for concurrent use.
func (p *Poller) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	return interval + time.Duration(p.rng.Int63n(int64(jitter)+1))
}

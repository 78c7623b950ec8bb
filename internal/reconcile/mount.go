package reconcile

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Snapshot is what a page renders: the outcome of the current generation
// and, once succeeded, the navigation to perform.
type Snapshot struct {
	Generation uint64
	Outcome    Outcome
	Navigation *Navigation
}

// subscriberBuffer holds every snapshot a single generation can emit
// (pending, terminal) plus slack for a retry.
const subscriberBuffer = 8

// MountOption configures a Mount.
type MountOption func(*Mount)

// OnTerminal registers fn to run once per generation after the outcome
// becomes terminal. It is never called for discarded outcomes.
func OnTerminal(fn func(Snapshot)) MountOption {
	return func(m *Mount) { m.onTerminal = fn }
}

// Mount binds a Flow to the lifetime of a hosting page. Each generation
// runs at most one verification; concurrent Run calls share it. After
// Close no state changes, storage writes or navigations happen.
type Mount struct {
	flow       Flow
	store      Storage
	ctx        context.Context
	cancel     context.CancelFunc
	group      singleflight.Group
	onTerminal func(Snapshot)

	mu      sync.Mutex
	closed  bool
	current Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// NewMount returns a pending Mount whose lifetime ends when ctx is done or
// Close is called.
func NewMount(ctx context.Context, flow Flow, store Storage, opts ...MountOption) *Mount {
	mctx, cancel := context.WithCancel(ctx)
	m := &Mount{
		flow:    flow,
		store:   store,
		ctx:     mctx,
		cancel:  cancel,
		current: Snapshot{Generation: 1, Outcome: Outcome{State: Pending}},
		subs:    map[int]chan Snapshot{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Flow returns the flow the mount runs.
func (m *Mount) Flow() Flow { return m.flow }

// Snapshot returns the current snapshot.
func (m *Mount) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Run reconciles params for the current generation. A terminal generation
// returns its cached snapshot without verifying again.
func (m *Mount) Run(params Params) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrUnmounted
	}
	if m.current.Outcome.State.Terminal() {
		s := m.current
		m.mu.Unlock()
		return s, nil
	}
	gen := m.current.Generation
	m.mu.Unlock()

	// The key stays claimed until the outcome is applied, so a late caller
	// of the same generation finds it terminal instead of verifying again.
	v, err, _ := m.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		m.mu.Lock()
		switch {
		case m.closed:
			m.mu.Unlock()
			return nil, ErrUnmounted
		case gen != m.current.Generation:
			m.mu.Unlock()
			return nil, ErrDiscarded
		case m.current.Outcome.State.Terminal():
			s := m.current
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		res, err := m.flow.Reconcile(m.ctx, params, m.store)
		if err != nil {
			return nil, err
		}
		return m.apply(gen, res)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Retry starts a new generation after a failure and runs it. A succeeded
// mount is left untouched; a pending one joins the running verification.
func (m *Mount) Retry(params Params) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrUnmounted
	}
	switch m.current.Outcome.State {
	case Succeeded:
		s := m.current
		m.mu.Unlock()
		return s, nil
	case Failed:
		m.current = Snapshot{
			Generation: m.current.Generation + 1,
			Outcome:    Outcome{State: Pending},
		}
		m.broadcastLocked(m.current)
	}
	m.mu.Unlock()
	return m.Run(params)
}

func (m *Mount) apply(gen uint64, res Result) (Snapshot, error) {
	m.mu.Lock()
	if m.closed || gen != m.current.Generation {
		m.mu.Unlock()
		return Snapshot{}, ErrDiscarded
	}
	m.current = Snapshot{Generation: gen, Outcome: res.Outcome, Navigation: res.Navigation}
	s := m.current
	m.broadcastLocked(s)
	m.mu.Unlock()

	if m.onTerminal != nil {
		m.onTerminal(s)
	}
	return s, nil
}

// Subscribe returns a channel that first receives the current snapshot and
// then every change. The channel is closed by the returned cancel func or
// by Close. Slow readers may miss intermediate snapshots.
func (m *Mount) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- m.current
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Close tears the mount down. In-flight verifications are not interrupted
// beyond context cancellation, but their results are dropped.
func (m *Mount) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()
	for id, c := range m.subs {
		delete(m.subs, id)
		close(c)
	}
}

func (m *Mount) broadcastLocked(s Snapshot) {
	for _, c := range m.subs {
		select {
		case c <- s:
		default:
		}
	}
}

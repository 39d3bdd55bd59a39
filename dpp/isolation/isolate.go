package isolation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/drive/dpp"
)

// meter enforces the memory limit and, acting as the timeout shim, the
// deadline of one isolate. Memory is the sum of intensities multiplied by
// the weight of their kind.
type meter struct {
	memoryLimit   uint64
	memoryWeights dpp.MemoryWeights
	memoryUsed    atomic.Uint64
	exceeded      atomic.Bool

	deadline    time.Time
	clock       func() time.Time
	timeout     time.Duration
	interrupted atomic.Bool
}

var _ dpp.ExecutionMeter = (*meter)(nil)

func (m *meter) MeterMemory(kind dpp.MemoryKind, intensity uint64) error {
	w, ok := m.memoryWeights[kind]
	if !ok {
		return m.Checkpoint()
	}
	if m.memoryUsed.Add(w*intensity) > m.memoryLimit {
		m.exceeded.Store(true)
		return &ResourceExceededError{Cause: CauseMemory, MemoryLimit: m.memoryLimit}
	}
	return m.Checkpoint()
}

func (m *meter) Checkpoint() error {
	if m.interrupted.Load() || m.clock().After(m.deadline) {
		m.interrupted.Store(true)
		return &ResourceExceededError{Cause: CauseTimeout, Timeout: m.timeout}
	}
	return nil
}

func (m *meter) interrupt() { m.interrupted.Store(true) }

type proxyRequest struct {
	call  []byte
	reply chan []byte
}

// isolate is a single-use execution context. Its worker goroutine only
// exchanges encoded envelopes with the host.
type isolate struct {
	snapshot *Snapshot
	meter    *meter

	proxyCalls chan proxyRequest
	done       chan struct{}
	closeOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newIsolate(snapshot *Snapshot, opts Options) *isolate {
	ctx, cancel := context.WithCancel(context.Background())
	return &isolate{
		snapshot: snapshot,
		meter: &meter{
			memoryLimit:   opts.MemoryLimitBytes,
			memoryWeights: opts.memoryWeights(),
			clock:         snapshot.timeoutShim.Clock,
			deadline:      snapshot.timeoutShim.Clock().Add(opts.Timeout),
			timeout:       opts.Timeout,
		},
		proxyCalls: make(chan proxyRequest),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// dispose interrupts the worker and releases anything waiting on the host.
func (iso *isolate) dispose() {
	iso.closeOnce.Do(func() {
		iso.meter.interrupt()
		iso.cancel()
		close(iso.done)
	})
}

// run executes one call envelope and returns the result envelope.
// It never panics.
func (iso *isolate) run(envelope []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = faultEnvelope(fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := iso.meter.MeterMemory(dpp.MemoryKindRawData, uint64(len(envelope))); err != nil {
		return faultEnvelope(err.Error())
	}
	var call callEnvelope
	if err := cramberry.Unmarshal(envelope, &call); err != nil {
		return faultEnvelope(fmt.Sprintf("could not decode call: %v", err))
	}
	m, ok := methods[call.Method]
	if !ok {
		return faultEnvelope(fmt.Sprintf("unknown method %q", call.Method))
	}

	provider := iso.snapshot.dataProvider.Wrap(&proxyProvider{iso: iso})
	engine := iso.snapshot.engine.New(provider)
	ctx := dpp.WithExecutionMeter(iso.ctx, iso.meter)

	result, callErr := m(ctx, engine, call.Args)
	data, err := encodeResult(result, callErr)
	if err != nil {
		return faultEnvelope(err.Error())
	}
	return data
}

func faultEnvelope(msg string) []byte {
	data, err := cramberry.Marshal(resultEnvelope{Kind: errorFault, Fault: msg})
	if err != nil {
		// A string-only envelope always encodes.
		panic(err)
	}
	return data
}

// roundTrip sends a proxy call to the host and blocks until the reply
// arrives or the isolate is disposed.
func (iso *isolate) roundTrip(call proxyCall) (proxyReply, error) {
	data, err := cramberry.Marshal(call)
	if err != nil {
		return proxyReply{}, err
	}
	req := proxyRequest{call: data, reply: make(chan []byte, 1)}
	select {
	case iso.proxyCalls <- req:
	case <-iso.done:
		return proxyReply{}, errSessionClosed
	}

	var replyData []byte
	select {
	case replyData = <-req.reply:
	case <-iso.done:
		return proxyReply{}, errSessionClosed
	}
	if err := iso.meter.MeterMemory(dpp.MemoryKindRawData, uint64(len(replyData))); err != nil {
		return proxyReply{}, err
	}
	var reply proxyReply
	if err := cramberry.Unmarshal(replyData, &reply); err != nil {
		return proxyReply{}, fmt.Errorf("could not decode proxy reply: %w", err)
	}
	if reply.Fault != "" {
		return proxyReply{}, fmt.Errorf("data provider %s: %s", call.Method, reply.Fault)
	}
	return reply, nil
}

// proxyProvider is the data provider seen inside an isolate. Every
// fetch is a round trip to the host's provider.
type proxyProvider struct {
	iso *isolate
}

func (p *proxyProvider) FetchDataContract(_ context.Context, id string) (*dpp.DataContract, error) {
	reply, err := p.iso.roundTrip(proxyCall{Method: proxyFetchDataContract, ID: id})
	if err != nil || !reply.Found {
		return nil, err
	}
	var raw dpp.RawDataContract
	if err := dpp.Decode(reply.Entity, &raw); err != nil {
		return nil, fmt.Errorf("could not decode data contract: %w", err)
	}
	contract := dpp.DataContract(raw)
	return &contract, nil
}

func (p *proxyProvider) FetchIdentity(_ context.Context, id string) (*dpp.Identity, error) {
	reply, err := p.iso.roundTrip(proxyCall{Method: proxyFetchIdentity, ID: id})
	if err != nil || !reply.Found {
		return nil, err
	}
	var raw dpp.RawIdentity
	if err := dpp.Decode(reply.Entity, &raw); err != nil {
		return nil, fmt.Errorf("could not decode identity: %w", err)
	}
	identity := dpp.Identity(raw)
	return &identity, nil
}

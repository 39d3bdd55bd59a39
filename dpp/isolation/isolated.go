// Package isolation runs the protocol engine in resource-bounded
// isolated execution contexts.
//
// Each call instantiates a fresh isolate from a shared, immutable
// Snapshot. Arguments and results cross the boundary only as encoded
// envelopes, data provider lookups from inside the isolate are proxied
// to the host, and the call is aborted once it exceeds its memory limit
// or timeout.
package isolation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/metrics"
)

// Options configure the isolates of an IsolatedDpp.
type Options struct {
	// MemoryLimitBytes bounds the memory charged by one call.
	MemoryLimitBytes uint64
	// CopyArguments must be true: arguments are always copied into the
	// isolate.
	CopyArguments bool
	// ResultPromise makes the host await the in-context result. It must
	// be true.
	ResultPromise bool
	// Timeout bounds the wall-clock duration of one call.
	Timeout time.Duration
	// MaxSessions bounds concurrently running isolates. Zero means no bound.
	MaxSessions int64
	// MemoryWeights convert what the engine materialises into charged
	// bytes. Nil means dpp.DefaultMemoryWeights.
	MemoryWeights dpp.MemoryWeights
}

func (o Options) memoryWeights() dpp.MemoryWeights {
	if o.MemoryWeights == nil {
		return dpp.DefaultMemoryWeights
	}
	return o.MemoryWeights
}

// DefaultOptions returns a 128 MiB memory limit and a 5 second timeout.
func DefaultOptions() Options {
	return Options{
		MemoryLimitBytes: 128 << 20,
		CopyArguments:    true,
		ResultPromise:    true,
		Timeout:          5 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	switch {
	case o.MemoryLimitBytes == 0:
		return fmt.Errorf("memory limit must be positive")
	case o.Timeout <= 0:
		return fmt.Errorf("timeout must be positive")
	case !o.CopyArguments:
		return fmt.Errorf("arguments must be copied into the isolate")
	case !o.ResultPromise:
		return fmt.Errorf("results must be awaited")
	case o.MaxSessions < 0:
		return fmt.Errorf("max sessions must not be negative")
	}
	return nil
}

// Option configures an IsolatedDpp.
type Option func(*IsolatedDpp)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *IsolatedDpp) {
		d.log = log.With().Str("component", "isolated_dpp").Logger()
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.SandboxMetrics) Option {
	return func(d *IsolatedDpp) {
		d.metrics = m
	}
}

// IsolatedDpp is a dpp.Protocol that runs every call in its own isolate.
type IsolatedDpp struct {
	snapshot *Snapshot
	host     dpp.DataProvider
	opts     Options
	sessions *semaphore.Weighted
	log      zerolog.Logger
	metrics  metrics.SandboxMetrics

	dataContracts    *dataContractFacade
	documents        *documentFacade
	identities       *identityFacade
	stateTransitions *stateTransitionFacade
}

var _ dpp.Protocol = (*IsolatedDpp)(nil)

// New creates an IsolatedDpp whose isolates proxy data lookups to host.
func New(snapshot *Snapshot, host dpp.DataProvider, opts Options, options ...Option) (*IsolatedDpp, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid isolation options: %w", err)
	}
	d := &IsolatedDpp{
		snapshot: snapshot,
		host:     host,
		opts:     opts,
		log:      zerolog.Nop(),
		metrics:  metrics.NewNoopCollector(),
	}
	if opts.MaxSessions > 0 {
		d.sessions = semaphore.NewWeighted(opts.MaxSessions)
	}
	for _, o := range options {
		o(d)
	}
	d.dataContracts = &dataContractFacade{d}
	d.documents = &documentFacade{d}
	d.identities = &identityFacade{d}
	d.stateTransitions = &stateTransitionFacade{d}
	return d, nil
}

func (d *IsolatedDpp) DataContract() dpp.DataContractFacade       { return d.dataContracts }
func (d *IsolatedDpp) Document() dpp.DocumentFacade               { return d.documents }
func (d *IsolatedDpp) Identity() dpp.IdentityFacade               { return d.identities }
func (d *IsolatedDpp) StateTransition() dpp.StateTransitionFacade { return d.stateTransitions }

// call runs method in a fresh isolate and returns the encoded result.
func (d *IsolatedDpp) call(ctx context.Context, method string, args any) ([]byte, error) {
	if d.sessions != nil {
		if err := d.sessions.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer d.sessions.Release(1)
	}

	encodedArgs, err := dpp.Encode(args)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s arguments: %w", method, err)
	}
	envelope, err := cramberry.Marshal(callEnvelope{Method: method, Args: encodedArgs})
	if err != nil {
		return nil, fmt.Errorf("could not encode %s call: %w", method, err)
	}

	start := time.Now()
	iso := newIsolate(d.snapshot, d.opts)
	defer iso.dispose()

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	proxy := &hostProxy{provider: d.host}

	results := make(chan []byte, 1)
	go func() {
		results <- iso.run(envelope)
	}()

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case data := <-results:
			d.metrics.SandboxCallFinished(method, time.Since(start))
			return d.decodeResult(method, iso, proxy, data)
		case req := <-iso.proxyCalls:
			go proxy.serve(serveCtx, req)
		case <-timer.C:
			iso.dispose()
			d.log.Warn().Str("method", method).Dur("timeout", d.opts.Timeout).Msg("isolated call timed out")
			d.metrics.SandboxResourceExceeded(CauseTimeout.String())
			return nil, &ResourceExceededError{Cause: CauseTimeout, Timeout: d.opts.Timeout}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *IsolatedDpp) decodeResult(method string, iso *isolate, proxy *hostProxy, data []byte) ([]byte, error) {
	if iso.meter.exceeded.Load() {
		d.log.Warn().Str("method", method).Uint64("limit", d.opts.MemoryLimitBytes).Msg("isolated call exceeded memory limit")
		d.metrics.SandboxResourceExceeded(CauseMemory.String())
		return nil, &ResourceExceededError{Cause: CauseMemory, MemoryLimit: d.opts.MemoryLimitBytes}
	}
	if iso.meter.interrupted.Load() {
		d.metrics.SandboxResourceExceeded(CauseTimeout.String())
		return nil, &ResourceExceededError{Cause: CauseTimeout, Timeout: d.opts.Timeout}
	}

	var env resultEnvelope
	if err := cramberry.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not decode %s result: %w", method, err)
	}
	switch env.Kind {
	case errorNone:
		return env.Payload, nil
	case errorFault:
		if err := proxy.err(); err != nil {
			return nil, fmt.Errorf("isolated %s: %w", method, err)
		}
		return nil, &ExecutionError{Method: method, Message: env.Fault}
	default:
		validationErr, err := decodeError(env)
		if err != nil {
			return nil, fmt.Errorf("could not decode %s error: %w", method, err)
		}
		return nil, validationErr
	}
}

// hostProxy serves the proxy calls of one isolate with the host's data
// provider. The first provider failure is kept so that it can be
// returned to the caller unchanged.
type hostProxy struct {
	provider dpp.DataProvider

	mu       sync.Mutex
	firstErr error
}

func (p *hostProxy) serve(ctx context.Context, req proxyRequest) {
	reply := p.fetch(ctx, req.call)
	data, err := cramberry.Marshal(reply)
	if err != nil {
		data, _ = cramberry.Marshal(proxyReply{Fault: err.Error()})
	}
	req.reply <- data
}

func (p *hostProxy) fetch(ctx context.Context, data []byte) proxyReply {
	var call proxyCall
	if err := cramberry.Unmarshal(data, &call); err != nil {
		return proxyReply{Fault: fmt.Sprintf("could not decode proxy call: %v", err)}
	}

	var (
		entity any
		err    error
	)
	switch call.Method {
	case proxyFetchDataContract:
		var c *dpp.DataContract
		if c, err = p.provider.FetchDataContract(ctx, call.ID); err == nil && c != nil {
			entity = c.ToObject()
		}
	case proxyFetchIdentity:
		var i *dpp.Identity
		if i, err = p.provider.FetchIdentity(ctx, call.ID); err == nil && i != nil {
			entity = i.ToObject()
		}
	default:
		return proxyReply{Fault: fmt.Sprintf("unknown proxy method %q", call.Method)}
	}
	if err != nil {
		p.record(err)
		return proxyReply{Fault: err.Error()}
	}
	if entity == nil {
		return proxyReply{}
	}
	encoded, err := dpp.Encode(entity)
	if err != nil {
		return proxyReply{Fault: err.Error()}
	}
	return proxyReply{Found: true, Entity: encoded}
}

func (p *hostProxy) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
	}
}

func (p *hostProxy) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

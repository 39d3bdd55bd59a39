// Package ratelimit enforces a per-submitter transaction quota over windows
// of blocks and bans submitters that keep exceeding it.
//
// Limiter is the mempool side: its counters live in memory and depend on
// the transactions a node happened to see. Ledger is the execution side:
// it changes only while executing blocks and is committed with them, so
// every node derives the same state.
package ratelimit

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/blockberries/drive/metrics"
	"github.com/blockberries/drive/types"
)

// Option configures a Limiter or a Ledger.
type Option func(*options)

type options struct {
	log     zerolog.Logger
	metrics metrics.RateLimiterMetrics
}

// WithLogger sets the logger ban decisions are reported to.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithMetrics sets the collector rejections and bans are counted by.
func WithMetrics(m metrics.RateLimiterMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func newOptions(component string, opts []Option) options {
	o := options{
		log:     zerolog.Nop(),
		metrics: metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With().Str("component", component).Logger()
	return o
}

func (o options) reportBan(userID string, rec Record) {
	o.metrics.SubmitterBanned()
	o.log.Info().
		Str("user_id", userID).
		Uint64("window", rec.Window).
		Uint64("banned_until", rec.BannedUntil).
		Msg("submitter banned")
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// Limiter tracks submissions per submitter. Entries are created on first
// observation and kept for the lifetime of the Limiter.
type Limiter struct {
	cfg Config
	options

	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns a Limiter for cfg.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:     cfg,
		options: newOptions("rate_limiter", opts),
		entries: make(map[string]*entry),
	}, nil
}

// Window returns the window containing height.
func (l *Limiter) Window(height uint64) uint64 {
	return height / l.cfg.WindowSize
}

// IsBannedUser reports whether userID is banned during window.
func (l *Limiter) IsBannedUser(userID string, window uint64) bool {
	e := l.lookup(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	banned := e.rec.IsBanned(window)
	e.mu.Unlock()

	if banned {
		l.metrics.RateLimitRejected("banned")
	}
	return banned
}

// IsQuotaExceeded counts one submission by userID in window and reports
// whether the quota was already used up. An exceeded window is a strike;
// reaching the ban threshold bans the submitter.
func (l *Limiter) IsQuotaExceeded(userID string, window uint64) bool {
	e := l.getOrCreate(userID)

	e.mu.Lock()
	defer e.mu.Unlock()

	exceeded, banned := e.rec.consume(l.cfg, window)
	if banned {
		l.reportBan(userID, e.rec)
	}
	if exceeded {
		l.metrics.RateLimitRejected("quota")
	}
	return exceeded
}

// GetBannedKey returns the tag key listing banned submitters.
func (l *Limiter) GetBannedKey() string {
	return l.cfg.BannedKey
}

// CreateUserTag returns the tag identifying userID as the submitter of a
// delivered transaction.
func (l *Limiter) CreateUserTag(userID string) types.Tag {
	return types.Tag{Key: l.cfg.UserTagKey, Value: userID}
}

func (l *Limiter) lookup(userID string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[userID]
}

func (l *Limiter) getOrCreate(userID string) *entry {
	if e := l.lookup(userID); e != nil {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[userID]
	if !ok {
		e = &entry{}
		l.entries[userID] = e
	}
	return e
}

package ratelimit

import (
	"sync"

	"github.com/blockberries/drive/types"
)

// Ledger is the quota state consulted while executing blocks. Changes made
// by a block are staged until Commit; Discard drops them. The committed
// records are what the application persists with the block and restores on
// restart.
type Ledger struct {
	cfg Config
	options

	mu        sync.Mutex
	committed map[string]Record
	staged    map[string]Record
}

// NewLedger returns an empty Ledger for cfg.
func NewLedger(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		cfg:       cfg,
		options:   newOptions("quota_ledger", opts),
		committed: make(map[string]Record),
		staged:    make(map[string]Record),
	}, nil
}

// Restore replaces the committed records and drops staged changes.
func (l *Ledger) Restore(records map[string]Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.committed = make(map[string]Record, len(records))
	for userID, rec := range records {
		l.committed[userID] = rec
	}
	l.staged = make(map[string]Record)
}

// Window returns the window containing height.
func (l *Ledger) Window(height uint64) uint64 {
	return height / l.cfg.WindowSize
}

// IsBannedUser reports whether userID is banned during window.
func (l *Ledger) IsBannedUser(userID string, window uint64) bool {
	l.mu.Lock()
	banned := l.get(userID).IsBanned(window)
	l.mu.Unlock()

	if banned {
		l.metrics.RateLimitRejected("banned")
	}
	return banned
}

// IsQuotaExceeded counts one submission by userID in window as a staged
// change and reports whether the quota was already used up.
func (l *Ledger) IsQuotaExceeded(userID string, window uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.get(userID)
	exceeded, banned := rec.consume(l.cfg, window)
	l.staged[userID] = rec
	if banned {
		l.reportBan(userID, rec)
	}
	if exceeded {
		l.metrics.RateLimitRejected("quota")
	}
	return exceeded
}

// GetBannedKey returns the tag key listing banned submitters.
func (l *Ledger) GetBannedKey() string {
	return l.cfg.BannedKey
}

// CreateUserTag returns the tag identifying userID as the submitter of a
// delivered transaction.
func (l *Ledger) CreateUserTag(userID string) types.Tag {
	return types.Tag{Key: l.cfg.UserTagKey, Value: userID}
}

// Staged returns a copy of the records changed since the last Commit or
// Discard.
func (l *Ledger) Staged() map[string]Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	staged := make(map[string]Record, len(l.staged))
	for userID, rec := range l.staged {
		staged[userID] = rec
	}
	return staged
}

// Commit makes the staged records the committed ones.
func (l *Ledger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, rec := range l.staged {
		l.committed[userID] = rec
	}
	l.staged = make(map[string]Record)
}

// Discard drops the staged records.
func (l *Ledger) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staged = make(map[string]Record)
}

func (l *Ledger) get(userID string) Record {
	if rec, ok := l.staged[userID]; ok {
		return rec
	}
	return l.committed[userID]
}

package ratelimit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/drive/ratelimit"
)

func newLedger(t *testing.T, mutate func(*ratelimit.Config)) *ratelimit.Ledger {
	t.Helper()
	cfg := ratelimit.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := ratelimit.NewLedger(cfg)
	require.NoError(t, err)
	return l
}

func TestNewLedger_InvalidConfig(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.Quota = 0
	_, err := ratelimit.NewLedger(cfg)
	assert.Error(t, err)
}

func TestLedger_StagesUntilCommit(t *testing.T) {
	l := newLedger(t, func(c *ratelimit.Config) { c.Quota = 2 })

	assert.False(t, l.IsQuotaExceeded("alice", 0))
	assert.Equal(t, map[string]ratelimit.Record{
		"alice": {Window: 0, Count: 1},
	}, l.Staged())

	// Staged changes are seen by later transactions of the same block.
	assert.False(t, l.IsQuotaExceeded("alice", 0))
	assert.True(t, l.IsQuotaExceeded("alice", 0))

	l.Discard()
	assert.Empty(t, l.Staged())
	assert.False(t, l.IsQuotaExceeded("alice", 0), "discarded submissions are not counted")

	l.Commit()
	assert.Empty(t, l.Staged())
	assert.False(t, l.IsQuotaExceeded("alice", 0))
	assert.True(t, l.IsQuotaExceeded("alice", 0))
}

func TestLedger_Restore(t *testing.T) {
	l := newLedger(t, func(c *ratelimit.Config) { c.Quota = 1 })
	assert.False(t, l.IsQuotaExceeded("bob", 3))

	l.Restore(map[string]ratelimit.Record{
		"alice": {Window: 3, Count: 1},
		"carol": {Window: 3, Banned: true, BannedUntil: 5},
	})
	assert.Empty(t, l.Staged(), "restore drops staged changes")

	assert.True(t, l.IsQuotaExceeded("alice", 3))
	assert.False(t, l.IsQuotaExceeded("bob", 3))
	assert.True(t, l.IsBannedUser("carol", 4))
	assert.False(t, l.IsBannedUser("carol", 5))
}

func TestLedger_Ban(t *testing.T) {
	l := newLedger(t, func(c *ratelimit.Config) {
		c.Quota = 1
		c.BanThreshold = 1
		c.BanWindows = 2
	})

	assert.False(t, l.IsQuotaExceeded("alice", 4))
	assert.True(t, l.IsQuotaExceeded("alice", 4))
	assert.True(t, l.IsBannedUser("alice", 5))
	l.Commit()
	assert.True(t, l.IsBannedUser("alice", 5))
	assert.False(t, l.IsBannedUser("alice", 6))
}

// Two ledgers fed the same submissions agree no matter what an advisory
// limiter saw beforehand.
func TestLedger_IndependentOfLimiter(t *testing.T) {
	mutate := func(c *ratelimit.Config) { c.Quota = 1 }
	limiter := newLimiter(t, mutate)
	a := newLedger(t, mutate)
	b := newLedger(t, mutate)

	assert.False(t, limiter.IsQuotaExceeded("alice", 0))
	assert.Equal(t, a.IsQuotaExceeded("alice", 0), b.IsQuotaExceeded("alice", 0))
	assert.Equal(t, a.Staged(), b.Staged())
}

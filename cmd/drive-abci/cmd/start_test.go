package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/drive/config"
)

func TestStartCmd_Flags(t *testing.T) {
	cmd := newStartCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--listen-addr=127.0.0.1:0",
		"--rate-limiter-enabled=false",
		"--isolation-timeout=2s",
	}))

	cfg, err := config.Load(viper.New(), cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr)
	assert.False(t, cfg.RateLimiter.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Isolation.Timeout)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.LogLevel = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_InvalidLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "loud"
	assert.Error(t, run(context.Background(), cfg))
}

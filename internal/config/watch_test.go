package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "backend:\n  url: http://first:5001/chat\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	Set(cfg)

	var lastURL atomic.Value
	RegisterOnReload(func(c *Config) { lastURL.Store(c.Backend.URL) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, path)

	// give the watcher time to register before writing
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: http://second:5001/chat\n"), 0600))

	require.Eventually(t, func() bool {
		v, _ := lastURL.Load().(string)
		return v == "http://second:5001/chat" && Get().Backend.URL == v
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchReturnsOnCancel(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, path)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	// a change after shutdown must not trigger a reload timer
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0600))
	time.Sleep(2 * reloadDebounce)
}

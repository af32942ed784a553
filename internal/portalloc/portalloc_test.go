package portalloc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestIsFree(t *testing.T) {
	ln, port := listen(t)
	assert.False(t, IsFree(port))

	require.NoError(t, ln.Close())
	assert.True(t, IsFree(port))
}

func TestIsFree_InvalidPort(t *testing.T) {
	assert.False(t, IsFree(0))
	assert.False(t, IsFree(70000))
}

func TestNextFree_SkipsOccupied(t *testing.T) {
	_, port := listen(t)

	got, err := NextFree(port - 1)
	require.NoError(t, err)
	assert.Greater(t, got, port-1)
	assert.NotEqual(t, port, got)
	assert.LessOrEqual(t, got, port-1+probeWindow)
}

func TestNextFree_AboveBase(t *testing.T) {
	got, err := NextFree(4222)
	require.NoError(t, err)
	assert.Greater(t, got, 4222)
}

func TestNextFree_Exhausted(t *testing.T) {
	_, err := NextFree(maxPort)
	assert.ErrorIs(t, err, ErrNoFreePort)
}

func TestWaitFor_BecomesFree(t *testing.T) {
	ln, port := listen(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = ln.Close()
	}()

	ok := WaitFor(context.Background(), port, After(5*time.Second), true)
	assert.True(t, ok)
}

func TestWaitFor_TimesOut(t *testing.T) {
	_, port := listen(t)

	start := time.Now()
	ok := WaitFor(context.Background(), port, Millis(200), true)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWaitFor_NoWaitChecksOnce(t *testing.T) {
	_, port := listen(t)
	assert.True(t, WaitFor(context.Background(), port, NoWait, false))
	assert.False(t, WaitFor(context.Background(), port, NoWait, true))
}

func TestWaitFor_IndefiniteHonoursContext(t *testing.T) {
	_, port := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	assert.False(t, WaitFor(ctx, port, Indefinite, true))
}

func TestTimeout(t *testing.T) {
	assert.True(t, Timeout{}.IsNoWait())
	assert.True(t, Millis(0).IsNoWait())
	assert.True(t, Millis(-1).IsNoWait())
	assert.True(t, Indefinite.IsIndefinite())

	d, ok := Millis(1500).Duration()
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	tests := []struct {
		in   string
		want Timeout
	}{
		{"nowait", NoWait},
		{"indefinite", Indefinite},
		{"2s", After(2 * time.Second)},
	}
	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseTimeout("soon")
	assert.Error(t, err)
}

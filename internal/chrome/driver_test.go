package chrome

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	u "ogimage/internal/utils"
)

func TestStaticPath(t *testing.T) {
	p, err := StaticPath("/opt/chromium").ExecPath()
	require.NoError(t, err)
	assert.Equal(t, "/opt/chromium", p)
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "chrome")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	p, err := FirstExisting{filepath.Join(dir, "missing"), dir, bin}.ExecPath()
	require.NoError(t, err)
	assert.Equal(t, bin, p, "directories are skipped")

	_, err = FirstExisting{filepath.Join(dir, "missing")}.ExecPath()
	assert.True(t, errors.Is(err, ErrNoBrowser))

	p, err = FirstExisting{}.ExecPath()
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestResolverFromConfig(t *testing.T) {
	assert.Equal(t, StaticPath("/x"), ResolverFromConfig(u.ChromeConfig{ExecPath: "/x", Candidates: []string{"/y"}}))
	assert.Equal(t, FirstExisting{"/y"}, ResolverFromConfig(u.ChromeConfig{Candidates: []string{"/y"}}))
	assert.Equal(t, StaticPath(""), ResolverFromConfig(u.ChromeConfig{}))
}

func TestAllocatorOptions_ServerlessAddsFlags(t *testing.T) {
	cfg := testConfig(0).Chrome
	base := allocatorOptions(cfg, "", "")
	withPath := allocatorOptions(cfg, "/bin/chrome", "/tmp/profile")
	assert.Len(t, withPath, len(base)+2)

	cfg.Serverless = true
	serverless := allocatorOptions(cfg, "", "")
	assert.Len(t, serverless, len(base)+3)
}

func TestDriverScreenshot_MissingBinary(t *testing.T) {
	d := NewDriver(testConfig(0), StaticPath("/definitely/missing/chrome"))
	_, err := d.Screenshot(context.Background(), "<html><body>hi</body></html>")
	assert.Error(t, err)
}

func TestDriverScreenshot_ResolverError(t *testing.T) {
	d := NewDriver(testConfig(0), FirstExisting{"/definitely/missing/chrome"})
	_, err := d.Screenshot(context.Background(), "<html></html>")
	assert.True(t, errors.Is(err, ErrNoBrowser))
}

func TestDriverStats_DisabledAndPoolError(t *testing.T) {
	d := NewDriver(testConfig(0), nil)
	st, err := d.Stats()
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, 1, st.TimeoutSecs)

	cfg := testConfig(1)
	cfg.Chrome.UserDataDir = "/dev/null/not-allowed"
	broken := NewDriver(cfg, StaticPath("/bin/true"))
	_, err = broken.Stats()
	assert.Error(t, err)
	_, err = broken.Screenshot(context.Background(), "<html></html>")
	assert.Error(t, err)
}

func TestDriverStats_PoolEnabled(t *testing.T) {
	d := NewDriver(testConfig(2), StaticPath("/bin/true"))
	defer d.Close()

	st, err := d.Stats()
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, 2, st.Capacity)
	assert.Equal(t, 2, st.Idle)

	d.Close()
	d.Close()
}

func TestDriverScreenshot_PoolCanceledContext(t *testing.T) {
	d := NewDriver(testConfig(1), StaticPath("/bin/true"))
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Screenshot(ctx, "<html></html>")
	assert.Error(t, err)
}

func TestDriverScreenshot_BusyPoolDoesNotRestart(t *testing.T) {
	cfg := testConfig(1)
	d := NewDriver(cfg, StaticPath("/bin/true"))
	d.acquireTimeout = 20 * time.Millisecond
	// The only tab is leased elsewhere.
	d.pool = &Pool{cfg: cfg, sem: make(chan struct{}, 1), browserCtx: context.Background()}

	start := time.Now()
	_, err := d.Screenshot(context.Background(), "<html></html>")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	st, err := d.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Restarts)
	assert.Equal(t, 1, st.InUse)
}

func TestCaptureInTab_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := captureInTab(ctx, "<html>hello world</html>", testConfig(0).Chrome)
	assert.Error(t, err)
}

func TestWaitForRenderReady(t *testing.T) {
	assert.NoError(t, waitForRenderReady(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, waitForRenderReady(ctx, 10*time.Millisecond))
}

func TestIsSessionInterrupted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: errors.Join(errors.New("render"), context.DeadlineExceeded), want: true},
		{name: "target closed", err: errors.New("Target closed"), want: true},
		{name: "websocket", err: errors.New("websocket: close 1006"), want: true},
		{name: "normal error", err: errors.New("validation failed"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSessionInterrupted(tc.err); got != tc.want {
				t.Fatalf("IsSessionInterrupted(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

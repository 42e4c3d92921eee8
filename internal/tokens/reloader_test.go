package tokens

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRepo struct {
	m   map[string]Entry
	err error
}

func (r fakeRepo) LoadTokens(ctx context.Context) (map[string]Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]Entry, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out, nil
}

func TestReloader_LoadOnce_Success(t *testing.T) {
	c := NewCache()
	r := NewReloader(fakeRepo{m: map[string]Entry{"k": {RateLimit: 3}}}, c, time.Hour)

	if err := r.LoadOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Ready() {
		t.Fatalf("expected cache ready after successful LoadOnce")
	}
	if got := c.RateLimit("k"); got != 3 {
		t.Fatalf("expected rate limit 3, got %d", got)
	}
}

func TestReloader_LoadOnce_EmptyTableMarksReady(t *testing.T) {
	c := NewCache()
	r := NewReloader(fakeRepo{}, c, time.Hour)

	if err := r.LoadOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Ready() {
		t.Fatalf("expected empty table to still mark the cache ready")
	}
}

func TestReloader_LoadOnce_Error_DoesNotReplace(t *testing.T) {
	c := NewCache()
	c.Replace(map[string]Entry{"keep": {RateLimit: 7}})

	r := NewReloader(fakeRepo{err: errors.New("boom")}, c, time.Hour)
	if err := r.LoadOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := c.RateLimit("keep"); got != 7 {
		t.Fatalf("expected cache unchanged, got %d", got)
	}
}

type countingRepo struct {
	calls atomic.Int32
}

func (r *countingRepo) LoadTokens(ctx context.Context) (map[string]Entry, error) {
	n := r.calls.Add(1)
	return map[string]Entry{"t": {RateLimit: int(n)}}, nil
}

func TestReloader_RunRefreshesUntilCanceled(t *testing.T) {
	repo := &countingRepo{}
	c := NewCache()
	r := NewReloader(repo, c, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least two reloads, got %d", repo.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if c.RateLimit("t") < 1 {
		t.Fatalf("expected cache populated by Run")
	}
}

func TestNewReloader_DefaultsInterval(t *testing.T) {
	r := NewReloader(fakeRepo{}, NewCache(), 0)
	if r.interval != time.Minute {
		t.Fatalf("expected default interval of 1m, got %v", r.interval)
	}
}

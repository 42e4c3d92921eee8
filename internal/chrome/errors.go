package chrome

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrPoolDisabled is returned by NewPool when pool_size is zero.
	ErrPoolDisabled = errors.New("chrome pool disabled")
	// ErrPoolClosed is returned by Acquire and Restart after Close.
	ErrPoolClosed = errors.New("chrome pool closed")
)

var interruptedMarkers = []string{
	"target closed",
	"session closed",
	"websocket: close",
	"use of closed network connection",
	"context canceled",
	"broken pipe",
}

// IsSessionInterrupted reports whether err means the browser or tab went
// away mid-render, as opposed to a page-level failure.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range interruptedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel provides cooperative cancellation for path queries.
//
// The path finder and the stitcher are pure CPU computations; they poll a
// Token between worklist pops, so latency to cancellation is bounded by one
// state expansion. A cancelled query is not an error: the result envelope
// carries the paths collected so far together with a cancelled flag.
//
// Timeouts are implemented externally, by arming a timer that trips the
// token, or by deriving the token from a context.
package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by Token.Err after the token has tripped.
var ErrCancelled = errors.New("query cancelled")

// Reason records why cancellation occurred.
type Reason int32

const (
	// ReasonNone means the token has not tripped.
	ReasonNone Reason = iota

	// ReasonUser indicates caller-initiated cancellation.
	ReasonUser

	// ReasonTimeout indicates an external timeout tripped the token.
	ReasonTimeout

	// ReasonParent indicates a parent context was cancelled.
	ReasonParent

	// ReasonShutdown indicates system shutdown is in progress.
	ReasonShutdown
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUser:
		return "user"
	case ReasonTimeout:
		return "timeout"
	case ReasonParent:
		return "parent"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Token is a cooperative cancellation flag.
//
// A nil *Token is valid and never cancels. Tokens are single-use: once
// tripped they stay tripped.
//
// Thread Safety: safe for concurrent use.
type Token struct {
	reason atomic.Int32
	done   chan struct{}
	once   sync.Once
}

// NewToken creates an untripped token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel trips the token with the given reason. The first call wins;
// subsequent calls are no-ops.
func (t *Token) Cancel(r Reason) {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if r == ReasonNone {
			r = ReasonUser
		}
		t.reason.Store(int32(r))
		close(t.done)
	})
}

// Cancelled reports whether the token has tripped. This is the poll the
// finder runs between worklist pops.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.reason.Load() != int32(ReasonNone)
}

// Reason returns why the token tripped, or ReasonNone.
func (t *Token) Reason() Reason {
	if t == nil {
		return ReasonNone
	}
	return Reason(t.reason.Load())
}

// Done returns a channel closed when the token trips. A nil token returns
// a nil channel, which blocks forever.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Err returns ErrCancelled once tripped, nil otherwise.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// AfterTimeout arms a timer that trips the token with ReasonTimeout. The
// returned stop function releases the timer; calling it after the trip is
// a no-op.
func AfterTimeout(t *Token, d time.Duration) (stop func()) {
	timer := time.AfterFunc(d, func() {
		t.Cancel(ReasonTimeout)
	})
	return func() { timer.Stop() }
}

// FromContext returns a token that trips with ReasonParent when ctx is
// done. The returned stop function releases the watcher goroutine; callers
// should invoke it once the query completes.
func FromContext(ctx context.Context) (*Token, func()) {
	t := NewToken()
	stopped := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			t.Cancel(ReasonParent)
		case <-t.done:
		case <-stopped:
		}
	}()
	return t, func() { once.Do(func() { close(stopped) }) }
}

package net

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// RecvLimiter is a token bucket bounding how fast one connection's frames
// are handed to its receiver. Waiting in the read loop stops reading from
// the socket, which pushes back on the client through TCP flow control.
type RecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewRecvLimiter allows limit frames per second with the given burst.
func NewRecvLimiter(limit int, burst int) *RecvLimiter {
	l := &RecvLimiter{}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
	return l
}

// Wait blocks until a frame may be processed or ctx ends.
func (l *RecvLimiter) Wait(ctx context.Context) error {
	return l.limiter.Load().Wait(ctx)
}

// Allow reports whether a frame may be processed now without waiting.
func (l *RecvLimiter) Allow() bool {
	return l.limiter.Load().Allow()
}

// Reload replaces the rate and burst.
func (l *RecvLimiter) Reload(limit int, burst int) {
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// AcceptLimiter is a leaky bucket spacing out accepted connections, so a
// connection flood cannot starve established clients.
type AcceptLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewAcceptLimiter allows limit accepts per second.
func NewAcceptLimiter(limit int) *AcceptLimiter {
	l := &AcceptLimiter{}
	l.Reload(limit)
	return l
}

// Take blocks until the next accept may proceed.
func (l *AcceptLimiter) Take() {
	_ = (*l.limiter.Load()).Take()
}

// Reload replaces the rate. A limit of 0 or less removes it.
func (l *AcceptLimiter) Reload(limit int) {
	var limiter ratelimit.Limiter
	if limit > 0 {
		limiter = ratelimit.New(limit, ratelimit.WithoutSlack)
	} else {
		limiter = ratelimit.NewUnlimited()
	}
	l.limiter.Store(&limiter)
}

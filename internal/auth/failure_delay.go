package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed credential checks to a common minimum duration so
// an unknown email and a wrong password answer in about the same time.
type FailureDelay struct {
	Base   time.Duration
	Jitter time.Duration
}

func NewFailureDelay(base, jitter time.Duration) *FailureDelay {
	return &FailureDelay{Base: base, Jitter: jitter}
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Target is the padded duration for one failure
func (d *FailureDelay) Target() time.Duration {
	return d.Base + cryptoRandDuration(d.Jitter)
}

// PadFrom sleeps until at least Target has elapsed since start. It returns
// early when ctx is done.
func (d *FailureDelay) PadFrom(ctx context.Context, start time.Time) {
	if d == nil {
		return
	}
	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

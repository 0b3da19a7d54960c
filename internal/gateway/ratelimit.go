// Package gateway is the Exchange Gateway (§4.5): rate limiting, batched
// market-data fetches with retry/backoff, and unified paper/live order
// execution, adapted from the teacher's tradernet SDK client's single-worker
// rate-limiting queue (internal/clients/tradernet/sdk/client.go).
package gateway

import (
	"sync"
	"time"
)

// Bucket is a sliding-1-second-window rate limiter for one endpoint group
// (ticker, orderbook, market). Requests block until a slot frees up.
type Bucket struct {
	mu        sync.Mutex
	ratePerSec int
	events    []time.Time
}

func NewBucket(ratePerSec int) *Bucket {
	return &Bucket{ratePerSec: ratePerSec}
}

// Wait blocks until a slot is available in the trailing 1-second window, then
// reserves it.
func (b *Bucket) Wait() {
	for {
		b.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Second)
		kept := b.events[:0]
		for _, t := range b.events {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.events = kept

		if len(b.events) < b.ratePerSec {
			b.events = append(b.events, now)
			b.mu.Unlock()
			return
		}
		oldest := b.events[0]
		waitFor := oldest.Add(time.Second).Sub(now)
		b.mu.Unlock()
		if waitFor > 0 {
			time.Sleep(waitFor)
		}
	}
}

// NoteRemaining applies the vendor-header-aware extra backoff: when the
// Remaining-Req header reports sec<=1, sleep an extra 150-350ms so the next
// burst doesn't immediately retrip the vendor's own limiter.
func (b *Bucket) NoteRemaining(secRemaining int, jitter func() time.Duration) {
	if secRemaining > 1 {
		return
	}
	time.Sleep(jitter())
}

// Buckets holds the gateway's three independent per-process-singleton
// buckets (§5: "not shared across worker processes").
type Buckets struct {
	Ticker    *Bucket
	Orderbook *Bucket
	Market    *Bucket
}

func NewBuckets(ratePerSec int) *Buckets {
	return &Buckets{
		Ticker:    NewBucket(ratePerSec),
		Orderbook: NewBucket(ratePerSec),
		Market:    NewBucket(ratePerSec),
	}
}

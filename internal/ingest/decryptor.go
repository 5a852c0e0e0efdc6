package ingest

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"privcal/internal/domain"
	"privcal/internal/protocol/envelope"
)

// DefaultConcurrency is the number of envelopes opened at once.
const DefaultConcurrency = 5

// Unwrapper opens both layers of a gift wrap.
type Unwrapper func(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer) (domain.Rumor, error)

// Result is the outcome for one envelope.
type Result struct {
	GiftWrap domain.GiftWrap
	Rumor    domain.Rumor
	Err      error
}

// BatchDecryptor opens envelopes with at most limit in flight. A failure
// affects only its own item.
type BatchDecryptor struct {
	sem     *semaphore.Weighted
	limit   int
	timeout time.Duration
	unwrap  Unwrapper
}

// NewBatchDecryptor bounds concurrency by limit and each item by timeout.
// A nil unwrap uses envelope.UnwrapFull.
func NewBatchDecryptor(limit int, timeout time.Duration, unwrap Unwrapper) *BatchDecryptor {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if unwrap == nil {
		unwrap = envelope.UnwrapFull
	}
	return &BatchDecryptor{
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		timeout: timeout,
		unwrap:  unwrap,
	}
}

// Limit returns the concurrency bound.
func (b *BatchDecryptor) Limit() int { return b.limit }

// Decrypt opens every item and returns results in input order. Items not
// started before ctx ends carry ctx's error.
func (b *BatchDecryptor) Decrypt(ctx context.Context, items []domain.GiftWrap, recipient domain.Signer) []Result {
	results := make([]Result, len(items))
	done := make(chan struct{}, len(items))
	started := 0
	for i, gw := range items {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = Result{GiftWrap: items[j], Err: err}
			}
			break
		}
		started++
		go func() {
			defer b.sem.Release(1)
			results[i] = b.open(ctx, gw, recipient)
			done <- struct{}{}
		}()
	}
	for range started {
		<-done
	}
	return results
}

// TryStart opens gw in the background if a slot is free and reports
// whether it did. The result is sent on out unless ctx ends first.
func (b *BatchDecryptor) TryStart(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer, out chan<- Result) bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.launch(ctx, gw, recipient, out)
	return true
}

// Start is TryStart that waits for a slot. It returns false only when ctx
// ends first.
func (b *BatchDecryptor) Start(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer, out chan<- Result) bool {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	b.launch(ctx, gw, recipient, out)
	return true
}

func (b *BatchDecryptor) launch(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer, out chan<- Result) {
	go func() {
		r := b.open(ctx, gw, recipient)
		// Free the slot before reporting so a receiver can start the next
		// item as soon as it sees this result.
		b.sem.Release(1)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- r:
		case <-ctx.Done():
		}
	}()
}

func (b *BatchDecryptor) open(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer) Result {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	rumor, err := b.unwrap(ctx, gw, recipient)
	return Result{GiftWrap: gw, Rumor: rumor, Err: err}
}

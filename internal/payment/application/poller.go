package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adfinitum/storefront/internal/payment/domain"
)

var (
	// ErrPollTimeout means the transaction never left pending within
	// the attempt budget.
	ErrPollTimeout = errors.New("payment status polling timed out")

	// ErrPollCanceled means the poller was torn down before the
	// transaction resolved.
	ErrPollCanceled = errors.New("payment status polling canceled")

	// ErrPaymentRejected means the backend reported the payment as
	// failed or expired.
	ErrPaymentRejected = errors.New("payment rejected")
)

// PollResult is the terminal outcome of a StatusPoller.
type PollResult struct {
	TransactionID string
	Err           error
}

// StatusPoller repeatedly queries a pending mobile-money transaction
// until it resolves, the attempt budget runs out, or the poller is
// canceled. Cancellation is immediate: no further polls, no further
// deliveries.
type StatusPoller struct {
	log         *slog.Logger
	api         API
	txID        string
	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	started  bool
	canceled bool
	cancel   context.CancelFunc
	result   chan PollResult
}

func NewStatusPoller(log *slog.Logger, api API, txID string, interval time.Duration, maxAttempts int) *StatusPoller {
	return &StatusPoller{
		log:         log,
		api:         api,
		txID:        txID,
		interval:    interval,
		maxAttempts: maxAttempts,
		result:      make(chan PollResult, 1),
	}
}

// Start begins polling and returns the channel the single terminal
// result is delivered on. Calling Start twice returns the same channel.
// Starting an already-canceled poller resolves immediately without a
// single status call.
func (p *StatusPoller) Start(ctx context.Context) <-chan PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return p.result
	}
	p.started = true
	if p.canceled {
		p.result <- PollResult{TransactionID: p.txID, Err: ErrPollCanceled}
		return p.result
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return p.result
}

// Cancel stops the poller. Safe to call multiple times, before Start,
// and after the poller has already resolved.
func (p *StatusPoller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = true
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *StatusPoller) run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			p.log.Info("payment poll canceled", "tx_id", p.txID)
			p.result <- PollResult{TransactionID: p.txID, Err: fmt.Errorf("%w: %w", ErrPollCanceled, ctx.Err())}
			return
		case <-t.C:
			status, err := p.api.MobilePaymentStatus(ctx, p.txID)
			if err != nil {
				p.log.Warn("payment status check failed", "tx_id", p.txID, "attempt", attempt, "err", err)
			} else {
				switch status {
				case domain.StatusSuccess:
					p.result <- PollResult{TransactionID: p.txID}
					return
				case domain.StatusFailed:
					p.result <- PollResult{TransactionID: p.txID, Err: ErrPaymentRejected}
					return
				}
			}
			if attempt >= p.maxAttempts {
				p.log.Warn("payment poll exhausted", "tx_id", p.txID, "attempts", attempt)
				p.result <- PollResult{TransactionID: p.txID, Err: ErrPollTimeout}
				return
			}
		}
	}
}

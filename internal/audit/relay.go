// Package audit delivers audit entries to the append-only sink. Delivery is
// attempted synchronously on the commit path; on sink failure the entry goes
// to a durable spool and is redelivered with exponential backoff. A committed
// entity transition is never rolled back because its audit record is late.
package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/finworks/refflow/internal/domain"
	"github.com/finworks/refflow/internal/repository"
)

const (
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = time.Minute
	defaultAlertBound = 8
	defaultIdlePoll   = 5 * time.Second
)

// AlertFunc is invoked when redelivery has failed more consecutive rounds
// than the configured bound. Operators wire paging here; the relay keeps
// retrying regardless.
type AlertFunc func(pending int, err error)

// Relay implements the engine's AuditRecorder against a repository.AuditSink.
type Relay struct {
	sink  repository.AuditSink
	spool *Spool

	baseDelay  time.Duration
	maxDelay   time.Duration
	alertBound int
	alert      AlertFunc

	wake chan struct{}
	wg   sync.WaitGroup
}

// RelayOption customises a Relay.
type RelayOption func(*Relay)

// WithBackoff overrides the redelivery backoff window.
func WithBackoff(base, max time.Duration) RelayOption {
	return func(r *Relay) {
		if base > 0 {
			r.baseDelay = base
		}
		if max > 0 {
			r.maxDelay = max
		}
	}
}

// WithAlert installs the alert hook and the consecutive-failure bound that
// trips it.
func WithAlert(bound int, fn AlertFunc) RelayOption {
	return func(r *Relay) {
		if bound > 0 {
			r.alertBound = bound
		}
		r.alert = fn
	}
}

// NewRelay creates a relay over sink with a durable spool at spoolPath.
func NewRelay(sink repository.AuditSink, spoolPath string, opts ...RelayOption) (*Relay, error) {
	spool, err := NewSpool(spoolPath)
	if err != nil {
		return nil, err
	}
	r := &Relay{
		sink:       sink,
		spool:      spool,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		alertBound: defaultAlertBound,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record attempts synchronous delivery and falls back to the spool. It never
// reports failure to the caller: by the time an entry reaches the relay the
// business transition is already committed.
func (r *Relay) Record(ctx context.Context, entry domain.AuditEntry) {
	err := r.sink.Append(ctx, entry)
	if err == nil {
		return
	}
	log.Printf("[AUDIT] sink append failed for %s, spooling: %v", entry.AuditID, err)
	if err := r.spool.Add(entry); err != nil {
		// Both the sink and the local disk are gone; the entry only survives
		// in this log line.
		log.Printf("[AUDIT] spool write failed for %s: %v", entry.AuditID, err)
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start launches the background redelivery loop. It runs until ctx is
// cancelled; call Wait to block until the loop has drained out.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Wait blocks until the redelivery loop has stopped.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) run(ctx context.Context) {
	delay := r.baseDelay
	failures := 0
	for {
		pending, err := r.spool.Pending()
		if err != nil {
			log.Printf("[AUDIT] spool read failed: %v", err)
		}

		if len(pending) > 0 {
			delivered, lastErr := r.deliver(ctx, pending)
			if len(delivered) > 0 {
				if err := r.spool.Remove(delivered); err != nil {
					log.Printf("[AUDIT] spool compaction failed: %v", err)
				}
			}
			if lastErr == nil {
				delay = r.baseDelay
				failures = 0
			} else {
				failures++
				if failures == r.alertBound && r.alert != nil {
					r.alert(len(pending)-len(delivered), lastErr)
				}
				delay *= 2
				if delay > r.maxDelay {
					delay = r.maxDelay
				}
			}
		} else {
			delay = r.baseDelay
			failures = 0
		}

		wait := delay
		if len(pending) == 0 {
			wait = defaultIdlePoll
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-time.After(wait):
		}
	}
}

// deliver retries each spooled entry once. Sink appends are idempotent on
// audit id, so redelivering an entry the sink already has is harmless.
func (r *Relay) deliver(ctx context.Context, pending []domain.AuditEntry) (map[string]bool, error) {
	delivered := make(map[string]bool, len(pending))
	var lastErr error
	for _, entry := range pending {
		if err := r.sink.Append(ctx, entry); err != nil {
			lastErr = err
			continue
		}
		delivered[entry.AuditID.String()] = true
	}
	return delivered, lastErr
}

package service

import (
	"context"
	"time"

	"gatekeeper/internal/workflow/metrics"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/keylock"
)

// StoreTx provides a per-workflow transactional boundary. Every status
// transition runs inside RunInTx, so a decision, a cancellation and a sweep
// racing on one workflow are serialized and the first to commit wins.
// Implementations may wrap a database transaction or, in-memory, a keyed lock.
type StoreTx interface {
	RunInTx(ctx context.Context, workflowID id.WorkflowID, fn func(ctx context.Context, store Store) error) error
}

const defaultTxTimeout = 5 * time.Second

// lockedStoreTx serializes mutations of one workflow with a sharded lock.
// Used with the in-memory store.
type lockedStoreTx struct {
	locks   *keylock.Sharded
	store   Store
	timeout time.Duration
	metrics *metrics.Metrics
}

func (t *lockedStoreTx) RunInTx(ctx context.Context, workflowID id.WorkflowID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	key := workflowID.String()
	lockStart := time.Now()
	if err := t.locks.Lock(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: lock wait exceeded deadline")
	}
	defer t.locks.Unlock(key)
	if t.metrics != nil {
		t.metrics.ObserveLockWait(time.Since(lockStart))
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

package app

import (
	"context"
	"database/sql"
	"time"

	workflowservice "gatekeeper/internal/workflow/service"
	workflowstore "gatekeeper/internal/workflow/store"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

const defaultWorkflowTxTimeout = 5 * time.Second

// workflowPostgresTx runs each transition in a database transaction. The
// tx-bound store row-locks the workflow on FindByID, which serializes
// transitions across replicas.
type workflowPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newWorkflowPostgresTx(db *sql.DB, timeout time.Duration) *workflowPostgresTx {
	return &workflowPostgresTx{db: db, timeout: timeout}
}

func (t *workflowPostgresTx) RunInTx(ctx context.Context, _ id.WorkflowID, fn func(ctx context.Context, store workflowservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultWorkflowTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(ctx, workflowstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to commit transaction")
	}
	return nil
}

var _ workflowservice.StoreTx = (*workflowPostgresTx)(nil)

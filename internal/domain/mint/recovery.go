package mint

import "eduverse-client-go/internal/domain/mint/model"

// Action is the recovery a caller may offer for a record.
type Action string

const (
	ActionNone          Action = "none"
	ActionRetryCreate   Action = "retry_create"
	ActionRetryCommit   Action = "retry_commit"
	ActionReconcile     Action = "reconcile"
	ActionRetryFinalize Action = "retry_finalize"
	ActionAttach        Action = "attach"
)

// Recovery names the single next step for r. A nil record means phase 1
// never completed. Committed records additionally accept a manual attach.
//
// A Created record whose commitment was stored but whose commit never
// reported a plain failure may have reached the ledger, so it must be
// reconciled before another submission. A transaction that confirmed without
// a mint event can only be resolved by attaching the reference by hand.
func Recovery(r *model.Record) Action {
	if r == nil {
		return ActionRetryCreate
	}
	switch r.Phase {
	case model.PhaseCreated:
		if r.PendingTxHash != "" && r.MintEventMissing {
			return ActionAttach
		}
		if r.PendingTxHash != "" {
			return ActionReconcile
		}
		if r.Commitment != "" && r.FailedPhase != model.StepCommit {
			return ActionReconcile
		}
		return ActionRetryCommit
	case model.PhaseCommitted:
		return ActionRetryFinalize
	default:
		return ActionNone
	}
}

package mint

import (
	stderrors "errors"
	"fmt"

	"eduverse-client-go/internal/domain/mint/model"
	"eduverse-client-go/internal/platform/errors"
)

var (
	// ErrDuplicateMint refuses a commit for a record that is already on the ledger.
	ErrDuplicateMint = stderrors.New("record already minted; attach or finalize instead")
	// ErrReconcileRequired refuses a commit while an earlier submission is unresolved.
	ErrReconcileRequired = stderrors.New("earlier mint submission unresolved; reconcile first")
	// ErrMintPending means the submitted transaction has not been mined yet.
	ErrMintPending = stderrors.New("mint transaction not mined yet")
	// ErrNotMinted means reconciliation found no mint for the record.
	ErrNotMinted = stderrors.New("no mint found on the ledger")
	// ErrWrongPhase rejects an action the record's phase does not allow.
	ErrWrongPhase = stderrors.New("action not allowed in this phase")
	// ErrLedgerMismatch rejects a manual reference that contradicts the stored one.
	ErrLedgerMismatch = stderrors.New("ledger reference differs from the recorded mint")
)

// PhaseError reports which step failed and what survived it. Once the ledger
// holds the mint, Ledger is always set.
type PhaseError struct {
	Step     model.Step
	RecordID string
	Record   *model.Record
	Ledger   *model.LedgerReference
	Err      error
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("mint %s failed", e.Step)
	if e.RecordID != "" {
		msg += " for " + e.RecordID
	}
	if e.Ledger != nil {
		msg += fmt.Sprintf(" (token %s, tx %s)", e.Ledger.TokenID, e.Ledger.TxHash)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Action returns the recovery the failure allows.
func (e *PhaseError) Action() Action {
	if e.Record == nil {
		return ActionRetryCreate
	}
	return Recovery(e.Record)
}

func phaseFailure(step model.Step, rec *model.Record, err error) error {
	pe := &PhaseError{Step: step, Err: err}
	if rec != nil {
		pe.RecordID = rec.ID
		pe.Record = rec.Clone()
		if rec.Ledger != nil {
			ref := *rec.Ledger
			pe.Ledger = &ref
		}
	}
	return errors.Reclassify(errors.KindSagaPhase, "mint."+string(step), pe.Error(), pe)
}

// AsPhaseError extracts the PhaseError from err.
func AsPhaseError(err error) (*PhaseError, bool) {
	var pe *PhaseError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

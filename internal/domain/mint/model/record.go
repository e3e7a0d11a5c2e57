package model

import (
	"time"
)

// Phase is the last phase a saga record completed.
type Phase string

const (
	// PhaseCreated: the off-chain record exists, nothing is on the ledger.
	PhaseCreated Phase = "created"
	// PhaseCommitted: the ledger holds the mint, the off-chain record does not know it yet.
	PhaseCommitted Phase = "committed"
	// PhaseFinalized: both systems agree.
	PhaseFinalized Phase = "finalized"
)

// Step names the saga step that was running when a failure occurred.
type Step string

const (
	StepCreate   Step = "create"
	StepCommit   Step = "commit"
	StepFinalize Step = "finalize"
)

// LedgerReference identifies a confirmed mint on the ledger.
type LedgerReference struct {
	TokenID string `json:"tokenId"`
	TxHash  string `json:"txHash"`
}

// Record is the persisted state of one mint saga. MintEventMissing marks a
// pending transaction that confirmed without a mint event; its fee is spent,
// so it is never resubmitted.
type Record struct {
	ID               string           `json:"id"`
	Phase            Phase            `json:"phase"`
	OffChainID       string           `json:"offChainId"`
	Title            string           `json:"title,omitempty"`
	Owner            string           `json:"owner,omitempty"`
	ContentAddress   string           `json:"contentAddress"`
	Commitment       string           `json:"commitment,omitempty"`
	Timestamp        uint64           `json:"timestamp,omitempty"`
	Ledger           *LedgerReference `json:"ledger,omitempty"`
	PendingTxHash    string           `json:"pendingTxHash,omitempty"`
	MintEventMissing bool             `json:"mintEventMissing,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
	FailedPhase      Step             `json:"failedPhase,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Ledger != nil {
		ref := *r.Ledger
		c.Ledger = &ref
	}
	return &c
}

// Done reports whether the saga has nothing left to do.
func (r *Record) Done() bool {
	return r != nil && r.Phase == PhaseFinalized
}

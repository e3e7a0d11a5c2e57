package mint

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"eduverse-client-go/internal/domain/ledger"
	"eduverse-client-go/internal/domain/mint/model"
	"eduverse-client-go/internal/domain/mint/store"
	"eduverse-client-go/internal/domain/resource"
	"eduverse-client-go/internal/domain/wallet"
	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/observability"
)

// Event topics.
const (
	TopicPhase  = "mint:phase"
	TopicFailed = "mint:failed"
)

// PhaseEvent is published after every persisted phase change.
type PhaseEvent struct {
	RecordID string                 `json:"recordId"`
	Phase    model.Phase            `json:"phase"`
	Ledger   *model.LedgerReference `json:"ledger,omitempty"`
}

// FailureEvent is published when a step fails.
type FailureEvent struct {
	RecordID string                 `json:"recordId,omitempty"`
	Step     model.Step             `json:"step"`
	Action   Action                 `json:"action"`
	Error    string                 `json:"error"`
	Ledger   *model.LedgerReference `json:"ledger,omitempty"`
}

// Resources is the off-chain record API.
type Resources interface {
	Create(ctx context.Context, draft resource.Draft) (resource.Resource, error)
	Get(ctx context.Context, id string) (resource.Resource, error)
	AttachLedgerReference(ctx context.Context, id, tokenID, txHash string) (resource.Resource, error)
}

// Wallet yields a signing connection.
type Wallet interface {
	EnsureConnected(ctx context.Context) (*wallet.Connection, error)
}

// Ledger submits and looks up mints.
type Ledger interface {
	SubmitMint(ctx context.Context, signer wallet.Signer, owner common.Address, commitment common.Hash, contentAddress string) (*ledger.MintReceipt, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	MintFromTransaction(ctx context.Context, txHash common.Hash, owner common.Address, commitment common.Hash) (*ledger.MintReceipt, bool, error)
	FindMint(ctx context.Context, commitment common.Hash) (*ledger.MintReceipt, bool, error)
}

// Logger is the logging contract the saga needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Publisher receives saga notifications.
type Publisher interface {
	Publish(topic string, args ...any)
}

// Input is the content and metadata of a new resource to mint.
type Input struct {
	Title          string
	Description    string
	ContentAddress string
	Owner          string
	FileName       string
	ContentType    string
	Content        []byte
}

// Options configures a Saga.
type Options struct {
	Store     store.Store
	Resources Resources
	Wallet    Wallet
	Ledger    Ledger
	Logger    Logger
	Publisher Publisher
	Now       func() time.Time
	NewID     func() string
}

// Saga runs create, commit and finalize over the off-chain store and the
// ledger, persisting the record after every phase change.
type Saga struct {
	store     store.Store
	resources Resources
	wallet    Wallet
	ledger    Ledger
	logger    Logger
	publisher Publisher
	now       func() time.Time
	newID     func() string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSaga validates opts and builds a Saga.
func NewSaga(opts Options) (*Saga, error) {
	if opts.Store == nil || opts.Resources == nil || opts.Wallet == nil || opts.Ledger == nil {
		return nil, errors.New(errors.KindConfig, "mint.new", "store, resources, wallet and ledger are required")
	}
	s := &Saga{
		store:     opts.Store,
		resources: opts.Resources,
		wallet:    opts.Wallet,
		ledger:    opts.Ledger,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		now:       opts.Now,
		newID:     opts.NewID,
		locks:     make(map[string]*sync.Mutex),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Mint runs all three phases for a new resource. On failure the returned
// record (if any) is the last persisted state and the error is a PhaseError.
func (s *Saga) Mint(ctx context.Context, in Input) (*model.Record, error) {
	rec, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(rec.ID)
	defer unlock()

	if err := s.commit(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	if err := s.finalize(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// RetryCommit re-runs phase 2 (and then 3) on the same off-chain record.
func (s *Saga) RetryCommit(ctx context.Context, id string) (*model.Record, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.Phase != model.PhaseCreated:
		return rec, ErrDuplicateMint
	case Recovery(rec) == ActionReconcile, Recovery(rec) == ActionAttach:
		return rec, ErrReconcileRequired
	}

	if _, err := s.resources.Get(ctx, rec.OffChainID); err != nil {
		return rec, phaseFailure(model.StepCommit, rec,
			errors.Wrap(errors.KindDomain, "mint.retry_commit", "off-chain record unavailable", err))
	}

	if err := s.commit(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	if err := s.finalize(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// RetryFinalize re-runs phase 3 with the stored ledger reference.
func (s *Saga) RetryFinalize(ctx context.Context, id string) (*model.Record, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Phase {
	case model.PhaseFinalized:
		return rec, nil
	case model.PhaseCommitted:
	default:
		return rec, fmt.Errorf("%w: retry finalize on %s record", ErrWrongPhase, rec.Phase)
	}

	if err := s.finalize(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// AttachLedgerReference records a mint learned out-of-band and finalizes.
// A committed record only accepts its own reference, and a record with a
// pending transaction only accepts a reference to that transaction.
func (s *Saga) AttachLedgerReference(ctx context.Context, id string, ref model.LedgerReference) (*model.Record, error) {
	if ref.TokenID == "" || ref.TxHash == "" {
		return nil, errors.New(errors.KindDomain, "mint.attach", "token id and transaction hash are required")
	}

	unlock := s.lock(id)
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Phase {
	case model.PhaseFinalized:
		return rec, fmt.Errorf("%w: record already finalized", ErrWrongPhase)
	case model.PhaseCommitted:
		if rec.Ledger != nil && (rec.Ledger.TokenID != ref.TokenID || !strings.EqualFold(rec.Ledger.TxHash, ref.TxHash)) {
			return rec, ErrLedgerMismatch
		}
	case model.PhaseCreated:
		if rec.PendingTxHash != "" && !strings.EqualFold(rec.PendingTxHash, ref.TxHash) {
			return rec, ErrLedgerMismatch
		}
		if err := s.markCommitted(ctx, rec, ref); err != nil {
			return rec.Clone(), err
		}
	}

	if err := s.finalize(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// Reconcile resolves a Created record whose commit may have reached the
// ledger. It checks the pending transaction first, then searches the
// ledger's mint events by commitment. When a mint is found the record is
// committed and finalized. A reverted transaction clears the pending marker,
// which makes the record retryable once no mint is found. A transaction that
// confirmed without a mint event stays pending and the error is
// ledger_confirmation_ambiguous; only AttachLedgerReference moves it on.
func (s *Saga) Reconcile(ctx context.Context, id string) (rec *model.Record, err error) {
	ctx, end := observability.StartSpan(ctx, "mint", "reconcile", observability.RecordID(id))
	defer func() { end(err) }()

	unlock := s.lock(id)
	defer unlock()

	rec, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Phase {
	case model.PhaseFinalized:
		return rec, nil
	case model.PhaseCommitted:
		if err := s.finalize(ctx, rec); err != nil {
			return rec.Clone(), err
		}
		return rec.Clone(), nil
	}

	found, err := s.lookup(ctx, rec)
	var ambiguous *ledger.AmbiguousError
	if stderrors.As(err, &ambiguous) {
		rec.MintEventMissing = true
		failure := s.fail(ctx, rec, model.StepCommit, err)
		return rec.Clone(), failure
	}
	if err != nil {
		return rec.Clone(), err
	}
	if found == nil {
		rec.LastError = ErrNotMinted.Error()
		rec.FailedPhase = model.StepCommit
		if err := s.persist(ctx, rec); err != nil {
			return rec.Clone(), err
		}
		return rec.Clone(), ErrNotMinted
	}

	s.logf("reconciled %s: token %s in tx %s", rec.ID, found.TokenID, found.TxHash.Hex())
	if err := s.markCommitted(ctx, rec, referenceOf(found)); err != nil {
		return rec.Clone(), err
	}
	if err := s.finalize(ctx, rec); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// Get loads a record.
func (s *Saga) Get(ctx context.Context, id string) (*model.Record, error) {
	return s.load(ctx, id)
}

// Pending lists records that still have a phase to run, oldest first.
func (s *Saga) Pending(ctx context.Context) ([]*model.Record, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "mint.pending", "cannot list mint records", err)
	}
	out := make([]*model.Record, 0, len(all))
	for _, r := range all {
		if !r.Done() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Saga) create(ctx context.Context, in Input) (rec *model.Record, err error) {
	ctx, end := observability.StartSpan(ctx, "mint", "create")
	defer func() { end(err) }()

	res, err := s.resources.Create(ctx, resource.Draft{
		Title:          in.Title,
		Description:    in.Description,
		ContentAddress: in.ContentAddress,
		Owner:          in.Owner,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		Content:        in.Content,
	})
	if err != nil {
		s.failed(nil, model.StepCreate, err)
		return nil, phaseFailure(model.StepCreate, nil, err)
	}

	now := s.now().UTC()
	rec = &model.Record{
		ID:             s.newID(),
		Phase:          model.PhaseCreated,
		OffChainID:     res.ID,
		Title:          in.Title,
		Owner:          in.Owner,
		ContentAddress: in.ContentAddress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.persist(ctx, rec); err != nil {
		s.failed(rec, model.StepCreate, err)
		return nil, phaseFailure(model.StepCreate, rec, err)
	}
	s.logf("created %s for off-chain record %s", rec.ID, rec.OffChainID)
	s.published(rec)
	return rec, nil
}

func (s *Saga) commit(ctx context.Context, rec *model.Record) (err error) {
	ctx, end := observability.StartSpan(ctx, "mint", "commit", observability.RecordID(rec.ID))
	defer func() { end(err) }()

	if rec.Phase != model.PhaseCreated {
		return ErrDuplicateMint
	}

	conn, err := s.wallet.EnsureConnected(ctx)
	if err == nil && conn == nil {
		err = errors.New(errors.KindWalletUnavailable, "mint.commit", "no signing account connected")
	}
	if err != nil {
		return s.fail(ctx, rec, model.StepCommit, err)
	}

	ts := uint64(s.now().Unix())
	commitment := ledger.BuildCommitment(rec.ContentAddress, conn.Address, ts)
	rec.Owner = conn.Address.Hex()
	rec.Commitment = commitment.Hex()
	rec.Timestamp = ts
	rec.LastError = ""
	rec.FailedPhase = ""
	// stored before submission so a crash mid-wait can still be reconciled
	if err := s.persist(ctx, rec); err != nil {
		return s.fail(ctx, rec, model.StepCommit, err)
	}

	receipt, err := s.ledger.SubmitMint(ctx, conn.Signer, conn.Address, commitment, rec.ContentAddress)
	if err != nil {
		var ambiguous *ledger.AmbiguousError
		if stderrors.As(err, &ambiguous) {
			rec.PendingTxHash = ambiguous.TxHash.Hex()
			rec.MintEventMissing = ambiguous.Mined
		}
		return s.fail(ctx, rec, model.StepCommit, err)
	}
	return s.markCommitted(ctx, rec, referenceOf(receipt))
}

func (s *Saga) finalize(ctx context.Context, rec *model.Record) (err error) {
	ctx, end := observability.StartSpan(ctx, "mint", "finalize", observability.RecordID(rec.ID))
	defer func() { end(err) }()

	if rec.Ledger == nil {
		return s.fail(ctx, rec, model.StepFinalize,
			errors.New(errors.KindDomain, "mint.finalize", "record carries no ledger reference"))
	}

	if _, err := s.resources.AttachLedgerReference(ctx, rec.OffChainID, rec.Ledger.TokenID, rec.Ledger.TxHash); err != nil {
		return s.fail(ctx, rec, model.StepFinalize, err)
	}

	rec.Phase = model.PhaseFinalized
	rec.LastError = ""
	rec.FailedPhase = ""
	if err := s.persist(ctx, rec); err != nil {
		// the off-chain record is already finalized; only the local copy lags
		s.warnf("finalized %s but could not persist it: %v", rec.ID, err)
	}
	s.logf("finalized %s: token %s", rec.ID, rec.Ledger.TokenID)
	s.published(rec)
	return nil
}

// markCommitted stores the ledger reference. A persistence failure is still
// reported with the reference so it reaches the caller.
func (s *Saga) markCommitted(ctx context.Context, rec *model.Record, ref model.LedgerReference) error {
	rec.Phase = model.PhaseCommitted
	rec.Ledger = &ref
	rec.PendingTxHash = ""
	rec.MintEventMissing = false
	rec.LastError = ""
	rec.FailedPhase = ""
	if err := s.persist(ctx, rec); err != nil {
		return s.fail(ctx, rec, model.StepCommit, err)
	}
	s.logf("committed %s: token %s in tx %s", rec.ID, ref.TokenID, ref.TxHash)
	s.published(rec)
	return nil
}

func (s *Saga) lookup(ctx context.Context, rec *model.Record) (*ledger.MintReceipt, error) {
	if rec.Commitment == "" {
		return nil, nil
	}
	owner := common.HexToAddress(rec.Owner)
	commitment := common.HexToHash(rec.Commitment)

	if rec.PendingTxHash != "" {
		txHash := common.HexToHash(rec.PendingTxHash)
		receipt, err := s.ledger.Receipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, ErrMintPending
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			// reverted: nothing was minted and the record may be committed again
			rec.PendingTxHash = ""
			rec.MintEventMissing = false
		} else {
			found, ok, err := s.ledger.MintFromTransaction(ctx, txHash, owner, commitment)
			if err != nil {
				return nil, err
			}
			if ok {
				return found, nil
			}
			if found, ok, err := s.ledger.FindMint(ctx, commitment); err != nil || ok {
				return found, err
			}
			return nil, errors.Reclassify(errors.KindLedgerAmbiguous, "mint.reconcile", "confirmed but token id missing",
				&ledger.AmbiguousError{TxHash: txHash, Reason: "no matching ResourceMinted event", Mined: true})
		}
	}

	found, ok, err := s.ledger.FindMint(ctx, commitment)
	if err != nil || !ok {
		return nil, err
	}
	return found, nil
}

func (s *Saga) fail(ctx context.Context, rec *model.Record, step model.Step, cause error) error {
	rec.LastError = cause.Error()
	rec.FailedPhase = step
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, rec); err != nil {
		s.warnf("could not persist failure of %s: %v", rec.ID, err)
	}
	s.failed(rec, step, cause)
	return phaseFailure(step, rec, cause)
}

func (s *Saga) persist(ctx context.Context, rec *model.Record) error {
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, rec); err != nil {
		return errors.Wrap(errors.KindStorage, "mint.persist", "cannot persist mint record", err)
	}
	return nil
}

func (s *Saga) load(ctx context.Context, id string) (*model.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrap(errors.KindDomain, "mint.load", "unknown mint record", err)
		}
		return nil, errors.Wrap(errors.KindStorage, "mint.load", "cannot load mint record", err)
	}
	return rec, nil
}

// lock serializes operations on one record.
func (s *Saga) lock(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Saga) published(rec *model.Record) {
	if s.publisher == nil {
		return
	}
	ev := PhaseEvent{RecordID: rec.ID, Phase: rec.Phase}
	if rec.Ledger != nil {
		ref := *rec.Ledger
		ev.Ledger = &ref
	}
	s.publisher.Publish(TopicPhase, ev)
}

func (s *Saga) failed(rec *model.Record, step model.Step, cause error) {
	if s.logger != nil {
		if rec != nil {
			s.logger.Error("%s failed for %s: %v", step, rec.ID, cause)
		} else {
			s.logger.Error("%s failed: %v", step, cause)
		}
	}
	if s.publisher == nil {
		return
	}
	ev := FailureEvent{Step: step, Action: Recovery(rec), Error: cause.Error()}
	if rec != nil {
		ev.RecordID = rec.ID
		if rec.Ledger != nil {
			ref := *rec.Ledger
			ev.Ledger = &ref
		}
	}
	s.publisher.Publish(TopicFailed, ev)
}

func (s *Saga) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Info(format, args...)
	}
}

func (s *Saga) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(format, args...)
	}
}

func referenceOf(r *ledger.MintReceipt) model.LedgerReference {
	return model.LedgerReference{TokenID: r.TokenID.String(), TxHash: r.TxHash.Hex()}
}

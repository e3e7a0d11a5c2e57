package mint_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/domain/ledger"
	"eduverse-client-go/internal/domain/ledger/ledgertest"
	"eduverse-client-go/internal/domain/mint"
	"eduverse-client-go/internal/domain/mint/store"
	"eduverse-client-go/internal/domain/resource"
	"eduverse-client-go/internal/domain/wallet"
	"eduverse-client-go/internal/platform/logging"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// fakeResources is an in-memory off-chain record API.
type fakeResources struct {
	mu        sync.Mutex
	items     map[string]resource.Resource
	createErr error
	attachErr error
	creates   int
	attaches  int
}

func newFakeResources() *fakeResources {
	return &fakeResources{items: map[string]resource.Resource{}}
}

func (f *fakeResources) Create(_ context.Context, d resource.Draft) (resource.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return resource.Resource{}, f.createErr
	}
	r := resource.Resource{
		ID:             fmt.Sprintf("res-%d", f.creates),
		Title:          d.Title,
		ContentAddress: d.ContentAddress,
		Owner:          d.Owner,
		FileName:       d.FileName,
		Size:           int64(len(d.Content)),
		CreatedAt:      time.Now(),
	}
	f.items[r.ID] = r
	return r, nil
}

func (f *fakeResources) Get(_ context.Context, id string) (resource.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return resource.Resource{}, fmt.Errorf("resource %s not found", id)
	}
	return r, nil
}

func (f *fakeResources) AttachLedgerReference(_ context.Context, id, tokenID, txHash string) (resource.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attaches++
	if f.attachErr != nil {
		return resource.Resource{}, f.attachErr
	}
	r, ok := f.items[id]
	if !ok {
		return resource.Resource{}, fmt.Errorf("resource %s not found", id)
	}
	r.TokenID = tokenID
	r.TxHash = txHash
	f.items[id] = r
	return r, nil
}

func (f *fakeResources) setCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *fakeResources) setAttachErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachErr = err
}

func (f *fakeResources) counts() (creates, attaches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.attaches
}

// fakeWallet hands out a connection signing through the test chain.
type fakeWallet struct {
	mu    sync.Mutex
	chain *ledgertest.Chain
	err   error
	calls int
}

func (w *fakeWallet) EnsureConnected(context.Context) (*wallet.Connection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	return &wallet.Connection{Address: owner, Signer: w.chain}, nil
}

func (w *fakeWallet) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(topic string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if len(args) > 0 {
		p.events = append(p.events, args[0])
	}
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type harness struct {
	saga      *mint.Saga
	store     store.Store
	chain     *ledgertest.Chain
	ledger    *ledger.Client
	resources *fakeResources
	wallet    *fakeWallet
	events    *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	chain := ledgertest.New()
	client, err := ledger.NewClient(ledger.Options{
		Backend:       chain,
		NFTContract:   chain.NFT,
		TokenContract: chain.Token,
		PollInterval:  time.Millisecond,
		Logger:        logging.Nop(),
	})
	require.NoError(t, err)

	h := &harness{
		store:     store.NewMemory(store.Config{}),
		chain:     chain,
		ledger:    client,
		resources: newFakeResources(),
		wallet:    &fakeWallet{chain: chain},
		events:    &recordingPublisher{},
	}
	t.Cleanup(func() { _ = h.store.Close(context.Background()) })

	seq := 0
	h.saga, err = mint.NewSaga(mint.Options{
		Store:     h.store,
		Resources: h.resources,
		Wallet:    h.wallet,
		Ledger:    client,
		Logger:    logging.Nop(),
		Publisher: h.events,
		NewID: func() string {
			seq++
			return fmt.Sprintf("saga-%d", seq)
		},
	})
	require.NoError(t, err)
	return h
}

func sampleInput() mint.Input {
	return mint.Input{
		Title:          "Thermodynamics lecture",
		ContentAddress: "ipfs://bafy-thermo",
		FileName:       "thermo.pdf",
		ContentType:    "application/pdf",
		Content:        []byte("%PDF-1.7"),
	}
}

func sampleDraft(contentAddress string) resource.Draft {
	in := sampleInput()
	return resource.Draft{
		Title:          in.Title,
		ContentAddress: contentAddress,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		Content:        in.Content,
	}
}

package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"eduverse-client-go/internal/domain/wallet"
	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/observability"
)

// Backend is the read side of a ledger node. *ethclient.Client satisfies it.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Logger is the logging contract the ledger client needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// MintReceipt identifies a confirmed mint.
type MintReceipt struct {
	TokenID        *big.Int
	TxHash         common.Hash
	BlockNumber    uint64
	ContentAddress string
}

// AmbiguousError means a transaction was sent but the client cannot tell
// which token, if any, it produced. It must be reconciled, never resent.
type AmbiguousError struct {
	TxHash common.Hash
	Reason string
	// Mined is set when the transaction confirmed successfully without a
	// matching mint event. Its fee is spent; only a manual attach resolves it.
	Mined bool
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("transaction %s: %s", e.TxHash.Hex(), e.Reason)
}

// Options configures a Client.
type Options struct {
	Backend       Backend
	NFTContract   common.Address
	TokenContract common.Address
	PollInterval  time.Duration
	FromBlock     uint64
	Logger        Logger
}

// Client submits and looks up mints.
type Client struct {
	backend   Backend
	abi       abi.ABI
	nft       common.Address
	token     common.Address
	poll      time.Duration
	fromBlock uint64
	logger    Logger
}

// Dial connects to a ledger node.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "ledger.dial", "cannot reach ledger node", err)
	}
	return client, nil
}

// NewClient builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New(errors.KindBootstrap, "ledger.client", "backend is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindBootstrap, "ledger.client", "logger is required")
	}
	parsed, err := ParsedABI()
	if err != nil {
		return nil, errors.Wrap(errors.KindBootstrap, "ledger.client", "invalid contract abi", err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		backend:   opts.Backend,
		abi:       parsed,
		nft:       opts.NFTContract,
		token:     opts.TokenContract,
		poll:      poll,
		fromBlock: opts.FromBlock,
		logger:    opts.Logger,
	}, nil
}

// SubmitMint sends mint(owner, commitment, contentAddress), waits for the
// receipt and extracts the token id from the ResourceMinted event. Waiting has
// no timeout of its own; ctx bounds it. Once the transaction is accepted any
// failure to learn the token id is returned as ledger_confirmation_ambiguous.
func (c *Client) SubmitMint(ctx context.Context, signer wallet.Signer, owner common.Address, commitment common.Hash, contentAddress string) (receipt *MintReceipt, err error) {
	ctx, end := observability.StartSpan(ctx, "ledger", "mint", observability.Account(owner.Hex()))
	defer func() { end(err) }()

	data, err := c.abi.Pack(methodMint, owner, [32]byte(commitment), contentAddress)
	if err != nil {
		return nil, errors.Wrap(errors.KindLedgerSubmission, "ledger.mint", "cannot encode mint call", err)
	}

	txHash, err := signer.SendTransaction(ctx, wallet.TxRequest{From: owner, To: c.nft, Data: data})
	if err != nil {
		return nil, errors.Reclassify(errors.KindLedgerSubmission, "ledger.mint", "mint transaction not accepted", err)
	}
	c.logger.Info("mint accepted: tx %s", txHash.Hex())

	mined, err := c.waitMined(ctx, txHash)
	if err != nil {
		return nil, errors.Reclassify(errors.KindLedgerAmbiguous, "ledger.mint", "confirmation wait interrupted",
			&AmbiguousError{TxHash: txHash, Reason: err.Error()})
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return nil, errors.New(errors.KindLedgerSubmission, "ledger.mint", fmt.Sprintf("mint transaction %s reverted", txHash.Hex()))
	}

	found, ok := c.extractMint(mined.Logs, owner, commitment)
	if !ok {
		c.logger.Error("mint %s confirmed without a ResourceMinted event", txHash.Hex())
		return nil, errors.Reclassify(errors.KindLedgerAmbiguous, "ledger.mint", "confirmed but token id missing",
			&AmbiguousError{TxHash: txHash, Reason: "no matching ResourceMinted event", Mined: true})
	}
	found.TxHash = txHash
	found.BlockNumber = blockOf(mined)
	c.logger.Info("mint confirmed: token %s in block %d", found.TokenID, found.BlockNumber)
	observability.RecordMetric(ctx, "ledger.mint.confirmed", 1, observability.TxHash(txHash.Hex()))
	return found, nil
}

// Receipt returns the receipt for txHash, or nil when the node does not know it.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, err := c.backend.TransactionReceipt(ctx, txHash)
	if stderrors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "ledger.receipt", "receipt lookup failed", err)
	}
	return r, nil
}

// MintFromTransaction extracts the mint from a known transaction's receipt.
// ok is false when the transaction is unknown, reverted or carries no event.
func (c *Client) MintFromTransaction(ctx context.Context, txHash common.Hash, owner common.Address, commitment common.Hash) (*MintReceipt, bool, error) {
	r, err := c.Receipt(ctx, txHash)
	if err != nil || r == nil || r.Status != types.ReceiptStatusSuccessful {
		return nil, false, err
	}
	found, ok := c.extractMint(r.Logs, owner, commitment)
	if !ok {
		return nil, false, nil
	}
	found.TxHash = txHash
	found.BlockNumber = blockOf(r)
	return found, true, nil
}

// FindMint scans the NFT contract's logs for a mint carrying commitment.
func (c *Client) FindMint(ctx context.Context, commitment common.Hash) (*MintReceipt, bool, error) {
	event := c.abi.Events[eventMinted]
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.fromBlock),
		Addresses: []common.Address{c.nft},
		Topics:    [][]common.Hash{{event.ID}, nil, nil, {commitment}},
	})
	if err != nil {
		return nil, false, errors.Wrap(errors.KindTransport, "ledger.find_mint", "log query failed", err)
	}
	for _, l := range logs {
		// nodes may ignore the topic filter
		if l.Removed || len(l.Topics) != 4 {
			continue
		}
		owner := common.BytesToAddress(l.Topics[2].Bytes())
		if found, ok := c.extractMint([]*types.Log{&l}, owner, commitment); ok {
			found.TxHash = l.TxHash
			found.BlockNumber = l.BlockNumber
			return found, true, nil
		}
	}
	return nil, false, nil
}

// BalanceOf reads the platform token balance of account.
func (c *Client) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.token, methodBalanceOf, account)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New(errors.KindTransport, "ledger.balance", "unexpected balanceOf result")
	}
	return balance, nil
}

// PlatformWallet reads the address platform fees are paid to.
func (c *Client) PlatformWallet(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, c.token, methodPlatformWallet)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New(errors.KindTransport, "ledger.platform_wallet", "unexpected getPlatformWallet result")
	}
	return addr, nil
}

// Transfer sends amount platform tokens from the signer's account to to and
// waits for a successful receipt.
func (c *Client) Transfer(ctx context.Context, signer wallet.Signer, from, to common.Address, amount *big.Int) (common.Hash, error) {
	data, err := c.abi.Pack(methodTransfer, to, amount)
	if err != nil {
		return common.Hash{}, errors.Wrap(errors.KindLedgerSubmission, "ledger.transfer", "cannot encode transfer call", err)
	}
	txHash, err := signer.SendTransaction(ctx, wallet.TxRequest{From: from, To: c.token, Data: data})
	if err != nil {
		return common.Hash{}, errors.Reclassify(errors.KindLedgerSubmission, "ledger.transfer", "transfer not accepted", err)
	}
	mined, err := c.waitMined(ctx, txHash)
	if err != nil {
		return txHash, errors.Reclassify(errors.KindLedgerAmbiguous, "ledger.transfer", "confirmation wait interrupted",
			&AmbiguousError{TxHash: txHash, Reason: err.Error()})
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return txHash, errors.New(errors.KindLedgerSubmission, "ledger.transfer", fmt.Sprintf("transfer %s reverted", txHash.Hex()))
	}
	return txHash, nil
}

func (c *Client) call(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindDomain, "ledger."+method, "cannot encode call", err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "ledger."+method, "contract call failed", err)
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, errors.New(errors.KindTransport, "ledger."+method, "cannot decode contract result")
	}
	return out, nil
}

// waitMined polls until the receipt exists. Lookup errors other than
// not-found are logged and polled through.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && r != nil {
			return r, nil
		}
		if err != nil && !stderrors.Is(err, ethereum.NotFound) {
			c.logger.Warn("receipt lookup for %s failed: %v", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) extractMint(logs []*types.Log, owner common.Address, commitment common.Hash) (*MintReceipt, bool) {
	event := c.abi.Events[eventMinted]
	ownerTopic := common.BytesToHash(owner.Bytes())

	for _, l := range logs {
		if l == nil || l.Address != c.nft || len(l.Topics) != 4 {
			continue
		}
		if l.Topics[0] != event.ID || l.Topics[2] != ownerTopic || l.Topics[3] != commitment {
			continue
		}
		found := &MintReceipt{TokenID: new(big.Int).SetBytes(l.Topics[1].Bytes())}
		if values, err := event.Inputs.NonIndexed().Unpack(l.Data); err == nil && len(values) == 1 {
			if s, ok := values[0].(string); ok {
				found.ContentAddress = s
			}
		}
		return found, true
	}
	return nil, false
}

func blockOf(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

// Package ledgertest provides an in-memory ledger that acts as both node
// backend and signing handle for tests.
package ledgertest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"eduverse-client-go/internal/domain/ledger"
	"eduverse-client-go/internal/domain/wallet"
)

// Behavior controls what happens to the next mint transactions.
type Behavior int

const (
	// Mine confirms immediately with a ResourceMinted event.
	Mine Behavior = iota
	// Revert confirms with a failed status.
	Revert
	// OmitEvent confirms successfully but emits no mint event.
	OmitEvent
	// Hold accepts the transaction and leaves it unmined until MinePending.
	Hold
)

// Chain is safe for concurrent use.
type Chain struct {
	NFT   common.Address
	Token common.Address

	mu             sync.Mutex
	abi            abi.ABI
	behavior       Behavior
	sendErr        error
	receipts       map[common.Hash]*types.Receipt
	pending        map[common.Hash]wallet.TxRequest
	logs           []types.Log
	sent           []wallet.TxRequest
	balances       map[common.Address]*big.Int
	platformWallet common.Address
	block          uint64
	nextToken      int64
	nonce          uint64
}

// New returns an empty chain.
func New() *Chain {
	parsed, err := ledger.ParsedABI()
	if err != nil {
		panic(err)
	}
	return &Chain{
		NFT:            common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Token:          common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		abi:            parsed,
		receipts:       map[common.Hash]*types.Receipt{},
		pending:        map[common.Hash]wallet.TxRequest{},
		balances:       map[common.Address]*big.Int{},
		platformWallet: common.HexToAddress("0x00000000000000000000000000000000000000fe"),
		block:          100,
		nextToken:      1,
	}
}

// SetBehavior changes how subsequent mints confirm.
func (c *Chain) SetBehavior(b Behavior) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behavior = b
}

// FailSend makes SendTransaction fail with err until cleared with nil.
func (c *Chain) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetBalance seeds a token balance.
func (c *Chain) SetBalance(account common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = new(big.Int).Set(amount)
}

// Sent returns every accepted transaction.
func (c *Chain) Sent() []wallet.TxRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wallet.TxRequest(nil), c.sent...)
}

// Mints counts mint events emitted so far.
func (c *Chain) Mints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logs)
}

// MinePending confirms every held transaction as a normal mint.
func (c *Chain) MinePending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, tx := range c.pending {
		c.mineLocked(hash, tx, Mine)
		delete(c.pending, hash)
	}
}

// RevertPending mines every held transaction with a failed status.
func (c *Chain) RevertPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, tx := range c.pending {
		c.mineLocked(hash, tx, Revert)
		delete(c.pending, hash)
	}
}

func (c *Chain) SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}

	c.nonce++
	hash := crypto.Keccak256Hash(tx.From.Bytes(), new(big.Int).SetUint64(c.nonce).Bytes())
	c.sent = append(c.sent, tx)

	if c.behavior == Hold {
		c.pending[hash] = tx
		return hash, nil
	}
	c.mineLocked(hash, tx, c.behavior)
	return hash, nil
}

func (c *Chain) mineLocked(hash common.Hash, tx wallet.TxRequest, behavior Behavior) {
	c.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(c.block),
	}
	if behavior == Revert {
		receipt.Status = types.ReceiptStatusFailed
		c.receipts[hash] = receipt
		return
	}

	method, args, err := c.decode(tx.Data)
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		c.receipts[hash] = receipt
		return
	}

	switch method {
	case "mint":
		if behavior == OmitEvent {
			break
		}
		event := c.abi.Events["ResourceMinted"]
		owner := args[0].(common.Address)
		commitment := args[1].([32]byte)
		data, _ := event.Inputs.NonIndexed().Pack(args[2].(string))
		log := types.Log{
			Address: c.NFT,
			Topics: []common.Hash{
				event.ID,
				common.BigToHash(big.NewInt(c.nextToken)),
				common.BytesToHash(owner.Bytes()),
				common.Hash(commitment),
			},
			Data:        data,
			BlockNumber: c.block,
			TxHash:      hash,
		}
		c.nextToken++
		c.logs = append(c.logs, log)
		receipt.Logs = []*types.Log{&log}
	case "transfer":
		to := args[0].(common.Address)
		amount := args[1].(*big.Int)
		from := c.balanceLocked(tx.From)
		if from.Cmp(amount) < 0 {
			receipt.Status = types.ReceiptStatusFailed
			break
		}
		from.Sub(from, amount)
		c.balanceLocked(to).Add(c.balanceLocked(to), amount)
	}
	c.receipts[hash] = receipt
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if matchTopics(q.Topics, l.Topics) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	method, args, err := c.decode(call.Data)
	if err != nil {
		return nil, err
	}
	switch method {
	case "balanceOf":
		return c.abi.Methods[method].Outputs.Pack(new(big.Int).Set(c.balanceLocked(args[0].(common.Address))))
	case "getPlatformWallet":
		return c.abi.Methods[method].Outputs.Pack(c.platformWallet)
	default:
		return nil, fmt.Errorf("execution reverted: %s is not a view", method)
	}
}

func (c *Chain) balanceLocked(account common.Address) *big.Int {
	b, ok := c.balances[account]
	if !ok {
		b = new(big.Int)
		c.balances[account] = b
	}
	return b
}

func (c *Chain) decode(data []byte) (string, []any, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("calldata too short")
	}
	for name, m := range c.abi.Methods {
		if bytes.Equal(m.ID, data[:4]) {
			args, err := m.Inputs.Unpack(data[4:])
			return name, args, err
		}
	}
	return "", nil, fmt.Errorf("unknown selector %x", data[:4])
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		matched := false
		for _, want := range alternatives {
			if topics[i] == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

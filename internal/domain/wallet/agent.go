package wallet

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Error codes the signing agent uses for the two distinguished refusals.
const (
	CodeUserRejected   = 4001
	CodeRequestPending = -32002
)

// TxRequest is an unsigned transaction handed to the agent for signing.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// Signer submits transactions through the agent. Acceptance is the returned hash.
type Signer interface {
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// Agent is the external signing component.
type Agent interface {
	// Available reports whether the agent exists; it makes no calls.
	Available() bool
	// Accounts lists already authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks the user, inside the agent, to authorize an account.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Signer returns a signing handle for account.
	Signer(account common.Address) Signer
}

// Classify maps an agent error to a Reason using its JSON-RPC error code.
func Classify(err error) Reason {
	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return ReasonDeclined
		case CodeRequestPending:
			return ReasonAlreadyPending
		}
	}
	return ReasonOther
}

// RPCAgent speaks the signing agent's JSON-RPC surface.
type RPCAgent struct {
	client  *rpc.Client
	chainID *big.Int
}

// DialAgent connects to a signing agent endpoint. An empty url yields a nil
// agent, which the connector treats as no agent present.
func DialAgent(ctx context.Context, url string, chainID int64) (*RPCAgent, error) {
	if url == "" {
		return nil, nil
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial signing agent: %w", err)
	}
	return NewRPCAgent(client, chainID), nil
}

// NewRPCAgent wraps an existing rpc client.
func NewRPCAgent(client *rpc.Client, chainID int64) *RPCAgent {
	return &RPCAgent{client: client, chainID: big.NewInt(chainID)}
}

func (a *RPCAgent) Available() bool {
	return a != nil && a.client != nil
}

func (a *RPCAgent) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := a.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (a *RPCAgent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := a.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (a *RPCAgent) Signer(account common.Address) Signer {
	return &rpcSigner{client: a.client, from: account, chainID: a.chainID}
}

// Close releases the connection.
func (a *RPCAgent) Close() {
	if a.Available() {
		a.client.Close()
	}
}

type rpcSigner struct {
	client  *rpc.Client
	from    common.Address
	chainID *big.Int
}

// sendArgs is the eth_sendTransaction parameter object.
type sendArgs struct {
	From    common.Address  `json:"from"`
	To      common.Address  `json:"to"`
	Data    hexutil.Bytes   `json:"data,omitempty"`
	Value   *hexutil.Big    `json:"value,omitempty"`
	Gas     *hexutil.Uint64 `json:"gas,omitempty"`
	ChainID *hexutil.Big    `json:"chainId,omitempty"`
}

func (s *rpcSigner) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := sendArgs{
		From:    s.from,
		To:      tx.To,
		Data:    tx.Data,
		ChainID: (*hexutil.Big)(s.chainID),
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}

	var hash common.Hash
	if err := s.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BuildCommitment binds off-chain content to an owner and a moment:
// keccak256(contentAddress || owner || uint256(timestamp)), the same layout
// as Solidity's abi.encodePacked(string, address, uint256).
func BuildCommitment(contentAddress string, owner common.Address, timestamp uint64) common.Hash {
	ts := common.LeftPadBytes(new(big.Int).SetUint64(timestamp).Bytes(), 32)
	return crypto.Keccak256Hash([]byte(contentAddress), owner.Bytes(), ts)
}

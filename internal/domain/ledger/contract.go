package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// contractABI covers the surface the client consumes from the resource NFT
// and the platform token.
const contractABI = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"},{"name":"commitment","type":"bytes32"},{"name":"contentAddress","type":"string"}],
   "outputs":[{"name":"tokenId","type":"uint256"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPlatformWallet","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"ResourceMinted","anonymous":false,
   "inputs":[{"name":"tokenId","type":"uint256","indexed":true},
             {"name":"owner","type":"address","indexed":true},
             {"name":"commitment","type":"bytes32","indexed":true},
             {"name":"contentAddress","type":"string","indexed":false}]}
]`

const (
	methodMint           = "mint"
	methodTransfer       = "transfer"
	methodBalanceOf      = "balanceOf"
	methodPlatformWallet = "getPlatformWallet"
	eventMinted          = "ResourceMinted"
)

// ParsedABI returns the parsed contract surface.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(contractABI))
}

package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-facilitator/types"
)

// erc20ABI covers the subset of the token surface the facilitator
// touches: reads for verification, transfer for cashback, and the
// EIP-3009 settlement entrypoint.
const erc20ABI = `
[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "owner", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "decimals",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "uint8" }]
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "authorizer", "type": "address" },
      { "name": "nonce", "type": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transfer",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transferWithAuthorization",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "from", "type": "address" },
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" },
      { "name": "validAfter", "type": "uint256" },
      { "name": "validBefore", "type": "uint256" },
      { "name": "nonce", "type": "bytes32" },
      { "name": "v", "type": "uint8" },
      { "name": "r", "type": "bytes32" },
      { "name": "s", "type": "bytes32" }
    ],
    "outputs": []
  }
]
`

// ERC20 wraps token calls against any contract caller. Keeping the
// caller an interface lets tests substitute a canned backend.
type ERC20 struct {
	address common.Address
	abi     abi.ABI
	caller  ethereum.ContractCaller
}

func NewERC20(token string, caller ethereum.ContractCaller) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{
		address: common.HexToAddress(token),
		abi:     parsed,
		caller:  caller,
	}, nil
}

func (e *ERC20) Address() common.Address { return e.address }

func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := e.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return bal, nil
}

func (e *ERC20) Decimals(ctx context.Context) (uint8, error) {
	out, err := e.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals return type %T", out[0])
	}
	return dec, nil
}

// AuthorizationState reports whether the EIP-3009 nonce was already
// consumed for the authorizer.
func (e *ERC20) AuthorizationState(ctx context.Context, authorizer common.Address, nonce [32]byte) (bool, error) {
	out, err := e.call(ctx, "authorizationState", authorizer, nonce)
	if err != nil {
		return false, err
	}
	used, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState return type %T", out[0])
	}
	return used, nil
}

// PackTransfer builds the calldata for transfer(to, value).
func (e *ERC20) PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return e.abi.Pack("transfer", to, value)
}

// PackTransferWithAuthorization builds the calldata for the EIP-3009
// settlement call.
func (e *ERC20) PackTransferWithAuthorization(auth types.EVMAuthorization, v uint8, r, s [32]byte) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value %q", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter %q", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore %q", auth.ValidBefore)
	}
	nonce, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	return e.abi.Pack(
		"transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value,
		validAfter,
		validBefore,
		nonce,
		v,
		r,
		s,
	)
}

func (e *ERC20) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := e.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

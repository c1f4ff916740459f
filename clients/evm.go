package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/types"
)

// EVMClient verifies exact-scheme payments against an EVM network. It
// holds no key; all calls are reads or eth_call simulations.
type EVMClient struct {
	network types.Network
	client  *ethclient.Client
	log     logger.Logger
}

func NewEVMClient(network types.Network, rpcURL string, log logger.Logger) (*EVMClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to EVM RPC: %w", err)
	}
	return &EVMClient{
		network: network,
		client:  client,
		log:     log.Named("evm"),
	}, nil
}

func (e *EVMClient) Network() types.Network { return e.network }

func (e *EVMClient) Close() { e.client.Close() }

// VerifyPayment checks an EIP-3009 authorization: signature recovery,
// payer balance, amount, validity window, nonce state, and a simulated
// transferWithAuthorization. Failed checks come back as an invalid
// result; transport failures come back as errors.
func (e *EVMClient) VerifyPayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.VerificationResult, error) {
	decoded, err := payload.DecodeExactEvm()
	if err != nil {
		return invalid(ReasonInvalidExactEvmPayload), nil
	}
	auth := decoded.Authorization

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	signer, err := RecoverAuthorizationSigner(auth, decoded.Signature, chainID, reqs.Asset, reqs.EIP712Name(), reqs.EIP712Version())
	if err != nil || !strings.EqualFold(signer.Hex(), auth.From) {
		return invalid(ReasonInvalidSignature), nil
	}

	erc20, err := NewERC20(reqs.Asset, e.client)
	if err != nil {
		return nil, err
	}

	required, ok := new(big.Int).SetString(reqs.MaxAmountRequired, 10)
	if !ok {
		return invalid(ReasonInvalidAmount), nil
	}
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Cmp(required) < 0 {
		return invalid(ReasonInvalidAmount), nil
	}

	balance, err := erc20.BalanceOf(ctx, common.HexToAddress(auth.From))
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance.Cmp(required) < 0 {
		return invalid(ReasonInsufficientFunds), nil
	}

	if !windowOpen(auth, time.Now()) {
		return invalid(ReasonAuthorizationExpired), nil
	}

	nonce, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return invalid(ReasonInvalidExactEvmPayload), nil
	}
	used, err := erc20.AuthorizationState(ctx, common.HexToAddress(auth.From), nonce)
	if err != nil {
		return nil, fmt.Errorf("read authorization state: %w", err)
	}
	if used {
		return invalid(ReasonNonceAlreadyUsed), nil
	}

	ok, err = e.simulateTransfer(ctx, erc20, decoded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return invalid(ReasonSimulationFailed), nil
	}

	e.log.Debug("payment verified", map[string]any{
		"network": e.network.String(),
		"payer":   auth.From,
	})

	return &types.VerificationResult{IsValid: true, Payer: auth.From}, nil
}

// simulateTransfer dry-runs transferWithAuthorization via eth_call. A
// revert means the authorization would not execute; that is a verdict,
// not an error.
func (e *EVMClient) simulateTransfer(ctx context.Context, erc20 *ERC20, decoded *types.ExactEvmPayload) (bool, error) {
	v, r, s, err := SplitSignature(decoded.Signature)
	if err != nil {
		return false, nil
	}

	callData, err := erc20.PackTransferWithAuthorization(decoded.Authorization, v, r, s)
	if err != nil {
		return false, nil
	}

	contract := erc20.Address()
	_, err = e.client.CallContract(ctx, ethereum.CallMsg{
		From: common.HexToAddress(decoded.Authorization.From),
		To:   &contract,
		Data: callData,
	}, nil)
	if err != nil {
		e.log.Debug("simulation reverted", map[string]any{"error": err.Error()})
		return false, nil
	}
	return true, nil
}

func windowOpen(auth types.EVMAuthorization, now time.Time) bool {
	validAfter, okA := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, okB := new(big.Int).SetString(auth.ValidBefore, 10)
	if !okA || !okB {
		return false
	}
	ts := big.NewInt(now.Unix())
	return ts.Cmp(validAfter) >= 0 && ts.Cmp(validBefore) <= 0
}

func invalid(reason string) *types.VerificationResult {
	return &types.VerificationResult{IsValid: false, InvalidReason: reason}
}

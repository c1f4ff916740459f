package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/types"
)

const (
	// settleGasLimit covers transferWithAuthorization and plain
	// transfer on the USDC-style tokens in use.
	settleGasLimit = 300000

	receiptPollInterval = 2 * time.Second
)

// EVMSigner settles payments and sends cashback transfers from the
// facilitator's key.
type EVMSigner struct {
	network types.Network
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	log     logger.Logger
}

func NewEVMSigner(network types.Network, rpcURL, privateKeyHex string, log logger.Logger) (*EVMSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse EVM private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to EVM RPC: %w", err)
	}

	return &EVMSigner{
		network: network,
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		log:     log.Named("evm-signer"),
	}, nil
}

func (s *EVMSigner) Network() types.Network { return s.network }

func (s *EVMSigner) Address() common.Address { return s.address }

func (s *EVMSigner) Close() { s.client.Close() }

// SettlePayment broadcasts transferWithAuthorization and waits for the
// receipt. On-chain rejection is reported in the result, not as an
// error.
func (s *EVMSigner) SettlePayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.SettlementResult, error) {
	decoded, err := payload.DecodeExactEvm()
	if err != nil {
		return &types.SettlementResult{Success: false, Error: ReasonInvalidExactEvmPayload}, nil
	}
	auth := decoded.Authorization

	v, r, sv, err := SplitSignature(decoded.Signature)
	if err != nil {
		return &types.SettlementResult{Success: false, Error: ReasonInvalidExactEvmPayload}, nil
	}

	erc20, err := NewERC20(reqs.Asset, s.client)
	if err != nil {
		return nil, err
	}
	callData, err := erc20.PackTransferWithAuthorization(auth, v, r, sv)
	if err != nil {
		return &types.SettlementResult{Success: false, Error: ReasonInvalidExactEvmPayload}, nil
	}

	txHash, err := s.sendAndWait(ctx, erc20.Address(), callData)
	if err != nil {
		s.log.Error("settlement failed", map[string]any{
			"network": s.network.String(),
			"payer":   auth.From,
			"error":   err.Error(),
		})
		return &types.SettlementResult{
			Success: false,
			TxHash:  txHash,
			Payer:   auth.From,
			Error:   err.Error(),
		}, nil
	}

	s.log.Info("payment settled", map[string]any{
		"network": s.network.String(),
		"payer":   auth.From,
		"txHash":  txHash,
	})

	return &types.SettlementResult{
		Success:   true,
		TxHash:    txHash,
		NetworkID: s.network.String(),
		Payer:     auth.From,
	}, nil
}

// TokenDecimals reads decimals() from the given token.
func (s *EVMSigner) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	erc20, err := NewERC20(token, s.client)
	if err != nil {
		return 0, err
	}
	return erc20.Decimals(ctx)
}

// TransferToken sends transfer(to, amount) on the given token and waits
// for the receipt. Returns the transaction hash.
func (s *EVMSigner) TransferToken(ctx context.Context, token, to string, amount *big.Int) (string, error) {
	erc20, err := NewERC20(token, s.client)
	if err != nil {
		return "", err
	}
	callData, err := erc20.PackTransfer(common.HexToAddress(to), amount)
	if err != nil {
		return "", err
	}
	return s.sendAndWait(ctx, erc20.Address(), callData)
}

// sendAndWait signs a contract call from the facilitator key, sends it,
// and polls for its receipt until the context expires. The transaction
// hash is returned even on failure so callers can report it.
func (s *EVMSigner) sendAndWait(ctx context.Context, to common.Address, callData []byte) (string, error) {
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch chain id: %w", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), settleGasLimit, gasPrice, callData)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%s: %w", ReasonBroadcastFailed, err)
	}
	txHash := signed.Hash().Hex()

	receipt, err := s.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return txHash, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("transaction %s reverted", txHash)
	}
	return txHash, nil
}

func (s *EVMSigner) waitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", ReasonConfirmationTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

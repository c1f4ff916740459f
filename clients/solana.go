package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/types"
)

const statusPollInterval = 3 * time.Second

// SolanaSigner verifies and settles SVM payments. Verification already
// needs the key: the transaction arrives without the fee payer's
// signature, and simulation rejects it unsigned.
type SolanaSigner struct {
	network types.Network
	client  *rpc.Client
	key     solana.PrivateKey
	log     logger.Logger
}

func NewSolanaSigner(network types.Network, rpcURL, privateKeyBase58 string, log logger.Logger) (*SolanaSigner, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("parse SVM private key: %w", err)
	}
	return &SolanaSigner{
		network: network,
		client:  rpc.New(rpcURL),
		key:     key,
		log:     log.Named("svm"),
	}, nil
}

func (s *SolanaSigner) Network() types.Network { return s.network }

// FeePayer is the address this signer pays fees from.
func (s *SolanaSigner) FeePayer() solana.PublicKey { return s.key.PublicKey() }

func (s *SolanaSigner) Close() {}

// VerifyPayment decodes the payload transaction, co-signs it as fee
// payer, simulates it, and checks it carries a system transfer of at
// least the required lamports to the payTo account.
func (s *SolanaSigner) VerifyPayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.VerificationResult, error) {
	tx, result := s.decodeTransaction(payload)
	if result != nil {
		return &types.VerificationResult{IsValid: false, InvalidReason: *result}, nil
	}

	// The fee payer key may not appear in a malformed message; the
	// simulation below surfaces that as a failure.
	_ = s.signAsFeePayer(tx)

	sim, err := s.client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	if sim.Value.Err != nil {
		s.log.Debug("simulation rejected transaction", map[string]any{
			"error": fmt.Sprintf("%v", sim.Value.Err),
		})
		return invalid(ReasonSimulationFailed), nil
	}

	payer, ok := s.findTransfer(tx, reqs)
	if !ok {
		return invalid(ReasonNoTransferFound), nil
	}

	return &types.VerificationResult{IsValid: true, Payer: payer}, nil
}

// SettlePayment signs the transaction as fee payer, broadcasts it, and
// polls for confirmation until the context expires.
func (s *SolanaSigner) SettlePayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.SettlementResult, error) {
	tx, result := s.decodeTransaction(payload)
	if result != nil {
		return &types.SettlementResult{Success: false, Error: *result}, nil
	}

	if err := s.signAsFeePayer(tx); err != nil {
		return &types.SettlementResult{Success: false, Error: ReasonInvalidExactSvmPayload}, nil
	}

	sig, err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		s.log.Error("broadcast failed", map[string]any{
			"network": s.network.String(),
			"error":   err.Error(),
		})
		return &types.SettlementResult{
			Success: false,
			Error:   fmt.Sprintf("%s: %v", ReasonBroadcastFailed, err),
		}, nil
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &types.SettlementResult{
				Success: false,
				TxHash:  sig.String(),
				Error:   ReasonConfirmationTimeout,
			}, nil
		case <-ticker.C:
		}

		status, err := s.client.GetSignatureStatuses(ctx, false, sig)
		if err != nil || len(status.Value) == 0 || status.Value[0] == nil {
			continue
		}
		conf := status.Value[0].ConfirmationStatus
		if conf == rpc.ConfirmationStatusConfirmed || conf == rpc.ConfirmationStatusFinalized {
			s.log.Info("payment settled", map[string]any{
				"network": s.network.String(),
				"txHash":  sig.String(),
				"slot":    status.Value[0].Slot,
			})
			return &types.SettlementResult{
				Success:   true,
				TxHash:    sig.String(),
				NetworkID: s.network.String(),
			}, nil
		}
	}
}

func (s *SolanaSigner) decodeTransaction(payload *types.PaymentPayload) (*solana.Transaction, *string) {
	reason := ReasonInvalidExactSvmPayload

	decoded, err := payload.DecodeExactSvm()
	if err != nil {
		return nil, &reason
	}
	txBytes, err := base64.StdEncoding.DecodeString(decoded.Transaction)
	if err != nil {
		return nil, &reason
	}
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(txBytes))
	if err != nil {
		return nil, &reason
	}
	return tx, nil
}

func (s *SolanaSigner) signAsFeePayer(tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	signature, err := s.key.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}

	index, err := tx.GetAccountIndex(s.key.PublicKey())
	if err != nil {
		return fmt.Errorf("fee payer not in transaction: %w", err)
	}

	if len(tx.Signatures) <= int(index) {
		sigs := make([]solana.Signature, index+1)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[index] = signature
	return nil
}

// findTransfer walks the message for a system-program transfer to the
// payTo account covering the required amount and returns the sender.
func (s *SolanaSigner) findTransfer(tx *solana.Transaction, reqs *types.PaymentRequirements) (string, bool) {
	payTo, err := solana.PublicKeyFromBase58(reqs.PayTo)
	if err != nil {
		return "", false
	}
	required, err := decimal.NewFromString(reqs.MaxAmountRequired)
	if err != nil {
		return "", false
	}

	for _, inst := range tx.Message.Instructions {
		prog, err := tx.Message.Program(inst.ProgramIDIndex)
		if err != nil || !prog.Equals(solana.SystemProgramID) {
			continue
		}

		metas := make([]*solana.AccountMeta, len(inst.Accounts))
		valid := true
		for i, accIdx := range inst.Accounts {
			if int(accIdx) >= len(tx.Message.AccountKeys) {
				valid = false
				break
			}
			pub := tx.Message.AccountKeys[accIdx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				valid = false
				break
			}
			metas[i] = &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			}
		}
		if !valid || len(metas) < 2 {
			continue
		}

		sysInst, err := system.DecodeInstruction(metas, inst.Data)
		if err != nil {
			continue
		}
		transfer, ok := sysInst.Impl.(*system.Transfer)
		if !ok || !metas[1].PublicKey.Equals(payTo) {
			continue
		}

		amount := decimal.NewFromInt(int64(*transfer.Lamports))
		if amount.GreaterThanOrEqual(required) {
			return metas[0].PublicKey.String(), true
		}
	}
	return "", false
}

package facilitator

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

// cashbackAmount is the reward in whole token units per settlement.
// TODO: derive the amount from CashbackPercent and the settled value
// once the reward formula is decided.
const cashbackAmount = 1

// Disburser issues the post-settlement reward. It always returns a
// record; a failed transfer leaves TxHash nil and never propagates.
type Disburser interface {
	Disburse(ctx context.Context, payload *types.PaymentPayload, settlement *types.SettlementResult, network types.Network) *types.CashbackRecord
}

// TokenTransferrer is the slice of signer behavior cashback needs.
type TokenTransferrer interface {
	TokenDecimals(ctx context.Context, token string) (uint8, error)
	TransferToken(ctx context.Context, token, to string, amount *big.Int) (string, error)
	Close()
}

// TransferrerFactory builds a request-scoped token transferrer.
type TransferrerFactory func() (TokenTransferrer, error)

// CashbackDisburser transfers the configured ERC-20 to the payer after
// an EVM settlement. SVM cashback is not implemented.
type CashbackDisburser struct {
	cfg            *config.Config
	newTransferrer TransferrerFactory
	log            logger.Logger
	metrics        metrics.Recorder
}

func NewCashbackDisburser(cfg *config.Config, factory TransferrerFactory, log logger.Logger, rec metrics.Recorder) *CashbackDisburser {
	return &CashbackDisburser{
		cfg:            cfg,
		newTransferrer: factory,
		log:            log.Named("cashback"),
		metrics:        rec,
	}
}

func (d *CashbackDisburser) Disburse(ctx context.Context, payload *types.PaymentPayload, settlement *types.SettlementResult, network types.Network) *types.CashbackRecord {
	record := &types.CashbackRecord{
		Amount:  cashbackAmount,
		Percent: d.cfg.CashbackPercent,
	}

	payer := settlement.Payer
	if payer == "" {
		payer = payload.PayerAddress()
	}
	if payer == "" || cashbackAmount <= 0 {
		d.log.Debug("cashback skipped", map[string]any{"reason": "no payer address"})
		return record
	}

	if network.IsSVM() {
		d.log.Info("cashback skipped", map[string]any{
			"reason":  "not implemented for SVM networks",
			"network": network.String(),
		})
		return record
	}

	if d.cfg.EVMCashbackToken == "" {
		d.log.Warn("cashback skipped", map[string]any{"reason": "EVM_CASHBACK_TOKEN not configured"})
		return record
	}

	transferrer, err := d.newTransferrer()
	if err != nil {
		d.fail(network, "transferrer construction failed", err)
		return record
	}
	defer transferrer.Close()

	decimals, err := transferrer.TokenDecimals(ctx, d.cfg.EVMCashbackToken)
	if err != nil {
		d.log.Warn("decimals read failed, assuming 18", map[string]any{"error": err.Error()})
		decimals = 18
	}

	scaled := decimal.NewFromInt(cashbackAmount).Shift(int32(decimals)).BigInt()

	txHash, err := transferrer.TransferToken(ctx, d.cfg.EVMCashbackToken, payer, scaled)
	if err != nil {
		d.fail(network, "cashback transfer failed", err)
		return record
	}

	record.TxHash = &txHash
	d.metrics.IncCounter("cashback_sent", map[string]string{"network": network.String()})
	d.log.Info("cashback sent", map[string]any{
		"network": network.String(),
		"payer":   payer,
		"txHash":  txHash,
	})
	return record
}

func (d *CashbackDisburser) fail(network types.Network, msg string, err error) {
	d.metrics.IncCounter("cashback_failed", map[string]string{"network": network.String()})
	d.log.Error(msg, map[string]any{
		"network": network.String(),
		"error":   err.Error(),
	})
}

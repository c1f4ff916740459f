// Package facilitator wires network classification, per-request chain
// clients, and cashback disbursal into the verify and settle flows.
package facilitator

import (
	"context"
	"fmt"

	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

// Verifier checks a payment without executing it.
type Verifier interface {
	VerifyPayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.VerificationResult, error)
	Close()
}

// Settler executes a payment on chain.
type Settler interface {
	SettlePayment(ctx context.Context, payload *types.PaymentPayload, reqs *types.PaymentRequirements) (*types.SettlementResult, error)
	Close()
}

// VerifierFactory builds a request-scoped verifier for a network.
type VerifierFactory func(network types.Network) (Verifier, error)

// SettlerFactory builds a request-scoped settler for a network.
type SettlerFactory func(network types.Network) (Settler, error)

// Facilitator is the protocol core behind the HTTP surface. Clients and
// signers are built per request through the factories; nothing chain-
// facing is cached between requests.
type Facilitator struct {
	cfg       *config.Config
	log       logger.Logger
	metrics   metrics.Recorder
	verifiers VerifierFactory
	settlers  SettlerFactory
	disburser Disburser
	feePayer  func() (string, error)
}

func New(cfg *config.Config, opts ...Option) *Facilitator {
	f := &Facilitator{
		cfg:     cfg,
		log:     logger.NoopLogger{},
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.verifiers == nil {
		f.verifiers = f.defaultVerifier
	}
	if f.settlers == nil {
		f.settlers = f.defaultSettler
	}
	if f.disburser == nil {
		f.disburser = NewCashbackDisburser(cfg, f.defaultTransferrer, f.log, f.metrics)
	}
	if f.feePayer == nil {
		f.feePayer = f.defaultFeePayer
	}
	return f
}

// Verify validates a payment authorization without settling it.
func (f *Facilitator) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerificationResult, error) {
	network := types.Network(req.PaymentRequirements.Network)
	if network.Family() == types.FamilyUnknown {
		return nil, types.Errorf(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}

	verifier, err := f.verifiers(network)
	if err != nil {
		return nil, err
	}
	defer verifier.Close()

	result, err := verifier.VerifyPayment(ctx, &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		f.metrics.IncCounter("verify_error", networkLabel(network))
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	if result.IsValid {
		f.metrics.IncCounter("verify_valid", networkLabel(network))
	} else {
		f.metrics.IncCounter("verify_invalid", networkLabel(network))
		f.log.Info("payment rejected", map[string]any{
			"network": network.String(),
			"reason":  result.InvalidReason,
		})
	}
	return result, nil
}

// Settle executes the payment, then disburses cashback. A settlement
// failure surfaces as an error; cashback problems never do.
func (f *Facilitator) Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettleResponse, error) {
	network := types.Network(req.PaymentRequirements.Network)
	if network.Family() == types.FamilyUnknown {
		return nil, types.Errorf(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}

	settler, err := f.settlers(network)
	if err != nil {
		return nil, err
	}
	defer settler.Close()

	result, err := settler.SettlePayment(ctx, &req.PaymentPayload, &req.PaymentRequirements)
	if err != nil {
		f.metrics.IncCounter("settle_error", networkLabel(network))
		return nil, fmt.Errorf("settlement failed: %w", err)
	}
	if !result.Success {
		f.metrics.IncCounter("settle_failed", networkLabel(network))
		return nil, types.Errorf(types.ErrSettlementFailed, "settlement failed: %s", result.Error)
	}
	f.metrics.IncCounter("settle_success", networkLabel(network))

	cashback := f.disburser.Disburse(ctx, &req.PaymentPayload, result, network)

	return &types.SettleResponse{
		Success:    true,
		Settlement: result,
		Cashback:   cashback,
	}, nil
}

// Supported lists the (scheme, network) kinds this instance can settle,
// gated by which keys are configured.
func (f *Facilitator) Supported() *types.SupportedResponse {
	kinds := make([]types.SupportedKind, 0, 2)

	if f.cfg.HasEVMKey() {
		kinds = append(kinds, types.SupportedKind{
			X402Version: types.X402Version,
			Scheme:      types.SchemeExact,
			Network:     types.NetworkBaseSepolia.String(),
		})
	}

	if f.cfg.HasSVMKey() {
		kind := types.SupportedKind{
			X402Version: types.X402Version,
			Scheme:      types.SchemeExact,
			Network:     types.NetworkSolanaDevnet.String(),
		}
		if feePayer, err := f.feePayer(); err == nil {
			kind.Extra = map[string]interface{}{"feePayer": feePayer}
		} else {
			f.log.Warn("fee payer derivation failed", map[string]any{"error": err.Error()})
		}
		kinds = append(kinds, kind)
	}

	return &types.SupportedResponse{Kinds: kinds}
}

// Networks reports which families are operable, for health reporting.
func (f *Facilitator) Networks() map[string]bool {
	return map[string]bool{
		"evm": f.cfg.HasEVMKey(),
		"svm": f.cfg.HasSVMKey(),
	}
}

func (f *Facilitator) defaultVerifier(network types.Network) (Verifier, error) {
	switch network.Family() {
	case types.FamilyEVM:
		return clients.NewEVMClient(network, f.cfg.EVMRPCURL, f.log)
	case types.FamilySVM:
		// Simulation rejects unsigned transactions, so SVM
		// verification already requires the fee-payer key.
		if !f.cfg.HasSVMKey() {
			return nil, types.Errorf(types.ErrConfigError, "SVM_PRIVATE_KEY not configured")
		}
		return clients.NewSolanaSigner(network, f.cfg.SVMRPCURL, f.cfg.SVMPrivateKey, f.log)
	default:
		return nil, types.Errorf(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}
}

func (f *Facilitator) defaultSettler(network types.Network) (Settler, error) {
	switch network.Family() {
	case types.FamilyEVM:
		if !f.cfg.HasEVMKey() {
			return nil, types.Errorf(types.ErrConfigError, "EVM_PRIVATE_KEY not configured")
		}
		return clients.NewEVMSigner(network, f.cfg.EVMRPCURL, f.cfg.EVMPrivateKey, f.log)
	case types.FamilySVM:
		if !f.cfg.HasSVMKey() {
			return nil, types.Errorf(types.ErrConfigError, "SVM_PRIVATE_KEY not configured")
		}
		return clients.NewSolanaSigner(network, f.cfg.SVMRPCURL, f.cfg.SVMPrivateKey, f.log)
	default:
		return nil, types.Errorf(types.ErrUnsupportedNetwork, "unsupported network: %s", network)
	}
}

func (f *Facilitator) defaultTransferrer() (TokenTransferrer, error) {
	if !f.cfg.HasEVMKey() {
		return nil, types.Errorf(types.ErrConfigError, "EVM_PRIVATE_KEY not configured")
	}
	return clients.NewEVMSigner(types.NetworkBaseSepolia, f.cfg.EVMRPCURL, f.cfg.EVMPrivateKey, f.log)
}

func (f *Facilitator) defaultFeePayer() (string, error) {
	signer, err := clients.NewSolanaSigner(types.NetworkSolanaDevnet, f.cfg.SVMRPCURL, f.cfg.SVMPrivateKey, f.log)
	if err != nil {
		return "", err
	}
	defer signer.Close()
	return signer.FeePayer().String(), nil
}

func networkLabel(n types.Network) map[string]string {
	return map[string]string{"network": n.String()}
}

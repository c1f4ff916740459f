package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// X402Version is the version of the x402 protocol spoken by this service.
const X402Version = 1

// SchemeExact is the only payment scheme the facilitator currently handles.
const SchemeExact = "exact"

var validate = validator.New()

// PaymentRequirements declares what a resource server accepts as payment.
// Immutable once received; validated on every request.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g. "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the blockchain to send payment on (e.g. "base-sepolia").
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units
	// of the asset. A string because Go has no uint256.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// URL of the resource to pay for.
	Resource string `json:"resource,omitempty"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MIME type of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Address of the asset contract (EIP-3009 ERC-20 on EVM, mint on SVM).
	Asset string `json:"asset" validate:"required"`

	// Extra scheme-specific details. For "exact" on EVM this may carry
	// the token's EIP-712 domain "name" and "version".
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Validate checks the requirements for structural completeness.
func (pr *PaymentRequirements) Validate() error {
	if err := validate.Struct(pr); err != nil {
		return fmt.Errorf("invalid payment requirements: %w", err)
	}
	return nil
}

// EIP712Name returns the token's EIP-712 domain name, defaulting to the
// USDC domain used across x402 deployments.
func (pr *PaymentRequirements) EIP712Name() string {
	if v, ok := pr.Extra["name"].(string); ok && v != "" {
		return v
	}
	return "USD Coin"
}

// EIP712Version returns the token's EIP-712 domain version.
func (pr *PaymentRequirements) EIP712Version() string {
	if v, ok := pr.Extra["version"].(string); ok && v != "" {
		return v
	}
	return "2"
}

// PaymentPayload is the payer-submitted proof of authorization. The
// Payload field is scheme-specific and stays raw until a chain client
// decodes it.
type PaymentPayload struct {
	X402Version int             `json:"x402Version" validate:"required"`
	Scheme      string          `json:"scheme" validate:"required"`
	Network     string          `json:"network" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

// ExactEvmPayload is the decoded "exact" scheme payload for EVM
// networks: an EIP-3009 transfer authorization plus its signature.
type ExactEvmPayload struct {
	Signature     string           `json:"signature"`
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization mirrors the EIP-3009 TransferWithAuthorization
// message. Numeric fields are decimal strings; Nonce is 0x-prefixed hex.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactSvmPayload is the decoded "exact" scheme payload for SVM
// networks: a base64-serialized transaction.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// DecodeExactEvm decodes the scheme-specific payload as an EVM
// authorization payload.
func (p *PaymentPayload) DecodeExactEvm() (*ExactEvmPayload, error) {
	var out ExactEvmPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, fmt.Errorf("invalid exact evm payload: %w", err)
	}
	return &out, nil
}

// DecodeExactSvm decodes the scheme-specific payload as an SVM
// transaction payload.
func (p *PaymentPayload) DecodeExactSvm() (*ExactSvmPayload, error) {
	var out ExactSvmPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, fmt.Errorf("invalid exact svm payload: %w", err)
	}
	return &out, nil
}

// PayerAddress extracts the payer from the scheme-specific payload.
// Only the EVM authorization scheme carries one; for every other shape
// the payer is unknown and the empty string is returned.
func (p *PaymentPayload) PayerAddress() string {
	decoded, err := p.DecodeExactEvm()
	if err != nil {
		return ""
	}
	return decoded.Authorization.From
}

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload" validate:"required"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements" validate:"required"`
}

// Validate checks both halves of the request and that they agree on the
// target network.
func (r *VerifyRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if err := r.PaymentRequirements.Validate(); err != nil {
		return err
	}
	if r.PaymentPayload.Network != r.PaymentRequirements.Network {
		return fmt.Errorf("payload network %q does not match requirements network %q",
			r.PaymentPayload.Network, r.PaymentRequirements.Network)
	}
	return nil
}

// VerificationResult is the verifier's verdict, forwarded to the caller
// verbatim.
type VerificationResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettlementResult is the receipt of an executed payment.
type SettlementResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"txHash,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
	Payer     string `json:"payer,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CashbackRecord reports the post-settlement reward transfer. TxHash is
// null when no transfer happened (no payer, SVM network, or a transfer
// failure after a successful settlement).
type CashbackRecord struct {
	Amount  int64   `json:"amount"`
	TxHash  *string `json:"txHash"`
	Percent int64   `json:"percent"`
}

// SettleResponse is the composite body of a successful POST /settle.
type SettleResponse struct {
	Success    bool              `json:"success"`
	Settlement *SettlementResult `json:"settlement"`
	Cashback   *CashbackRecord   `json:"cashback"`
}

// SupportedKind is one operable (scheme, network) pair.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the body of GET /supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// X402Error carries a stable machine-readable code alongside the message.
type X402Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *X402Error) Error() string {
	return e.Message
}

// Errorf builds an X402Error with a formatted message.
func Errorf(code, format string, args ...interface{}) *X402Error {
	return &X402Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common error codes.
const (
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrInvalidPayload     = "INVALID_PAYLOAD"
	ErrConfigError        = "CONFIG_ERROR"
	ErrVerificationFailed = "VERIFICATION_FAILED"
	ErrSettlementFailed   = "SETTLEMENT_FAILED"
	ErrCashbackFailed     = "CASHBACK_FAILED"
	ErrNetworkError       = "NETWORK_ERROR"
)

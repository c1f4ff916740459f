package clients

// Machine-readable invalid reasons returned in verification and
// settlement results. Stable strings; clients match on them.
const (
	ReasonInvalidExactEvmPayload = "invalid_exact_evm_payload"
	ReasonInvalidExactSvmPayload = "invalid_exact_svm_payload"
	ReasonInvalidSignature       = "invalid_signature"
	ReasonInsufficientFunds      = "insufficient_funds"
	ReasonInvalidAmount          = "invalid_amount"
	ReasonAuthorizationExpired   = "authorization_expired"
	ReasonNonceAlreadyUsed       = "nonce_already_used"
	ReasonSimulationFailed       = "simulation_failed"
	ReasonNoTransferFound        = "no_transfer_found"
	ReasonBroadcastFailed        = "broadcast_failed"
	ReasonConfirmationTimeout    = "confirmation_timeout"
)

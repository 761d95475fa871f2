package types

// X402Version is the x402 version enum.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// Scheme is the scheme enum.
type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Network is the network enum.
type Network string

const (
	NetworkCronos        Network = "cronos-mainnet"
	NetworkCronosTestnet Network = "cronos-testnet"
	NetworkSepolia       Network = "sepolia"
	NetworkBaseSepolia   Network = "base-sepolia"
)

// PaymentStatus is the status of a ledger entry.
type PaymentStatus string

const (
	PaymentStatusSettled PaymentStatus = "settled"
)

// InvalidReason is the invalid reason enum.
type InvalidReason string

const (
	InvalidReasonInvalidX402Version                    InvalidReason = "invalid_x402_version"
	InvalidReasonInvalidScheme                         InvalidReason = "invalid_scheme"
	InvalidReasonInvalidNetwork                        InvalidReason = "invalid_network"
	InvalidReasonInvalidPaymentPayload                 InvalidReason = "invalid_payment_payload"
	InvalidReasonInvalidPaymentRequirements            InvalidReason = "invalid_payment_requirements"
	InvalidReasonInvalidSchemeMismatch                 InvalidReason = "invalid_scheme_mismatch"
	InvalidReasonInvalidNetworkMismatch                InvalidReason = "invalid_network_mismatch"
	InvalidReasonInvalidAuthorizationValidAfter        InvalidReason = "invalid_authorization_valid_after"
	InvalidReasonInvalidAuthorizationValidBefore       InvalidReason = "invalid_authorization_valid_before"
	InvalidReasonInvalidAuthorizationValue             InvalidReason = "invalid_authorization_value"
	InvalidReasonInvalidAuthorizationValueInsufficient InvalidReason = "invalid_authorization_value_insufficient"
	InvalidReasonInvalidAuthorizationFromAddress       InvalidReason = "invalid_authorization_from_address"
	InvalidReasonInvalidAuthorizationToAddressMismatch InvalidReason = "invalid_authorization_to_address_mismatch"
	InvalidReasonInvalidAuthorizationAssetMismatch     InvalidReason = "invalid_authorization_asset_mismatch"
	InvalidReasonInvalidAuthorizationNonce             InvalidReason = "invalid_authorization_nonce"
	InvalidReasonInvalidRequirementsMaxAmount          InvalidReason = "invalid_requirements_max_amount"
	InvalidReasonInvalidRequirementsMaxTimeout         InvalidReason = "invalid_requirements_max_timeout"
	InvalidReasonInvalidTypedDataMessage               InvalidReason = "invalid_typed_data_message"
	InvalidReasonInvalidAuthorizationSignature         InvalidReason = "invalid_authorization_signature"
	InvalidReasonVerificationStale                     InvalidReason = "verification_stale"
)

// ErrorReason is the error reason enum.
type ErrorReason string

const (
	ErrorReasonInvalidX402Version               ErrorReason = "invalid_x402_version"
	ErrorReasonInvalidPaymentPayload            ErrorReason = "invalid_payment_payload"
	ErrorReasonInvalidPaymentRequirements       ErrorReason = "invalid_payment_requirements"
	ErrorReasonInvalidPaymentID                 ErrorReason = "invalid_payment_id"
	ErrorReasonVerificationFailed               ErrorReason = "verification_failed"
	ErrorReasonInvalidAuthorizationValue        ErrorReason = "invalid_authorization_value"
	ErrorReasonInvalidAuthorizationNonce        ErrorReason = "invalid_authorization_nonce"
	ErrorReasonInvalidAuthorizationSignature    ErrorReason = "invalid_authorization_signature"
	ErrorReasonInvalidAuthorizationMessage      ErrorReason = "invalid_authorization_message"
	ErrorReasonUnsupportedAsset                 ErrorReason = "unsupported_asset"
	ErrorReasonInsufficientRequirementsGasLimit ErrorReason = "insufficient_requirements_gas_limit"
	ErrorReasonInsufficientFunds                ErrorReason = "insufficient_funds"
	ErrorReasonTransactionFailed                ErrorReason = "transaction_failed"
	ErrorReasonSettlementTimeout                ErrorReason = "settlement_timeout"
	ErrorReasonSettlementBackend                ErrorReason = "settlement_backend_error"
)

package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Pricing and detection error codes
const (
	CodeDivisionByZero        Code = "DIVISION_BY_ZERO"
	CodeStaleData             Code = "STALE_DATA"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidTradeSize      Code = "INVALID_TRADE_SIZE"
	CodeNoQuotes              Code = "NO_QUOTES"
)

// Venue feed error codes
const (
	CodeFeedDisconnected         Code = "FEED_DISCONNECTED"
	CodeFeedFailed               Code = "FEED_FAILED"
	CodeFeedParseError           Code = "FEED_PARSE_ERROR"
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeRPCConnectionFailed      Code = "RPC_CONNECTION_FAILED"
	CodeRPCCallFailed            Code = "RPC_CALL_FAILED"
	CodePoolNotFound             Code = "POOL_NOT_FOUND"
)

// Treasury error codes
const (
	CodeInsufficientAmount       Code = "INSUFFICIENT_AMOUNT"
	CodeInvalidDestinationConfig Code = "INVALID_DESTINATION_CONFIG"
	CodeUnknownAction            Code = "UNKNOWN_ACTION"
	CodeInactiveSigner           Code = "INACTIVE_SIGNER"
	CodeAlreadySigned            Code = "ALREADY_SIGNED"
	CodeActionExpired            Code = "ACTION_EXPIRED"
	CodeUnknownRotation          Code = "UNKNOWN_ROTATION"
	CodeUnknownSigner            Code = "UNKNOWN_SIGNER"
	CodeProofVerificationFailed  Code = "PROOF_VERIFICATION_FAILED"
)

// Circuit breaker error codes
const (
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

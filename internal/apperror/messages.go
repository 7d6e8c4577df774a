package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeDivisionByZero:        "Division by zero in price computation",
	CodeStaleData:             "Quote is older than the staleness window",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidTradeSize:      "Invalid trade size",
	CodeNoQuotes:              "No usable quotes for pair",

	CodeFeedDisconnected:         "Venue feed disconnected",
	CodeFeedFailed:               "Venue feed failed permanently",
	CodeFeedParseError:           "Failed to parse venue message",
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeRPCConnectionFailed:      "Failed to connect to RPC node",
	CodeRPCCallFailed:            "RPC call failed",
	CodePoolNotFound:             "Liquidity pool not found",

	CodeInsufficientAmount:       "Unrotated profit below minimum rotation amount",
	CodeInvalidDestinationConfig: "Rotation destinations do not sum to 100%",
	CodeUnknownAction:            "Unknown pending action",
	CodeInactiveSigner:           "Signer is not active",
	CodeAlreadySigned:            "Signer has already signed this action",
	CodeActionExpired:            "Pending action has expired",
	CodeUnknownRotation:          "Unknown rotation transaction",
	CodeUnknownSigner:            "Unknown signer",
	CodeProofVerificationFailed:  "Distribution proof verification failed",

	CodeCircuitOpen: "Circuit breaker is open",
}
